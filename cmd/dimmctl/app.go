package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/internal/config"
	"github.com/mscrnt/dimmctl/pkg/db"
	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
)

var errNoDevices = errors.New("no devices matches available drivers and selection criteria")

// app holds the global flags and what they resolve to
type app struct {
	configPath string
	sysfsRoot  string
	bus        string
	unsafe     []string
	vendor     string
	product    string
	address    string
	match      string
	pick       int
	debug      bool
	logFormat  string

	cfg *config.Config
	// root replaces the running system's buses when set
	root     driver.Root
	registry *driver.Registry
	log      logrus.FieldLogger
}

func newApp() *app {
	return &app{
		pick:     -1,
		registry: driver.Default(),
		log:      logrus.WithField("component", "cli"),
	}
}

func (a *app) setup() error {
	if err := setupLogging(a.debug, a.logFormat); err != nil {
		return err
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.sysfsRoot != "" {
		cfg.SysfsRoot = a.sysfsRoot
	}
	a.cfg = cfg
	return nil
}

func setupLogging(debug bool, format string) error {
	switch format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q, should be text or json", format)
	}

	logrus.SetOutput(os.Stderr)
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	return nil
}

// tokens merges the unsafe features from the file and the command line
func (a *app) tokens() safety.Tokens {
	return a.cfg.Tokens().Union(safety.Parse(a.unsafe...))
}

func (a *app) filters() (driver.Filters, error) {
	f := driver.Filters{
		Bus:   a.bus,
		Match: a.match,
	}

	var err error
	if f.Vendor, err = parseID("vendor", a.vendor); err != nil {
		return f, err
	}
	if f.Product, err = parseID("product", a.product); err != nil {
		return f, err
	}
	if a.address != "" {
		v, err := strconv.ParseUint(a.address, 0, 8)
		if err != nil {
			return f, fmt.Errorf("%w: --address %q", driver.ErrInvalidArgument, a.address)
		}
		f.Address = uint8(v)
	}

	return f, f.Validate()
}

func parseID(name, s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: --%s %q", driver.ErrInvalidArgument, name, s)
	}
	return uint16(v), nil
}

func (a *app) busRoot() driver.Root {
	if a.root != nil {
		return a.root
	}
	l := smbus.NewLinuxI2c()
	l.Root = a.cfg.SysfsRoot
	return l
}

// findDevices returns the matching devices, narrowed to one by --pick
func (a *app) findDevices() ([]driver.Device, error) {
	f, err := a.filters()
	if err != nil {
		return nil, err
	}

	var devs []driver.Device
	index := 0
	for dev := range driver.FindDevices(a.busRoot(), a.registry, f) {
		if a.pick >= 0 {
			if index == a.pick {
				return []driver.Device{dev}, nil
			}
			index++
			continue
		}
		devs = append(devs, dev)
	}
	return devs, nil
}

// requireDevices is findDevices for commands that need at least one
func (a *app) requireDevices() ([]driver.Device, error) {
	devs, err := a.findDevices()
	if err != nil {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, errNoDevices
	}
	return devs, nil
}

func (a *app) openDB() (*db.DB, error) {
	path, err := a.cfg.ResolveDBPath()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
