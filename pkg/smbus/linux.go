package smbus

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultRoot is where the kernel exposes the I2C bus topology
	DefaultRoot = "/sys/bus/i2c"
	// DefaultClassRoot only exists once i2c-dev is loaded
	DefaultClassRoot = "/sys/class/i2c-dev"
)

// Filter narrows bus enumeration
type Filter struct {
	// Bus matches a bus name such as i2c-0
	Bus string
	// USBPort never matches an I2C bus; setting it disables enumeration
	USBPort string
}

// LinuxI2c enumerates the I2C adapters under /sys/bus/i2c
type LinuxI2c struct {
	Root      string
	ClassRoot string
	// Open gives access to the adapters; when nil no bus is yielded
	Open OpenFunc

	log logrus.FieldLogger
}

// NewLinuxI2c returns a topology reader for the running system
func NewLinuxI2c() *LinuxI2c {
	return &LinuxI2c{
		Root:      DefaultRoot,
		ClassRoot: DefaultClassRoot,
		Open:      DefaultOpen,
	}
}

func (l *LinuxI2c) logger() logrus.FieldLogger {
	if l.log == nil {
		l.log = logrus.WithField("component", "smbus")
	}
	return l.log
}

// Buses yields the buses matching f. Entries that are not adapters, such
// as the client devices sharing the same directory, are skipped.
func (l *LinuxI2c) Buses(f Filter) iter.Seq[Bus] {
	return func(yield func(Bus) bool) {
		log := l.logger()

		if f.USBPort != "" {
			return
		}
		if l.Open == nil {
			log.Debug("skipping Linux I2C, no SMBus access available")
			return
		}

		if f.Bus != "" {
			bus, err := l.Bus(f.Bus)
			if err != nil {
				log.Debugf("skipping %s, %v", f.Bus, err)
				return
			}
			log.Debugf("found I2C bus %s", bus.Name())
			yield(bus)
			return
		}

		root := l.Root
		if root == "" {
			root = DefaultRoot
		}
		devices := filepath.Join(root, "devices")
		entries, err := os.ReadDir(devices)
		if err != nil {
			log.Debugf("skipping Linux I2C, %s not available: %v", devices, err)
			return
		}

		var buses []*LinuxBus
		for _, entry := range entries {
			bus, err := l.newBus(filepath.Join(devices, entry.Name()))
			if err != nil {
				log.Debugf("ignoring %s, %v", entry.Name(), err)
				continue
			}
			buses = append(buses, bus)
		}
		slices.SortFunc(buses, func(a, b *LinuxBus) int { return a.number - b.number })

		for _, bus := range buses {
			log.Debugf("found I2C bus %s", bus.Name())
			if !yield(bus) {
				return
			}
		}
	}
}

// Bus returns the named bus directly, without enumeration
func (l *LinuxI2c) Bus(name string) (*LinuxBus, error) {
	root := l.Root
	if root == "" {
		root = DefaultRoot
	}
	bus, err := l.newBus(filepath.Join(root, "devices", name))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(bus.dir); err != nil {
		return nil, fmt.Errorf("bus %s not found: %w", name, err)
	}
	return bus, nil
}

func (l *LinuxI2c) newBus(dir string) (*LinuxBus, error) {
	name := filepath.Base(dir)
	number, ok := strings.CutPrefix(name, "i2c-")
	if !ok {
		return nil, fmt.Errorf("cannot infer bus number")
	}
	n, err := strconv.Atoi(number)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("cannot infer bus number")
	}

	classRoot := l.ClassRoot
	if classRoot == "" {
		classRoot = DefaultClassRoot
	}
	return &LinuxBus{
		dir:       dir,
		number:    n,
		classRoot: classRoot,
		open:      l.Open,
		log:       l.logger().WithField("bus", name),
	}, nil
}

// LinuxBus is an I2C adapter, which is itself an SMBus bus
type LinuxBus struct {
	dir       string
	number    int
	classRoot string
	open      OpenFunc
	conn      Conn

	log logrus.FieldLogger
}

var _ Bus = (*LinuxBus)(nil)

// Name returns the sysfs name, e.g. i2c-0
func (b *LinuxBus) Name() string {
	return filepath.Base(b.dir)
}

// Number returns the adapter number
func (b *LinuxBus) Number() int {
	return b.number
}

// Open opens the adapter. A missing device node is reported as
// ErrModuleNotLoaded when i2c-dev is absent altogether.
func (b *LinuxBus) Open() error {
	if b.conn != nil {
		return nil
	}
	if b.open == nil {
		return fmt.Errorf("open %s: %w", b.Name(), errors.ErrUnsupported)
	}

	conn, err := b.open(b.number)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(b.classRoot); errors.Is(statErr, fs.ErrNotExist) {
				return ErrModuleNotLoaded
			}
		}
		return fmt.Errorf("failed to open %s: %w", b.Name(), err)
	}
	b.conn = conn
	return nil
}

// Close closes the adapter if open
func (b *LinuxBus) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

func (b *LinuxBus) ReceiveByte(address uint8) (uint8, error) {
	if b.conn == nil {
		return 0, ErrNotOpen
	}
	value, err := b.conn.ReceiveByte(address)
	if err != nil {
		return 0, err
	}
	b.log.Debugf("receive byte @ 0x%02x: 0x%02x", address, value)
	return value, nil
}

func (b *LinuxBus) ReadByteData(address, register uint8) (uint8, error) {
	if b.conn == nil {
		return 0, ErrNotOpen
	}
	value, err := b.conn.ReadByteData(address, register)
	if err != nil {
		return 0, err
	}
	b.log.Debugf("read byte data @ 0x%02x:0x%02x: 0x%02x", address, register, value)
	return value, nil
}

func (b *LinuxBus) ReadWordData(address, register uint8) (uint16, error) {
	if b.conn == nil {
		return 0, ErrNotOpen
	}
	value, err := b.conn.ReadWordData(address, register)
	if err != nil {
		return 0, err
	}
	b.log.Debugf("read word data @ 0x%02x:0x%02x: 0x%04x", address, register, value)
	return value, nil
}

func (b *LinuxBus) SendByte(address, value uint8) error {
	if b.conn == nil {
		return ErrNotOpen
	}
	b.log.Debugf("sending byte @ 0x%02x: 0x%02x", address, value)
	return b.conn.SendByte(address, value)
}

func (b *LinuxBus) WriteByteData(address, register, value uint8) error {
	if b.conn == nil {
		return ErrNotOpen
	}
	b.log.Debugf("writing byte data @ 0x%02x:0x%02x: 0x%02x", address, register, value)
	return b.conn.WriteByteData(address, register, value)
}

func (b *LinuxBus) WriteWordData(address, register uint8, value uint16) error {
	if b.conn == nil {
		return ErrNotOpen
	}
	b.log.Debugf("writing word data @ 0x%02x:0x%02x: 0x%04x", address, register, value)
	return b.conn.WriteWordData(address, register, value)
}

// LoadEEPROM reads <bus>/<N>-00XX/eeprom, the attribute exported by the
// kernel EEPROM drivers (ee1004, at24 and friends)
func (b *LinuxBus) LoadEEPROM(address uint8) (EEPROM, bool) {
	dir := filepath.Join(b.dir, fmt.Sprintf("%d-%04x", b.number, address))

	name, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil {
		return EEPROM{}, false
	}
	data, err := os.ReadFile(filepath.Join(dir, "eeprom"))
	if err != nil {
		b.log.Debugf("failed to read eeprom @ 0x%02x: %v", address, err)
		return EEPROM{}, false
	}
	return EEPROM{Driver: strings.TrimSpace(string(name)), Data: data}, true
}

func (b *LinuxBus) Description() (string, bool) {
	data, err := os.ReadFile(filepath.Join(b.dir, "name"))
	if err != nil {
		return "", false
	}
	return strings.TrimRight(string(data), " \t\r\n"), true
}

func (b *LinuxBus) ParentVendor() (uint16, bool) {
	return b.readHex("device", "vendor")
}

func (b *LinuxBus) ParentDevice() (uint16, bool) {
	return b.readHex("device", "device")
}

func (b *LinuxBus) ParentSubsystemVendor() (uint16, bool) {
	return b.readHex("device", "subsystem_vendor")
}

func (b *LinuxBus) ParentSubsystemDevice() (uint16, bool) {
	return b.readHex("device", "subsystem_device")
}

// ParentDriver returns the kernel driver bound to the adapter's parent,
// e.g. i801_smbus
func (b *LinuxBus) ParentDriver() (string, bool) {
	target, err := os.Readlink(filepath.Join(b.dir, "device", "driver"))
	if err != nil {
		return "", false
	}
	return filepath.Base(target), true
}

func (b *LinuxBus) String() string {
	return Describe(b).String()
}

func (b *LinuxBus) readHex(elem ...string) (uint16, bool) {
	data, err := os.ReadFile(filepath.Join(append([]string{b.dir}, elem...)...))
	if err != nil {
		return 0, false
	}
	s := strings.TrimSpace(string(data))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		b.log.Debugf("ignoring malformed %s: %q", filepath.Join(elem...), data)
		return 0, false
	}
	return uint16(v), true
}
