// Package driver binds SMBus devices to the drivers that know how to talk
// to them.
package driver

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
)

var (
	// ErrNotSupported is returned for operations a device does not offer
	ErrNotSupported = errors.New("operation not supported by device")

	// ErrInvalidArgument wraps every rejected option or argument
	ErrInvalidArgument = errors.New("invalid argument")
)

// Descriptor is a driver entry in the registry
type Descriptor interface {
	// Name is the stable key discovery is ordered by
	Name() string

	// Probe yields the devices this driver recognizes on bus. It only
	// performs non-destructive reads and yields nothing on a mismatch.
	Probe(bus smbus.Bus, f Filters) iter.Seq[Device]
}

// Device is a driver bound to a device at a bus address
type Device interface {
	Description() string
	VendorID() uint16
	ProductID() uint16
	Address() uint8
	Bus() smbus.Bus
	// Port is the physical location; SMBus devices have none
	Port() (string, bool)

	Connect(opts ConnectOptions) error
	Disconnect() error
	Status(opts StatusOptions) ([]Status, error)
}

// ColorSetter is implemented by devices with lighting control
type ColorSetter interface {
	SetColor(channel, mode string, colors []Color, opts ColorOptions) error
}

// Status is a single reading reported by a device
type Status struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

func (s Status) String() string {
	return fmt.Sprintf("%s: %g %s", s.Label, s.Value, s.Unit)
}

// Filters narrow discovery. Zero values match everything.
type Filters struct {
	Bus     string
	USBPort string
	Vendor  uint16
	Product uint16
	Address uint8
	// Match is a case-insensitive substring of the description
	Match string
}

// Validate checks the filter values
func (f Filters) Validate() error {
	if f.Address > 0x7f {
		return fmt.Errorf("%w: address 0x%02x is not a 7-bit address", ErrInvalidArgument, f.Address)
	}
	if f.Bus != "" && strings.TrimSpace(f.Bus) != f.Bus {
		return fmt.Errorf("%w: bus name %q has surrounding whitespace", ErrInvalidArgument, f.Bus)
	}
	return nil
}

// Matches reports whether dev passes the device level filters
func (f Filters) Matches(dev Device) bool {
	if f.Vendor != 0 && f.Vendor != dev.VendorID() {
		return false
	}
	if f.Product != 0 && f.Product != dev.ProductID() {
		return false
	}
	if f.Address != 0 && f.Address != dev.Address() {
		return false
	}
	if f.Match != "" && !strings.Contains(strings.ToLower(dev.Description()), strings.ToLower(f.Match)) {
		return false
	}
	return true
}

// ConnectOptions configure Connect
type ConnectOptions struct {
	Unsafe safety.Tokens
}

// StatusOptions configure Status
type StatusOptions struct {
	Unsafe safety.Tokens
}

// Animation speeds accepted by SetColor
var Speeds = []string{"slowest", "slower", "normal", "faster", "fastest"}

// ColorOptions configure SetColor
type ColorOptions struct {
	Unsafe safety.Tokens
	// Speed is one of Speeds; empty means normal
	Speed string
}

// Validate checks the option values
func (o ColorOptions) Validate() error {
	if o.Speed == "" {
		return nil
	}
	for _, s := range Speeds {
		if o.Speed == s {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown speed %q", ErrInvalidArgument, o.Speed)
}

// Color is an RGB triplet
type Color struct {
	R, G, B uint8
}

// ParseColor accepts rrggbb hex, optionally prefixed with # or 0x
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(s), "#"), "0x")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("%w: color %q is not rrggbb", ErrInvalidArgument, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: color %q is not rrggbb", ErrInvalidArgument, s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c Color) String() string {
	return fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
}

// SMBusDevice carries the identity shared by every SMBus device and the
// gated connection handling. Drivers embed it.
type SMBusDevice struct {
	bus         smbus.Bus
	description string
	vendorID    uint16
	productID   uint16
	address     uint8

	Log logrus.FieldLogger
}

// NewSMBusDevice binds a device at address on bus
func NewSMBusDevice(bus smbus.Bus, description string, vendorID, productID uint16, address uint8) SMBusDevice {
	return SMBusDevice{
		bus:         bus,
		description: description,
		vendorID:    vendorID,
		productID:   productID,
		address:     address,
		Log: logrus.WithFields(logrus.Fields{
			"component": "driver",
			"bus":       bus.Name(),
			"address":   fmt.Sprintf("0x%02x", address),
		}),
	}
}

func (d *SMBusDevice) Description() string {
	return d.description
}

func (d *SMBusDevice) VendorID() uint16 {
	return d.vendorID
}

func (d *SMBusDevice) ProductID() uint16 {
	return d.productID
}

func (d *SMBusDevice) Address() uint8 {
	return d.address
}

func (d *SMBusDevice) Bus() smbus.Bus {
	return d.bus
}

func (d *SMBusDevice) Port() (string, bool) {
	return "", false
}

// Connect opens the bus. Without the smbus token it logs a warning and
// returns nil.
func (d *SMBusDevice) Connect(opts ConnectOptions) error {
	if !opts.Unsafe.Has(safety.SMBus) {
		d.Log.Warnf("SMBus: disabled, requires unsafe feature %q", safety.SMBus)
		return nil
	}
	if err := d.bus.Open(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.description, err)
	}
	return nil
}

// Disconnect closes the bus
func (d *SMBusDevice) Disconnect() error {
	return d.bus.Close()
}

func (d *SMBusDevice) String() string {
	return fmt.Sprintf("%s (%s @ 0x%02x)", d.description, d.bus.Name(), d.address)
}

// WithConnection connects dev, runs fn and always disconnects
func WithConnection(dev Device, opts ConnectOptions, fn func(Device) error) (err error) {
	if err := dev.Connect(opts); err != nil {
		return err
	}
	defer func() {
		if cerr := dev.Disconnect(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to disconnect: %w", cerr)
		}
	}()
	return fn(dev)
}

// SetColor sets a lighting mode on dev, if it supports one
func SetColor(dev Device, channel, mode string, colors []Color, opts ColorOptions) error {
	setter, ok := dev.(ColorSetter)
	if !ok {
		return fmt.Errorf("%s: set color: %w", dev.Description(), ErrNotSupported)
	}
	return setter.SetColor(channel, mode, colors, opts)
}
