// Package smbustest provides an in-memory SMBus for driver tests.
package smbustest

import (
	"fmt"
	"iter"
	"sync"

	"github.com/mscrnt/dimmctl/pkg/smbus"
)

// Bus emulates a bus where every address has 256 byte registers. Words are
// stored little-endian across two consecutive registers, as SMBus
// transfers them.
type Bus struct {
	mu sync.Mutex

	name      string
	open      bool
	opens     int
	registers map[uint8]*[256]uint8
	eeproms   map[uint8]smbus.EEPROM

	// OpenErr is returned by Open when set
	OpenErr error

	Desc            *string
	Vendor          *uint16
	Device          *uint16
	SubsystemVendor *uint16
	SubsystemDevice *uint16
	Driver          *string
}

var _ smbus.Bus = (*Bus)(nil)

// New returns an empty bus called name whose parent is bound to driver;
// an empty driver leaves that metadata unavailable
func New(name, driver string) *Bus {
	b := &Bus{
		name:      name,
		registers: make(map[uint8]*[256]uint8),
		eeproms:   make(map[uint8]smbus.EEPROM),
	}
	if driver != "" {
		b.Driver = &driver
	}
	return b
}

// SetEEPROM exposes data at address as if bound to the kernel driver
func (b *Bus) SetEEPROM(address uint8, driver string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eeproms[address] = smbus.EEPROM{Driver: driver, Data: append([]byte(nil), data...)}
}

// Register returns the current value of a register without going through
// the open handle
func (b *Bus) Register(address, register uint8) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs(address)[register]
}

// SetRegister sets a register without going through the open handle
func (b *Bus) SetRegister(address, register, value uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.regs(address)[register] = value
}

// SetWord stores value as ReadWordData will return it
func (b *Bus) SetWord(address, register uint8, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.regs(address)
	regs[register] = uint8(value)
	regs[register+1] = uint8(value >> 8)
}

// IsOpen reports whether the bus is currently open
func (b *Bus) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// Opens counts the successful calls to Open that acquired the bus
func (b *Bus) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

func (b *Bus) regs(address uint8) *[256]uint8 {
	regs, ok := b.registers[address]
	if !ok {
		regs = new([256]uint8)
		b.registers[address] = regs
	}
	return regs
}

func (b *Bus) Name() string {
	return b.name
}

func (b *Bus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return b.OpenErr
	}
	if !b.open {
		b.open = true
		b.opens++
	}
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	return nil
}

func (b *Bus) checkOpen(address uint8) error {
	if !b.open {
		return smbus.ErrNotOpen
	}
	if address > 0x7f {
		return fmt.Errorf("invalid 7-bit address 0x%02x", address)
	}
	return nil
}

func (b *Bus) ReceiveByte(address uint8) (uint8, error) {
	return b.ReadByteData(address, 0)
}

func (b *Bus) ReadByteData(address, register uint8) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(address); err != nil {
		return 0, err
	}
	return b.regs(address)[register], nil
}

func (b *Bus) ReadWordData(address, register uint8) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(address); err != nil {
		return 0, err
	}
	regs := b.regs(address)
	return uint16(regs[register]) | uint16(regs[register+1])<<8, nil
}

func (b *Bus) SendByte(address, value uint8) error {
	return b.WriteByteData(address, 0, value)
}

func (b *Bus) WriteByteData(address, register, value uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(address); err != nil {
		return err
	}
	b.regs(address)[register] = value
	return nil
}

func (b *Bus) WriteWordData(address, register uint8, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(address); err != nil {
		return err
	}
	regs := b.regs(address)
	regs[register] = uint8(value)
	regs[register+1] = uint8(value >> 8)
	return nil
}

func (b *Bus) LoadEEPROM(address uint8) (smbus.EEPROM, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	eeprom, ok := b.eeproms[address]
	if !ok {
		return smbus.EEPROM{}, false
	}
	eeprom.Data = append([]byte(nil), eeprom.Data...)
	return eeprom, true
}

func (b *Bus) Description() (string, bool) { return get(b, b.Desc) }

func (b *Bus) ParentVendor() (uint16, bool) { return get(b, b.Vendor) }

func (b *Bus) ParentDevice() (uint16, bool) { return get(b, b.Device) }

func (b *Bus) ParentSubsystemVendor() (uint16, bool) { return get(b, b.SubsystemVendor) }

func (b *Bus) ParentSubsystemDevice() (uint16, bool) { return get(b, b.SubsystemDevice) }

func (b *Bus) ParentDriver() (string, bool) { return get(b, b.Driver) }

func get[T any](b *Bus, v *T) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v == nil {
		var zero T
		return zero, false
	}
	return *v, true
}

// Root serves a fixed set of buses, honoring the same filters as the
// Linux topology reader
type Root []smbus.Bus

// Buses yields the buses matching f
func (r Root) Buses(f smbus.Filter) iter.Seq[smbus.Bus] {
	return func(yield func(smbus.Bus) bool) {
		if f.USBPort != "" {
			return
		}
		for _, bus := range r {
			if f.Bus != "" && f.Bus != bus.Name() {
				continue
			}
			if !yield(bus) {
				return
			}
		}
	}
}
