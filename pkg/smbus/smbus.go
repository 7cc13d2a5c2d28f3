// Package smbus exposes Linux I2C adapters as SMBus buses that drivers can
// probe and talk to.
package smbus

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotLoaded is returned by Open when the i2c-dev kernel module
	// is not loaded, so no /dev/i2c-N nodes can exist
	ErrModuleNotLoaded = errors.New("kernel module i2c-dev not loaded")

	// ErrNotOpen is returned by bus I/O before Open or after Close
	ErrNotOpen = errors.New("bus is not open")
)

// Conn is an open handle on a numbered SMBus adapter. Addresses are 7-bit.
type Conn interface {
	ReceiveByte(address uint8) (uint8, error)
	ReadByteData(address, register uint8) (uint8, error)
	ReadWordData(address, register uint8) (uint16, error)
	SendByte(address, value uint8) error
	WriteByteData(address, register, value uint8) error
	WriteWordData(address, register uint8, value uint16) error
	Close() error
}

// OpenFunc opens the adapter with the given bus number
type OpenFunc func(number int) (Conn, error)

// Bus is a single SMBus adapter as seen by drivers. Metadata accessors
// report false when the attribute is not available.
type Bus interface {
	Name() string

	// Open acquires the underlying handle; it is a no-op when the bus is
	// already open. Close releases it and may be called more than once.
	Open() error
	Close() error

	ReceiveByte(address uint8) (uint8, error)
	ReadByteData(address, register uint8) (uint8, error)
	ReadWordData(address, register uint8) (uint16, error)
	SendByte(address, value uint8) error
	WriteByteData(address, register, value uint8) error
	WriteWordData(address, register uint8, value uint16) error

	// LoadEEPROM returns the contents of an EEPROM already bound to a
	// kernel driver at address. It never touches the bus itself.
	LoadEEPROM(address uint8) (EEPROM, bool)

	Description() (string, bool)
	ParentVendor() (uint16, bool)
	ParentDevice() (uint16, bool)
	ParentSubsystemVendor() (uint16, bool)
	ParentSubsystemDevice() (uint16, bool)
	ParentDriver() (string, bool)
}

// EEPROM is the content of an EEPROM exposed by a kernel driver
type EEPROM struct {
	Driver string
	Data   []byte
}

// Info summarizes the bus metadata for display
type Info struct {
	Name                  string `json:"name"`
	Description           string `json:"description,omitempty"`
	ParentVendor          uint16 `json:"parent_vendor,omitempty"`
	ParentDevice          uint16 `json:"parent_device,omitempty"`
	ParentSubsystemVendor uint16 `json:"parent_subsystem_vendor,omitempty"`
	ParentSubsystemDevice uint16 `json:"parent_subsystem_device,omitempty"`
	ParentDriver          string `json:"parent_driver,omitempty"`
	ParentVendorName      string `json:"parent_vendor_name,omitempty"`
	ParentDeviceName      string `json:"parent_device_name,omitempty"`
}

// Describe collects the metadata of bus, resolving parent PCI IDs to
// names where the PCI database knows them
func Describe(bus Bus) Info {
	info := Info{Name: bus.Name()}
	info.Description, _ = bus.Description()
	info.ParentVendor, _ = bus.ParentVendor()
	info.ParentDevice, _ = bus.ParentDevice()
	info.ParentSubsystemVendor, _ = bus.ParentSubsystemVendor()
	info.ParentSubsystemDevice, _ = bus.ParentSubsystemDevice()
	info.ParentDriver, _ = bus.ParentDriver()
	info.ParentVendorName, info.ParentDeviceName = pciNames(bus)
	return info
}

func (i Info) String() string {
	if i.Description != "" {
		return fmt.Sprintf("%s: %s", i.Name, i.Description)
	}
	return i.Name
}
