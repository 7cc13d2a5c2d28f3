// Package ddr4 drives DDR4 modules found through their SPD EEPROMs: the
// JEDEC temperature sensor most of them carry, and the lighting controller
// of Corsair Vengeance RGB modules.
package ddr4

import (
	"fmt"
	"iter"
	"math/bits"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/pkg/smbus"
	"github.com/mscrnt/dimmctl/pkg/spd"
)

const (
	// SPD EEPROMs answer at 0x50-0x57, one address per slot
	spdFirstAddress = 0x50
	spdLastAddress  = 0x57

	// EEPROMDriver is the kernel driver for DDR4 SPD EEPROMs
	EEPROMDriver = "ee1004"

	temperatureRegister = 0x05
)

// AllowedParentDrivers are the SMBus host drivers known to sit in front of
// memory slots
var AllowedParentDrivers = []string{"i801_smbus", "piix4_smbus"}

// Slot returns the 1-based memory slot of an SPD address
func Slot(address uint8) int {
	return int(address) - spdFirstAddress + 1
}

// SensorAddress returns the address of the temperature sensor paired with
// the SPD EEPROM at address
func SensorAddress(address uint8) uint8 {
	return 0x18 | (address & 0x07)
}

// DecodeTemperature converts a word read from the sensor's temperature
// register to degrees Celsius. SMBus transfers the low byte first while the
// sensor sends the high one first; the top three bits are alarm flags and
// the rest is a two's complement value in 1/16 °C steps, reported here at
// 0.25 °C.
func DecodeTemperature(raw uint16) float64 {
	v := int(bits.ReverseBytes16(raw)) & 0x1fff
	if v > 0x0fff {
		v -= 0x2000
	}
	return float64(v>>2) * 0.25
}

type module struct {
	address uint8
	spd     *spd.DDR4
}

// scan yields the decodable DDR4 SPD dumps on bus. Nothing is yielded when
// the bus belongs to a host driver not known to serve memory slots.
func scan(bus smbus.Bus, log logrus.FieldLogger) iter.Seq[module] {
	return func(yield func(module) bool) {
		if driver, ok := bus.ParentDriver(); ok && !slices.Contains(AllowedParentDrivers, driver) {
			log.Debugf("skipping %s, parent driver %s not allowed", bus.Name(), driver)
			return
		}

		for address := uint8(spdFirstAddress); address <= spdLastAddress; address++ {
			eeprom, ok := bus.LoadEEPROM(address)
			if !ok {
				continue
			}
			if eeprom.Driver != EEPROMDriver {
				log.Debugf("ignoring 0x%02x, bound to %s", address, eeprom.Driver)
				continue
			}
			dump, err := spd.Decode(eeprom.Data)
			if err != nil {
				log.Debugf("ignoring 0x%02x, %v", address, err)
				continue
			}
			if !dump.DramDeviceType().IsDDR4() {
				log.Debugf("ignoring 0x%02x, %s", address, dump.DramDeviceType())
				continue
			}
			if !yield(module{address: address, spd: dump}) {
				return
			}
		}
	}
}

func (m module) ids() (vendor, product uint16) {
	if id, ok := m.spd.ModuleManufacturerID(); ok {
		vendor = id.Code()
	}
	if id, ok := m.spd.DramManufacturerID(); ok {
		product = id.Code()
	}
	return vendor, product
}

func genericDescription(m module) string {
	mfr, ok := m.spd.ModuleManufacturer()
	if !ok {
		mfr = "DDR4"
	}
	if pn, ok := m.spd.PartNumber(); ok {
		mfr = mfr + " " + pn
	}
	return fmt.Sprintf("%s DIMM%d (experimental)", mfr, Slot(m.address))
}
