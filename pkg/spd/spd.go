// Package spd decodes JEDEC Serial Presence Detect data of DDR4 memory
// modules.
package spd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// SPD byte offsets for DDR4 (JEDEC SPD Rev 1.x)
const (
	// Base configuration
	SPDBytesUsed     = 0x00 // Number of bytes used / total
	SPDRevision      = 0x01 // SPD Revision
	SPDDramType      = 0x02 // DRAM Device Type
	SPDModuleType    = 0x03 // Module Type
	SPDDensityBanks  = 0x04 // SDRAM Density and Banks
	SPDPackageType   = 0x06 // Primary SDRAM Package Type
	SPDModuleOrg     = 0x0C // Module Organization
	SPDPrimaryBus    = 0x0D // Module Memory Bus Width
	SPDThermalSensor = 0x0E // Module Thermal Sensor

	// Manufacturing information (starts at 320)
	SPDModuleMfgIDLsb = 0x140 // Module Manufacturer ID Code, LSB
	SPDModuleMfgIDMsb = 0x141 // Module Manufacturer ID Code, MSB
	SPDModuleMfgLoc   = 0x142 // Module Manufacturing Location
	SPDModuleMfgDateY = 0x143 // Module Manufacturing Date Year (BCD)
	SPDModuleMfgDateW = 0x144 // Module Manufacturing Date Week (BCD)
	SPDModuleSerial   = 0x145 // Module Serial Number (4 bytes)
	SPDModulePartNum  = 0x149 // Module Part Number (20 bytes)
	SPDModuleRevCode  = 0x15D // Module Revision Code
	SPDDramMfgIDLsb   = 0x15E // DRAM Manufacturer ID Code, LSB
	SPDDramMfgIDMsb   = 0x15F // DRAM Manufacturer ID Code, MSB

	partNumberLen = 20
)

const (
	// MinLength is the shortest buffer Decode accepts
	MinLength = 256
	// FullLength is the size of a complete DDR4 SPD EEPROM
	FullLength = 512
)

// ErrTooShort is returned by Decode for buffers under MinLength bytes
var ErrTooShort = errors.New("SPD data too short")

// DDR4 is a decoded view over a DDR4 SPD dump. Fields are decoded on
// demand from a private copy of the data and are never mutated.
type DDR4 struct {
	data []byte
}

// Decode wraps data for decoding. It only fails when data is shorter than
// MinLength; unknown or reserved values decode to best-effort results.
func Decode(data []byte) (*DDR4, error) {
	if len(data) < MinLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooShort, len(data))
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return &DDR4{data: buf}, nil
}

// Bytes returns a copy of the raw dump
func (d *DDR4) Bytes() []byte {
	buf := make([]byte, len(d.data))
	copy(buf, d.data)
	return buf
}

func (d *DDR4) has(offset, n int) bool {
	return offset+n <= len(d.data)
}

// BytesUsed returns how many bytes of the EEPROM are in use, or 0 if the
// encoding is undefined
func (d *DDR4) BytesUsed() int {
	switch d.data[SPDBytesUsed] & 0x0F {
	case 1:
		return 128
	case 2:
		return 256
	case 3:
		return 384
	case 4:
		return 512
	}
	return 0
}

// BytesTotal returns the EEPROM size, or 0 if the encoding is undefined
func (d *DDR4) BytesTotal() int {
	switch (d.data[SPDBytesUsed] >> 4) & 0x07 {
	case 1:
		return 256
	case 2:
		return 512
	}
	return 0
}

// Revision returns the SPD encoding revision as (major, minor)
func (d *DDR4) Revision() (int, int) {
	rev := d.data[SPDRevision]
	return int(rev >> 4), int(rev & 0x0F)
}

// DramDeviceType returns the key byte
func (d *DDR4) DramDeviceType() DramDeviceType {
	return DramDeviceType(d.data[SPDDramType])
}

// ModuleType returns the base module type and hybrid sub-type
func (d *DDR4) ModuleType() ModuleType {
	b := d.data[SPDModuleType]
	return ModuleType{
		Base:   BaseModuleType(b & 0x0F),
		Hybrid: HybridType(b >> 4),
	}
}

// ThermalSensorPresent reports whether the module advertises an on-board
// thermal sensor
func (d *DDR4) ThermalSensorPresent() bool {
	return d.data[SPDThermalSensor]&0x80 != 0
}

// Ranks returns the number of package ranks
func (d *DDR4) Ranks() int {
	return int((d.data[SPDModuleOrg]>>3)&0x07) + 1
}

// CapacityBytes computes the module capacity; it reports false when the
// density or width encodings are reserved
func (d *DDR4) CapacityBytes() (uint64, bool) {
	var densityMbit uint64
	switch d.data[SPDDensityBanks] & 0x0F {
	case 0x0:
		densityMbit = 256
	case 0x1:
		densityMbit = 512
	case 0x2:
		densityMbit = 1 << 10
	case 0x3:
		densityMbit = 2 << 10
	case 0x4:
		densityMbit = 4 << 10
	case 0x5:
		densityMbit = 8 << 10
	case 0x6:
		densityMbit = 16 << 10
	case 0x7:
		densityMbit = 32 << 10
	case 0x8:
		densityMbit = 12 << 10
	case 0x9:
		densityMbit = 24 << 10
	default:
		return 0, false
	}

	org := d.data[SPDModuleOrg]
	if org&0x07 > 3 {
		return 0, false
	}
	deviceWidth := uint64(4) << (org & 0x07)

	bus := d.data[SPDPrimaryBus]
	if bus&0x07 > 3 {
		return 0, false
	}
	busWidth := uint64(8) << (bus & 0x07)

	ranks := uint64(d.Ranks())

	// 3DS packages stack several dies per rank
	pkg := d.data[SPDPackageType]
	if pkg&0x03 == 0x02 {
		ranks *= uint64((pkg>>4)&0x07) + 1
	}

	return densityMbit << 20 / 8 * (busWidth / deviceWidth) * ranks, true
}

// ModuleManufacturerID returns the raw module manufacturer ID
func (d *DDR4) ModuleManufacturerID() (ManufacturerID, bool) {
	if !d.has(SPDModuleMfgIDLsb, 2) {
		return ManufacturerID{}, false
	}
	id := ParseManufacturerID(d.data[SPDModuleMfgIDLsb], d.data[SPDModuleMfgIDMsb])
	return id, id.Valid()
}

// ModuleManufacturer returns the module manufacturer name; it reports
// false for IDs missing from the manufacturer table
func (d *DDR4) ModuleManufacturer() (string, bool) {
	id, ok := d.ModuleManufacturerID()
	if !ok {
		return "", false
	}
	return id.Name()
}

// DramManufacturerID returns the raw DRAM manufacturer ID
func (d *DDR4) DramManufacturerID() (ManufacturerID, bool) {
	if !d.has(SPDDramMfgIDLsb, 2) {
		return ManufacturerID{}, false
	}
	id := ParseManufacturerID(d.data[SPDDramMfgIDLsb], d.data[SPDDramMfgIDMsb])
	return id, id.Valid()
}

// DramManufacturer returns the DRAM manufacturer name
func (d *DDR4) DramManufacturer() (string, bool) {
	id, ok := d.DramManufacturerID()
	if !ok {
		return "", false
	}
	return id.Name()
}

// PartNumber returns the module part number, or false when it was left
// blank or holds bytes outside printable ASCII
func (d *DDR4) PartNumber() (string, bool) {
	if !d.has(SPDModulePartNum, partNumberLen) {
		return "", false
	}
	raw := string(d.data[SPDModulePartNum : SPDModulePartNum+partNumberLen])
	pn := strings.TrimRight(raw, " \x00\xff")
	pn = strings.TrimSpace(pn)
	if pn == "" {
		return "", false
	}
	for i := 0; i < len(pn); i++ {
		if pn[i] < 0x20 || pn[i] > 0x7E {
			return "", false
		}
	}
	return pn, true
}

// SerialNumber returns the module serial number as hex
func (d *DDR4) SerialNumber() (string, bool) {
	if !d.has(SPDModuleSerial, 4) {
		return "", false
	}
	serial := binary.LittleEndian.Uint32(d.data[SPDModuleSerial : SPDModuleSerial+4])
	if serial == 0 || serial == 0xFFFFFFFF {
		return "", false
	}
	return fmt.Sprintf("%08X", serial), true
}

// ManufacturingDate returns the BCD encoded manufacturing year and week
// as YYYY-Www
func (d *DDR4) ManufacturingDate() (string, bool) {
	if !d.has(SPDModuleMfgDateY, 2) {
		return "", false
	}
	year := d.data[SPDModuleMfgDateY]
	week := d.data[SPDModuleMfgDateW]
	if year == 0 || week == 0 || !isBCD(year) || !isBCD(week) {
		return "", false
	}
	return fmt.Sprintf("20%02x-W%02x", year, week), true
}

func isBCD(b byte) bool {
	return b&0x0F <= 9 && b>>4 <= 9
}
