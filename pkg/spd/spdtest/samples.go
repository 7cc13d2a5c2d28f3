// Package spdtest provides SPD dumps captured from real modules for use in
// tests.
package spdtest

import (
	"encoding/hex"
	"strings"
)

// vengeanceRGBHex is the SPD of a Corsair CMR32GX4M2C3333C16 module. The
// module has a thermal sensor but does not set the thermal sensor bit.
const vengeanceRGBHex = `
23100c028521000800000003090300000000080cfc0300006c6c6c110874f00a
2008000500a81e2b2b0000000000000000000000000000000000000016361636
1636163600002b0c2b0c2b0c2b0c000000000000000000000000000000000000
000000000000000000000000000000000000000000edb5ce0000000000c24da7
1111010100000000000000000000000000000000000000000000000000000000
0000000000000000000000000000000000000000000000000000000000000000
0000000000000000000000000000000000000000000000000000000000000000
000000000000000000000000000000000000000000000000000000000000de27
0000000000000000000000000000000000000000000000000000000000000000
0000000000000000000000000000000000000000000000000000000000000000
029e00000000000000434d5233324758344d32433333333343313620200080ce
0000000000000000000000000000000000000000000000000000000000000000
0c4a01200000000000a3000005fc3f04004d575710ac03f00a2008000500b022
2c00000000000000009cceb5b5b5e7e700000000000000000000000000000000
0000000000000000000000000000000000000000000000000000000000000000
0000000000000000000000000000000000000000000000000000000000000000
`

const (
	thermalSensorOffset = 0x0E
	partNumberOffset    = 0x149
	partNumberLen       = 20
)

// VengeanceRGB returns a fresh copy of the Vengeance RGB sample
func VengeanceRGB() []byte {
	data, err := hex.DecodeString(strings.Join(strings.Fields(vengeanceRGBHex), ""))
	if err != nil {
		panic(err)
	}
	return data
}

// NonTS returns the sample with its part number blanked; the thermal
// sensor bit stays clear
func NonTS() []byte {
	return Patch(VengeanceRGB(), partNumberOffset, []byte(strings.Repeat(" ", partNumberLen)))
}

// TS returns NonTS with the thermal sensor bit set
func TS() []byte {
	return Patch(NonTS(), thermalSensorOffset, []byte{0x80})
}

// Patch overwrites dump at offset with data and returns it
func Patch(dump []byte, offset int, data []byte) []byte {
	copy(dump[offset:], data)
	return dump
}
