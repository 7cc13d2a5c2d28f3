package spd

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed jedec.yaml
var jedecYAML []byte

// continuationCode pads JEP106 IDs in banks past the first
const continuationCode = 0x7F

// ManufacturerID is a JEP106 identification code. Bank counts the
// continuation codes preceding the ID, so the first JEP106 bank is 0;
// Index is the ID with its parity bit stripped.
type ManufacturerID struct {
	Bank  uint8
	Index uint8
}

// ParseManufacturerID decodes the two byte form stored in DDR4 SPD: the
// first byte holds the number of continuation codes and the second the
// ID, both with bit 7 used as parity.
func ParseManufacturerID(lsb, msb byte) ManufacturerID {
	return ManufacturerID{Bank: lsb & 0x7F, Index: msb & 0x7F}
}

// ParseContinuationCode decodes a raw JEP106 sequence: a run of 0x7F
// continuation codes followed by the ID byte. It reports false when the
// sequence holds no terminating ID.
func ParseContinuationCode(code []byte) (ManufacturerID, bool) {
	for i, b := range code {
		if b == continuationCode {
			continue
		}
		if b&0x7F == 0 {
			return ManufacturerID{}, false
		}
		return ManufacturerID{Bank: uint8(i), Index: b & 0x7F}, true
	}
	return ManufacturerID{}, false
}

// Valid reports whether id can name a manufacturer at all
func (id ManufacturerID) Valid() bool {
	return id.Index != 0 && id.Index != continuationCode
}

// Code packs id into 16 bits, bank in the high byte
func (id ManufacturerID) Code() uint16 {
	return uint16(id.Bank)<<8 | uint16(id.Index)
}

// Name looks the ID up in the manufacturer table
func (id ManufacturerID) Name() (string, bool) {
	if !id.Valid() {
		return "", false
	}
	name, ok := manufacturers()[id]
	return name, ok
}

func (id ManufacturerID) String() string {
	if name, ok := id.Name(); ok {
		return name
	}
	return fmt.Sprintf("Bank %d, 0x%02X", int(id.Bank)+1, id.Index)
}

type jedecBank struct {
	Bank  int            `yaml:"bank"`
	Codes map[int]string `yaml:"codes"`
}

var manufacturers = sync.OnceValue(func() map[ManufacturerID]string {
	table, err := loadManufacturers(jedecYAML)
	if err != nil {
		// the table is embedded, so this only trips on a broken build
		panic(fmt.Sprintf("failed to load JEDEC manufacturer table: %v", err))
	}
	return table
})

func loadManufacturers(data []byte) (map[ManufacturerID]string, error) {
	var banks []jedecBank
	if err := yaml.Unmarshal(data, &banks); err != nil {
		return nil, fmt.Errorf("failed to parse manufacturer table: %w", err)
	}

	table := make(map[ManufacturerID]string)
	for _, bank := range banks {
		if bank.Bank < 1 || bank.Bank > continuationCode {
			return nil, fmt.Errorf("invalid bank %d", bank.Bank)
		}
		for code, name := range bank.Codes {
			if code <= 0 || code > 0xFF {
				return nil, fmt.Errorf("invalid code 0x%X in bank %d", code, bank.Bank)
			}
			id := ManufacturerID{Bank: uint8(bank.Bank - 1), Index: uint8(code) & 0x7F}
			table[id] = name
		}
	}
	return table, nil
}
