package spd

import "fmt"

// DramDeviceType is the key byte (byte 2) of an SPD dump
type DramDeviceType uint8

// DRAM device types
const (
	DramTypeFPM         DramDeviceType = 0x01
	DramTypeEDO         DramDeviceType = 0x02
	DramTypeNibble      DramDeviceType = 0x03
	DramTypeSDRAM       DramDeviceType = 0x04
	DramTypeROM         DramDeviceType = 0x05
	DramTypeDDRSGRAM    DramDeviceType = 0x06
	DramTypeDDR         DramDeviceType = 0x07
	DramTypeDDR2        DramDeviceType = 0x08
	DramTypeDDR2FBDIMM  DramDeviceType = 0x09
	DramTypeDDR2FBDIMMP DramDeviceType = 0x0A
	DramTypeDDR3        DramDeviceType = 0x0B
	DramTypeDDR4        DramDeviceType = 0x0C
	DramTypeDDR4E       DramDeviceType = 0x0E
	DramTypeLPDDR3      DramDeviceType = 0x0F
	DramTypeLPDDR4      DramDeviceType = 0x10
	DramTypeLPDDR4X     DramDeviceType = 0x11
	DramTypeDDR5        DramDeviceType = 0x12
	DramTypeLPDDR5      DramDeviceType = 0x13
)

var dramTypeNames = map[DramDeviceType]string{
	DramTypeFPM:         "FPM DRAM",
	DramTypeEDO:         "EDO",
	DramTypeNibble:      "Pipelined Nibble",
	DramTypeSDRAM:       "SDRAM",
	DramTypeROM:         "ROM",
	DramTypeDDRSGRAM:    "DDR SGRAM",
	DramTypeDDR:         "DDR SDRAM",
	DramTypeDDR2:        "DDR2 SDRAM",
	DramTypeDDR2FBDIMM:  "DDR2 SDRAM FB-DIMM",
	DramTypeDDR2FBDIMMP: "DDR2 SDRAM FB-DIMM PROBE",
	DramTypeDDR3:        "DDR3 SDRAM",
	DramTypeDDR4:        "DDR4 SDRAM",
	DramTypeDDR4E:       "DDR4E SDRAM",
	DramTypeLPDDR3:      "LPDDR3 SDRAM",
	DramTypeLPDDR4:      "LPDDR4 SDRAM",
	DramTypeLPDDR4X:     "LPDDR4X SDRAM",
	DramTypeDDR5:        "DDR5 SDRAM",
	DramTypeLPDDR5:      "LPDDR5 SDRAM",
}

func (t DramDeviceType) String() string {
	if name, ok := dramTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("reserved (0x%02X)", uint8(t))
}

// IsDDR4 reports whether t belongs to the DDR4 family, which share the
// DDR4 SPD layout
func (t DramDeviceType) IsDDR4() bool {
	switch t {
	case DramTypeDDR4, DramTypeDDR4E, DramTypeLPDDR4, DramTypeLPDDR4X:
		return true
	}
	return false
}

// BaseModuleType is the low nibble of byte 3
type BaseModuleType uint8

// Base module types
const (
	ModuleExtended   BaseModuleType = 0x0
	ModuleRDIMM      BaseModuleType = 0x1
	ModuleUDIMM      BaseModuleType = 0x2
	ModuleSODIMM     BaseModuleType = 0x3
	ModuleLRDIMM     BaseModuleType = 0x4
	ModuleMiniRDIMM  BaseModuleType = 0x5
	ModuleMiniUDIMM  BaseModuleType = 0x6
	Module72bSORDIMM BaseModuleType = 0x8
	Module72bSOUDIMM BaseModuleType = 0x9
	Module16bSODIMM  BaseModuleType = 0xC
	Module32bSODIMM  BaseModuleType = 0xD
)

var moduleTypeNames = map[BaseModuleType]string{
	ModuleExtended:   "Extended",
	ModuleRDIMM:      "RDIMM",
	ModuleUDIMM:      "UDIMM",
	ModuleSODIMM:     "SO-DIMM",
	ModuleLRDIMM:     "LRDIMM",
	ModuleMiniRDIMM:  "Mini-RDIMM",
	ModuleMiniUDIMM:  "Mini-UDIMM",
	Module72bSORDIMM: "72b-SO-RDIMM",
	Module72bSOUDIMM: "72b-SO-UDIMM",
	Module16bSODIMM:  "16b-SO-DIMM",
	Module32bSODIMM:  "32b-SO-DIMM",
}

func (t BaseModuleType) String() string {
	if name, ok := moduleTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("reserved (0x%X)", uint8(t))
}

// HybridType is the high nibble of byte 3; HybridNone for ordinary modules
type HybridType uint8

// Hybrid module types
const (
	HybridNone   HybridType = 0x0
	HybridNVDIMM HybridType = 0x9
)

func (t HybridType) String() string {
	switch t {
	case HybridNone:
		return "none"
	case HybridNVDIMM:
		return "NVDIMM"
	}
	return fmt.Sprintf("hybrid (0x%X)", uint8(t))
}

// ModuleType pairs the base module type with its hybrid sub-type
type ModuleType struct {
	Base   BaseModuleType
	Hybrid HybridType
}

func (m ModuleType) String() string {
	if m.Hybrid == HybridNone {
		return m.Base.String()
	}
	return m.Base.String() + " " + m.Hybrid.String()
}
