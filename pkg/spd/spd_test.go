package spd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/dimmctl/pkg/spd/spdtest"
)

func TestDecodeVengeanceRGB(t *testing.T) {
	dump, err := Decode(spdtest.VengeanceRGB())
	require.NoError(t, err)

	assert.False(t, dump.ThermalSensorPresent())
	assert.Equal(t, 384, dump.BytesUsed())
	assert.Equal(t, 512, dump.BytesTotal())

	major, minor := dump.Revision()
	assert.Equal(t, 1, major)
	assert.Equal(t, 0, minor)

	assert.Equal(t, DramTypeDDR4, dump.DramDeviceType())
	assert.Equal(t, ModuleType{Base: ModuleUDIMM, Hybrid: HybridNone}, dump.ModuleType())

	mfg, ok := dump.ModuleManufacturer()
	assert.True(t, ok)
	assert.Equal(t, "Corsair", mfg)

	dram, ok := dump.DramManufacturer()
	assert.True(t, ok)
	assert.Equal(t, "Samsung", dram)

	pn, ok := dump.PartNumber()
	assert.True(t, ok)
	assert.Equal(t, "CMR32GX4M2C3333C16", pn)
}

func TestThermalSensorBit(t *testing.T) {
	plain, err := Decode(spdtest.VengeanceRGB())
	require.NoError(t, err)

	patched, err := Decode(spdtest.Patch(spdtest.VengeanceRGB(), SPDThermalSensor, []byte{0x80}))
	require.NoError(t, err)

	assert.True(t, patched.ThermalSensorPresent())

	// nothing else changes
	assert.Equal(t, plain.BytesUsed(), patched.BytesUsed())
	assert.Equal(t, plain.DramDeviceType(), patched.DramDeviceType())
	assert.Equal(t, plain.ModuleType(), patched.ModuleType())
	mfgA, _ := plain.ModuleManufacturer()
	mfgB, _ := patched.ModuleManufacturer()
	assert.Equal(t, mfgA, mfgB)
	pnA, _ := plain.PartNumber()
	pnB, _ := patched.PartNumber()
	assert.Equal(t, pnA, pnB)
}

func TestBlankPartNumber(t *testing.T) {
	dump, err := Decode(spdtest.NonTS())
	require.NoError(t, err)

	_, ok := dump.PartNumber()
	assert.False(t, ok)

	cleared, err := Decode(spdtest.Patch(spdtest.VengeanceRGB(), SPDModulePartNum, make([]byte, 20)))
	require.NoError(t, err)
	_, ok = cleared.PartNumber()
	assert.False(t, ok)
}

func TestNonASCIIPartNumber(t *testing.T) {
	dump, err := Decode(spdtest.Patch(spdtest.VengeanceRGB(), SPDModulePartNum, []byte("CMR\xC3\x28\x90X4M2C3333C16")))
	require.NoError(t, err)
	pn, ok := dump.PartNumber()
	assert.False(t, ok)
	assert.Empty(t, pn)

	tab, err := Decode(spdtest.Patch(spdtest.VengeanceRGB(), SPDModulePartNum, []byte("CMR32\tX4M2C3333C16")))
	require.NoError(t, err)
	_, ok = tab.PartNumber()
	assert.False(t, ok)
}

func TestCapacity(t *testing.T) {
	dump, err := Decode(spdtest.VengeanceRGB())
	require.NoError(t, err)

	capacity, ok := dump.CapacityBytes()
	require.True(t, ok)
	assert.Equal(t, uint64(16<<30), capacity)
	assert.Equal(t, 2, dump.Ranks())
}

func TestDecodeShortBuffers(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", make([]byte, 64)},
		{"one byte short", make([]byte, MinLength-1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			assert.True(t, errors.Is(err, ErrTooShort), "got %v", err)
		})
	}
}

func TestDecodeNeverFailsOnGarbage(t *testing.T) {
	testCases := []struct {
		name string
		fill byte
		size int
	}{
		{"all zeros", 0x00, FullLength},
		{"all ones", 0xFF, FullLength},
		{"minimum length", 0xA5, MinLength},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]byte, tc.size)
			for i := range data {
				data[i] = tc.fill
			}

			dump, err := Decode(data)
			require.NoError(t, err)

			assert.NotPanics(t, func() {
				_ = dump.BytesUsed()
				_ = dump.BytesTotal()
				_, _ = dump.Revision()
				_ = dump.DramDeviceType().String()
				_ = dump.ModuleType().String()
				_, _ = dump.ModuleManufacturer()
				_, _ = dump.DramManufacturer()
				_, _ = dump.PartNumber()
				_, _ = dump.SerialNumber()
				_, _ = dump.ManufacturingDate()
				_, _ = dump.CapacityBytes()
			})
		})
	}
}

func TestShortDumpHasNoManufacturingData(t *testing.T) {
	dump, err := Decode(spdtest.VengeanceRGB()[:MinLength])
	require.NoError(t, err)

	_, ok := dump.ModuleManufacturer()
	assert.False(t, ok)
	_, ok = dump.PartNumber()
	assert.False(t, ok)
	assert.Equal(t, DramTypeDDR4, dump.DramDeviceType())
}

func TestDecodeCopiesInput(t *testing.T) {
	data := spdtest.VengeanceRGB()
	dump, err := Decode(data)
	require.NoError(t, err)

	data[SPDThermalSensor] = 0x80
	assert.False(t, dump.ThermalSensorPresent())
}

func TestManufacturingInfo(t *testing.T) {
	data := spdtest.VengeanceRGB()
	spdtest.Patch(data, SPDModuleMfgDateY, []byte{0x19, 0x42})
	spdtest.Patch(data, SPDModuleSerial, []byte{0x78, 0x56, 0x34, 0x12})

	dump, err := Decode(data)
	require.NoError(t, err)

	date, ok := dump.ManufacturingDate()
	assert.True(t, ok)
	assert.Equal(t, "2019-W42", date)

	serial, ok := dump.SerialNumber()
	assert.True(t, ok)
	assert.Equal(t, "12345678", serial)
}
