package ddr4

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
	"github.com/mscrnt/dimmctl/pkg/smbus/smbustest"
	"github.com/mscrnt/dimmctl/pkg/spd"
	"github.com/mscrnt/dimmctl/pkg/spd/spdtest"
)

var (
	radicalRed     = driver.Color{R: 0xff, G: 0x35, B: 0x5e}
	mountainMeadow = driver.Color{R: 0x1a, G: 0xb3, B: 0x85}
)

func vengeanceRGB(t *testing.T) (*smbustest.Bus, *VengeanceRGB) {
	t.Helper()
	bus := newBus(spdtest.VengeanceRGB(), 0x51)
	devs := probe(VengeanceRGBDriver{}, bus)
	require.Len(t, devs, 1)
	return bus, devs[0].(*VengeanceRGB)
}

// connected runs fn with dimm connected with both tokens enabled
func connected(t *testing.T, dimm *VengeanceRGB, fn func(enable safety.Tokens)) {
	t.Helper()
	enable := safety.Parse("smbus", "vengeance_rgb")
	err := driver.WithConnection(dimm, driver.ConnectOptions{Unsafe: enable}, func(driver.Device) error {
		fn(enable)
		return nil
	})
	require.NoError(t, err)
}

func TestVengeanceRGBFindsDevices(t *testing.T) {
	bus := newBus(spdtest.VengeanceRGB(), 0x51, 0x53, 0x55, 0x57)

	devs := probe(VengeanceRGBDriver{}, bus)
	require.Len(t, devs, 4)
	for _, dev := range devs {
		assert.IsType(t, &VengeanceRGB{}, dev)
	}
	assert.Equal(t, "Corsair Vengeance RGB DIMM4 (experimental)", devs[1].Description())
	assert.Equal(t, uint8(0x5b), devs[1].(*VengeanceRGB).ControllerAddress())

	// the sample has no thermal sensor bit
	assert.Empty(t, probe(TemperatureDriver{}, bus))
}

func TestVengeanceRGBIgnoresOtherModules(t *testing.T) {
	testCases := []struct {
		name  string
		patch func([]byte) []byte
	}{
		{"other manufacturer", func(d []byte) []byte {
			return spdtest.Patch(d, spd.SPDModuleMfgIDLsb, []byte{0x80, 0xce})
		}},
		{"other part number", func(d []byte) []byte {
			return spdtest.Patch(d, spd.SPDModulePartNum, []byte("CMK"))
		}},
		{"blank part number", func(d []byte) []byte {
			return spdtest.NonTS()
		}},
		{"registered module", func(d []byte) []byte {
			return spdtest.Patch(d, spd.SPDModuleType, []byte{byte(spd.ModuleRDIMM)})
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := newBus(tc.patch(spdtest.VengeanceRGB()), 0x51)
			assert.Empty(t, probe(VengeanceRGBDriver{}, bus))
		})
	}

	bus := newBus(spdtest.VengeanceRGB(), 0x51)
	other := "other"
	bus.Driver = &other
	assert.Empty(t, probe(VengeanceRGBDriver{}, bus))
}

func TestVengeanceStatusReadsTemperature(t *testing.T) {
	bus, dimm := vengeanceRGB(t)

	connected(t, dimm, func(enable safety.Tokens) {
		bus.SetWord(0x19, 0x05, 0x9ce1)

		status, err := dimm.Status(driver.StatusOptions{Unsafe: enable})
		require.NoError(t, err)
		assert.Equal(t, []driver.Status{{Label: "Temperature", Value: 25.75, Unit: "°C"}}, status)

		// the generic token is not enough for this driver
		status, err = dimm.Status(driver.StatusOptions{Unsafe: safety.Parse("smbus", "ddr4_temperature")})
		require.NoError(t, err)
		assert.Empty(t, status)
	})
}

func TestVengeanceRGBSetColorIsUnsafe(t *testing.T) {
	bus, dimm := vengeanceRGB(t)
	bus.SetRegister(0x59, 0xa7, 0x02)

	for _, tokens := range []safety.Tokens{nil, safety.Parse("vengeance_rgb"), safety.Parse("smbus")} {
		err := dimm.SetColor("led", "off", nil, driver.ColorOptions{Unsafe: tokens})
		assert.ErrorIs(t, err, safety.ErrNotEnabled)

		var notEnabled *safety.NotEnabledError
		require.True(t, errors.As(err, &notEnabled))
		assert.NotEmpty(t, notEnabled.Features)
	}
	assert.Equal(t, uint8(0x02), bus.Register(0x59, 0xa7), "nothing may be written")

	connected(t, dimm, func(enable safety.Tokens) {
		assert.NoError(t, dimm.SetColor("led", "off", nil, driver.ColorOptions{Unsafe: enable}))
	})
}

func TestVengeanceRGBSetsColorToOff(t *testing.T) {
	bus, dimm := vengeanceRGB(t)

	connected(t, dimm, func(enable safety.Tokens) {
		// change registers to something other than 0
		bus.SetRegister(0x59, 0xa4, 0x10)
		bus.SetRegister(0x59, 0xa5, 0x20)
		bus.SetRegister(0x59, 0xb0, 0xaa)
		bus.SetRegister(0x59, 0xb1, 0xbb)
		bus.SetRegister(0x59, 0xb2, 0xcc)
		bus.SetRegister(0x59, 0xa6, 0xff)

		require.NoError(t, dimm.SetColor("led", "off", nil, driver.ColorOptions{Unsafe: enable}))
	})

	assert.Equal(t, uint8(0x00), bus.Register(0x59, 0xa4))
	assert.Equal(t, uint8(0x00), bus.Register(0x59, 0xa5))
	assert.Equal(t, uint8(0x01), bus.Register(0x59, 0xa7))
	assert.Equal(t, uint8(0x00), bus.Register(0x59, 0xa6))
	for reg := uint8(0xb0); reg < 0xb3; reg++ {
		assert.Equal(t, uint8(0x00), bus.Register(0x59, reg))
	}
}

func assertTriplets(t *testing.T, bus *smbustest.Bus, colors ...driver.Color) {
	t.Helper()
	for i, c := range colors {
		base := uint8(0xb0 + 3*i)
		got := driver.Color{R: bus.Register(0x59, base), G: bus.Register(0x59, base+1), B: bus.Register(0x59, base+2)}
		assert.Equal(t, c, got, "color %d", i)
	}
}

func TestVengeanceRGBSetsColorModes(t *testing.T) {
	testCases := []struct {
		name   string
		mode   string
		colors []driver.Color
		steps  uint8
		param  uint8
	}{
		{"fixed", "fixed", []driver.Color{radicalRed}, 1, 0},
		{"breathing", "breathing", []driver.Color{radicalRed, mountainMeadow}, 2, 2},
		{"breathing with a single color", "breathing", []driver.Color{radicalRed}, 1, 0},
		{"fading", "fading", []driver.Color{radicalRed, mountainMeadow}, 2, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus, dimm := vengeanceRGB(t)
			bus.SetRegister(0x59, 0xa6, 0xff)

			connected(t, dimm, func(enable safety.Tokens) {
				err := dimm.SetColor("led", tc.mode, tc.colors, driver.ColorOptions{Unsafe: enable, Speed: "fastest"})
				require.NoError(t, err)
			})

			assert.Equal(t, tc.steps, bus.Register(0x59, 0xa7))
			assert.Equal(t, tc.param, bus.Register(0x59, 0xa6))
			assertTriplets(t, bus, tc.colors...)
		})
	}
}

func TestVengeanceRGBRejectsInvalidArguments(t *testing.T) {
	testCases := []struct {
		name    string
		channel string
		mode    string
		colors  []driver.Color
		speed   string
	}{
		{"unknown channel", "fan", "fixed", []driver.Color{radicalRed}, ""},
		{"unknown mode", "led", "rainbow", nil, ""},
		{"fixed without colors", "led", "fixed", nil, ""},
		{"fixed with two colors", "led", "fixed", []driver.Color{radicalRed, mountainMeadow}, ""},
		{"breathing without colors", "led", "breathing", nil, ""},
		{"fading with one color", "led", "fading", []driver.Color{radicalRed}, ""},
		{"too many colors", "led", "fading", []driver.Color{radicalRed, mountainMeadow, radicalRed}, ""},
		{"unknown speed", "led", "fixed", []driver.Color{radicalRed}, "ludicrous"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus, dimm := vengeanceRGB(t)
			bus.SetRegister(0x59, 0xa7, 0x02)

			connected(t, dimm, func(enable safety.Tokens) {
				err := dimm.SetColor(tc.channel, tc.mode, tc.colors, driver.ColorOptions{Unsafe: enable, Speed: tc.speed})
				assert.ErrorIs(t, err, driver.ErrInvalidArgument)
			})
			assert.Equal(t, uint8(0x02), bus.Register(0x59, 0xa7), "nothing may be written")
		})
	}
}

func TestVengeanceRGBSetColorRequiresConnection(t *testing.T) {
	_, dimm := vengeanceRGB(t)

	err := dimm.SetColor("led", "off", nil, driver.ColorOptions{Unsafe: safety.Parse("smbus,vengeance_rgb")})
	assert.ErrorIs(t, err, smbus.ErrNotOpen)
}
