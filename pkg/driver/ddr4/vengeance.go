package ddr4

import (
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
	"github.com/mscrnt/dimmctl/pkg/spd"
)

// Vengeance RGB controller registers
const (
	regReserved1   = 0xa4
	regReserved2   = 0xa5
	regModeParam   = 0xa6
	regSteps       = 0xa7
	regColorsStart = 0xb0

	maxSteps = 2
)

// mode parameters
const (
	paramFixed     = 0x00
	paramFading    = 0x01
	paramBreathing = 0x02
)

// Channels and modes accepted by SetColor
var (
	VengeanceChannels = []string{"led"}
	VengeanceModes    = []string{"off", "fixed", "breathing", "fading"}
)

func init() {
	driver.MustRegister(VengeanceRGBDriver{})
}

// VengeanceRGBDriver finds Corsair Vengeance RGB modules
type VengeanceRGBDriver struct{}

// Name returns the driver name
func (VengeanceRGBDriver) Name() string {
	return "vengeance_rgb"
}

// Probe yields a VengeanceRGB for every Corsair CMR UDIMM
func (VengeanceRGBDriver) Probe(bus smbus.Bus, _ driver.Filters) iter.Seq[driver.Device] {
	log := logrus.WithField("component", "ddr4")

	return func(yield func(driver.Device) bool) {
		for m := range scan(bus, log) {
			if !isVengeanceRGB(m.spd) {
				continue
			}
			desc := fmt.Sprintf("Corsair Vengeance RGB DIMM%d (experimental)", Slot(m.address))
			dev := &VengeanceRGB{
				Temperature: newTemperature(bus, m, desc, safety.VengeanceRGB),
				controller:  m.address + 8,
			}
			if !yield(dev) {
				return
			}
		}
	}
}

func isVengeanceRGB(dump *spd.DDR4) bool {
	if dump.ModuleType().Base != spd.ModuleUDIMM {
		return false
	}
	if mfr, ok := dump.ModuleManufacturer(); !ok || mfr != "Corsair" {
		return false
	}
	pn, ok := dump.PartNumber()
	return ok && strings.HasPrefix(pn, "CMR")
}

// VengeanceRGB is a Corsair Vengeance RGB module. Besides the temperature
// sensor, it has a lighting controller eight addresses above its SPD
// EEPROM.
type VengeanceRGB struct {
	*Temperature

	controller uint8
}

var (
	_ driver.Device      = (*VengeanceRGB)(nil)
	_ driver.ColorSetter = (*VengeanceRGB)(nil)
)

// ControllerAddress returns the address of the lighting controller
func (v *VengeanceRGB) ControllerAddress() uint8 {
	return v.controller
}

// SetColor sets the lighting mode. It requires the smbus and vengeance_rgb
// tokens and fails without them. Speed is accepted but the controller has
// no speed setting.
func (v *VengeanceRGB) SetColor(channel, mode string, colors []driver.Color, opts driver.ColorOptions) error {
	if err := opts.Unsafe.Require(safety.SMBus, safety.VengeanceRGB); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if channel != "led" {
		return fmt.Errorf("%w: unknown channel %q, should be one of: %s",
			driver.ErrInvalidArgument, channel, strings.Join(VengeanceChannels, ", "))
	}

	param, steps, err := animation(mode, colors)
	if err != nil {
		return err
	}
	if opts.Speed != "" {
		v.Log.Debugf("ignoring speed %s", opts.Speed)
	}

	// TODO: work out what 0xa4 and 0xa5 do; until then they are zeroed
	writes := []regWrite{
		{regReserved1, 0x00},
		{regReserved2, 0x00},
		{regModeParam, param},
	}
	for i, c := range steps {
		base := uint8(regColorsStart + 3*i)
		writes = append(writes, regWrite{base, c.R}, regWrite{base + 1, c.G}, regWrite{base + 2, c.B})
	}
	writes = append(writes, regWrite{regSteps, uint8(len(steps))})

	bus := v.Bus()

	for _, w := range writes {
		if err := bus.WriteByteData(v.controller, w.register, w.value); err != nil {
			return fmt.Errorf("failed to set %s mode @ 0x%02x:0x%02x: %w", mode, v.controller, w.register, err)
		}
	}
	return nil
}

type regWrite struct {
	register, value uint8
}

// animation maps a mode and its colors to the mode parameter and the
// color steps to program
func animation(mode string, colors []driver.Color) (uint8, []driver.Color, error) {
	if len(colors) > maxSteps {
		return 0, nil, fmt.Errorf("%w: too many colors for %s, at most %d are supported",
			driver.ErrInvalidArgument, mode, maxSteps)
	}

	switch mode {
	case "off":
		return paramFixed, []driver.Color{{}}, nil
	case "fixed":
		if len(colors) != 1 {
			return 0, nil, fmt.Errorf("%w: fixed requires exactly one color", driver.ErrInvalidArgument)
		}
		return paramFixed, colors, nil
	case "breathing":
		switch len(colors) {
		case 1:
			// single color breathing takes parameter 0
			return paramFixed, colors, nil
		case 2:
			return paramBreathing, colors, nil
		}
		return 0, nil, fmt.Errorf("%w: breathing requires one or two colors", driver.ErrInvalidArgument)
	case "fading":
		if len(colors) != 2 {
			return 0, nil, fmt.Errorf("%w: fading requires exactly two colors", driver.ErrInvalidArgument)
		}
		return paramFading, colors, nil
	}
	return 0, nil, fmt.Errorf("%w: unknown mode %q, should be one of: %s",
		driver.ErrInvalidArgument, mode, strings.Join(VengeanceModes, ", "))
}
