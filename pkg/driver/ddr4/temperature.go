package ddr4

import (
	"fmt"
	"iter"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
	"github.com/mscrnt/dimmctl/pkg/spd"
)

func init() {
	driver.MustRegister(TemperatureDriver{})
}

// TemperatureDriver finds DDR4 modules with a TSE2004av compatible SPD
// EEPROM, which includes a temperature sensor
type TemperatureDriver struct{}

// Name returns the driver name
func (TemperatureDriver) Name() string {
	return "ddr4_temperature"
}

// Probe yields a Temperature for every module that declares a thermal
// sensor
func (TemperatureDriver) Probe(bus smbus.Bus, _ driver.Filters) iter.Seq[driver.Device] {
	log := logrus.WithField("component", "ddr4")

	return func(yield func(driver.Device) bool) {
		for m := range scan(bus, log) {
			if !m.spd.ThermalSensorPresent() {
				continue
			}
			if !yield(newTemperature(bus, m, genericDescription(m), safety.DDR4Temperature)) {
				return
			}
		}
	}
}

// Temperature is a DDR4 module whose temperature sensor can be read
type Temperature struct {
	driver.SMBusDevice

	spd     *spd.DDR4
	sensor  uint8
	feature string
}

var _ driver.Device = (*Temperature)(nil)

func newTemperature(bus smbus.Bus, m module, description, feature string) *Temperature {
	vendor, product := m.ids()
	return &Temperature{
		SMBusDevice: driver.NewSMBusDevice(bus, description, vendor, product, m.address),
		spd:         m.spd,
		sensor:      SensorAddress(m.address),
		feature:     feature,
	}
}

// SPD returns the decoded SPD dump of the module
func (t *Temperature) SPD() *spd.DDR4 {
	return t.spd
}

// Slot returns the 1-based memory slot
func (t *Temperature) Slot() int {
	return Slot(t.Address())
}

// Status reads the module temperature. Without the smbus token and the
// driver's own token nothing is read and no status is returned.
func (t *Temperature) Status(opts driver.StatusOptions) ([]driver.Status, error) {
	if !opts.Unsafe.Has(safety.SMBus, t.feature) {
		t.Log.Warnf("%s: nothing to return, requires unsafe features %q and %q",
			t.Description(), safety.SMBus, t.feature)
		return []driver.Status{}, nil
	}

	raw, err := t.Bus().ReadWordData(t.sensor, temperatureRegister)
	if err != nil {
		return nil, fmt.Errorf("failed to read temperature @ 0x%02x: %w", t.sensor, err)
	}

	return []driver.Status{
		{Label: "Temperature", Value: DecodeTemperature(raw), Unit: "°C"},
	}, nil
}
