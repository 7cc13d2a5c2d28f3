package driver

import (
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/pkg/smbus"
)

// Root enumerates buses; smbus.LinuxI2c is the production one
type Root interface {
	Buses(f smbus.Filter) iter.Seq[smbus.Bus]
}

// FindDevices probes every bus under root with every driver in registry
// and yields the matching devices. The sequence is lazy and single pass:
// buses are enumerated again on every iteration.
func FindDevices(root Root, registry *Registry, f Filters) iter.Seq[Device] {
	log := logrus.WithField("component", "discovery")

	return func(yield func(Device) bool) {
		if err := f.Validate(); err != nil {
			log.Warnf("not searching, %v", err)
			return
		}

		descriptors := registry.Descriptors()
		names := make([]string, len(descriptors))
		for i, d := range descriptors {
			names[i] = d.Name()
		}
		log.Debugf("searching (%s)", strings.Join(names, ", "))

		for bus := range root.Buses(smbus.Filter{Bus: f.Bus, USBPort: f.USBPort}) {
			for _, d := range descriptors {
				for dev := range d.Probe(bus, f) {
					if !f.Matches(dev) {
						continue
					}
					if !yield(dev) {
						return
					}
				}
			}
		}
	}
}
