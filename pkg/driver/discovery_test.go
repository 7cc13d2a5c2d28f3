package driver

import (
	"iter"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
	"github.com/mscrnt/dimmctl/pkg/smbus/smbustest"
)

// canary reveals whether probing takes place
type canary struct {
	name   string
	probes int
}

type canaryDevice struct {
	SMBusDevice
}

func (c *canary) Name() string {
	return c.name
}

func (c *canary) Probe(bus smbus.Bus, _ Filters) iter.Seq[Device] {
	return func(yield func(Device) bool) {
		c.probes++
		yield(&canaryDevice{NewSMBusDevice(bus, "Canary "+c.name, 0xffff, 0xffff, 0x7f)})
	}
}

func (d *canaryDevice) Status(StatusOptions) ([]Status, error) {
	return nil, nil
}

func descriptions(devs iter.Seq[Device]) []string {
	var out []string
	for dev := range devs {
		out = append(out, dev.Description()+" on "+dev.Bus().Name())
	}
	return out
}

func TestFindDevices(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&canary{name: "b"}))
	require.NoError(t, registry.Register(&canary{name: "a"}))

	root := smbustest.Root{smbustest.New("i2c-0", ""), smbustest.New("i2c-1", "")}

	assert.Equal(t, []string{
		"Canary a on i2c-0",
		"Canary b on i2c-0",
		"Canary a on i2c-1",
		"Canary b on i2c-1",
	}, descriptions(FindDevices(root, registry, Filters{})))
}

func TestFindDevicesHonorsBusFilter(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&canary{name: "a"}))

	root := smbustest.Root{smbustest.New("i2c-0", ""), smbustest.New("i2c-1", "")}

	assert.Equal(t, []string{"Canary a on i2c-1"},
		descriptions(FindDevices(root, registry, Filters{Bus: "i2c-1"})))
	assert.Empty(t, descriptions(FindDevices(root, registry, Filters{USBPort: "usb1"})))
}

func TestFindDevicesIsLazy(t *testing.T) {
	c := &canary{name: "a"}
	registry := NewRegistry()
	require.NoError(t, registry.Register(c))

	root := smbustest.Root{smbustest.New("i2c-0", ""), smbustest.New("i2c-1", "")}
	devs := FindDevices(root, registry, Filters{})
	assert.Equal(t, 0, c.probes)

	for range devs {
		break
	}
	assert.Equal(t, 1, c.probes)

	// every iteration enumerates again
	assert.Len(t, slices.Collect(devs), 2)
	assert.Equal(t, 3, c.probes)
}

func TestFindDevicesAppliesDeviceFilters(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(&canary{name: "a"}))
	require.NoError(t, registry.Register(&canary{name: "b"}))
	root := smbustest.Root{smbustest.New("i2c-0", "")}

	testCases := []struct {
		name     string
		filters  Filters
		expected int
	}{
		{"match", Filters{Match: "CANARY B"}, 1},
		{"vendor", Filters{Vendor: 0xffff}, 2},
		{"other vendor", Filters{Vendor: 0x1234}, 0},
		{"product", Filters{Product: 0x1234}, 0},
		{"address", Filters{Address: 0x7f}, 2},
		{"other address", Filters{Address: 0x51}, 0},
		{"invalid address", Filters{Address: 0x80}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			devs := slices.Collect(FindDevices(root, registry, tc.filters))
			assert.Len(t, devs, tc.expected)
		})
	}
}

func TestConnectIsUnsafe(t *testing.T) {
	bus := smbustest.New("i2c-0", "")
	dev := &canaryDevice{NewSMBusDevice(bus, "Test", 0xffff, 0xffff, 0x7f)}

	require.NoError(t, dev.Connect(ConnectOptions{}))
	assert.False(t, bus.IsOpen())

	require.NoError(t, dev.Connect(ConnectOptions{Unsafe: safety.Parse("other")}))
	assert.False(t, bus.IsOpen())
}

func TestConnects(t *testing.T) {
	bus := smbustest.New("i2c-0", "")
	dev := &canaryDevice{NewSMBusDevice(bus, "Test", 0xffff, 0xffff, 0x7f)}

	err := WithConnection(dev, ConnectOptions{Unsafe: safety.Parse("smbus")}, func(d Device) error {
		assert.Same(t, dev, d)
		assert.True(t, bus.IsOpen())
		return nil
	})
	require.NoError(t, err)
	assert.False(t, bus.IsOpen())
	assert.Equal(t, 1, bus.Opens())
}

func TestWithConnectionDisconnectsOnError(t *testing.T) {
	bus := smbustest.New("i2c-0", "")
	dev := &canaryDevice{NewSMBusDevice(bus, "Test", 0xffff, 0xffff, 0x7f)}

	err := WithConnection(dev, ConnectOptions{Unsafe: safety.Parse("smbus")}, func(Device) error {
		return ErrNotSupported
	})
	assert.ErrorIs(t, err, ErrNotSupported)
	assert.False(t, bus.IsOpen())
}

func TestDeviceIdentity(t *testing.T) {
	bus := smbustest.New("i2c-3", "")
	dev := &canaryDevice{NewSMBusDevice(bus, "Test", 0x029e, 0x004e, 0x51)}

	assert.Equal(t, uint16(0x029e), dev.VendorID())
	assert.Equal(t, uint16(0x004e), dev.ProductID())
	assert.Equal(t, uint8(0x51), dev.Address())
	_, ok := dev.Port()
	assert.False(t, ok)
	assert.Equal(t, "Test (i2c-3 @ 0x51)", dev.String())

	err := SetColor(dev, "led", "off", nil, ColorOptions{})
	assert.ErrorIs(t, err, ErrNotSupported)
}

func TestParseColor(t *testing.T) {
	testCases := []struct {
		in    string
		color Color
		valid bool
	}{
		{"ff355e", Color{0xff, 0x35, 0x5e}, true},
		{"#FF355E", Color{0xff, 0x35, 0x5e}, true},
		{"0x000000", Color{}, true},
		{"12345g", Color{}, false},
		{"fff", Color{}, false},
		{"", Color{}, false},
	}

	for _, tc := range testCases {
		c, err := ParseColor(tc.in)
		if !tc.valid {
			assert.ErrorIs(t, err, ErrInvalidArgument, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.color, c)
	}
}

func TestColorOptionsValidate(t *testing.T) {
	assert.NoError(t, ColorOptions{}.Validate())
	assert.NoError(t, ColorOptions{Speed: "fastest"}.Validate())
	assert.ErrorIs(t, ColorOptions{Speed: "ludicrous"}.Validate(), ErrInvalidArgument)
}
