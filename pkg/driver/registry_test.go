package driver

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/dimmctl/pkg/smbus"
)

// mockDescriptor probes nothing
type mockDescriptor struct {
	name string
}

func (m *mockDescriptor) Name() string {
	return m.name
}

func (m *mockDescriptor) Probe(smbus.Bus, Filters) iter.Seq[Device] {
	return func(func(Device) bool) {}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	d1 := &mockDescriptor{name: "test1"}
	require.NoError(t, registry.Register(d1))

	assert.Error(t, registry.Register(d1), "duplicate driver")
	assert.Error(t, registry.Register(nil), "nil driver")
	assert.Error(t, registry.Register(&mockDescriptor{}), "driver with empty name")

	got, err := registry.Get("test1")
	require.NoError(t, err)
	assert.Equal(t, "test1", got.Name())

	_, err = registry.Get("nonexistent")
	assert.Error(t, err)
}

func TestRegistryOrder(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, registry.Register(&mockDescriptor{name: name}))
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, registry.List())

	var names []string
	for _, d := range registry.Descriptors() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}
