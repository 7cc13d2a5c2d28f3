package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/dimmctl/internal/config"
	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/driver/ddr4"
	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
	"github.com/mscrnt/dimmctl/pkg/smbus/smbustest"
	"github.com/mscrnt/dimmctl/pkg/spd"
	"github.com/mscrnt/dimmctl/pkg/spd/spdtest"
)

type harness struct {
	bus    *smbustest.Bus
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	bus := smbustest.New("i2c-0", "i801_smbus")
	bus.SetEEPROM(0x51, ddr4.EEPROMDriver, spdtest.VengeanceRGB())
	ts := spdtest.TS()
	spdtest.Patch(ts, spd.SPDModuleMfgDateY, []byte{0x19, 0x42})
	spdtest.Patch(ts, spd.SPDModuleSerial, []byte{0x78, 0x56, 0x34, 0x12})
	bus.SetEEPROM(0x53, ddr4.EEPROMDriver, ts)
	// 25.75 °C on both sensors
	bus.SetWord(0x19, 0x05, 0x9ce1)
	bus.SetWord(0x1b, 0x05, 0x9ce1)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  interval: 5s\n"), 0o600))
	t.Setenv(config.DBPathEnv, filepath.Join(dir, "history.db"))

	return &harness{bus: bus, config: path}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	a := newApp()
	a.root = smbustest.Root{h.bus}

	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", h.config}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "Device #0: Corsair DIMM4 (experimental)\n"+
		"Device #1: Corsair Vengeance RGB DIMM2 (experimental)\n", out)
}

func TestListVerbose(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "list", "--verbose", "--match", "vengeance")
	require.NoError(t, err)
	assert.Contains(t, out, "Device #0: Corsair Vengeance RGB DIMM2 (experimental)\n")
	assert.Contains(t, out, "├── Address: 0x51\n")
	assert.Contains(t, out, "├── Bus: i2c-0\n")
	assert.Contains(t, out, "├── Bus driver: i801_smbus\n")
	assert.Contains(t, out, "└── Driver: ddr4.VengeanceRGB\n")
	assert.Contains(t, out, "├── Part number: CMR32GX4M2C3333C16\n")
	assert.Contains(t, out, "├── Capacity: 16 GiB\n")
	assert.Contains(t, out, "├── Ranks: 2\n")
	assert.NotContains(t, out, "Serial:")
	assert.NotContains(t, out, "Manufactured:")

	out, err = h.run(t, "list", "--verbose", "--address", "0x53")
	require.NoError(t, err)
	assert.Contains(t, out, "├── Serial: 12345678\n")
	assert.Contains(t, out, "├── Manufactured: 2019-W42\n")
	assert.NotContains(t, out, "Part number:")
	assert.Contains(t, out, "└── Driver: ddr4.Temperature\n")
}

func TestListFilters(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "list", "--address", "0x53")
	require.NoError(t, err)
	assert.Equal(t, "Device #0: Corsair DIMM4 (experimental)\n", out)

	out, err = h.run(t, "list", "--pick", "1")
	require.NoError(t, err)
	assert.Equal(t, "Device #0: Corsair Vengeance RGB DIMM2 (experimental)\n", out)

	out, err = h.run(t, "list", "--bus", "i2c-9")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = h.run(t, "list", "--vendor", "corsair")
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)

	_, err = h.run(t, "list", "--address", "0x80")
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)
}

func TestBuses(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "buses", "--json")
	require.NoError(t, err)

	var infos []smbus.Info
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "i2c-0", infos[0].Name)
	assert.Equal(t, "i801_smbus", infos[0].ParentDriver)

	out, err = h.run(t, "buses")
	require.NoError(t, err)
	assert.Equal(t, "i2c-0\n└── Driver: i801_smbus\n", out)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "status", "--unsafe", "smbus,vengeance_rgb,ddr4_temperature")
	require.NoError(t, err)
	assert.Contains(t, out, "Corsair Vengeance RGB DIMM2 (experimental)\n└── Temperature   25.75  °C\n")
	assert.Contains(t, out, "Corsair DIMM4 (experimental)\n└── Temperature   25.75  °C\n")
	assert.False(t, h.bus.IsOpen(), "status disconnects")
}

func TestStatusJSON(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "status", "--json", "--match", "vengeance", "--unsafe", "smbus", "--unsafe", "vengeance_rgb")
	require.NoError(t, err)

	var results []deviceStatus
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, uint8(0x51), results[0].Address)
	require.Len(t, results[0].Status, 1)
	assert.Equal(t, 25.75, results[0].Status[0].Value)
}

func TestStatusWithoutTokens(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "status", "--match", "vengeance")
	require.NoError(t, err)
	assert.Equal(t, "Corsair Vengeance RGB DIMM2 (experimental)\n\n", out)
	assert.Zero(t, h.bus.Opens())
}

func TestStatusWithoutDevices(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "status", "--address", "0x57")
	assert.ErrorIs(t, err, errNoDevices)
}

func TestSetColor(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "set-color", "led", "fixed", "ff8000", "--unsafe", "smbus,vengeance_rgb")
	require.NoError(t, err)

	assert.Equal(t, uint8(0xff), h.bus.Register(0x59, 0xb0))
	assert.Equal(t, uint8(0x80), h.bus.Register(0x59, 0xb1))
	assert.Equal(t, uint8(0x00), h.bus.Register(0x59, 0xb2))
	assert.Equal(t, uint8(0x01), h.bus.Register(0x59, 0xa7))
	assert.False(t, h.bus.IsOpen())
}

func TestSetColorErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "set-color", "led", "fixed", "ff8000")
	assert.ErrorIs(t, err, safety.ErrNotEnabled)

	_, err = h.run(t, "set-color", "led", "fixed", "orange", "--unsafe", "smbus,vengeance_rgb")
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)

	_, err = h.run(t, "set-color", "led", "fixed", "ff8000", "ff0000", "--unsafe", "smbus,vengeance_rgb")
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)

	_, err = h.run(t, "set-color", "led", "fixed", "ff8000", "--speed", "warp", "--unsafe", "smbus,vengeance_rgb")
	assert.ErrorIs(t, err, driver.ErrInvalidArgument)

	_, err = h.run(t, "set-color", "led", "fixed", "ff8000", "--match", "DIMM4", "--unsafe", "smbus,vengeance_rgb")
	assert.ErrorIs(t, err, driver.ErrNotSupported)

	_, err = h.run(t, "set-color", "led")
	assert.Error(t, err)

	assert.Equal(t, uint8(0x00), h.bus.Register(0x59, 0xb0), "nothing written")
}

func TestHistoryEmpty(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "history", "list")
	require.NoError(t, err)
	assert.Equal(t, "No readings recorded\n", out)

	out, err = h.run(t, "history", "export", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	_, err = h.run(t, "history", "export", "--format", "xml")
	assert.Error(t, err)

	out, err = h.run(t, "history", "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 0 readings\n", out)
}

func TestVersionAndLogFormat(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dimmctl")

	out, err = h.run(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])

	_, err = h.run(t, "list", "--log-format", "xml")
	assert.Error(t, err)
}

func TestBadConfig(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.config, []byte("monitor:\n  interval: 1ms\n"), 0o600))

	_, err := h.run(t, "list")
	assert.Error(t, err)
}

func TestCerts(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()

	out, err := h.run(t, "agent", "certs", "init", "--ca-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "ca.crt"))

	_, err = h.run(t, "agent", "certs", "init", "--ca-dir", dir)
	assert.Error(t, err, "refuses to overwrite")

	_, err = h.run(t, "agent", "certs", "issue", "laptop", "--client", "--ca-dir", dir)
	require.NoError(t, err)

	out, err = h.run(t, "agent", "certs", "verify", filepath.Join(dir, "laptop.crt"), "--ca", filepath.Join(dir, "ca.crt"))
	require.NoError(t, err)
	assert.Contains(t, out, "Certificate: VALID")
	assert.Contains(t, out, "Usage: client")
}
