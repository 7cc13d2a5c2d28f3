package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/smbus"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, smbus.DefaultRoot, cfg.SysfsRoot)
	levels, err := cfg.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, "cool", levels[0].Name)
	assert.Equal(t, []driver.Color{{R: 0x66}, {R: 0x33}}, levels[0].Colors)
}

func TestLoad(t *testing.T) {
	t.Setenv(DBPathEnv, "")

	path := writeConfig(t, `
sysfs_root: /tmp/sys/bus/i2c
unsafe: [smbus, vengeance_rgb]
db_path: /var/lib/dimmctl/history.db
monitor:
  interval: 10s
  status_file: /run/dimmctl/status
  levels:
    - name: idle
      min_temp: 0
      mode: fixed
      colors: ["00ff00"]
    - name: hot
      min_temp: 60
      mode: breathing
      colors: ["#ff0000"]
      speed: faster
agent:
  enabled: true
  port: 9443
  cert_file: /etc/dimmctl/agent.crt
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/sys/bus/i2c", cfg.SysfsRoot)
	assert.True(t, cfg.Tokens().Has("smbus", "vengeance_rgb"))
	assert.Equal(t, "/var/lib/dimmctl/history.db", cfg.DBPath)
	assert.Equal(t, 10*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 7*24*time.Hour, cfg.Monitor.Retention, "unset keys keep their defaults")
	assert.Equal(t, "/run/dimmctl/status", cfg.Monitor.StatusFile)

	levels, err := cfg.Levels()
	require.NoError(t, err)
	require.Len(t, levels, 2, "a file's levels replace the defaults")
	assert.Equal(t, "hot", levels[1].Name)
	assert.Equal(t, []driver.Color{{R: 0xff}}, levels[1].Colors)
	assert.Equal(t, "faster", levels[1].Speed)

	ac := cfg.AgentServerConfig()
	assert.Equal(t, 9443, ac.Port)
	assert.Equal(t, "/etc/dimmctl/agent.crt", ac.CertFile)
}

func TestLoadDBPathFromEnvironment(t *testing.T) {
	t.Setenv(DBPathEnv, "/tmp/other.db")

	cfg, err := Load(writeConfig(t, "db_path: /var/lib/dimmctl/history.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.DBPath)

	path, err := cfg.ResolveDBPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", path)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDirFollowsSudoUser(t *testing.T) {
	t.Setenv("SUDO_USER", "")
	plain, err := Dir()
	if err != nil {
		t.Skipf("no usable home directory: %v", err)
	}
	assert.Equal(t, filepath.Join(".config", "dimmctl"), filepath.Join(filepath.Base(filepath.Dir(plain)), filepath.Base(plain)))

	// an unknown sudo user falls back to the current user
	t.Setenv("SUDO_USER", "no-such-user-for-dimmctl")
	fallback, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, plain, fallback)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "monitor: [\n"},
		{"short interval", "monitor:\n  interval: 100ms\n"},
		{"bad duration", "monitor:\n  interval: often\n"},
		{"negative retention", "monitor:\n  retention: -1h\n"},
		{"unnamed level", "monitor:\n  levels:\n    - mode: fixed\n      colors: [ff0000]\n"},
		{"duplicate level", "monitor:\n  levels:\n    - {name: a, mode: off}\n    - {name: a, mode: off}\n"},
		{"level without mode", "monitor:\n  levels:\n    - name: a\n"},
		{"bad color", "monitor:\n  levels:\n    - {name: a, mode: fixed, colors: [red]}\n"},
		{"bad speed", "monitor:\n  levels:\n    - {name: a, mode: fixed, colors: [ff0000], speed: warp}\n"},
		{"bad agent port", "agent:\n  enabled: true\n  port: 70000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDisabledAgentPortIgnored(t *testing.T) {
	t.Setenv(DBPathEnv, "")

	cfg, err := Load(writeConfig(t, "agent:\n  port: 0\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Agent.Enabled)
}
