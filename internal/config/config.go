// Package config loads dimmctl's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mscrnt/dimmctl/pkg/agent"
	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/monitor"
	"github.com/mscrnt/dimmctl/pkg/safety"
	"github.com/mscrnt/dimmctl/pkg/smbus"
)

const (
	appName = "dimmctl"

	// DBPathEnv overrides the history database location
	DBPathEnv = "DIMMCTL_DB_PATH"

	minInterval = time.Second
)

// Config is the contents of config.yaml. Every key is optional.
type Config struct {
	SysfsRoot string        `yaml:"sysfs_root"`
	Unsafe    []string      `yaml:"unsafe"`
	DBPath    string        `yaml:"db_path"`
	Monitor   MonitorConfig `yaml:"monitor"`
	Agent     AgentConfig   `yaml:"agent"`
}

// MonitorConfig configures `dimmctl monitor`
type MonitorConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StatusFile string        `yaml:"status_file"`
	Retention  time.Duration `yaml:"retention"`
	Levels     []LevelConfig `yaml:"levels"`
}

// LevelConfig is one lighting level
type LevelConfig struct {
	Name    string   `yaml:"name"`
	MinTemp float64  `yaml:"min_temp"`
	Mode    string   `yaml:"mode"`
	Colors  []string `yaml:"colors"`
	Speed   string   `yaml:"speed"`
}

// AgentConfig configures the status agent; it stays off unless Enabled
type AgentConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Port     int    `yaml:"port"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
	LogFile  string `yaml:"log_file"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		SysfsRoot: smbus.DefaultRoot,
		Monitor: MonitorConfig{
			Interval:  5 * time.Second,
			Retention: 7 * 24 * time.Hour,
			Levels: []LevelConfig{
				{Name: "cool", MinTemp: 0, Mode: "fading", Colors: []string{"660000", "330000"}},
				{Name: "warm", MinTemp: 45, Mode: "fading", Colors: []string{"880000", "881100"}, Speed: "fastest"},
				{Name: "fusion", MinTemp: 55, Mode: "breathing", Colors: []string{"0000ff", "666666"}},
			},
		},
		Agent: AgentConfig{
			Port: agent.DefaultPort,
		},
	}
}

// HomeDir returns the invoking user's home directory, looking through sudo
func HomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if usr, err := user.Lookup(sudoUser); err == nil {
			return usr.HomeDir, nil
		}
	}
	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to look up home directory: %w", err)
	}
	return usr.HomeDir, nil
}

// Dir is ~/.config/dimmctl
func Dir() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultPath is ~/.config/dimmctl/config.yaml
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path over the defaults. A missing file is not an error when
// path is the default location, since most installs never create one.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- path is the user's own config file
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if v := os.Getenv(DBPathEnv); v != "" {
		cfg.DBPath = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a file may have set
func (c *Config) Validate() error {
	if c.Monitor.Interval < minInterval {
		return fmt.Errorf("monitor.interval must be at least %s, got %s", minInterval, c.Monitor.Interval)
	}
	if c.Monitor.Retention < 0 {
		return fmt.Errorf("monitor.retention must not be negative")
	}
	if _, err := c.Levels(); err != nil {
		return err
	}
	if c.Agent.Enabled && (c.Agent.Port <= 0 || c.Agent.Port > 65535) {
		return fmt.Errorf("agent.port: invalid port %d", c.Agent.Port)
	}
	return nil
}

// Levels converts the configured lighting levels
func (c *Config) Levels() ([]monitor.Level, error) {
	levels := make([]monitor.Level, 0, len(c.Monitor.Levels))
	seen := map[string]bool{}

	for i, lc := range c.Monitor.Levels {
		if lc.Name == "" {
			return nil, fmt.Errorf("monitor.levels[%d]: name is required", i)
		}
		if seen[lc.Name] {
			return nil, fmt.Errorf("monitor.levels[%d]: duplicate level %q", i, lc.Name)
		}
		seen[lc.Name] = true

		if lc.Mode == "" {
			return nil, fmt.Errorf("monitor.levels[%d]: mode is required", i)
		}
		if lc.Speed != "" && !slices.Contains(driver.Speeds, lc.Speed) {
			return nil, fmt.Errorf("monitor.levels[%d]: unknown speed %q", i, lc.Speed)
		}

		level := monitor.Level{
			Name:    lc.Name,
			MinTemp: lc.MinTemp,
			Mode:    lc.Mode,
			Speed:   lc.Speed,
		}
		for _, s := range lc.Colors {
			color, err := driver.ParseColor(s)
			if err != nil {
				return nil, fmt.Errorf("monitor.levels[%d]: %w", i, err)
			}
			level.Colors = append(level.Colors, color)
		}
		levels = append(levels, level)
	}

	return levels, nil
}

// Tokens returns the unsafe features enabled in the file
func (c *Config) Tokens() safety.Tokens {
	return safety.Parse(c.Unsafe...)
}

// ResolveDBPath returns DBPath, or ~/.config/dimmctl/history.db creating
// its directory when unset
func (c *Config) ResolveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}

	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// AgentServerConfig returns the agent section in the agent's own form
func (c *Config) AgentServerConfig() agent.Config {
	return agent.Config{
		Port:     c.Agent.Port,
		CertFile: c.Agent.CertFile,
		KeyFile:  c.Agent.KeyFile,
		CAFile:   c.Agent.CAFile,
		LogFile:  c.Agent.LogFile,
	}
}
