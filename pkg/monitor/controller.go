// Package monitor polls devices, keeps their lighting in step with their
// temperature and records what it read.
package monitor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mscrnt/dimmctl/pkg/driver"
	"github.com/mscrnt/dimmctl/pkg/safety"
)

// Level is a lighting setting applied from a minimum temperature up
type Level struct {
	Name    string
	MinTemp float64
	Mode    string
	Colors  []driver.Color
	Speed   string
}

// Recorder stores readings; *db.DB is one
type Recorder interface {
	RecordStatus(dev driver.Device, status []driver.Status, at time.Time) error
}

// Options configure a Controller
type Options struct {
	// Levels may come in any order
	Levels []Level
	// Channel is the lighting channel levels are applied to
	Channel string
	// StatusFile, when set, receives a one-line summary every tick
	StatusFile string
	Unsafe     safety.Tokens
	Recorder   Recorder
}

// Snapshot is the last known state of a device
type Snapshot struct {
	Description string          `json:"description"`
	Bus         string          `json:"bus"`
	Address     uint8           `json:"address"`
	Status      []driver.Status `json:"status"`
	Level       string          `json:"level,omitempty"`
	Error       string          `json:"error,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Controller owns the monitored devices and the level each is at
type Controller struct {
	mu sync.Mutex

	devices []driver.Device
	opts    Options
	levels  []Level
	current map[driver.Device]string
	snaps   []Snapshot

	now func() time.Time
	log logrus.FieldLogger
}

// NewController creates a controller for devices
func NewController(devices []driver.Device, opts Options) *Controller {
	levels := append([]Level(nil), opts.Levels...)
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].MinTemp < levels[j].MinTemp
	})
	if opts.Channel == "" {
		opts.Channel = "led"
	}

	return &Controller{
		devices: devices,
		opts:    opts,
		levels:  levels,
		current: make(map[driver.Device]string),
		snaps:   make([]Snapshot, len(devices)),
		now:     time.Now,
		log:     logrus.WithField("component", "monitor"),
	}
}

// Devices returns the monitored devices
func (c *Controller) Devices() []driver.Device {
	return c.devices
}

// Connect connects every device
func (c *Controller) Connect() error {
	for _, dev := range c.devices {
		if err := dev.Connect(driver.ConnectOptions{Unsafe: c.opts.Unsafe}); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect disconnects every device, returning the first failure
func (c *Controller) Disconnect() error {
	var first error
	for _, dev := range c.devices {
		if err := dev.Disconnect(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LevelFor returns the highest level whose minimum temperature is at or
// below temp
func (c *Controller) LevelFor(temp float64) (Level, bool) {
	for i := len(c.levels) - 1; i >= 0; i-- {
		if c.levels[i].MinTemp <= temp {
			return c.levels[i], true
		}
	}
	return Level{}, false
}

// Tick reads every device once, records the readings, updates the status
// file and applies level changes
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var summary []string

	for i, dev := range c.devices {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap := Snapshot{
			Description: dev.Description(),
			Bus:         dev.Bus().Name(),
			Address:     dev.Address(),
			Level:       c.current[dev],
			UpdatedAt:   now,
		}

		status, err := dev.Status(driver.StatusOptions{Unsafe: c.opts.Unsafe})
		if err != nil {
			c.log.Warnf("failed to read %s: %v", dev.Description(), err)
			snap.Error = err.Error()
			c.snaps[i] = snap
			continue
		}
		snap.Status = status

		for _, s := range status {
			summary = append(summary, fmt.Sprintf("%g", s.Value))
		}

		if c.opts.Recorder != nil {
			if err := c.opts.Recorder.RecordStatus(dev, status, now); err != nil {
				c.log.Warnf("failed to record %s: %v", dev.Description(), err)
			}
		}

		if temp, ok := temperature(status); ok {
			snap.Level = c.apply(dev, temp)
		}
		c.snaps[i] = snap
	}

	if c.opts.StatusFile != "" {
		line := strings.Join(summary, " ")
		if err := os.WriteFile(c.opts.StatusFile, []byte(line), 0o644); err != nil {
			return fmt.Errorf("failed to write status file: %w", err)
		}
	}
	return nil
}

// apply switches dev to the level for temp when it differs from the
// current one, and returns the level dev is at afterwards
func (c *Controller) apply(dev driver.Device, temp float64) string {
	level, ok := c.LevelFor(temp)
	if !ok || c.current[dev] == level.Name {
		return c.current[dev]
	}

	setter, ok := dev.(driver.ColorSetter)
	if !ok {
		c.current[dev] = level.Name
		return level.Name
	}

	c.log.Infof("%s: switching to %s at %g °C", dev.Description(), level.Name, temp)
	opts := driver.ColorOptions{Unsafe: c.opts.Unsafe, Speed: level.Speed}
	if err := setter.SetColor(c.opts.Channel, level.Mode, level.Colors, opts); err != nil {
		// left unchanged so the next tick tries again
		c.log.Warnf("%s: failed to switch to %s: %v", dev.Description(), level.Name, err)
		return c.current[dev]
	}
	c.current[dev] = level.Name
	return level.Name
}

// Snapshots returns the state recorded by the last tick
func (c *Controller) Snapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Snapshot(nil), c.snaps...)
}

func temperature(status []driver.Status) (float64, bool) {
	for _, s := range status {
		if s.Label == "Temperature" {
			return s.Value, true
		}
	}
	return 0, false
}
