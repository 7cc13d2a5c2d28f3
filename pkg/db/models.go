package db

import (
	"fmt"
	"time"
)

// Reading is a single status value recorded for a device
type Reading struct {
	ID         int64     `json:"id"`
	Device     string    `json:"device"`
	Bus        string    `json:"bus"`
	Address    uint8     `json:"address"`
	Label      string    `json:"label"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// timeLayout is how readings are timestamped in local time for people
const timeLayout = "2006-01-02 15:04:05"

// String formats the reading the way the CLI prints it
func (r *Reading) String() string {
	return fmt.Sprintf("%s  %s  %s: %g %s",
		r.RecordedAt.Local().Format(timeLayout), r.Device, r.Label, r.Value, r.Unit)
}

// ReadingFilter for querying readings
type ReadingFilter struct {
	Device string
	Bus    string
	Label  string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}
