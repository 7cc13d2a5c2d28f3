package agent

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mscrnt/dimmctl/pkg/db"
	"github.com/mscrnt/dimmctl/pkg/monitor"
)

const (
	defaultReadingsLimit = 100
	maxReadingsLimit     = 10000
)

// DevicesResponse is the body of /devices
type DevicesResponse struct {
	Timestamp time.Time          `json:"timestamp"`
	Devices   []monitor.Snapshot `json:"devices"`
}

// ReadingsResponse is the body of /readings
type ReadingsResponse struct {
	Timestamp time.Time     `json:"timestamp"`
	Readings  []*db.Reading `json:"readings"`
}

// HostResponse is the body of /host
type HostResponse struct {
	Timestamp time.Time     `json:"timestamp"`
	Host      HostInfo      `json:"host"`
	Memory    MemoryInfo    `json:"memory"`
	Sensors   []SensorValue `json:"sensors"`
}

// HostInfo contains host information
type HostInfo struct {
	Hostname        string `json:"hostname"`
	Uptime          uint64 `json:"uptime"`
	BootTime        uint64 `json:"boot_time"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Architecture    string `json:"architecture"`
}

// MemoryInfo contains memory information
type MemoryInfo struct {
	Total       uint64  `json:"total"`
	Available   uint64  `json:"available"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
	Free        uint64  `json:"free"`
}

// SensorValue is a temperature reported by the kernel's hwmon drivers
type SensorValue struct {
	Name        string  `json:"name"`
	Temperature float64 `json:"temperature"`
	High        float64 `json:"high,omitempty"`
	Critical    float64 `json:"critical,omitempty"`
}

type handlers struct {
	sources Sources
}

// devices returns the monitor's last snapshot of every device
func (h *handlers) devices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.sources.Devices == nil {
		http.Error(w, "Monitor not running", http.StatusServiceUnavailable)
		return
	}

	resp := DevicesResponse{
		Timestamp: time.Now(),
		Devices:   h.sources.Devices.Snapshots(),
	}
	if resp.Devices == nil {
		resp.Devices = []monitor.Snapshot{}
	}
	writeJSON(w, resp)
}

// readings returns recorded history, newest first. Query parameters:
// device, bus, label, since (RFC 3339) and limit.
func (h *handlers) readings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.sources.Readings == nil {
		http.Error(w, "History not available", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	filter := db.ReadingFilter{
		Device: query.Get("device"),
		Bus:    query.Get("bus"),
		Label:  query.Get("label"),
		Limit:  defaultReadingsLimit,
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = min(n, maxReadingsLimit)
	}

	if sinceStr := query.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			http.Error(w, "Invalid since", http.StatusBadRequest)
			return
		}
		filter.Since = &since
	}

	readings, err := h.sources.Readings.ListReadings(filter)
	if err != nil {
		http.Error(w, "Failed to list readings", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []*db.Reading{}
	}

	writeJSON(w, ReadingsResponse{Timestamp: time.Now(), Readings: readings})
}

// hostHandler returns host, memory and hwmon temperature information
func hostHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HostResponse{
		Timestamp: time.Now(),
		Host:      HostInfo{Architecture: runtime.GOARCH},
		Sensors:   []SensorValue{},
	}

	if hostInfo, err := host.Info(); err == nil {
		resp.Host = HostInfo{
			Hostname:        hostInfo.Hostname,
			Uptime:          hostInfo.Uptime,
			BootTime:        hostInfo.BootTime,
			OS:              hostInfo.OS,
			Platform:        hostInfo.Platform,
			PlatformVersion: hostInfo.PlatformVersion,
			KernelVersion:   hostInfo.KernelVersion,
			Architecture:    runtime.GOARCH,
		}
	}

	if vmStat, err := mem.VirtualMemory(); err == nil {
		resp.Memory = MemoryInfo{
			Total:       vmStat.Total,
			Available:   vmStat.Available,
			Used:        vmStat.Used,
			UsedPercent: vmStat.UsedPercent,
			Free:        vmStat.Free,
		}
	}

	// partial results come back alongside a warnings error
	temps, _ := host.SensorsTemperatures()
	for _, temp := range temps {
		resp.Sensors = append(resp.Sensors, SensorValue{
			Name:        temp.SensorKey,
			Temperature: temp.Temperature,
			High:        temp.High,
			Critical:    temp.Critical,
		})
	}

	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
