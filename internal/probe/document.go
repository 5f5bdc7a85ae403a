// Package probe collects the telemetry document a cycle publishes: system
// metrics (CPU, memory, storage, network) gathered via gopsutil, plus
// zero or more user-defined custom probes (file/command/env) passed
// through a small safe transform language. Grounded on the original
// system_collector.py/custom_collector.py for field names and semantics,
// adapted to Go's explicit-error idiom and to gopsutil's API (the one
// dependency in the pack that targets this concern, per go.mod in
// other_examples/manifests/gravwell-gravwell).
package probe

import (
	"bytes"
	"encoding/json"
	"time"
)

// CPU holds CPU utilization and, where a sensor is available,
// temperature in degrees Celsius.
type CPU struct {
	Usage       float64  `json:"usage"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Memory holds virtual memory usage and, where available, a DIMM/RAM
// sensor temperature.
type Memory struct {
	Usage       float64  `json:"usage"`
	Total       uint64   `json:"total"`
	Used        uint64   `json:"used"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// DiskStatus is normal, warning, or error. System.Collect reports
// DiskStatusNormal for every disk: gopsutil exposes no per-disk I/O error
// counts to derive warning or error from.
type DiskStatus string

const (
	DiskStatusNormal  DiskStatus = "normal"
	DiskStatusWarning DiskStatus = "warning"
	DiskStatusError   DiskStatus = "error"
)

// Disk is one physical/logical disk's health summary.
type Disk struct {
	ID     string     `json:"id"`
	Status DiskStatus `json:"status"`
}

// Storage aggregates capacity and usage across every accessible
// mountpoint, plus per-disk status.
type Storage struct {
	Capacity uint64 `json:"capacity"`
	Used     uint64 `json:"used"`
	Disks    []Disk `json:"disks"`
}

// Network holds instantaneous upload/download byte rates, clamped to
// zero when the counters regress (e.g. an interface reset).
type Network struct {
	Upload   int64 `json:"upload"`
	Download int64 `json:"download"`
}

// CustomValue is one user-defined probe's result. Exactly one of Value or
// Error is populated, mirroring custom_collector.py's per-probe
// try/except that keeps one failing probe from aborting the whole cycle.
type CustomValue struct {
	Value any    `json:"value,omitempty"`
	Unit  string `json:"unit,omitempty"`
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// Document is the full telemetry payload published each collection
// cycle.
type Document struct {
	Hostname  string                 `json:"hostname"`
	IP        string                 `json:"ip"`
	Timestamp time.Time              `json:"timestamp"`
	CPU       CPU                    `json:"cpu"`
	Memory    Memory                 `json:"memory"`
	Storage   Storage                `json:"storage"`
	Network   Network                `json:"network"`
	Custom    map[string]CustomValue `json:"custom,omitempty"`
}

// documentJSON mirrors Document but renders Timestamp as a local-time
// ISO-8601 string, matching datetime.now().isoformat() in the original
// collector rather than Go's default RFC3339Nano/UTC rendering.
type documentJSON struct {
	Hostname  string                 `json:"hostname"`
	IP        string                 `json:"ip"`
	Timestamp string                 `json:"timestamp"`
	CPU       CPU                    `json:"cpu"`
	Memory    Memory                 `json:"memory"`
	Storage   Storage                `json:"storage"`
	Network   Network                `json:"network"`
	Custom    map[string]CustomValue `json:"custom,omitempty"`
}

// MarshalJSON renders Timestamp without a UTC offset suffix, as
// datetime.isoformat() does for naive local datetimes. Strings are not
// HTML-escaped, so '<', '>' and '&' in probe output stay literal.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(documentJSON{
		Hostname:  d.Hostname,
		IP:        d.IP,
		Timestamp: d.Timestamp.Format("2006-01-02T15:04:05.000000"),
		CPU:       d.CPU,
		Memory:    d.Memory,
		Storage:   d.Storage,
		Network:   d.Network,
		Custom:    d.Custom,
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
