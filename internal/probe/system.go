package probe

import (
	"context"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
)

// System collects CPU, memory, storage, and network metrics via
// gopsutil. It keeps the previous network counters so Collect can report
// a byte rate rather than a cumulative total, the same running-delta
// approach system_collector.py uses.
type System struct {
	Hostname string
	IP       string

	mu          sync.Mutex
	lastNet     *gnet.IOCountersStat
	lastNetTime time.Time
}

// NewSystem builds a System probe. hostname/ip of "" or "auto" resolve
// from the host at collection time, matching config_manager.py's "auto"
// sentinel.
func NewSystem(hostname, ip string) *System {
	return &System{Hostname: hostname, IP: ip}
}

func (s *System) resolveHostname() string {
	if s.Hostname != "" && s.Hostname != "auto" {
		return s.Hostname
	}
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

func (s *System) resolveIP() string {
	if s.IP != "" && s.IP != "auto" {
		return s.IP
	}
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// Collect gathers one full system snapshot. Individual sub-collections
// that fail (a sensor unavailable, a mountpoint unreadable) are skipped
// rather than failing the whole snapshot, mirroring the original
// collector's per-field try/except.
func (s *System) Collect(ctx context.Context) (Document, error) {
	doc := Document{
		Hostname:  s.resolveHostname(),
		IP:        s.resolveIP(),
		Timestamp: time.Now(),
	}

	doc.CPU = s.collectCPU(ctx)
	doc.Memory = s.collectMemory()
	doc.Storage = s.collectStorage()
	doc.Network = s.collectNetwork(ctx)

	return doc, nil
}

func (s *System) collectCPU(ctx context.Context) CPU {
	percents, err := cpu.PercentWithContext(ctx, time.Second, false)
	out := CPU{}
	if err == nil && len(percents) > 0 {
		out.Usage = round1(percents[0])
	}

	if temp, ok := preferredTemperature(preferCoreTempThenK10Temp); ok {
		out.Temperature = &temp
	}
	return out
}

func (s *System) collectMemory() Memory {
	out := Memory{}
	vm, err := mem.VirtualMemory()
	if err == nil {
		out.Usage = round1(vm.UsedPercent)
		out.Total = vm.Total
		out.Used = vm.Used
	}
	if temp, ok := preferredTemperature(preferMemoryKeyword); ok {
		out.Temperature = &temp
	}
	return out
}

func (s *System) collectStorage() Storage {
	out := Storage{}

	parts, err := disk.Partitions(false)
	if err == nil {
		for _, part := range parts {
			usage, uerr := disk.Usage(part.Mountpoint)
			if uerr != nil {
				continue
			}
			out.Capacity += usage.Total
			out.Used += usage.Used
		}
	}

	out.Disks = s.collectDiskStatus()
	return out
}

// collectDiskStatus derives a normal/warning/error status per disk from
// I/O counters. gopsutil does not expose the read/write error counts
// system_collector.py's hasattr(stats, 'read_errs') check looked for (no
// OS gopsutil supports surfaces them), so every disk reports "normal"
// here, the same outcome the original's hasattr guard produced on every
// real system it actually ran on.
func (s *System) collectDiskStatus() []Disk {
	counters, err := disk.IOCounters()
	if err != nil || len(counters) == 0 {
		return nil
	}
	disks := make([]Disk, 0, len(counters))
	for name := range counters {
		disks = append(disks, Disk{ID: name, Status: DiskStatusNormal})
	}
	return disks
}

func (s *System) collectNetwork(ctx context.Context) Network {
	counters, err := gnet.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		return Network{}
	}
	current := counters[0]
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastNet == nil {
		s.lastNet = &current
		s.lastNetTime = now
		return Network{}
	}

	elapsed := now.Sub(s.lastNetTime).Seconds()
	if elapsed <= 0 {
		return Network{}
	}

	upload := clampNonNegative(int64(float64(int64(current.BytesSent)-int64(s.lastNet.BytesSent)) / elapsed))
	download := clampNonNegative(int64(float64(int64(current.BytesRecv)-int64(s.lastNet.BytesRecv)) / elapsed))

	s.lastNet = &current
	s.lastNetTime = now

	return Network{Upload: upload, Download: download}
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

type sensorPreference int

const (
	preferCoreTempThenK10Temp sensorPreference = iota
	preferMemoryKeyword
)

// preferredTemperature reads host.SensorsTemperatures and picks a single
// reading per the preference order system_collector.py uses: coretemp,
// then k10temp, then any available sensor for CPU; a name containing
// "dimm", "memory", or "ram" for memory.
func preferredTemperature(pref sensorPreference) (float64, bool) {
	sensors, err := host.SensorsTemperatures()
	if err != nil || len(sensors) == 0 {
		return 0, false
	}

	switch pref {
	case preferCoreTempThenK10Temp:
		if t, ok := firstMatching(sensors, "coretemp"); ok {
			return t, true
		}
		if t, ok := firstMatching(sensors, "k10temp"); ok {
			return t, true
		}
		return round1(sensors[0].Temperature), true
	case preferMemoryKeyword:
		for _, s := range sensors {
			lower := strings.ToLower(s.SensorKey)
			if strings.Contains(lower, "dimm") || strings.Contains(lower, "memory") || strings.Contains(lower, "ram") {
				return round1(s.Temperature), true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

func firstMatching(sensors []host.TemperatureStat, keyword string) (float64, bool) {
	for _, s := range sensors {
		if strings.Contains(strings.ToLower(s.SensorKey), keyword) {
			return round1(s.Temperature), true
		}
	}
	return 0, false
}
