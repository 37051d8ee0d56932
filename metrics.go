package blockfs

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for a Registry: the sector traffic
// the FAT driver generates through the disk shim and the volume lifecycle
// operations performed on top of it. All counters are atomic and safe to
// read while the registry is in use.
type Metrics struct {
	// Disk shim traffic
	DiskReads   atomic.Uint64 // shim read calls
	DiskWrites  atomic.Uint64 // shim write calls
	ReadBytes   atomic.Uint64 // bytes read through the shim
	WriteBytes  atomic.Uint64 // bytes written through the shim
	ReadErrors  atomic.Uint64 // failed shim reads
	WriteErrors atomic.Uint64 // failed shim writes

	// Volume lifecycle
	Mounts       atomic.Uint64
	Unmounts     atomic.Uint64
	Formats      atomic.Uint64
	MountErrors  atomic.Uint64
	UnmountError atomic.Uint64
	FormatErrors atomic.Uint64

	// StartTime is the registry creation timestamp (UnixNano).
	StartTime atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDiskRead records one shim read of the given byte length.
func (m *Metrics) RecordDiskRead(bytes uint64, ok bool) {
	m.DiskReads.Add(1)
	if ok {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
}

// RecordDiskWrite records one shim write of the given byte length.
func (m *Metrics) RecordDiskWrite(bytes uint64, ok bool) {
	m.DiskWrites.Add(1)
	if ok {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
}

// RecordMount records a mount attempt.
func (m *Metrics) RecordMount(ok bool) {
	m.Mounts.Add(1)
	if !ok {
		m.MountErrors.Add(1)
	}
}

// RecordUnmount records an unmount attempt.
func (m *Metrics) RecordUnmount(ok bool) {
	m.Unmounts.Add(1)
	if !ok {
		m.UnmountError.Add(1)
	}
}

// RecordFormat records a format attempt.
func (m *Metrics) RecordFormat(ok bool) {
	m.Formats.Add(1)
	if !ok {
		m.FormatErrors.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	DiskReads   uint64 `json:"disk_reads"`
	DiskWrites  uint64 `json:"disk_writes"`
	ReadBytes   uint64 `json:"read_bytes"`
	WriteBytes  uint64 `json:"write_bytes"`
	ReadErrors  uint64 `json:"read_errors"`
	WriteErrors uint64 `json:"write_errors"`

	Mounts       uint64 `json:"mounts"`
	Unmounts     uint64 `json:"unmounts"`
	Formats      uint64 `json:"formats"`
	MountErrors  uint64 `json:"mount_errors"`
	UnmountError uint64 `json:"unmount_errors"`
	FormatErrors uint64 `json:"format_errors"`

	Uptime time.Duration `json:"uptime_ns"`
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		DiskReads:   m.DiskReads.Load(),
		DiskWrites:  m.DiskWrites.Load(),
		ReadBytes:   m.ReadBytes.Load(),
		WriteBytes:  m.WriteBytes.Load(),
		ReadErrors:  m.ReadErrors.Load(),
		WriteErrors: m.WriteErrors.Load(),

		Mounts:       m.Mounts.Load(),
		Unmounts:     m.Unmounts.Load(),
		Formats:      m.Formats.Load(),
		MountErrors:  m.MountErrors.Load(),
		UnmountError: m.UnmountError.Load(),
		FormatErrors: m.FormatErrors.Load(),

		Uptime: time.Duration(time.Now().UnixNano() - m.StartTime.Load()),
	}
}
