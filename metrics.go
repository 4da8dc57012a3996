package meshdof

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational
// metrics. Implement this interface to integrate with monitoring systems
// like Prometheus.
type MetricsCollector interface {
	// RecordDistribute is called after each DoF distribution pass.
	// totalDoFs is the number of DoFs handed out across all levels.
	RecordDistribute(totalDoFs uint64, duration time.Duration, err error)

	// RecordCompress is called after each CompressAll. savedSlots is the
	// number of flat-array slots reclaimed across all levels.
	RecordCompress(savedSlots int, duration time.Duration, err error)

	// RecordUncompress is called after each UncompressAll.
	RecordUncompress(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordDistribute(uint64, time.Duration, error) {}
func (NoopMetricsCollector) RecordCompress(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordUncompress(time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	DistributeCount   atomic.Int64
	DistributeErrors  atomic.Int64
	DistributedDoFs   atomic.Int64
	CompressCount     atomic.Int64
	CompressErrors    atomic.Int64
	CompressSaved     atomic.Int64
	CompressNanos     atomic.Int64
	UncompressCount   atomic.Int64
	UncompressErrors  atomic.Int64
	UncompressNanos   atomic.Int64
}

// RecordDistribute implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDistribute(totalDoFs uint64, duration time.Duration, err error) {
	b.DistributeCount.Add(1)
	b.DistributedDoFs.Add(int64(totalDoFs))
	if err != nil {
		b.DistributeErrors.Add(1)
	}
}

// RecordCompress implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompress(savedSlots int, duration time.Duration, err error) {
	b.CompressCount.Add(1)
	b.CompressSaved.Add(int64(savedSlots))
	b.CompressNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CompressErrors.Add(1)
	}
}

// RecordUncompress implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUncompress(duration time.Duration, err error) {
	b.UncompressCount.Add(1)
	b.UncompressNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UncompressErrors.Add(1)
	}
}
