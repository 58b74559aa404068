package gridstore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems. The
// metrics/prometheus package ships a Prometheus implementation.
//
// Example:
//
//	type countingCollector struct {
//	    gridstore.NoopMetricsCollector
//	    swapOuts atomic.Int64
//	}
//
//	func (c *countingCollector) RecordSwapOut(bytes int, d time.Duration, err error) {
//	    c.swapOuts.Add(1)
//	}
type MetricsCollector interface {
	// RecordSwapOut is called after a chunk payload was written to the swap
	// store. bytes is the stored frame size.
	RecordSwapOut(bytes int, duration time.Duration, err error)

	// RecordSwapIn is called after a chunk payload was read back.
	RecordSwapIn(bytes int, duration time.Duration, err error)

	// RecordOutOfMemory is called every time an allocation is refused.
	RecordOutOfMemory()

	// RecordEviction is called after each eviction request. freed is the
	// number of chunks released, err is set when the request failed.
	RecordEviction(freed int, err error)

	// RecordFlush is called after each Flush.
	RecordFlush(chunks int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSwapOut(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSwapIn(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordOutOfMemory()                      {}
func (NoopMetricsCollector) RecordEviction(int, error)               {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error)   {}

const (
	minLatency = time.Microsecond
	maxLatency = time.Minute
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 2)
}

// latencyHistogram is a mutex-guarded histogram clamping values to its range.
type latencyHistogram struct {
	mu struct {
		sync.Mutex
		h *hdrhistogram.Histogram
	}
}

func (l *latencyHistogram) record(d time.Duration) {
	d = min(max(d, minLatency), maxLatency)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mu.h == nil {
		l.mu.h = newHistogram()
	}
	// Values are clamped to the histogram range, so recording cannot fail.
	_ = l.mu.h.RecordValue(d.Nanoseconds())
}

func (l *latencyHistogram) snapshot() LatencyStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mu.h == nil || l.mu.h.TotalCount() == 0 {
		return LatencyStats{}
	}
	h := l.mu.h
	return LatencyStats{
		Mean: time.Duration(h.Mean()),
		P50:  time.Duration(h.ValueAtQuantile(50)),
		P95:  time.Duration(h.ValueAtQuantile(95)),
		P99:  time.Duration(h.ValueAtQuantile(99)),
		Max:  time.Duration(h.Max()),
	}
}

// LatencyStats summarizes a latency distribution.
type LatencyStats struct {
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration
}

// BasicMetricsCollector provides simple in-memory metrics collection with
// latency percentiles for swap traffic.
type BasicMetricsCollector struct {
	SwapOutCount   atomic.Int64
	SwapOutErrors  atomic.Int64
	SwapOutBytes   atomic.Int64
	SwapInCount    atomic.Int64
	SwapInErrors   atomic.Int64
	SwapInBytes    atomic.Int64
	OutOfMemory    atomic.Int64
	EvictedChunks  atomic.Int64
	EvictionErrors atomic.Int64
	FlushCount     atomic.Int64
	FlushedChunks  atomic.Int64
	FlushErrors    atomic.Int64

	swapOutLatency latencyHistogram
	swapInLatency  latencyHistogram
}

// RecordSwapOut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSwapOut(bytes int, duration time.Duration, err error) {
	b.SwapOutCount.Add(1)
	if err != nil {
		b.SwapOutErrors.Add(1)
		return
	}
	b.SwapOutBytes.Add(int64(bytes))
	b.swapOutLatency.record(duration)
}

// RecordSwapIn implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSwapIn(bytes int, duration time.Duration, err error) {
	b.SwapInCount.Add(1)
	if err != nil {
		b.SwapInErrors.Add(1)
		return
	}
	b.SwapInBytes.Add(int64(bytes))
	b.swapInLatency.record(duration)
}

// RecordOutOfMemory implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOutOfMemory() {
	b.OutOfMemory.Add(1)
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(freed int, err error) {
	b.EvictedChunks.Add(int64(freed))
	if err != nil {
		b.EvictionErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(chunks int, _ time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushedChunks.Add(int64(chunks))
	if err != nil {
		b.FlushErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SwapOutCount:   b.SwapOutCount.Load(),
		SwapOutErrors:  b.SwapOutErrors.Load(),
		SwapOutBytes:   b.SwapOutBytes.Load(),
		SwapOutLatency: b.swapOutLatency.snapshot(),
		SwapInCount:    b.SwapInCount.Load(),
		SwapInErrors:   b.SwapInErrors.Load(),
		SwapInBytes:    b.SwapInBytes.Load(),
		SwapInLatency:  b.swapInLatency.snapshot(),
		OutOfMemory:    b.OutOfMemory.Load(),
		EvictedChunks:  b.EvictedChunks.Load(),
		EvictionErrors: b.EvictionErrors.Load(),
		FlushCount:     b.FlushCount.Load(),
		FlushedChunks:  b.FlushedChunks.Load(),
		FlushErrors:    b.FlushErrors.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SwapOutCount   int64
	SwapOutErrors  int64
	SwapOutBytes   int64
	SwapOutLatency LatencyStats
	SwapInCount    int64
	SwapInErrors   int64
	SwapInBytes    int64
	SwapInLatency  LatencyStats
	OutOfMemory    int64
	EvictedChunks  int64
	EvictionErrors int64
	FlushCount     int64
	FlushedChunks  int64
	FlushErrors    int64
}
