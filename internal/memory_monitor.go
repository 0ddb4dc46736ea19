package internal

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// MemoryLevel is the coarse heap-pressure bucket a ratio falls into.
type MemoryLevel int

const (
	MemoryLow MemoryLevel = iota
	MemoryNormal
	MemoryHigh
	MemoryCritical
)

func (l MemoryLevel) String() string {
	switch l {
	case MemoryLow:
		return "LOW"
	case MemoryNormal:
		return "NORMAL"
	case MemoryHigh:
		return "HIGH"
	case MemoryCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MemoryMonitor observes heap usage ratio and exposes batch-sizing and
// cooperative pause/GC-hint behaviour derived from it. One instance is
// shared across a single orchestrated job; it is safe to call from multiple
// goroutines since it holds no mutable state beyond its configuration.
type MemoryMonitor struct {
	criticalRatio float64
	highRatio     float64
	normalRatio   float64
	pauseDelay    time.Duration
	gcPauseDelay  time.Duration
	minBatchSize  int
	maxBatchSize  int

	readRatio func() float64
}

// NewMemoryMonitor builds a monitor from the memory thresholds in Config.
// critical/high/normal must already satisfy critical > high > normal; the
// root package's Config.Validate enforces this at startup.
func NewMemoryMonitor(criticalRatio, highRatio, normalRatio float64, pauseDelay, gcPauseDelay time.Duration, minBatchSize, maxBatchSize int) *MemoryMonitor {
	return &MemoryMonitor{
		criticalRatio: criticalRatio,
		highRatio:     highRatio,
		normalRatio:   normalRatio,
		pauseDelay:    pauseDelay,
		gcPauseDelay:  gcPauseDelay,
		minBatchSize:  minBatchSize,
		maxBatchSize:  maxBatchSize,
		readRatio:     readHeapRatio,
	}
}

// readHeapRatio reports HeapAlloc / HeapSys, a reasonable proxy for
// allocator-side memory pressure independent of the OS's view of the
// process's resident set.
func readHeapRatio() float64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if stats.HeapSys == 0 {
		return 0
	}
	return float64(stats.HeapAlloc) / float64(stats.HeapSys)
}

// Ratio returns the current heap usage ratio in [0, 1].
func (m *MemoryMonitor) Ratio() float64 {
	r := m.readRatio()
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Level buckets ratio r into LOW < NORMAL <= HIGH <= CRITICAL.
func (m *MemoryMonitor) Level(r float64) MemoryLevel {
	switch {
	case r > m.criticalRatio:
		return MemoryCritical
	case r > m.highRatio:
		return MemoryHigh
	case r > m.normalRatio:
		return MemoryNormal
	default:
		return MemoryLow
	}
}

// IsHigh reports whether r exceeds the configured high-pressure threshold.
func (m *MemoryMonitor) IsHigh(r float64) bool {
	return r > m.highRatio
}

// IsCritical reports whether r exceeds the configured critical threshold.
func (m *MemoryMonitor) IsCritical(r float64) bool {
	return r > m.criticalRatio
}

// OptimalBatchSize scales base by the current level's factor and clamps the
// result to [minBatchSize, maxBatchSize].
func (m *MemoryMonitor) OptimalBatchSize(base int) int {
	factor := 1.0
	switch m.Level(m.Ratio()) {
	case MemoryCritical:
		factor = 0.25
	case MemoryHigh:
		factor = 0.50
	default:
		factor = 1.0
	}

	scaled := int(float64(base) * factor)
	if scaled < m.minBatchSize {
		scaled = m.minBatchSize
	}
	if scaled > m.maxBatchSize {
		scaled = m.maxBatchSize
	}
	return scaled
}

// PauseIfNeeded sleeps pauseDelay when the current ratio is high, re-checking
// ctx for cancellation instead of blocking on time.Sleep directly.
func (m *MemoryMonitor) PauseIfNeeded(ctx context.Context) {
	r := m.Ratio()
	if !m.IsHigh(r) {
		return
	}
	zap.S().Debugw("memory pressure high, pausing", "ratio", r, "delay", m.pauseDelay)
	select {
	case <-ctx.Done():
	case <-time.After(m.pauseDelay):
	}
}

// HintGCIfNeeded suggests reclamation when the current ratio is critical,
// then sleeps gcPauseDelay (cooperatively). The before/after ratio is logged
// for diagnostics; there is no retry if the ratio stays critical.
func (m *MemoryMonitor) HintGCIfNeeded(ctx context.Context) {
	before := m.Ratio()
	if !m.IsCritical(before) {
		return
	}
	runtime.GC()
	select {
	case <-ctx.Done():
	case <-time.After(m.gcPauseDelay):
	}
	after := m.Ratio()
	zap.S().Warnw("memory pressure critical, hinted GC", "before", before, "after", after)
}
