package internal

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HeartbeatInterval is the minimum gap between two emissions, per spec.md
// §4.16.
const HeartbeatInterval = 30 * time.Second

// HeartbeatReporter emits a liveness line at most once per HeartbeatInterval
// for a single job, regardless of how often MaybeEmit is called.
type HeartbeatReporter struct {
	mu       sync.Mutex
	interval time.Duration
	lastEmit time.Time
	nowFunc  func() time.Time
	jobID    string
}

// NewHeartbeatReporter builds a reporter with the given minimum interval.
func NewHeartbeatReporter(interval time.Duration) *HeartbeatReporter {
	return &HeartbeatReporter{interval: interval, nowFunc: time.Now}
}

// SetJobID tags every subsequent emission with the owning job's correlation
// ID, so heartbeat lines from concurrent jobs can be told apart in logs.
func (h *HeartbeatReporter) SetJobID(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobID = jobID
}

// MaybeEmit logs {elapsed, totalRows, memPct} if at least interval has
// passed since the last emission; otherwise it is a no-op.
func (h *HeartbeatReporter) MaybeEmit(elapsed time.Duration, totalRows int64, memPct float64) {
	h.mu.Lock()
	now := h.nowFunc()
	if !h.lastEmit.IsZero() && now.Sub(h.lastEmit) < h.interval {
		h.mu.Unlock()
		return
	}
	jobID := h.jobID
	h.lastEmit = now
	h.mu.Unlock()

	zap.S().Infow("heartbeat", "jobId", jobID, "elapsedSeconds", elapsed.Seconds(), "totalRows", totalRows, "memPct", memPct)
}
