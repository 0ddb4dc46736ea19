package internal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ShardState is a shard's coarse progress state for the purposes of the
// progress monitor.
type ShardState string

const (
	ShardPending    ShardState = "PENDING"
	ShardInProgress ShardState = "IN_PROGRESS"
	ShardCompleted  ShardState = "COMPLETED"
	ShardFailed     ShardState = "FAILED"
)

// ProgressTickInterval is how often the monitor prints during a parallel
// run, per spec.md §4.16.
const ProgressTickInterval = 3 * time.Second

// ProgressMonitor tracks each shard's state for a single job and, while
// running, periodically logs a completed/inProgress/per-shard-state summary.
type ProgressMonitor struct {
	mu     sync.Mutex
	states map[string]ShardState
	jobID  string
}

// SetJobID tags subsequent progress ticks with the owning job's correlation
// ID.
func (p *ProgressMonitor) SetJobID(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobID = jobID
}

// NewProgressMonitor seeds every named province as PENDING.
func NewProgressMonitor(provinces []string) *ProgressMonitor {
	states := make(map[string]ShardState, len(provinces))
	for _, p := range provinces {
		states[p] = ShardPending
	}
	return &ProgressMonitor{states: states}
}

// SetState records province's new state.
func (p *ProgressMonitor) SetState(province string, state ShardState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[province] = state
}

// Snapshot returns a copy of the current per-shard state map plus
// completed/inProgress counts.
func (p *ProgressMonitor) Snapshot() (states map[string]ShardState, completed, inProgress int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	states = make(map[string]ShardState, len(p.states))
	for k, v := range p.states {
		states[k] = v
		switch v {
		case ShardCompleted, ShardFailed:
			completed++
		case ShardInProgress:
			inProgress++
		}
	}
	return states, completed, inProgress
}

func (p *ProgressMonitor) logTick() {
	states, completed, inProgress := p.Snapshot()
	p.mu.Lock()
	jobID := p.jobID
	p.mu.Unlock()
	zap.S().Infow("progress", "jobId", jobID, "completed", completed, "inProgress", inProgress, "states", states)
}

// Run starts a background ticker that logs progress every
// ProgressTickInterval until ctx is cancelled. It returns immediately; the
// caller should cancel ctx (or let it expire) once the run completes.
func (p *ProgressMonitor) Run(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(ProgressTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.logTick()
			}
		}
	}()
}
