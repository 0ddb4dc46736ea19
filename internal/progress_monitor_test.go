package internal

import (
	"context"
	"testing"
	"time"
)

func TestProgressMonitorSeedsProvincesAsPending(t *testing.T) {
	pm := NewProgressMonitor([]string{"buenos_aires", "cordoba"})
	states, completed, inProgress := pm.Snapshot()

	if states["buenos_aires"] != ShardPending || states["cordoba"] != ShardPending {
		t.Errorf("expected both provinces pending, got %+v", states)
	}
	if completed != 0 || inProgress != 0 {
		t.Errorf("expected no completed/inProgress shards yet, got %d/%d", completed, inProgress)
	}
}

func TestProgressMonitorSetStateUpdatesCounts(t *testing.T) {
	pm := NewProgressMonitor([]string{"a", "b", "c"})
	pm.SetState("a", ShardInProgress)
	pm.SetState("b", ShardCompleted)
	pm.SetState("c", ShardFailed)

	_, completed, inProgress := pm.Snapshot()
	if completed != 2 {
		t.Errorf("expected 2 completed (completed+failed), got %d", completed)
	}
	if inProgress != 1 {
		t.Errorf("expected 1 in progress, got %d", inProgress)
	}
}

func TestProgressMonitorRunStopsOnContextCancel(t *testing.T) {
	pm := NewProgressMonitor([]string{"a"})
	ctx, cancel := context.WithCancel(context.Background())
	pm.Run(ctx)
	cancel()
	time.Sleep(10 * time.Millisecond)
}
