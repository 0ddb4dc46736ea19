package internal

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lychee-technology/shardquery"
)

// RunParallelStrategy dispatches every task concurrently on a bounded pool
// (maxConcurrent <= 0 means unbounded), waits for all of them, and drains
// the consumer once. Progress, if non-nil, is ticked every
// ProgressTickInterval for the duration of the run. Per-shard errors are
// collected and returned keyed by province; they never abort sibling shards.
func RunParallelStrategy(ctx context.Context, tasks []ShardTask, out shardquery.ProcessingContext, memory *MemoryMonitor, registry shardquery.QueryMetadataStore, queryCode string, md *shardquery.QueryMetadata, cfg ShardExecutorConfig, metrics *MetricsCollector, progress *ProgressMonitor, maxConcurrent int) map[string]error {
	tickCtx, stopTicking := context.WithCancel(ctx)
	if progress != nil {
		progress.Run(tickCtx)
	}

	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}

	var mu sync.Mutex
	errs := make(map[string]error)

	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := runShardTask(gctx, task, out, memory, registry, queryCode, md, cfg, metrics, progress); err != nil {
				mu.Lock()
				errs[task.Shard.Province()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	stopTicking()

	_ = out.DrainAll(ctx)
	return errs
}
