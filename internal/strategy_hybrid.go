package internal

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lychee-technology/shardquery"
)

// RunHybridStrategy partitions tasks into contiguous groups of groupSize
// (the configured maxParallelPerGroup), running each group fully in
// parallel and waiting for it before moving to the next. Between groups it
// drains, checks memory pressure, and pauses/GC-hints if high.
func RunHybridStrategy(ctx context.Context, tasks []ShardTask, out shardquery.ProcessingContext, memory *MemoryMonitor, registry shardquery.QueryMetadataStore, queryCode string, md *shardquery.QueryMetadata, cfg ShardExecutorConfig, metrics *MetricsCollector, progress *ProgressMonitor, groupSize int) map[string]error {
	if groupSize <= 0 {
		groupSize = 6
	}

	tickCtx, stopTicking := context.WithCancel(ctx)
	if progress != nil {
		progress.Run(tickCtx)
	}
	defer stopTicking()

	var mu sync.Mutex
	errs := make(map[string]error)

	for start := 0; start < len(tasks); start += groupSize {
		end := start + groupSize
		if end > len(tasks) {
			end = len(tasks)
		}
		group := tasks[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, task := range group {
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

		_ = out.DrainAll(ctx)
		ratio := memory.Ratio()
		if memory.IsHigh(ratio) {
			memory.PauseIfNeeded(ctx)
			memory.HintGCIfNeeded(ctx)
		}
	}

	return errs
}
