package internal

import (
	"context"

	"github.com/lychee-technology/shardquery"
)

// RunSequentialStrategy runs each task one at a time, draining after every
// shard and pausing if memory pressure is high before moving to the next.
func RunSequentialStrategy(ctx context.Context, tasks []ShardTask, out shardquery.ProcessingContext, memory *MemoryMonitor, registry shardquery.QueryMetadataStore, queryCode string, md *shardquery.QueryMetadata, cfg ShardExecutorConfig, metrics *MetricsCollector, progress *ProgressMonitor) map[string]error {
	errs := make(map[string]error)

	for _, task := range tasks {
		if err := runShardTask(ctx, task, out, memory, registry, queryCode, md, cfg, metrics, progress); err != nil {
			errs[task.Shard.Province()] = err
		}
		_ = out.DrainAll(ctx)
		memory.PauseIfNeeded(ctx)
	}

	return errs
}
