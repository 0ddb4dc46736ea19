package internal

import (
	"context"

	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
)

// Strategy is the orchestrator's choice of how to fan work out across
// shards, per spec.md §4.11.
type Strategy string

const (
	StrategyParallel   Strategy = "PARALLEL"
	StrategySequential Strategy = "SEQUENTIAL"
	StrategyHybrid     Strategy = "HYBRID"
)

// DecideStrategy applies the (total, mean, max) decision table of spec.md
// §4.11 to choose a fan-out strategy for the job.
func DecideStrategy(total, mean, max int64, parallelPerShard, parallelTotal, massivePerShard int64) Strategy {
	if mean < parallelPerShard && total < parallelTotal {
		return StrategyParallel
	}
	if max > massivePerShard {
		return StrategySequential
	}
	return StrategyHybrid
}

// ShardTask is everything a strategy needs to dispatch one shard.
type ShardTask struct {
	Shard         shardquery.ShardStore
	Filters       *shardquery.FilterParams
	EstimatedRows *int64
}

// runShardTask executes one shard through ExecuteShard, tallying its rows
// into metrics and tracking its state in progress. Per spec.md §4.11, a
// shard-level error is logged and recorded but never propagated — the
// caller (a strategy loop) must keep going regardless of the return value.
func runShardTask(ctx context.Context, task ShardTask, out shardquery.ProcessingContext, memory *MemoryMonitor, registry shardquery.QueryMetadataStore, queryCode string, md *shardquery.QueryMetadata, cfg ShardExecutorConfig, metrics *MetricsCollector, progress *ProgressMonitor) error {
	province := task.Shard.Province()
	if progress != nil {
		progress.SetState(province, ShardInProgress)
	}

	counted := out
	if metrics != nil {
		counted = &countingProcessingContext{inner: out, metrics: metrics, province: province}
	}

	err := ExecuteShard(ctx, task.Shard, counted, memory, registry, queryCode, task.Filters, md, task.EstimatedRows, cfg, metrics)

	if err != nil {
		zap.S().Errorw("shard task failed", "province", province, "queryCode", queryCode, "error", err)
		if progress != nil {
			progress.SetState(province, ShardFailed)
		}
		return err
	}

	if progress != nil {
		progress.SetState(province, ShardCompleted)
	}
	return nil
}
