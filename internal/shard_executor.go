package internal

import (
	"context"

	"github.com/lychee-technology/shardquery"
)

// ShardExecutorConfig bundles the tunables ExecuteShard threads into whichever
// path it dispatches to.
type ShardExecutorConfig struct {
	StandardMaxIterations int
	Consolidated          ConsolidatedExecutorConfig
	Streaming             StreamingConfig
}

// ExecuteShard is the single entry point every orchestration strategy calls
// per shard. It picks ConsolidatedExecutor when the query's metadata marks it
// NO_PAGINATION and consolidable, and StandardExecutor otherwise, per
// spec.md §4.12. estimatedRows is the owning Query's currently registered
// row estimate.
func ExecuteShard(ctx context.Context, shard shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor, registry shardquery.QueryMetadataStore, queryCode string, filters *shardquery.FilterParams, md *shardquery.QueryMetadata, estimatedRows *int64, cfg ShardExecutorConfig, metrics *MetricsCollector) error {
	if md != nil && md.PaginationStrategy == shardquery.PaginationNone && md.Consolidable {
		return RunConsolidatedExecutor(ctx, shard, out, memory, registry, queryCode, filters, estimatedRows, cfg.Consolidated, cfg.Streaming, metrics)
	}
	return RunStandardExecutor(ctx, shard, out, memory, queryCode, filters, cfg.StandardMaxIterations)
}
