package internal

import (
	"context"

	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
)

// ConsolidatedExecutorConfig bounds the validate/probe/paged state machine,
// sourced from Config.Batch.
type ConsolidatedExecutorConfig struct {
	ValidationLimit int64
	AbsoluteLimit   int64
	ErrorFactor     int64
}

// RunConsolidatedExecutor drives the S0 (validate estimate) -> S1 (probe) ->
// S2 (analyse sample) -> PAGED/RAW state machine of spec.md §4.14.
// estimatedRows is the query's currently registered row estimate (nil or 0
// means "unknown"). registry is used for the only permitted post-analysis
// mutation: self-tuning estimatedRows.
func RunConsolidatedExecutor(ctx context.Context, shard shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor, registry shardquery.QueryMetadataStore, queryCode string, filters *shardquery.FilterParams, estimatedRows *int64, cfg ConsolidatedExecutorConfig, streamCfg StreamingConfig, metrics *MetricsCollector) error {
	province := shard.Province()

	estimate := int64(0)
	if estimatedRows != nil {
		estimate = *estimatedRows
	}

	// S0 - validate estimate.
	if estimate == 0 || estimate > cfg.ValidationLimit {
		return RunStreamingExecutor(ctx, shard, out, memory, queryCode, filters, streamCfg)
	}

	// S1 - probe.
	probe := *filters
	probe.ClearCursor()
	probe.Limit = int(cfg.ValidationLimit)

	sample, err := shard.ExecutePage(ctx, queryCode, &probe)
	if err != nil {
		return WrapExecutionError(err, province, queryCode)
	}

	// S2 - analyse sample.
	sampleLen := int64(len(sample))
	if sampleLen < cfg.ValidationLimit {
		if estimate > 0 && sampleLen > estimate*cfg.ErrorFactor {
			persistEstimate(ctx, registry, queryCode, sampleLen)
		}
		return forwardSample(ctx, out, sample, province)
	}

	if sampleLen > estimate*cfg.ErrorFactor {
		persistEstimate(ctx, registry, queryCode, sampleLen*2)
		if metrics != nil {
			metrics.RecordDrift(province)
		}
		return RunStreamingExecutor(ctx, shard, out, memory, queryCode, filters, streamCfg)
	}

	// PAGED.
	if err := forwardSample(ctx, out, sample, province); err != nil {
		return err
	}
	return runPagedConsolidation(ctx, shard, out, memory, queryCode, filters, cfg)
}

func runPagedConsolidation(ctx context.Context, shard shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor, queryCode string, filters *shardquery.FilterParams, cfg ConsolidatedExecutorConfig) error {
	batch := cfg.ValidationLimit
	maxIterations := int(cfg.AbsoluteLimit / batch)
	province := shard.Province()
	offset := int(batch)

	for iteration := 0; iteration < maxIterations; iteration++ {
		page := *filters
		page.ClearCursor()
		page.Limit = int(batch)
		o := offset
		page.Offset = &o

		rows, err := shard.ExecutePage(ctx, queryCode, &page)
		if err != nil {
			return WrapExecutionError(err, province, queryCode)
		}

		if err := forwardSample(ctx, out, rows, province); err != nil {
			return err
		}

		if int64(len(rows)) < batch {
			return nil
		}

		offset += int(batch)
		memory.PauseIfNeeded(ctx)

		if iteration == maxIterations-1 {
			zap.S().Warnw("consolidated executor hit paged iteration cap", "province", province, "queryCode", queryCode, "iterations", maxIterations)
		}
	}

	return nil
}

func forwardSample(ctx context.Context, out shardquery.ProcessingContext, rows []*shardquery.Row, province string) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]*shardquery.Row, len(rows))
	for i, r := range rows {
		batch[i] = RestampRow(r, province)
	}
	return out.Push(ctx, batch)
}

func persistEstimate(ctx context.Context, registry shardquery.QueryMetadataStore, queryCode string, estimate int64) {
	if registry == nil {
		return
	}
	if err := registry.UpdateEstimatedRows(ctx, queryCode, estimate); err != nil {
		zap.S().Warnw("failed to persist estimation drift", "queryCode", queryCode, "estimate", estimate, "error", err)
	}
}
