package internal

import (
	"context"

	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
)

// StreamingConfig bounds StreamingExecutor's chunk buffering and progress
// logging cadence.
type StreamingConfig struct {
	ChunkSize    int
	LogFrequency int
}

// RowTransform maps a raw row to an output row, or nil to drop it silently.
type RowTransform func(*shardquery.Row) *shardquery.Row

// RunStreamingExecutor drives shard.Execute with a per-row callback, buffering
// restamped rows into chunks of cfg.ChunkSize and forwarding each full chunk
// to out. Per spec.md §4.15, pagination and cursor fields are cleared on the
// outgoing filter before dispatch.
func RunStreamingExecutor(ctx context.Context, shard shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor, queryCode string, filters *shardquery.FilterParams, cfg StreamingConfig) error {
	return runStreamingExecutor(ctx, shard, out, memory, queryCode, filters, cfg, func(r *shardquery.Row) *shardquery.Row { return r })
}

// RunStreamingExecutorWithTransform is the executeWithTransform variant: each
// row is passed through transform before buffering; a nil result drops the
// row silently.
func RunStreamingExecutorWithTransform(ctx context.Context, shard shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor, queryCode string, filters *shardquery.FilterParams, cfg StreamingConfig, transform RowTransform) error {
	return runStreamingExecutor(ctx, shard, out, memory, queryCode, filters, cfg, transform)
}

func runStreamingExecutor(ctx context.Context, shard shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor, queryCode string, filters *shardquery.FilterParams, cfg StreamingConfig, transform RowTransform) error {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	logFrequency := cfg.LogFrequency
	if logFrequency <= 0 {
		logFrequency = 10
	}

	streamFilters := *filters
	streamFilters.ClearCursor()

	buffer := make([]*shardquery.Row, 0, chunkSize)
	chunks := 0
	totalRows := 0
	province := shard.Province()

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		batch := buffer
		buffer = make([]*shardquery.Row, 0, chunkSize)
		chunks++
		totalRows += len(batch)
		if err := out.Push(ctx, batch); err != nil {
			return err
		}
		if chunks%logFrequency == 0 {
			zap.S().Infow("streaming executor progress", "province", province, "queryCode", queryCode, "chunks", chunks, "rowsForwarded", totalRows)
		}
		memory.PauseIfNeeded(ctx)
		memory.HintGCIfNeeded(ctx)
		return nil
	}

	var flushErr error
	err := shard.Execute(ctx, queryCode, &streamFilters, func(row *shardquery.Row) (rowErr error) {
		defer func() {
			if r := recover(); r != nil {
				zap.S().Warnw("row transform panicked, row skipped", "province", province, "queryCode", queryCode, "recover", r)
				rowErr = nil
			}
		}()

		transformed := transform(row)
		if transformed == nil {
			return nil
		}
		buffer = append(buffer, RestampRow(transformed, province))
		if len(buffer) >= chunkSize {
			if err := flush(); err != nil {
				flushErr = err
				return err
			}
		}
		return nil
	})
	if flushErr != nil {
		return flushErr
	}
	if err != nil {
		return WrapExecutionError(err, province, queryCode)
	}

	return flush()
}
