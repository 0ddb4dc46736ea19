package internal

import (
	"context"

	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
)

// StandardBatchSize is the fixed offset-page size StandardExecutor uses,
// per spec.md §4.13.
const StandardBatchSize = 10000

// StandardMaxIterations is the safety cap on offset pages before the
// executor gives up and warns, per spec.md §4.13 step 5.
const StandardMaxIterations = 100

// RunStandardExecutor walks shard's query with plain offset pagination,
// forwarding each restamped page to ctx until a short page or the safety cap
// is reached.
func RunStandardExecutor(ctx context.Context, shard shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor, queryCode string, filters *shardquery.FilterParams, maxIterations int) error {
	if maxIterations <= 0 {
		maxIterations = StandardMaxIterations
	}
	offset := 0

	for iteration := 0; iteration < maxIterations; iteration++ {
		page := *filters
		page.ClearCursor()
		page.Limit = StandardBatchSize
		o := offset
		page.Offset = &o

		rows, err := shard.ExecutePage(ctx, queryCode, &page)
		if err != nil {
			return WrapExecutionError(err, shard.Province(), queryCode)
		}

		if len(rows) > 0 {
			batch := make([]*shardquery.Row, len(rows))
			for i, r := range rows {
				batch[i] = RestampRow(r, shard.Province())
			}
			if err := out.Push(ctx, batch); err != nil {
				return err
			}
		}

		if len(rows) < StandardBatchSize {
			return nil
		}

		offset += StandardBatchSize
		memory.PauseIfNeeded(ctx)

		if iteration == maxIterations-1 {
			zap.S().Warnw("standard executor hit iteration safety cap", "province", shard.Province(), "queryCode", queryCode, "iterations", maxIterations)
		}
	}

	return nil
}
