package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lychee-technology/shardquery"
)

// EstimateDataset fans a COUNT(*) wrapper of registeredSQL out across shards
// concurrently. Per spec.md §4.10, any shard-level error counts as 0 for that
// shard rather than failing the whole estimate — every shard's goroutine
// always returns nil to its errgroup, so a single slow or erroring shard
// never cancels its siblings.
func EstimateDataset(ctx context.Context, shards []shardquery.ShardStore, registeredSQL string, filters *shardquery.FilterParams, maxConcurrent int) shardquery.EstimationResult {
	wrapped := WrapCountQuery(registeredSQL)

	counts := make([]int64, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}

	var mu sync.Mutex
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			n, err := shard.CountFrom(gctx, wrapped, filters)
			if err != nil {
				mu.Lock()
				counts[i] = 0
				mu.Unlock()
				return nil
			}
			mu.Lock()
			counts[i] = n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return aggregateCounts(counts)
}

func aggregateCounts(counts []int64) shardquery.EstimationResult {
	var total, max int64
	for _, c := range counts {
		total += c
		if c > max {
			max = c
		}
	}
	var mean int64
	if len(counts) > 0 {
		mean = total / int64(len(counts))
	}
	return shardquery.EstimationResult{Total: total, Mean: mean, Max: max}
}

// WrapCountQuery strips a trailing ';' and any top-level ORDER BY/LIMIT/
// OFFSET from sql, then wraps the remainder as a COUNT(*) subquery.
func WrapCountQuery(sql string) string {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	inner = StripOrderLimitOffset(inner)
	return fmt.Sprintf("SELECT COUNT(*) AS total FROM (%s) AS conteo_wrapper", inner)
}
