package internal

import (
	"context"

	"github.com/lychee-technology/shardquery"
)

// countingProcessingContext decorates a ProcessingContext so every pushed
// batch is also tallied into a MetricsCollector, without the executors
// themselves needing to know about metrics.
type countingProcessingContext struct {
	inner    shardquery.ProcessingContext
	metrics  *MetricsCollector
	province string
}

func (c *countingProcessingContext) Push(ctx context.Context, batch []*shardquery.Row) error {
	c.metrics.RecordRows(c.province, int64(len(batch)))
	return c.inner.Push(ctx, batch)
}

func (c *countingProcessingContext) DrainAll(ctx context.Context) error {
	return c.inner.DrainAll(ctx)
}
