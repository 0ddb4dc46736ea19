package shardquery

import "context"

// ShardStore is the capability the adaptive execution core requires from a
// single province-scoped shard. Concrete implementations (pgx, database/sql,
// DuckDB/S3) live in the adapters package and are never imported by internal.
type ShardStore interface {
	// Province returns the shard's province identifier, stamped onto every
	// row the shard produces.
	Province() string

	// ExecutePage runs queryCode's SQL with filters applied and returns the
	// page of rows in driver order.
	ExecutePage(ctx context.Context, queryCode string, filters *FilterParams) ([]*Row, error)

	// Execute runs queryCode's SQL and invokes onRow once per row, in driver
	// order, synchronously on the caller's goroutine. onRow returning an
	// error stops iteration and the error is returned to the caller.
	Execute(ctx context.Context, queryCode string, filters *FilterParams, onRow func(*Row) error) error

	// CountFrom executes sql (already rewritten as a COUNT(*) wrapper) with
	// filters applied and returns the scalar count.
	CountFrom(ctx context.Context, sql string, filters *FilterParams) (int64, error)
}

// ProcessingContext is what the core calls to emit output. Implementations
// may apply back-pressure in Push by blocking.
type ProcessingContext interface {
	// Push forwards an immutable batch of rows, in order, to the consumer.
	Push(ctx context.Context, batch []*Row) error

	// DrainAll flushes any consumer-side buffering. The strategies call it
	// after each shard (sequential), after each group (hybrid) or once after
	// all shards (parallel), and the orchestrator calls it once more at the
	// end of the job.
	DrainAll(ctx context.Context) error
}

// QueryMetadataStore is the persistence contract for the query catalogue:
// CRUD over (code -> Query + QueryMetadata), with the self-tuning mutation
// of EstimatedRows as the only permitted post-analysis write.
type QueryMetadataStore interface {
	// Get loads a Query and its QueryMetadata by code.
	Get(ctx context.Context, code string) (*Query, *QueryMetadata, error)

	// Save persists a Query and its QueryMetadata, round-tripping
	// FilterSchema as JSON. Implementations must tolerate a malformed
	// JSON filter schema on load by materialising an empty map.
	Save(ctx context.Context, q *Query, md *QueryMetadata) error

	// UpdateEstimatedRows performs the only permitted post-analysis mutation
	// of QueryMetadata: self-tuning the row estimate. Best effort; the spec
	// accepts last-write-wins under concurrent writers.
	UpdateEstimatedRows(ctx context.Context, code string, estimate int64) error

	// TouchUsage records lastUsed/useCount bookkeeping for a query.
	TouchUsage(ctx context.Context, code string) error
}
