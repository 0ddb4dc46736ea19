package adapters

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
	"github.com/lychee-technology/shardquery/internal"
)

// pgSQLStateOutOfMemory is Postgres's SQLSTATE for "out_of_memory" (53200),
// the platform OOM signal spec.md §4.12 requires a ShardStore to rethrow as
// a MemoryExhaustion error rather than a generic ShardError.
const pgSQLStateOutOfMemory = "53200"

// pgxQuerier is the narrow slice of *pgxpool.Pool this adapter needs, so
// tests can supply a fake instead of a live connection pool.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresShardStore is the live-tier ShardStore: a pgx connection pool
// against a single province's current Postgres database. Named parameters
// in registered SQL text (`@dateFrom`, `@stateIds`, ...) are bound with
// pgx.NamedArgs, pgx v5's native support for the syntax — no rewrite needed.
type PostgresShardStore struct {
	province string
	pool     pgxQuerier
	sql      SQLResolver
	breaker  *internal.CircuitBreaker
}

// NewPostgresShardStore builds a PostgresShardStore for province, backed by
// pool and resolving query codes via sql. breaker may be nil to disable
// circuit breaking for this shard.
func NewPostgresShardStore(province string, pool *pgxpool.Pool, sql SQLResolver, breaker *internal.CircuitBreaker) *PostgresShardStore {
	return &PostgresShardStore{province: province, pool: pool, sql: sql, breaker: breaker}
}

func (s *PostgresShardStore) Province() string { return s.province }

func (s *PostgresShardStore) ExecutePage(ctx context.Context, queryCode string, filters *shardquery.FilterParams) ([]*shardquery.Row, error) {
	base, err := s.sql.ResolveSQL(ctx, queryCode)
	if err != nil {
		return nil, s.wrapError(queryCode, err)
	}

	query := base + " LIMIT @limit OFFSET @offset"
	args := pgx.NamedArgs(namedParamValues(filters))

	var rows pgx.Rows
	err = s.withBreaker(func() error {
		var qerr error
		rows, qerr = s.pool.Query(ctx, query, args)
		return qerr
	})
	if err != nil {
		return nil, s.wrapError(queryCode, err)
	}
	defer rows.Close()

	out, err := scanPgxRows(rows)
	if err != nil {
		return nil, s.wrapError(queryCode, err)
	}
	return out, nil
}

func (s *PostgresShardStore) Execute(ctx context.Context, queryCode string, filters *shardquery.FilterParams, onRow func(*shardquery.Row) error) error {
	base, err := s.sql.ResolveSQL(ctx, queryCode)
	if err != nil {
		return s.wrapError(queryCode, err)
	}

	args := pgx.NamedArgs(namedParamValues(filters))

	var rows pgx.Rows
	err = s.withBreaker(func() error {
		var qerr error
		rows, qerr = s.pool.Query(ctx, base, args)
		return qerr
	})
	if err != nil {
		return s.wrapError(queryCode, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return s.wrapError(queryCode, err)
		}
		row := shardquery.NewRow()
		for i, fd := range fields {
			row.Set(string(fd.Name), vals[i])
		}
		if err := onRow(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return s.wrapError(queryCode, err)
	}
	return nil
}

func (s *PostgresShardStore) CountFrom(ctx context.Context, sql string, filters *shardquery.FilterParams) (int64, error) {
	args := pgx.NamedArgs(namedParamValues(filters))

	var total int64
	err := s.withBreaker(func() error {
		return s.pool.QueryRow(ctx, sql, args).Scan(&total)
	})
	if err != nil {
		return 0, s.wrapError("", err)
	}
	return total, nil
}

// scanPgxRows drains rows into Row values, preserving the driver's column
// order via FieldDescriptions.
func scanPgxRows(rows pgx.Rows) ([]*shardquery.Row, error) {
	fields := rows.FieldDescriptions()
	var out []*shardquery.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := shardquery.NewRow()
		for i, fd := range fields {
			row.Set(string(fd.Name), vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// withBreaker short-circuits on an open breaker, otherwise runs fn and
// records the outcome.
func (s *PostgresShardStore) withBreaker(fn func() error) error {
	if s.breaker != nil && s.breaker.IsOpen() {
		err := &shardquery.ShardQueryError{
			Type:     shardquery.ErrorTypeShard,
			Code:     shardquery.ErrCodeShardCircuitOpen,
			Message:  "circuit open for province " + s.province,
			Province: s.province,
		}
		return err
	}

	err := fn()
	if s.breaker != nil {
		if err != nil {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
	}
	return err
}

// wrapError classifies a raw driver error per spec.md §4.12: a Postgres
// out_of_memory SQLSTATE becomes a MemoryExhaustion error, everything else a
// ShardError. Already-typed ShardQueryErrors (the circuit-open case above)
// pass through unchanged.
func (s *PostgresShardStore) wrapError(queryCode string, err error) error {
	var sqe *shardquery.ShardQueryError
	if errors.As(err, &sqe) {
		return sqe
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgSQLStateOutOfMemory {
		return shardquery.NewMemoryExhaustionError("postgres reported out of memory", err).
			WithProvince(s.province).WithQueryCode(queryCode)
	}

	zap.S().Errorw("postgres shard query failed", "province", s.province, "queryCode", queryCode, "error", err)
	return shardquery.NewShardError("postgres query failed", err).WithProvince(s.province).WithQueryCode(queryCode)
}
