package adapters

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
	"github.com/lychee-technology/shardquery/internal"
)

// dollarPlaceholder renders Postgres's $N positional placeholder syntax,
// used by lib/pq since database/sql gives it no named-parameter support.
func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// LegacyShardStore is the legacy-tier ShardStore: database/sql against a
// province database still running behind lib/pq rather than pgx. Registered
// SQL text's `@name` tokens are rewritten to `$N` placeholders before
// execution.
type LegacyShardStore struct {
	province string
	db       *sql.DB
	sql      SQLResolver
	breaker  *internal.CircuitBreaker
}

// NewLegacyShardStore builds a LegacyShardStore for province, backed by db
// and resolving query codes via resolver. breaker may be nil.
func NewLegacyShardStore(province string, db *sql.DB, resolver SQLResolver, breaker *internal.CircuitBreaker) *LegacyShardStore {
	return &LegacyShardStore{province: province, db: db, sql: resolver, breaker: breaker}
}

func (s *LegacyShardStore) Province() string { return s.province }

func (s *LegacyShardStore) ExecutePage(ctx context.Context, queryCode string, filters *shardquery.FilterParams) ([]*shardquery.Row, error) {
	base, err := s.sql.ResolveSQL(ctx, queryCode)
	if err != nil {
		return nil, s.wrapError(queryCode, err)
	}

	query, args := rewriteNamedParams(base+" LIMIT @limit OFFSET @offset", namedParamValues(filters), dollarPlaceholder)

	var rows *sql.Rows
	err = s.withBreaker(func() error {
		var qerr error
		rows, qerr = s.db.QueryContext(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return nil, s.wrapError(queryCode, err)
	}
	defer rows.Close()

	out, err := scanSQLRows(rows)
	if err != nil {
		return nil, s.wrapError(queryCode, err)
	}
	return out, nil
}

func (s *LegacyShardStore) Execute(ctx context.Context, queryCode string, filters *shardquery.FilterParams, onRow func(*shardquery.Row) error) error {
	base, err := s.sql.ResolveSQL(ctx, queryCode)
	if err != nil {
		return s.wrapError(queryCode, err)
	}

	query, args := rewriteNamedParams(base, namedParamValues(filters), dollarPlaceholder)

	var rows *sql.Rows
	err = s.withBreaker(func() error {
		var qerr error
		rows, qerr = s.db.QueryContext(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return s.wrapError(queryCode, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return s.wrapError(queryCode, err)
	}
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		values := make([]any, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return s.wrapError(queryCode, err)
		}
		row := shardquery.NewRow()
		for i, col := range cols {
			row.Set(col, values[i])
		}
		if err := onRow(row); err != nil {
			return err
		}
	}
	return s.wrapError(queryCode, rows.Err())
}

func (s *LegacyShardStore) CountFrom(ctx context.Context, countSQL string, filters *shardquery.FilterParams) (int64, error) {
	query, args := rewriteNamedParams(countSQL, namedParamValues(filters), dollarPlaceholder)

	var total int64
	err := s.withBreaker(func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	})
	if err != nil {
		return 0, s.wrapError("", err)
	}
	return total, nil
}

func (s *LegacyShardStore) withBreaker(fn func() error) error {
	if s.breaker != nil && s.breaker.IsOpen() {
		return &shardquery.ShardQueryError{
			Type:     shardquery.ErrorTypeShard,
			Code:     shardquery.ErrCodeShardCircuitOpen,
			Message:  "circuit open for province " + s.province,
			Province: s.province,
		}
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

func (s *LegacyShardStore) wrapError(queryCode string, err error) error {
	if err == nil {
		return nil
	}
	if sqe, ok := err.(*shardquery.ShardQueryError); ok {
		return sqe
	}

	zap.S().Errorw("legacy shard query failed", "province", s.province, "queryCode", queryCode, "error", err)
	return shardquery.NewShardError("legacy query failed", err).WithProvince(s.province).WithQueryCode(queryCode)
}
