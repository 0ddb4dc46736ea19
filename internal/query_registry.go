package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
)

// pgxQuerier is the narrow slice of *pgxpool.Pool this registry needs,
// satisfied by both a real pool and pgxmock's mocked pool in tests.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// QueryRegistry is the pgx-backed QueryMetadataStore. It owns the
// (code -> Query + QueryMetadata + filterSchema) table, round-tripping
// filterSchema through a JSON column.
type QueryRegistry struct {
	pool    pgxQuerier
	table   string
	nowFunc func() time.Time
}

// NewQueryRegistry returns a registry backed by pool, storing rows in table
// (defaulting to "shardquery_queries" when table is empty).
func NewQueryRegistry(pool pgxQuerier, table string) *QueryRegistry {
	if table == "" {
		table = "shardquery_queries"
	}
	return &QueryRegistry{pool: pool, table: table, nowFunc: time.Now}
}

var registrySchemaValidator = buildRegistrySchemaValidator()

func buildRegistrySchemaValidator() *jsonschema.Resolved {
	raw := map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"type": "object",
		},
	}
	schemaBytes, err := json.Marshal(raw)
	if err != nil {
		panic(fmt.Sprintf("build registry schema validator: %v", err))
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaBytes, &schema); err != nil {
		panic(fmt.Sprintf("unmarshal registry schema validator: %v", err))
	}
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		panic(fmt.Sprintf("resolve registry schema validator: %v", err))
	}
	return resolved
}

// Get loads a Query and its QueryMetadata by code. pgx.ErrNoRows surfaces as
// a ShardQueryError of type InvalidInput so callers can distinguish "not
// registered" from a transport failure.
func (r *QueryRegistry) Get(ctx context.Context, code string) (*shardquery.Query, *shardquery.QueryMetadata, error) {
	query := fmt.Sprintf(`
		SELECT code, sql, category, created_at, updated_at, version, active,
		       estimated_rows, max_limit, timeout_secs, status, tags,
		       last_used, use_count, metadata_json, filter_schema_json
		FROM %s WHERE code = $1`, SanitizeIdentifier(r.table))

	row := r.pool.QueryRow(ctx, query, code)

	var (
		q                              shardquery.Query
		estimatedRows                  *int64
		lastUsed                       *time.Time
		metadataJSON, filterSchemaJSON []byte
	)

	if err := row.Scan(
		&q.Code, &q.SQL, &q.Category, &q.CreatedAt, &q.UpdatedAt, &q.Version, &q.Active,
		&estimatedRows, &q.MaxLimit, &q.TimeoutSecs, &q.Status, &q.Tags,
		&lastUsed, &q.UseCount, &metadataJSON, &filterSchemaJSON,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, shardquery.NewInvalidInputError("QUERY_NOT_FOUND", fmt.Sprintf("no registered query with code %q", code)).WithQueryCode(code)
		}
		return nil, nil, shardquery.NewShardError("select registered query", err).WithQueryCode(code)
	}

	q.EstimatedRows = estimatedRows
	q.LastUsed = lastUsed

	md, err := decodeQueryMetadata(code, metadataJSON, filterSchemaJSON)
	if err != nil {
		return nil, nil, err
	}

	return &q, md, nil
}

// decodeQueryMetadata tolerates malformed JSON in filterSchemaJSON by
// materialising an empty map and continuing, per spec.md §4.6.
func decodeQueryMetadata(code string, metadataJSON, filterSchemaJSON []byte) (*shardquery.QueryMetadata, error) {
	md := &shardquery.QueryMetadata{QueryCode: code, FilterSchema: make(map[string]shardquery.FilterSpec)}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, md); err != nil {
			return nil, shardquery.NewShardError("decode query metadata", err).WithQueryCode(code)
		}
	}

	if len(filterSchemaJSON) > 0 {
		var schema map[string]shardquery.FilterSpec
		if err := json.Unmarshal(filterSchemaJSON, &schema); err != nil {
			zap.S().Warnw("malformed filter schema JSON, using empty schema", "code", code, "error", err)
			schema = make(map[string]shardquery.FilterSpec)
		}
		md.FilterSchema = schema
	}

	return md, nil
}

// Save persists q and md, round-tripping FilterSchema through JSON with
// jsonschema-go validation. If md.EstimatedRows-equivalent (Query.EstimatedRows)
// is nil on q, it is left null; self-tuning executors are the only permitted
// post-analysis mutation of that field.
func (r *QueryRegistry) Save(ctx context.Context, q *shardquery.Query, md *shardquery.QueryMetadata) error {
	if q == nil {
		return shardquery.NewInvalidInputError("NIL_QUERY", "query cannot be nil")
	}

	metadataJSON, err := json.Marshal(md)
	if err != nil {
		return shardquery.NewShardError("marshal query metadata", err).WithQueryCode(q.Code)
	}

	filterSchema := md.FilterSchema
	if filterSchema == nil {
		filterSchema = make(map[string]shardquery.FilterSpec)
	}
	filterSchemaJSON, err := json.Marshal(filterSchema)
	if err != nil {
		return shardquery.NewShardError("marshal filter schema", err).WithQueryCode(q.Code)
	}
	if err := registrySchemaValidator.Validate(filterSchemaAsAny(filterSchema)); err != nil {
		return shardquery.NewInvalidInputError("INVALID_FILTER_SCHEMA", err.Error()).WithQueryCode(q.Code)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (code, sql, category, created_at, updated_at, version, active,
		                 estimated_rows, max_limit, timeout_secs, status, tags,
		                 last_used, use_count, metadata_json, filter_schema_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (code) DO UPDATE SET
			sql = EXCLUDED.sql, category = EXCLUDED.category, updated_at = EXCLUDED.updated_at,
			version = EXCLUDED.version, active = EXCLUDED.active, max_limit = EXCLUDED.max_limit,
			timeout_secs = EXCLUDED.timeout_secs, status = EXCLUDED.status, tags = EXCLUDED.tags,
			metadata_json = EXCLUDED.metadata_json, filter_schema_json = EXCLUDED.filter_schema_json`,
		SanitizeIdentifier(r.table))

	zap.S().Debugw("save registered query", "code", q.Code, "status", q.Status)

	_, err = r.pool.Exec(ctx, stmt,
		q.Code, q.SQL, q.Category, q.CreatedAt, q.UpdatedAt, q.Version, q.Active,
		q.EstimatedRows, q.MaxLimit, q.TimeoutSecs, q.Status, q.Tags,
		q.LastUsed, q.UseCount, metadataJSON, filterSchemaJSON,
	)
	if err != nil {
		return shardquery.NewShardError("persist registered query", err).WithQueryCode(q.Code)
	}
	return nil
}

// UpdateEstimatedRows performs the only permitted post-analysis mutation:
// an executor's self-tuned row-count estimate.
func (r *QueryRegistry) UpdateEstimatedRows(ctx context.Context, code string, estimated int64) error {
	stmt := fmt.Sprintf(`UPDATE %s SET estimated_rows = $1 WHERE code = $2`, SanitizeIdentifier(r.table))
	tag, err := r.pool.Exec(ctx, stmt, estimated, code)
	if err != nil {
		return shardquery.NewShardError("update estimated rows", err).WithQueryCode(code)
	}
	if tag.RowsAffected() == 0 {
		return shardquery.NewInvalidInputError("QUERY_NOT_FOUND", fmt.Sprintf("no registered query with code %q", code)).WithQueryCode(code)
	}
	return nil
}

// TouchUsage bumps use_count and last_used on each fan-out dispatch.
func (r *QueryRegistry) TouchUsage(ctx context.Context, code string) error {
	stmt := fmt.Sprintf(`UPDATE %s SET use_count = use_count + 1, last_used = $1 WHERE code = $2`, SanitizeIdentifier(r.table))
	_, err := r.pool.Exec(ctx, stmt, r.nowFunc(), code)
	if err != nil {
		return shardquery.NewShardError("touch query usage", err).WithQueryCode(code)
	}
	return nil
}

func filterSchemaAsAny(schema map[string]shardquery.FilterSpec) any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	return out
}
