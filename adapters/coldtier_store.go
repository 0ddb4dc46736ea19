package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
	"github.com/lychee-technology/shardquery/internal"
)

// errObjectNotFound marks a download that failed because the object was
// missing, as opposed to a real S3 fault (permissions, network, throttling).
// A missing object is treated as an empty shard, not a query failure.
var errObjectNotFound = errors.New("cold tier object not found")

// parquetSourceToken is the literal substring a cold-tier query's registered
// SQL text uses in place of a table name, e.g.
// "SELECT ... FROM {{PARQUET_SOURCE}} WHERE @dateFrom <= fecha". It names a
// table source, not a bind value, so it is substituted textually before the
// @name rewrite rather than carried as a named parameter.
const parquetSourceToken = "{{PARQUET_SOURCE}}"

// ColdTierShardStore is the archive-tier ShardStore: an in-process DuckDB
// engine querying Parquet files staged down from S3 for a single retired
// province. Staging happens once per store, lazily, on first use.
type ColdTierShardStore struct {
	province string
	bucket   string
	prefix   string
	db       *sql.DB
	s3       *s3.Client
	sql      SQLResolver
	breaker  *internal.CircuitBreaker
	stageDir string

	stageOnce sync.Once
	source    string
	stageErr  error
}

// NewColdTierShardStore builds a ColdTierShardStore for province. db must be
// a database/sql handle opened with the duckdb driver. Parquet objects are
// staged from bucket/prefix into stageDir the first time a query runs.
func NewColdTierShardStore(province, bucket, prefix string, db *sql.DB, s3Client *s3.Client, resolver SQLResolver, breaker *internal.CircuitBreaker, stageDir string) *ColdTierShardStore {
	return &ColdTierShardStore{
		province: province,
		bucket:   bucket,
		prefix:   prefix,
		db:       db,
		s3:       s3Client,
		sql:      resolver,
		breaker:  breaker,
		stageDir: stageDir,
	}
}

func (s *ColdTierShardStore) Province() string { return s.province }

func (s *ColdTierShardStore) ExecutePage(ctx context.Context, queryCode string, filters *shardquery.FilterParams) ([]*shardquery.Row, error) {
	base, err := s.preparedSQL(ctx, queryCode)
	if err != nil {
		return nil, s.wrapError(queryCode, err)
	}

	query, args := rewriteNamedParams(base+" LIMIT @limit OFFSET @offset", namedParamValues(filters), questionMarkPlaceholder)

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

func (s *ColdTierShardStore) Execute(ctx context.Context, queryCode string, filters *shardquery.FilterParams, onRow func(*shardquery.Row) error) error {
	base, err := s.preparedSQL(ctx, queryCode)
	if err != nil {
		return s.wrapError(queryCode, err)
	}

	query, args := rewriteNamedParams(base, namedParamValues(filters), questionMarkPlaceholder)

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

func (s *ColdTierShardStore) CountFrom(ctx context.Context, countSQL string, filters *shardquery.FilterParams) (int64, error) {
	source, err := s.parquetSource(ctx)
	if err != nil {
		return 0, s.wrapError("", err)
	}
	query, args := rewriteNamedParams(strings.ReplaceAll(countSQL, parquetSourceToken, source), namedParamValues(filters), questionMarkPlaceholder)

	var total int64
	err = s.withBreaker(func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	})
	if err != nil {
		return 0, s.wrapError("", err)
	}
	return total, nil
}

// preparedSQL resolves queryCode's registered SQL and substitutes the
// staged Parquet source for parquetSourceToken.
func (s *ColdTierShardStore) preparedSQL(ctx context.Context, queryCode string) (string, error) {
	base, err := s.sql.ResolveSQL(ctx, queryCode)
	if err != nil {
		return "", err
	}
	source, err := s.parquetSource(ctx)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(base, parquetSourceToken, source), nil
}

// parquetSource lists this province's archived objects under bucket/prefix,
// downloads each to stageDir once via an s3 manager.Downloader, and returns
// a DuckDB read_parquet(...) table function call over the staged files.
func (s *ColdTierShardStore) parquetSource(ctx context.Context) (string, error) {
	s.stageOnce.Do(func() {
		s.source, s.stageErr = s.stageParquetFiles(ctx)
	})
	return s.source, s.stageErr
}

func (s *ColdTierShardStore) stageParquetFiles(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.stageDir, 0o755); err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}

	paginator := s3.NewListObjectsV2Paginator(s.s3, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &s.prefix,
	})

	downloader := manager.NewDownloader(s.s3)

	var localPaths []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("list %s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".parquet") {
				continue
			}
			localPath := filepath.Join(s.stageDir, filepath.Base(*obj.Key))
			if err := s.downloadOne(ctx, downloader, localPath, *obj.Key); err != nil {
				if errors.Is(err, errObjectNotFound) {
					zap.S().Warnw("cold tier object disappeared before download", "province", s.province, "bucket", s.bucket, "key", *obj.Key)
					continue
				}
				return "", err
			}
			localPaths = append(localPaths, localPath)
		}
	}

	if len(localPaths) == 0 {
		zap.S().Warnw("cold tier province has no archived parquet files", "province", s.province, "bucket", s.bucket, "prefix", s.prefix)
		return "(SELECT NULL LIMIT 0)", nil
	}

	quoted := make([]string, len(localPaths))
	for i, p := range localPaths {
		quoted[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
	}
	return fmt.Sprintf("read_parquet([%s])", strings.Join(quoted, ", ")), nil
}

func (s *ColdTierShardStore) downloadOne(ctx context.Context, downloader *manager.Downloader, localPath, key string) error {
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return errObjectNotFound
			}
		}
		return fmt.Errorf("download s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *ColdTierShardStore) withBreaker(fn func() error) error {
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

func (s *ColdTierShardStore) wrapError(queryCode string, err error) error {
	if err == nil {
		return nil
	}
	if sqe, ok := err.(*shardquery.ShardQueryError); ok {
		return sqe
	}

	zap.S().Errorw("cold tier shard query failed", "province", s.province, "queryCode", queryCode, "error", err)
	return shardquery.NewShardError("cold tier query failed", err).WithProvince(s.province).WithQueryCode(queryCode)
}
