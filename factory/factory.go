// Package factory wires Config, a QueryMetadataStore, and per-province
// ShardStore adapters into a ready-to-run BatchOrchestrator. Grounded on
// forma/factory/factory.go's "verify connectivity, load what's needed,
// construct the top-level object" shape.
package factory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
	"github.com/lychee-technology/shardquery/adapters"
	"github.com/lychee-technology/shardquery/internal"
)

// Tier identifies which adapter a province's ShardStore is built from.
type Tier string

const (
	TierLive   Tier = "live"
	TierLegacy Tier = "legacy"
	TierCold   Tier = "cold"
)

// ShardSource describes how to reach a single province's data, independent
// of which tier it lives on.
type ShardSource struct {
	Province string `json:"province"`
	Tier     Tier   `json:"tier"`

	// Live/legacy: a standard Postgres connection string.
	DSN string `json:"dsn,omitempty"`

	// Cold: S3 location of the province's archived Parquet files, staged to
	// a local directory before DuckDB queries them.
	ColdBucket   string `json:"coldBucket,omitempty"`
	ColdPrefix   string `json:"coldPrefix,omitempty"`
	ColdStageDir string `json:"coldStageDir,omitempty"`
}

// Circuit breaker tuning is a factory-level constant, not part of Config:
// it's an adapter concern (per-dependency protection against one flaky
// shard), not a tunable of the adaptive execution core that Config
// otherwise consolidates.
const (
	defaultCircuitThreshold = 5
	defaultCircuitWindow    = 30 * time.Second
	defaultCircuitOpen      = 15 * time.Second
)

// NewRegistry returns a QueryRegistry backed by pool, storing rows in table.
func NewRegistry(pool *pgxpool.Pool, table string) *internal.QueryRegistry {
	return internal.NewQueryRegistry(pool, table)
}

// NewOrchestrator assembles a BatchOrchestrator from cfg and registry.
// maxConcurrent bounds the orchestrator's own shard-level fan-out; 0 means
// unbounded.
func NewOrchestrator(registry shardquery.QueryMetadataStore, cfg *shardquery.Config, maxConcurrent int) *internal.BatchOrchestrator {
	return internal.NewBatchOrchestrator(registry, cfg.Batch, cfg.Streaming, cfg.Metrics, maxConcurrent)
}

// NewMemoryMonitor builds the MemoryMonitor shared across one orchestrated
// job, per cfg.Memory.
func NewMemoryMonitor(cfg shardquery.MemoryConfig) *internal.MemoryMonitor {
	return internal.NewMemoryMonitor(cfg.CriticalRatio, cfg.HighRatio, cfg.NormalRatio, cfg.PauseDelay, cfg.GCPauseDelay, cfg.MinBatchSize, cfg.MaxBatchSize)
}

// NewS3Client builds an aws-sdk-go-v2 S3 client from the standard
// environment/shared-config credential chain, optionally overriding the
// endpoint (for S3-compatible stores such as MinIO in local/test setups).
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// BuildShardStores connects every source in order, building the
// corresponding ShardStore adapter, and returns them ready to hand to
// BatchOrchestrator.Run. resolver resolves a registered query code to its
// SQL text, shared across every adapter since the query catalogue is
// province-independent. s3Client is required only when at least one source
// is TierCold.
func BuildShardStores(ctx context.Context, sources []ShardSource, resolver adapters.SQLResolver, s3Client *s3.Client) ([]shardquery.ShardStore, error) {
	stores := make([]shardquery.ShardStore, 0, len(sources))
	for _, src := range sources {
		zap.S().Infow("wiring shard store", "province", src.Province, "tier", src.Tier)

		store, err := buildOne(ctx, src, resolver, s3Client)
		if err != nil {
			return nil, fmt.Errorf("build shard store for province %s: %w", src.Province, err)
		}
		stores = append(stores, store)
	}
	return stores, nil
}

func buildOne(ctx context.Context, src ShardSource, resolver adapters.SQLResolver, s3Client *s3.Client) (shardquery.ShardStore, error) {
	breaker := internal.NewCircuitBreaker(defaultCircuitThreshold, defaultCircuitWindow, defaultCircuitOpen)

	switch src.Tier {
	case TierLive:
		pool, err := pgxpool.New(ctx, src.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect live postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping live postgres: %w", err)
		}
		return adapters.NewPostgresShardStore(src.Province, pool, resolver, breaker), nil

	case TierLegacy:
		db, err := sql.Open("postgres", src.DSN)
		if err != nil {
			return nil, fmt.Errorf("open legacy postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping legacy postgres: %w", err)
		}
		return adapters.NewLegacyShardStore(src.Province, db, resolver, breaker), nil

	case TierCold:
		if s3Client == nil {
			return nil, fmt.Errorf("cold tier province %s requires an s3 client", src.Province)
		}
		db, err := sql.Open("duckdb", "")
		if err != nil {
			return nil, fmt.Errorf("open duckdb: %w", err)
		}
		db.SetMaxOpenConns(1)
		stageDir := src.ColdStageDir
		if stageDir == "" {
			stageDir = fmt.Sprintf("/tmp/shardquery-coldtier/%s", src.Province)
		}
		return adapters.NewColdTierShardStore(src.Province, src.ColdBucket, src.ColdPrefix, db, s3Client, resolver, breaker, stageDir), nil

	default:
		return nil, fmt.Errorf("unknown tier %q for province %s", src.Tier, src.Province)
	}
}
