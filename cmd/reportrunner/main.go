package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
	"github.com/lychee-technology/shardquery/adapters"
	"github.com/lychee-technology/shardquery/factory"
	"github.com/lychee-technology/shardquery/internal"
)

// Server exposes one HTTP endpoint that triggers a named query's fan-out
// across every configured province and streams the result back as NDJSON.
// Per spec.md §1, general HTTP request/response handling, auth, and routing
// frameworks are out of scope: this is a trigger, not an API surface.
type Server struct {
	orchestrator *internal.BatchOrchestrator
	memory       *internal.MemoryMonitor
	shards       []shardquery.ShardStore
	mux          *http.ServeMux
}

func main() {
	logger := buildLogger(getEnv("LOG_FORMAT", "json"))
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	cfg := shardquery.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		sugar.Fatalf("invalid default config: %v", err)
	}

	ctx := context.Background()

	registryPool, err := pgxpool.New(ctx, getEnv("REGISTRY_DSN", ""))
	if err != nil {
		sugar.Fatalf("failed to connect to the query registry database: %v", err)
	}
	defer registryPool.Close()

	registry := factory.NewRegistry(registryPool, getEnv("REGISTRY_TABLE", "shardquery_queries"))
	resolver := adapters.NewSQLCache(registry)

	sources, err := loadShardSources(getEnv("SHARD_SOURCES_FILE", "shard_sources.json"))
	if err != nil {
		sugar.Fatalf("failed to load shard sources: %v", err)
	}

	s3Client, err := buildS3ClientIfNeeded(ctx, sources, getEnv("AWS_REGION", ""), getEnv("S3_ENDPOINT", ""))
	if err != nil {
		sugar.Fatalf("failed to build s3 client: %v", err)
	}

	stores, err := factory.BuildShardStores(ctx, sources, resolver, s3Client)
	if err != nil {
		sugar.Fatalf("failed to build shard stores: %v", err)
	}

	server := &Server{
		orchestrator: factory.NewOrchestrator(registry, cfg, getEnvInt("MAX_CONCURRENT_SHARDS", 0)),
		memory:       factory.NewMemoryMonitor(cfg.Memory),
		shards:       stores,
		mux:          http.NewServeMux(),
	}
	server.mux.HandleFunc("/api/v1/run", server.handleRun)

	port := getEnv("PORT", "8080")
	sugar.Infow("starting reportrunner", "port", port, "provinces", len(stores))
	if err := http.ListenAndServe(":"+port, server.mux); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

func buildLogger(format string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if format == "console" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func loadShardSources(path string) ([]factory.ShardSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sources []factory.ShardSource
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// buildS3ClientIfNeeded constructs an S3 client only when at least one
// source needs it, so a deployment with no cold-tier provinces never pays
// for (or requires credentials for) an S3 connection.
func buildS3ClientIfNeeded(ctx context.Context, sources []factory.ShardSource, region, endpoint string) (*s3.Client, error) {
	for _, src := range sources {
		if src.Tier == factory.TierCold {
			return factory.NewS3Client(ctx, region, endpoint)
		}
	}
	return nil, nil
}

// runRequest is the NDJSON-trigger request body.
type runRequest struct {
	QueryCode string           `json:"queryCode"`
	Filters   wireFilterParams `json:"filters"`
}

// wireFilterParams mirrors shardquery.FilterParams with JSON-friendly types
// (RFC3339 date strings instead of *time.Time) for the trigger endpoint.
type wireFilterParams struct {
	SpecificDate  *string        `json:"specificDate,omitempty"`
	DateFrom      *string        `json:"dateFrom,omitempty"`
	DateTo        *string        `json:"dateTo,omitempty"`
	StateIDs      []int          `json:"stateIds,omitempty"`
	InfractionIDs []int          `json:"infractionIds,omitempty"`
	ConcessionIDs []int          `json:"concessionIds,omitempty"`
	ExportaSacit  *bool          `json:"exportaSacit,omitempty"`
	Limit         int            `json:"limit,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

func (w wireFilterParams) toFilterParams() (*shardquery.FilterParams, error) {
	f := &shardquery.FilterParams{
		StateIDs:      w.StateIDs,
		InfractionIDs: w.InfractionIDs,
		ConcessionIDs: w.ConcessionIDs,
		ExportaSacit:  w.ExportaSacit,
		Limit:         w.Limit,
		Extra:         w.Extra,
	}
	var err error
	if f.SpecificDate, err = parseOptionalTime(w.SpecificDate); err != nil {
		return nil, err
	}
	if f.DateFrom, err = parseOptionalTime(w.DateFrom); err != nil {
		return nil, err
	}
	if f.DateTo, err = parseOptionalTime(w.DateTo); err != nil {
		return nil, err
	}
	return f, nil
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.QueryCode == "" {
		http.Error(w, "queryCode is required", http.StatusBadRequest)
		return
	}

	filters, err := req.Filters.toFilterParams()
	if err != nil {
		http.Error(w, "invalid filters: "+err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	out := newNDJSONWriter(w)
	result, err := s.orchestrator.Run(r.Context(), req.QueryCode, filters, s.shards, out, s.memory)
	if err != nil {
		zap.S().Errorw("query run failed", "queryCode", req.QueryCode, "error", err)
		return
	}

	zap.S().Infow("query run complete", "queryCode", req.QueryCode, "strategy", result.Strategy, "shardErrors", len(result.ShardErrors))
}
