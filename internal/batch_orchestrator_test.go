package internal

import (
	"context"
	"testing"

	"github.com/lychee-technology/shardquery"
)

type fakeOrchestratorRegistry struct {
	query      *shardquery.Query
	metadata   *shardquery.QueryMetadata
	touchCalls int
	updated    map[string]int64
}

func newFakeOrchestratorRegistry(q *shardquery.Query, md *shardquery.QueryMetadata) *fakeOrchestratorRegistry {
	return &fakeOrchestratorRegistry{query: q, metadata: md, updated: make(map[string]int64)}
}

func (r *fakeOrchestratorRegistry) Get(ctx context.Context, code string) (*shardquery.Query, *shardquery.QueryMetadata, error) {
	return r.query, r.metadata, nil
}

func (r *fakeOrchestratorRegistry) Save(ctx context.Context, q *shardquery.Query, md *shardquery.QueryMetadata) error {
	return nil
}

func (r *fakeOrchestratorRegistry) UpdateEstimatedRows(ctx context.Context, code string, estimate int64) error {
	r.updated[code] = estimate
	return nil
}

func (r *fakeOrchestratorRegistry) TouchUsage(ctx context.Context, code string) error {
	r.touchCalls++
	return nil
}

func testBatchConfig() shardquery.BatchConfig {
	return shardquery.BatchConfig{
		ParallelPerShard:      50_000,
		ParallelTotal:         300_000,
		MassivePerShard:       200_000,
		MaxParallelPerGroup:   6,
		StandardMaxIterations: 100,
		AggValidationLimit:    10_000,
		AggAbsoluteLimit:      100_000,
		AggErrorFactor:        10,
	}
}

func TestBatchOrchestratorRunDispatchesParallelForSmallDataset(t *testing.T) {
	query := &shardquery.Query{Code: "Q1", SQL: "SELECT id FROM ventas"}
	md := &shardquery.QueryMetadata{QueryCode: "Q1", PaginationStrategy: shardquery.PaginationKeysetWithID}
	registry := newFakeOrchestratorRegistry(query, md)

	shards := []shardquery.ShardStore{
		&pagedShardStore{province: "cordoba", pages: [][]*shardquery.Row{rowsOfSize(3, "cordoba")}},
		&pagedShardStore{province: "jujuy", pages: [][]*shardquery.Row{rowsOfSize(2, "jujuy")}},
	}
	out := &stubProcessingContext{}

	orch := NewBatchOrchestrator(registry, testBatchConfig(), shardquery.StreamingConfig{ChunkSize: 500, LogFrequency: 10}, shardquery.MetricsConfig{Enabled: false}, 0)

	result, err := orch.Run(context.Background(), "Q1", &shardquery.FilterParams{}, shards, out, testMemoryMonitor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategyParallel {
		t.Errorf("expected PARALLEL for a small dataset, got %s", result.Strategy)
	}
	if out.totalRows() != 5 {
		t.Errorf("expected 3+2=5 rows forwarded, got %d", out.totalRows())
	}
	if registry.touchCalls != 1 {
		t.Errorf("expected exactly one TouchUsage call, got %d", registry.touchCalls)
	}
	if result.Metrics.Total() != 5 {
		t.Errorf("expected metrics to tally 5 rows, got %d", result.Metrics.Total())
	}
}

func TestBatchOrchestratorRunDispatchesSequentialForMassiveShard(t *testing.T) {
	query := &shardquery.Query{Code: "Q1", SQL: "SELECT id FROM ventas"}
	md := &shardquery.QueryMetadata{QueryCode: "Q1", PaginationStrategy: shardquery.PaginationKeysetWithID}
	registry := newFakeOrchestratorRegistry(query, md)

	massive := &pagedShardStore{province: "buenos_aires", pages: [][]*shardquery.Row{rowsOfSize(1, "buenos_aires")}}
	shards := []shardquery.ShardStore{massive}
	out := &stubProcessingContext{}

	// CountFrom always returns 0 in pagedShardStore, so rule out PARALLEL with a
	// zero per-shard threshold (mean 0 is not below 0) and force SEQUENTIAL by
	// dropping the massive threshold below any non-negative count.
	cfg := testBatchConfig()
	cfg.ParallelPerShard = 0
	cfg.MassivePerShard = -1
	orch := NewBatchOrchestrator(registry, cfg, shardquery.StreamingConfig{ChunkSize: 500}, shardquery.MetricsConfig{Enabled: false}, 0)

	result, err := orch.Run(context.Background(), "Q1", &shardquery.FilterParams{}, shards, out, testMemoryMonitor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategySequential {
		t.Errorf("expected SEQUENTIAL when max exceeds the massive-per-shard threshold, got %s", result.Strategy)
	}
}

func TestBatchOrchestratorRunCollectsShardErrorsWithoutFailingTheJob(t *testing.T) {
	query := &shardquery.Query{Code: "Q1", SQL: "SELECT id FROM ventas"}
	md := &shardquery.QueryMetadata{QueryCode: "Q1", PaginationStrategy: shardquery.PaginationKeysetWithID}
	registry := newFakeOrchestratorRegistry(query, md)

	failing := &pagedShardStore{province: "chaco", pageErr: shardquery.NewShardError("boom", nil)}
	healthy := &pagedShardStore{province: "salta", pages: [][]*shardquery.Row{rowsOfSize(4, "salta")}}
	shards := []shardquery.ShardStore{failing, healthy}
	out := &stubProcessingContext{}

	orch := NewBatchOrchestrator(registry, testBatchConfig(), shardquery.StreamingConfig{ChunkSize: 500}, shardquery.MetricsConfig{Enabled: false}, 0)

	result, err := orch.Run(context.Background(), "Q1", &shardquery.FilterParams{}, shards, out, testMemoryMonitor())
	if err != nil {
		t.Fatalf("unexpected top-level error: %v", err)
	}
	if len(result.ShardErrors) != 1 {
		t.Fatalf("expected exactly one recorded shard error, got %d", len(result.ShardErrors))
	}
	if _, ok := result.ShardErrors["chaco"]; !ok {
		t.Error("expected chaco's failure to be recorded by province")
	}
	if out.totalRows() != 4 {
		t.Errorf("expected the healthy shard's 4 rows to still be forwarded, got %d", out.totalRows())
	}
}

func TestBatchOrchestratorRunLogsFinalReportWhenMetricsEnabled(t *testing.T) {
	query := &shardquery.Query{Code: "Q1", SQL: "SELECT id FROM ventas"}
	md := &shardquery.QueryMetadata{QueryCode: "Q1", PaginationStrategy: shardquery.PaginationKeysetWithID}
	registry := newFakeOrchestratorRegistry(query, md)

	shards := []shardquery.ShardStore{
		&pagedShardStore{province: "formosa", pages: [][]*shardquery.Row{rowsOfSize(1, "formosa")}},
	}
	out := &stubProcessingContext{}

	orch := NewBatchOrchestrator(registry, testBatchConfig(), shardquery.StreamingConfig{ChunkSize: 500}, shardquery.MetricsConfig{Enabled: true, HeartbeatInterval: 0}, 0)

	result, err := orch.Run(context.Background(), "Q1", &shardquery.FilterParams{}, shards, out, testMemoryMonitor())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Metrics.Total() != 1 {
		t.Errorf("expected 1 row tallied, got %d", result.Metrics.Total())
	}
}
