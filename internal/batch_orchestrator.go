package internal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lychee-technology/shardquery"
)

// BatchOrchestrator is the job-level coordinator: it estimates dataset size,
// picks a Strategy (spec.md §4.11), and dispatches every shard through it.
type BatchOrchestrator struct {
	registry      shardquery.QueryMetadataStore
	batch         shardquery.BatchConfig
	streaming     StreamingConfig
	metricsCfg    shardquery.MetricsConfig
	maxConcurrent int
}

// NewBatchOrchestrator builds an orchestrator over registry, using batch/
// streaming/metrics tuning from Config. maxConcurrent bounds the worker pool
// used by both DatasetEstimator and ParallelStrategy; 0 means unbounded.
func NewBatchOrchestrator(registry shardquery.QueryMetadataStore, batch shardquery.BatchConfig, streaming shardquery.StreamingConfig, metricsCfg shardquery.MetricsConfig, maxConcurrent int) *BatchOrchestrator {
	return &BatchOrchestrator{
		registry:      registry,
		batch:         batch,
		streaming:     StreamingConfig{ChunkSize: streaming.ChunkSize, LogFrequency: streaming.LogFrequency},
		metricsCfg:    metricsCfg,
		maxConcurrent: maxConcurrent,
	}
}

// JobResult is what a completed Run returns: the strategy chosen, the
// accumulated metrics, and any per-shard failures (which never aborted
// their siblings).
type JobResult struct {
	Strategy    Strategy
	Metrics     *MetricsCollector
	ShardErrors map[string]error
}

// Run loads queryCode's Query+QueryMetadata, estimates dataset size across
// shards, picks a strategy, and dispatches every shard through it.
func (o *BatchOrchestrator) Run(ctx context.Context, queryCode string, filters *shardquery.FilterParams, shards []shardquery.ShardStore, out shardquery.ProcessingContext, memory *MemoryMonitor) (*JobResult, error) {
	query, md, err := o.registry.Get(ctx, queryCode)
	if err != nil {
		return nil, err
	}

	if err := o.registry.TouchUsage(ctx, queryCode); err != nil {
		zap.S().Warnw("failed to record query usage", "queryCode", queryCode, "error", err)
	}

	estimate := EstimateDataset(ctx, shards, query.SQL, filters, o.maxConcurrent)
	strategy := DecideStrategy(estimate.Total, estimate.Mean, estimate.Max, o.batch.ParallelPerShard, o.batch.ParallelTotal, o.batch.MassivePerShard)

	provinces := make([]string, len(shards))
	tasks := make([]ShardTask, len(shards))
	for i, s := range shards {
		provinces[i] = s.Province()
		tasks[i] = ShardTask{Shard: s, Filters: filters, EstimatedRows: query.EstimatedRows}
	}

	metrics := NewMetricsCollector()
	zap.S().Infow("batch orchestrator starting", "jobId", metrics.JobID(), "queryCode", queryCode, "strategy", strategy, "estimate", estimate, "shards", len(shards))

	progress := NewProgressMonitor(provinces)
	progress.SetJobID(metrics.JobID())
	shardCfg := ShardExecutorConfig{
		StandardMaxIterations: o.batch.StandardMaxIterations,
		Consolidated: ConsolidatedExecutorConfig{
			ValidationLimit: o.batch.AggValidationLimit,
			AbsoluteLimit:   o.batch.AggAbsoluteLimit,
			ErrorFactor:     o.batch.AggErrorFactor,
		},
		Streaming: o.streaming,
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	if o.metricsCfg.Enabled {
		go o.runHeartbeat(heartbeatCtx, metrics, memory)
	}

	var errs map[string]error
	switch strategy {
	case StrategyParallel:
		errs = RunParallelStrategy(ctx, tasks, out, memory, o.registry, queryCode, md, shardCfg, metrics, progress, o.maxConcurrent)
	case StrategySequential:
		errs = RunSequentialStrategy(ctx, tasks, out, memory, o.registry, queryCode, md, shardCfg, metrics, progress)
	default:
		errs = RunHybridStrategy(ctx, tasks, out, memory, o.registry, queryCode, md, shardCfg, metrics, progress, o.batch.MaxParallelPerGroup)
	}

	_ = out.DrainAll(ctx)

	for province, shardErr := range errs {
		zap.S().Warnw("shard failed for job", "jobId", metrics.JobID(), "province", province, "queryCode", queryCode, "error", shardErr)
	}
	if o.metricsCfg.Enabled {
		metrics.LogFinalReport()
	}

	return &JobResult{Strategy: strategy, Metrics: metrics, ShardErrors: errs}, nil
}

func (o *BatchOrchestrator) runHeartbeat(ctx context.Context, metrics *MetricsCollector, memory *MemoryMonitor) {
	interval := o.metricsCfg.HeartbeatInterval
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	reporter := NewHeartbeatReporter(interval)
	reporter.SetJobID(metrics.JobID())
	ticker := time.NewTicker(interval / 6)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reporter.MaybeEmit(time.Since(start), metrics.Total(), memory.Ratio()*100)
		}
	}
}
