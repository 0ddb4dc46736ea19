package shardquery

import "time"

// Config consolidates every tunable of the adaptive execution core.
type Config struct {
	Analysis      AnalysisConfig      `json:"analysis"`
	Consolidation ConsolidationConfig `json:"consolidation"`
	Memory        MemoryConfig        `json:"memory"`
	Batch         BatchConfig         `json:"batch"`
	Streaming     StreamingConfig     `json:"streaming"`
	Registry      RegistryConfig      `json:"registry"`
	Logging       LoggingConfig       `json:"logging"`
	Metrics       MetricsConfig       `json:"metrics"`
}

// AnalysisConfig bounds the SQL static-analysis pass.
type AnalysisConfig struct {
	MaxSQLLength int `json:"maxSqlLength"`
}

// ConsolidationConfig tunes cardinality-based aggregation-kind selection.
type ConsolidationConfig struct {
	AggMemoryThreshold   int64 `json:"aggMemoryThreshold"`
	AggStreamingThreshold int64 `json:"aggStreamingThreshold"`
	CardinalityCap       int64 `json:"cardinalityCap"`
}

// MemoryConfig tunes MemoryMonitor's levels and cooperative backoff.
type MemoryConfig struct {
	CriticalRatio float64       `json:"criticalRatio"`
	HighRatio     float64       `json:"highRatio"`
	NormalRatio   float64       `json:"normalRatio"`
	PauseDelay    time.Duration `json:"pauseDelay"`
	GCPauseDelay  time.Duration `json:"gcPauseDelay"`
	MinBatchSize  int           `json:"minBatchSize"`
	MaxBatchSize  int           `json:"maxBatchSize"`
}

// BatchConfig tunes orchestrator strategy selection and standard/consolidated
// executor batch sizing.
type BatchConfig struct {
	DefaultBatchSize        int   `json:"defaultBatchSize"`
	ParallelPerShard        int64 `json:"parallelPerShard"`
	ParallelTotal           int64 `json:"parallelTotal"`
	MassivePerShard         int64 `json:"massivePerShard"`
	MaxParallelPerGroup     int   `json:"maxParallelPerGroup"`
	StandardMaxIterations   int   `json:"standardMaxIterations"`
	AggValidationLimit      int64 `json:"aggValidationLimit"`
	AggAbsoluteLimit        int64 `json:"aggAbsoluteLimit"`
	AggErrorFactor          int64 `json:"aggErrorFactor"`
}

// StreamingConfig tunes StreamingExecutor's chunking.
type StreamingConfig struct {
	ChunkSize    int `json:"chunkSize"`
	MinChunkSize int `json:"minChunkSize"`
	MaxChunkSize int `json:"maxChunkSize"`
	LogFrequency int `json:"logFrequency"`
}

// RegistryConfig tunes QueryRegistry persistence behaviour.
type RegistryConfig struct {
	ValidateFilterParams bool `json:"validateFilterParams"`
}

// LoggingConfig mirrors the ambient logging knobs a zap-backed service
// typically exposes.
type LoggingConfig struct {
	Level            string `json:"level"`
	Format           string `json:"format"`
	EnableStructured bool   `json:"enableStructured"`
	LogSlowShards    bool   `json:"logSlowShards"`
}

// MetricsConfig tunes MetricsCollector/HeartbeatReporter/ProgressMonitor
// cadence.
type MetricsConfig struct {
	Enabled              bool          `json:"enabled"`
	HeartbeatInterval    time.Duration `json:"heartbeatInterval"`
	ProgressInterval     time.Duration `json:"progressInterval"`
	TopShardsReported    int           `json:"topShardsReported"`
}

// DefaultConfig returns the defaults enumerated in spec.md §6.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			MaxSQLLength: 100_000,
		},
		Consolidation: ConsolidationConfig{
			AggMemoryThreshold:    50_000,
			AggStreamingThreshold: 100_000,
			CardinalityCap:        10_000_000,
		},
		Memory: MemoryConfig{
			CriticalRatio: 0.85,
			HighRatio:     0.70,
			NormalRatio:   0.50,
			PauseDelay:    50 * time.Millisecond,
			GCPauseDelay:  100 * time.Millisecond,
			MinBatchSize:  1_000,
			MaxBatchSize:  10_000,
		},
		Batch: BatchConfig{
			DefaultBatchSize:      10_000,
			ParallelPerShard:      50_000,
			ParallelTotal:         300_000,
			MassivePerShard:       200_000,
			MaxParallelPerGroup:   6,
			StandardMaxIterations: 100,
			AggValidationLimit:    10_000,
			AggAbsoluteLimit:      100_000,
			AggErrorFactor:        10,
		},
		Streaming: StreamingConfig{
			ChunkSize:    1_000,
			MinChunkSize: 100,
			MaxChunkSize: 10_000,
			LogFrequency: 10,
		},
		Registry: RegistryConfig{
			ValidateFilterParams: true,
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "json",
			EnableStructured: true,
			LogSlowShards:    true,
		},
		Metrics: MetricsConfig{
			Enabled:           true,
			HeartbeatInterval: 30 * time.Second,
			ProgressInterval:  3 * time.Second,
			TopShardsReported: 5,
		},
	}
}

// Validate checks the invariants the adaptive core depends on: non-zero
// sizes, sane orderings, and the memory-threshold ordering from spec.md §4.7.
func (c *Config) Validate() error {
	if c.Analysis.MaxSQLLength <= 0 {
		return &ConfigError{Field: "analysis.maxSqlLength", Message: "must be greater than 0"}
	}

	if c.Memory.CriticalRatio <= c.Memory.HighRatio || c.Memory.HighRatio <= c.Memory.NormalRatio {
		return &ConfigError{Field: "memory", Message: "must satisfy criticalRatio > highRatio > normalRatio"}
	}
	if c.Memory.MinBatchSize <= 0 {
		return &ConfigError{Field: "memory.minBatchSize", Message: "must be greater than 0"}
	}
	if c.Memory.MaxBatchSize < c.Memory.MinBatchSize {
		return &ConfigError{Field: "memory.maxBatchSize", Message: "must be greater than or equal to minBatchSize"}
	}

	if c.Batch.DefaultBatchSize <= 0 {
		return &ConfigError{Field: "batch.defaultBatchSize", Message: "must be greater than 0"}
	}
	if c.Batch.MaxParallelPerGroup <= 0 {
		return &ConfigError{Field: "batch.maxParallelPerGroup", Message: "must be greater than 0"}
	}
	if c.Batch.StandardMaxIterations <= 0 {
		return &ConfigError{Field: "batch.standardMaxIterations", Message: "must be greater than 0"}
	}
	if c.Batch.AggAbsoluteLimit < c.Batch.AggValidationLimit {
		return &ConfigError{Field: "batch.aggAbsoluteLimit", Message: "must be greater than or equal to aggValidationLimit"}
	}
	if c.Batch.AggErrorFactor <= 0 {
		return &ConfigError{Field: "batch.aggErrorFactor", Message: "must be greater than 0"}
	}

	if c.Consolidation.AggStreamingThreshold < c.Consolidation.AggMemoryThreshold {
		return &ConfigError{Field: "consolidation.aggStreamingThreshold", Message: "must be greater than or equal to aggMemoryThreshold"}
	}
	if c.Consolidation.CardinalityCap <= 0 {
		return &ConfigError{Field: "consolidation.cardinalityCap", Message: "must be greater than 0"}
	}

	if c.Streaming.ChunkSize <= 0 {
		return &ConfigError{Field: "streaming.chunkSize", Message: "must be greater than 0"}
	}
	if c.Streaming.ChunkSize < c.Streaming.MinChunkSize || c.Streaming.ChunkSize > c.Streaming.MaxChunkSize {
		return &ConfigError{Field: "streaming.chunkSize", Message: "must be within [minChunkSize, maxChunkSize]"}
	}
	if c.Streaming.LogFrequency <= 0 {
		return &ConfigError{Field: "streaming.logFrequency", Message: "must be greater than 0"}
	}

	if c.Metrics.TopShardsReported <= 0 {
		return &ConfigError{Field: "metrics.topShardsReported", Message: "must be greater than 0"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}
