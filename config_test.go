package shardquery

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Analysis.MaxSQLLength != 100_000 {
		t.Errorf("expected max sql length 100000, got %d", config.Analysis.MaxSQLLength)
	}
	if config.Memory.CriticalRatio != 0.85 || config.Memory.HighRatio != 0.70 || config.Memory.NormalRatio != 0.50 {
		t.Errorf("unexpected memory ratios: %+v", config.Memory)
	}
	if config.Batch.ParallelPerShard != 50_000 || config.Batch.ParallelTotal != 300_000 {
		t.Errorf("unexpected batch thresholds: %+v", config.Batch)
	}
	if config.Batch.MaxParallelPerGroup != 6 {
		t.Errorf("expected maxParallelPerGroup 6, got %d", config.Batch.MaxParallelPerGroup)
	}
	if config.Streaming.ChunkSize != 1_000 {
		t.Errorf("expected chunk size 1000, got %d", config.Streaming.ChunkSize)
	}
	if config.Memory.PauseDelay != 50*time.Millisecond || config.Memory.GCPauseDelay != 100*time.Millisecond {
		t.Errorf("unexpected memory pause delays: %+v", config.Memory)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("expected default config to validate, got: %v", err)
	}
}

func TestConfigValidationDetailed(t *testing.T) {
	base := func() *Config { return DefaultConfig() }

	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorField  string
	}{
		{name: "valid config", mutate: func(c *Config) {}, expectError: false},
		{
			name:        "memory threshold ordering violated",
			mutate:      func(c *Config) { c.Memory.HighRatio = 0.90 },
			expectError: true,
			errorField:  "memory",
		},
		{
			name:        "batch size zero",
			mutate:      func(c *Config) { c.Batch.DefaultBatchSize = 0 },
			expectError: true,
			errorField:  "batch.defaultBatchSize",
		},
		{
			name:        "agg absolute limit below validation limit",
			mutate:      func(c *Config) { c.Batch.AggAbsoluteLimit = c.Batch.AggValidationLimit - 1 },
			expectError: true,
			errorField:  "batch.aggAbsoluteLimit",
		},
		{
			name:        "chunk size out of bounds",
			mutate:      func(c *Config) { c.Streaming.ChunkSize = c.Streaming.MaxChunkSize + 1 },
			expectError: true,
			errorField:  "streaming.chunkSize",
		},
		{
			name:        "consolidation streaming threshold below memory threshold",
			mutate:      func(c *Config) { c.Consolidation.AggStreamingThreshold = c.Consolidation.AggMemoryThreshold - 1 },
			expectError: true,
			errorField:  "consolidation.aggStreamingThreshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error but got none")
				}
				if cfgErr, ok := err.(*ConfigError); ok {
					if cfgErr.Field != tt.errorField {
						t.Errorf("expected error field %s, got %s", tt.errorField, cfgErr.Field)
					}
				} else {
					t.Errorf("expected *ConfigError, got %T", err)
				}
			} else if err != nil {
				t.Errorf("expected no validation error but got: %v", err)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "test.field", Message: "test message"}
	expected := "config validation error for field 'test.field': test message"
	if err.Error() != expected {
		t.Errorf("expected error message %s, got %s", expected, err.Error())
	}
}
