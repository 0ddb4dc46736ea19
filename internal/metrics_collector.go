package internal

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsCollector accumulates per-shard row counts and the RAW-fallback/
// drift counters for a single orchestrated job. Per spec.md §5, writes are
// atomic add/merge-sum; there is no coordination beyond that. OOM fallback
// and sample-drift reroutes are tracked separately per spec.md §8 scenario 3:
// a consolidated query drifting off its estimate and rerouting to streaming
// is not an OOM event and must not move `rawFallbacks`.
type MetricsCollector struct {
	jobID string

	total         atomic.Int64
	rawFallbacks  atomic.Int64
	driftReroutes atomic.Int64

	mu       sync.Mutex
	perShard map[string]*atomic.Int64
}

// NewMetricsCollector returns an empty collector tagged with a fresh job ID,
// so every log line this job produces can be correlated across shards and
// goroutines.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{jobID: uuid.NewString(), perShard: make(map[string]*atomic.Int64)}
}

// JobID returns the correlation ID generated for this job.
func (m *MetricsCollector) JobID() string {
	return m.jobID
}

func (m *MetricsCollector) counterFor(province string) *atomic.Int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.perShard[province]
	if !ok {
		c = &atomic.Int64{}
		m.perShard[province] = c
	}
	return c
}

// RecordRows adds n rows to province's counter and the job total.
func (m *MetricsCollector) RecordRows(province string, n int64) {
	if n == 0 {
		return
	}
	m.counterFor(province).Add(n)
	m.total.Add(n)
}

// RecordRawFallback increments the "strategy switched to RAW under OOM"
// counter (`cambiosEstrategiaPorOOM`).
func (m *MetricsCollector) RecordRawFallback(province string) {
	m.rawFallbacks.Add(1)
	zap.S().Warnw("shard fell back to RAW strategy under memory pressure", "jobId", m.jobID, "province", province)
}

// RecordDrift increments the "consolidated sample exceeded its estimate and
// rerouted to streaming" counter. This is a separate counter from
// RecordRawFallback: drift is not OOM.
func (m *MetricsCollector) RecordDrift(province string) {
	m.driftReroutes.Add(1)
	zap.S().Warnw("consolidated sample drifted past estimate, rerouting to streaming", "jobId", m.jobID, "province", province)
}

// Total returns the job-wide row count so far.
func (m *MetricsCollector) Total() int64 {
	return m.total.Load()
}

// RawFallbacks returns how many shards have fallen back to RAW under memory
// pressure so far.
func (m *MetricsCollector) RawFallbacks() int64 {
	return m.rawFallbacks.Load()
}

// DriftReroutes returns how many shards have rerouted from consolidated to
// streaming due to sample drift so far.
func (m *MetricsCollector) DriftReroutes() int64 {
	return m.driftReroutes.Load()
}

// ShardVolume is one entry of a top-shards-by-volume ranking.
type ShardVolume struct {
	Province string
	Rows     int64
}

// TopShards returns the n shards with the highest row counts, descending.
func (m *MetricsCollector) TopShards(n int) []ShardVolume {
	m.mu.Lock()
	volumes := make([]ShardVolume, 0, len(m.perShard))
	for province, c := range m.perShard {
		volumes = append(volumes, ShardVolume{Province: province, Rows: c.Load()})
	}
	m.mu.Unlock()

	sort.Slice(volumes, func(i, j int) bool { return volumes[i].Rows > volumes[j].Rows })
	if n >= 0 && len(volumes) > n {
		volumes = volumes[:n]
	}
	return volumes
}

// LogFinalReport emits the job's closing summary: total rows, RAW
// fallbacks, drift reroutes, and the top-5 shards by volume.
func (m *MetricsCollector) LogFinalReport() {
	top := m.TopShards(5)
	zap.S().Infow("job completed", "jobId", m.jobID, "totalRows", m.Total(), "rawFallbacks", m.RawFallbacks(), "driftReroutes", m.DriftReroutes(), "topShards", top)
}
