package internal

import "testing"

func TestMetricsCollectorRecordRowsAccumulatesPerShardAndTotal(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordRows("buenos_aires", 100)
	m.RecordRows("buenos_aires", 50)
	m.RecordRows("cordoba", 20)

	if m.Total() != 170 {
		t.Errorf("expected total 170, got %d", m.Total())
	}
}

func TestMetricsCollectorRecordRawFallbackIncrementsCounter(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordRawFallback("santa_fe")
	m.RecordRawFallback("chaco")

	if m.RawFallbacks() != 2 {
		t.Errorf("expected 2 raw fallbacks, got %d", m.RawFallbacks())
	}
}

func TestMetricsCollectorRecordDriftIsSeparateFromRawFallback(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordDrift("santa_fe")
	m.RecordDrift("chaco")
	m.RecordRawFallback("cordoba")

	if m.DriftReroutes() != 2 {
		t.Errorf("expected 2 drift reroutes, got %d", m.DriftReroutes())
	}
	if m.RawFallbacks() != 1 {
		t.Errorf("expected 1 raw fallback, got %d", m.RawFallbacks())
	}
}

func TestMetricsCollectorTopShardsOrdersDescending(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordRows("a", 10)
	m.RecordRows("b", 1000)
	m.RecordRows("c", 500)

	top := m.TopShards(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].Province != "b" || top[1].Province != "c" {
		t.Errorf("expected b then c, got %+v", top)
	}
}

func TestMetricsCollectorTopShardsHandlesFewerThanRequested(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordRows("only", 1)

	top := m.TopShards(5)
	if len(top) != 1 {
		t.Errorf("expected 1 entry, got %d", len(top))
	}
}
