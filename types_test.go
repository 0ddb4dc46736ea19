package shardquery

import "testing"

func TestRowPreservesInsertionOrder(t *testing.T) {
	r := NewRow()
	r.Set("provincia", "cordoba")
	r.Set("id", 42)
	r.Set("fecha_infraccion", "2024-01-01")

	keys := r.Keys()
	want := []string{"provincia", "id", "fecha_infraccion"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: expected %s, got %s", i, want[i], keys[i])
		}
	}
}

func TestRowSetOverwriteKeepsOrder(t *testing.T) {
	r := NewRow()
	r.Set("a", 1)
	r.Set("b", 2)
	r.Set("a", 99)

	if v, _ := r.Get("a"); v != 99 {
		t.Errorf("expected overwritten value 99, got %v", v)
	}
	want := []string{"a", "b"}
	got := r.Keys()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected order %v, got %v", want, got)
		}
	}
}

func TestRowDeletePreservesRemainingOrder(t *testing.T) {
	r := NewRow()
	r.Set("a", 1)
	r.Set("row_id", 2)
	r.Set("b", 3)
	r.Delete("row_id")

	want := []string{"a", "b"}
	got := r.Keys()
	if len(got) != 2 {
		t.Fatalf("expected 2 keys after delete, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected order %v, got %v", want, got)
		}
	}
	if _, ok := r.Get("row_id"); ok {
		t.Error("expected row_id to be gone")
	}
}

func TestRowClone(t *testing.T) {
	r := NewRow()
	r.Set("a", 1)
	clone := r.Clone()
	clone.Set("b", 2)

	if r.Len() != 1 {
		t.Errorf("expected original row untouched, got len %d", r.Len())
	}
	if clone.Len() != 2 {
		t.Errorf("expected clone to have 2 keys, got %d", clone.Len())
	}
}

func TestIsStandardCursorTuple(t *testing.T) {
	if !IsStandard([]any{int64(5), "serie", "lugar"}) {
		t.Error("expected integer-first tuple to be standard")
	}
	if IsStandard([]any{"text", "serie"}) {
		t.Error("expected text-first tuple to not be standard")
	}
	if IsStandard(nil) {
		t.Error("expected empty tuple to not be standard")
	}
}

func TestConsolidationRankMonotonicity(t *testing.T) {
	if !(ConsolidationRank(ConsolidationAggregation) < ConsolidationRank(ConsolidationAggregationStream)) {
		t.Error("expected AGGREGATION < AGGREGATION_STREAMING")
	}
	if !(ConsolidationRank(ConsolidationAggregationStream) < ConsolidationRank(ConsolidationAggregationHighVol)) {
		t.Error("expected AGGREGATION_STREAMING < AGGREGATION_HIGH_VOLUME")
	}
}

func TestFilterParamsClearCursor(t *testing.T) {
	offset := 10
	lastID := int64(5)
	lastSerie := "s1"
	lastPlace := "p1"
	fp := &FilterParams{
		Offset:          &offset,
		LastID:          &lastID,
		LastSerie:       &lastSerie,
		LastPlace:       &lastPlace,
		ConsolidatedKey: map[string]any{"campo_0": "x"},
	}
	fp.ClearCursor()
	if fp.Offset != nil || fp.LastID != nil || fp.LastSerie != nil || fp.LastPlace != nil || fp.ConsolidatedKey != nil {
		t.Error("expected ClearCursor to nil out every cursor field")
	}
}
