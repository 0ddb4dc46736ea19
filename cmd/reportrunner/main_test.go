package main

import (
	"context"
	"testing"

	"github.com/lychee-technology/shardquery/factory"
)

func TestWireFilterParamsConvertsRFC3339Dates(t *testing.T) {
	dateFrom := "2024-01-01T00:00:00Z"
	w := wireFilterParams{DateFrom: &dateFrom, Limit: 50, StateIDs: []int{1, 2}}

	f, err := w.toFilterParams()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.DateFrom == nil || f.DateFrom.Year() != 2024 {
		t.Errorf("expected DateFrom to parse to 2024, got %v", f.DateFrom)
	}
	if f.Limit != 50 {
		t.Errorf("expected limit 50, got %d", f.Limit)
	}
	if len(f.StateIDs) != 2 {
		t.Errorf("expected 2 state ids, got %d", len(f.StateIDs))
	}
}

func TestWireFilterParamsRejectsMalformedDate(t *testing.T) {
	bad := "not-a-date"
	w := wireFilterParams{DateFrom: &bad}

	if _, err := w.toFilterParams(); err == nil {
		t.Fatal("expected an error for a malformed date")
	}
}

func TestBuildS3ClientIfNeededSkipsWhenNoColdTierSources(t *testing.T) {
	sources := []factory.ShardSource{
		{Province: "cordoba", Tier: factory.TierLive, DSN: "postgres://x"},
	}
	client, err := buildS3ClientIfNeeded(context.Background(), sources, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Error("expected a nil s3 client when no source uses the cold tier")
	}
}
