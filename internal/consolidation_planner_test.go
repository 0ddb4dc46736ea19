package internal

import (
	"testing"

	"github.com/lychee-technology/shardquery"
)

func TestPlanConsolidationRawWithoutGroupBy(t *testing.T) {
	fields := []AnalysedField{
		{FinalName: "id_infraccion", Kind: shardquery.FieldIdentifier},
		{FinalName: "monto_multa", Kind: shardquery.FieldNumericSum},
	}
	plan := PlanConsolidation(fields, nil, 50_000, 100_000, 10_000_000)
	if plan.Kind != shardquery.ConsolidationRaw {
		t.Fatalf("expected RAW, got %s", plan.Kind)
	}
	if !plan.Consolidable {
		t.Error("expected consolidable due to numeric field")
	}
}

func TestPlanConsolidationAddsImplicitProvincia(t *testing.T) {
	fields := []AnalysedField{
		{FinalName: "total", Kind: shardquery.FieldNumericSum},
	}
	plan := PlanConsolidation(fields, nil, 50_000, 100_000, 10_000_000)
	if len(plan.LocationFields) != 1 || plan.LocationFields[0] != "provincia" {
		t.Errorf("expected implicit provincia location field, got %v", plan.LocationFields)
	}
}

func TestPlanConsolidationAggregationThresholds(t *testing.T) {
	cases := []struct {
		name     string
		groupBy  []string
		expected shardquery.ConsolidationKind
	}{
		{"known small product", []string{"mes"}, shardquery.ConsolidationAggregation},
		{"estimated high-cardinality product", []string{"municipio", "departamento"}, shardquery.ConsolidationAggregationHighVol},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			plan := PlanConsolidation(nil, c.groupBy, 50_000, 100_000, 10_000_000)
			if plan.Kind != c.expected {
				t.Errorf("expected %s, got %s (estimate=%d)", c.expected, plan.Kind, plan.Estimate)
			}
		})
	}
}

func TestPlanConsolidationMonotonicity(t *testing.T) {
	lower := selectAggregationKind(10_000, 50_000, 100_000)
	higher := selectAggregationKind(500_000, 50_000, 100_000)
	if shardquery.ConsolidationRank(higher) < shardquery.ConsolidationRank(lower) {
		t.Errorf("higher estimate %s ranked below lower estimate %s", higher, lower)
	}
}

func TestEstimateGroupCardinalityConfidence(t *testing.T) {
	_, confidence := estimateGroupCardinality([]string{"provincia", "unknown_col"}, 10_000_000)
	if confidence != 0.5 {
		t.Errorf("expected confidence 0.5 for 1 known of 2 columns, got %f", confidence)
	}
}
