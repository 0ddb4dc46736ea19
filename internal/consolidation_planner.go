package internal

import (
	"strings"

	"github.com/lychee-technology/shardquery"
)

// ConsolidationPlan is the bucketed field analysis plus the decided kind.
type ConsolidationPlan struct {
	Consolidable   bool
	Kind           shardquery.ConsolidationKind
	GroupingFields []string
	NumericFields  []string
	TimeFields     []string
	LocationFields []string
	Estimate       int64
	Confidence     float64
}

// PlanConsolidation buckets classified fields and selects a ConsolidationKind
// per spec.md §4.5. cardinalityCap and thresholds come from Config so callers
// never hard-code defaults here.
func PlanConsolidation(fields []AnalysedField, groupByColumns []string, aggThreshold, streamingThreshold, cardinalityCap int64) ConsolidationPlan {
	plan := ConsolidationPlan{}

	grouping := NewSet[string]()
	for _, g := range groupByColumns {
		grouping.Add(strings.ToLower(strings.TrimSpace(g)))
	}

	for _, f := range fields {
		switch f.Kind {
		case shardquery.FieldNumericSum, shardquery.FieldNumericCount:
			plan.NumericFields = append(plan.NumericFields, f.FinalName)
		case shardquery.FieldTime:
			plan.TimeFields = append(plan.TimeFields, f.FinalName)
		case shardquery.FieldLocation:
			plan.LocationFields = append(plan.LocationFields, f.FinalName)
		}
		if grouping.Contains(strings.ToLower(f.FinalName)) {
			plan.GroupingFields = append(plan.GroupingFields, f.FinalName)
		}
	}

	plan.Consolidable = len(plan.NumericFields) > 0 || len(plan.GroupingFields) > 0
	if plan.Consolidable && len(plan.LocationFields) == 0 {
		plan.LocationFields = append(plan.LocationFields, "provincia")
	}

	if len(groupByColumns) == 0 {
		plan.Kind = shardquery.ConsolidationRaw
		return plan
	}

	plan.Estimate, plan.Confidence = estimateGroupCardinality(groupByColumns, cardinalityCap)
	plan.Kind = selectAggregationKind(plan.Estimate, aggThreshold, streamingThreshold)
	return plan
}

// estimateGroupCardinality multiplies known/estimated per-column
// cardinalities, capped at cardinalityCap, and reports confidence as the
// fraction of columns with a known (not estimated) cardinality.
func estimateGroupCardinality(groupByColumns []string, cardinalityCap int64) (int64, float64) {
	var product int64 = 1
	known := 0
	for _, col := range groupByColumns {
		name := strings.ToLower(strings.TrimSpace(col))
		if v, ok := KnownCardinality(name); ok {
			product *= v
			known++
		} else {
			kind := classifyByName(name)
			product *= EstimateCardinality(kind)
		}
		if product > cardinalityCap {
			product = cardinalityCap
		}
	}
	if len(groupByColumns) == 0 {
		return 0, 1
	}
	return product, float64(known) / float64(len(groupByColumns))
}

// selectAggregationKind implements the monotonic threshold ladder: a larger
// estimate never selects a cheaper kind than a smaller one would.
func selectAggregationKind(est, aggThreshold, streamingThreshold int64) shardquery.ConsolidationKind {
	switch {
	case est < aggThreshold:
		return shardquery.ConsolidationAggregation
	case est < streamingThreshold:
		return shardquery.ConsolidationAggregationStream
	default:
		return shardquery.ConsolidationAggregationHighVol
	}
}
