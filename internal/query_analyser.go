package internal

import (
	"regexp"
	"strings"

	"github.com/lychee-technology/shardquery"
)

var reAggregateAny = regexp.MustCompile(`(?i)\b(SUM|COUNT|AVG|MIN|MAX)\s*\(`)

// QueryAnalysisConfig is the subset of shardquery.Config AnalyseQuery needs.
type QueryAnalysisConfig struct {
	MaxSQLLength          int
	AggMemoryThreshold    int64
	AggStreamingThreshold int64
	CardinalityCap        int64
}

// AnalyseQuery runs the lexer, classifier, filter detector, and the two
// planners in sequence, assembling the persisted QueryMetadata. It is the
// pure decision function every registered Query passes through once, on
// registration or re-analysis.
func AnalyseQuery(sql string, cfg QueryAnalysisConfig) (*shardquery.QueryMetadata, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, shardquery.NewInvalidInputError(shardquery.ErrCodeEmptySQL, "registered SQL must not be empty")
	}
	if len(sql) > cfg.MaxSQLLength {
		return nil, shardquery.NewInvalidInputError(shardquery.ErrCodeSQLTooLong, "registered SQL exceeds the configured maximum length")
	}

	cleanSQL := Clean(sql)
	if !reSelectKw.MatchString(cleanSQL) || !reFromKw.MatchString(cleanSQL) {
		return nil, shardquery.NewInvalidInputError(shardquery.ErrCodeMissingSelectFrom, "registered SQL must contain a SELECT ... FROM clause")
	}
	protectedSQL, table, err := Protect(cleanSQL)
	if err != nil {
		return nil, err
	}

	selectClause := SelectClause(protectedSQL)
	whereClause := WhereClause(protectedSQL)
	groupByRaw := GroupByFields(protectedSQL)

	fieldExprs := SplitFieldsSmart(selectClause)
	fields := make([]AnalysedField, 0, len(fieldExprs))
	for _, expr := range fieldExprs {
		restored := Restore(expr, table)
		fields = append(fields, ClassifyField(restored))
	}

	groupByFields := make([]string, 0, len(groupByRaw))
	for _, g := range groupByRaw {
		groupByFields = append(groupByFields, Restore(strings.TrimSpace(g), table))
	}

	filters := DetectFilters(Restore(whereClause, table))

	hasGroupBy := len(groupByFields) > 0
	hasAggregate := reAggregateAny.MatchString(selectClause)

	paginationPlan := PlanPagination(Restore(cleanSQL, table), hasGroupBy, hasAggregate, groupByFields)
	consolidationPlan := PlanConsolidation(fields, groupByFields, cfg.AggMemoryThreshold, cfg.AggStreamingThreshold, cfg.CardinalityCap)

	md := &shardquery.QueryMetadata{
		Consolidable:       consolidationPlan.Consolidable,
		ConsolidationKind:  consolidationPlan.Kind,
		PaginationStrategy: paginationPlan.Strategy,
		GroupingFields:     consolidationPlan.GroupingFields,
		NumericFields:      consolidationPlan.NumericFields,
		TimeFields:         consolidationPlan.TimeFields,
		LocationFields:     consolidationPlan.LocationFields,
		KeysetFields:       paginationPlan.KeysetFields,
		IDColumn:           paginationPlan.IDColumn,
		FilterSchema:       make(map[string]shardquery.FilterSpec, len(filters)),
	}
	for _, f := range filters {
		md.FilterSchema[f.SQLColumn] = f
	}

	return md, nil
}
