package internal

import (
	"regexp"
	"strings"

	"github.com/lychee-technology/shardquery"
)

var reIDColumn = regexp.MustCompile(`(?i)\b(i|infracciones)\.id\b(\s+AS\s+"?([a-zA-Z_][a-zA-Z0-9_]*)"?)?`)

// candidateKeysetColumns is the fixed, ordered list PaginationPlanner draws
// keyset candidates from.
var candidateKeysetColumns = []struct {
	column   string
	dataType shardquery.KeysetDataType
}{
	{"serie_equipo", shardquery.KeysetText},
	{"id_tipo_infra", shardquery.KeysetInteger},
	{"fecha_infraccion", shardquery.KeysetDate},
	{"id_estado", shardquery.KeysetInteger},
	{"id_punto_control", shardquery.KeysetInteger},
	{"packedfile", shardquery.KeysetText},
}

// PaginationPlan is the decided pagination strategy plus its supporting
// keyset field list.
type PaginationPlan struct {
	Strategy     shardquery.PaginationStrategy
	IDColumn     string
	KeysetFields []shardquery.KeysetField
}

// PlanPagination implements spec.md §4.4's strategy table. groupByFields, when
// the consolidated path is taken, supplies the first three GROUP BY
// expressions used as the consolidated keyset's columns.
func PlanPagination(cleanSQL string, hasGroupBy, hasAggregateFunction bool, groupByFields []string) PaginationPlan {
	if hasGroupBy && hasAggregateFunction {
		return PaginationPlan{Strategy: shardquery.PaginationNone, KeysetFields: consolidatedKeysFromGroupBy(groupByFields)}
	}

	selectClause := SelectClause(cleanSQL)
	idColumn, idPresent := detectIDColumn(selectClause)
	candidates := detectKeysetCandidates(selectClause)

	switch {
	case idPresent && len(candidates) > 0:
		return PaginationPlan{Strategy: shardquery.PaginationKeysetWithID, IDColumn: idColumn, KeysetFields: candidates}
	case idPresent:
		return PaginationPlan{Strategy: shardquery.PaginationCompositeKey, IDColumn: idColumn}
	case len(candidates) > 0:
		return PaginationPlan{Strategy: shardquery.PaginationKeysetConsolidated, KeysetFields: candidates}
	default:
		if canSupportOffset(cleanSQL) {
			return PaginationPlan{Strategy: shardquery.PaginationOffset}
		}
		return PaginationPlan{Strategy: shardquery.PaginationLimitOnlyFallback}
	}
}

func detectIDColumn(selectClause string) (string, bool) {
	m := reIDColumn.FindStringSubmatch(selectClause)
	if m == nil {
		return "", false
	}
	if m[3] != "" {
		return m[3], true
	}
	return "id", true
}

// detectKeysetCandidates walks candidateKeysetColumns in order, assigning
// ascending priorities, and rejects a temporal candidate once a temporal
// field has already been chosen (avoid two date keys).
func detectKeysetCandidates(selectClause string) []shardquery.KeysetField {
	seen := NewSet[string]()
	hasTemporal := false
	var fields []shardquery.KeysetField
	priority := 0

	for _, cand := range candidateKeysetColumns {
		if !strings.Contains(strings.ToLower(selectClause), strings.ToLower(cand.column)) {
			continue
		}
		if seen.Contains(cand.column) {
			continue
		}
		isTemporal := cand.dataType == shardquery.KeysetDate || cand.dataType == shardquery.KeysetTimestamp
		if isTemporal && hasTemporal {
			continue
		}
		seen.Add(cand.column)
		if isTemporal {
			hasTemporal = true
		}
		fields = append(fields, shardquery.KeysetField{
			ColumnRef:     cand.column,
			ParameterName: "last" + camelTail(cand.column),
			DataType:      cand.dataType,
			Priority:      priority,
		})
		priority++
	}
	return fields
}

// camelTail camel-cases a snake_case column name with a capital first
// letter, used to derive a "last<Field>" parameter name.
func camelTail(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "")
}

// canSupportOffset is a conservative check: any SELECT with a FROM clause
// can, in principle, be offset-paginated.
func canSupportOffset(cleanSQL string) bool {
	return strings.Contains(strings.ToUpper(cleanSQL), "FROM")
}

// consolidatedKeysFromGroupBy derives the consolidated keyset from the first
// three GROUP BY expressions, in the order they appear.
func consolidatedKeysFromGroupBy(groupByFields []string) []shardquery.KeysetField {
	limit := len(groupByFields)
	if limit > 3 {
		limit = 3
	}
	fields := make([]shardquery.KeysetField, 0, limit)
	for i := 0; i < limit; i++ {
		col := strings.TrimSpace(groupByFields[i])
		fields = append(fields, shardquery.KeysetField{
			ColumnRef:     col,
			ParameterName: "campo_" + camelTail(col),
			DataType:      shardquery.KeysetText,
			Priority:      i,
		})
	}
	return fields
}
