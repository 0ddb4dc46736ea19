package internal

import (
	"regexp"
	"strings"

	"github.com/lychee-technology/shardquery"
)

// AnalysedField is the output of classifying one SELECT-list expression.
type AnalysedField struct {
	OriginalExpr string
	CleanExpr    string
	FinalName    string
	Kind         shardquery.FieldKind
	IsAggregate  bool
	IsComputed   bool
}

var (
	reAsAlias    = regexp.MustCompile(`(?i)\bAS\s+"?([a-zA-Z_][a-zA-Z0-9_]*)"?\s*$`)
	reIdentTail  = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*$`)
	reAggregate  = regexp.MustCompile(`(?i)^\s*(SUM|COUNT|AVG|MIN|MAX)\s*\(`)
	reComputed   = regexp.MustCompile(`(?i)^\s*(CASE\s+WHEN|CONCAT\s*\(|COALESCE\s*\()`)
	reArithmetic = regexp.MustCompile(`[+\-*/]`)

	reIDSuffix = regexp.MustCompile(`(?i)(_id|id_|_codigo)$`)
	reNumericName = regexp.MustCompile(`(?i)^(total|count|cantidad|monto|valor)|^(num_|cant_)`)
	reDetailName  = regexp.MustCompile(`(?i)(descripcion|detalle|observacion)`)
	reLocationName = regexp.MustCompile(`(?i)(provincia|municipio|localidad|lugar|region|departamento)`)
	reTimeName     = regexp.MustCompile(`(?i)(fecha|mes|anio|year|month|date|time|hora)`)
	reCategoryName = regexp.MustCompile(`(?i)(tipo|categoria|clase|estado|status)`)
)

// nameOverrideTable is a fixed catalogue of exact-name -> kind overrides,
// applied before any expression-shape or suffix heuristic.
var nameOverrideTable = map[string]shardquery.FieldKind{
	"provincia":        shardquery.FieldLocation,
	"id_provincia":     shardquery.FieldLocation,
	"fecha_infraccion": shardquery.FieldTime,
	"mes":              shardquery.FieldTime,
	"anio":             shardquery.FieldTime,
	"total":            shardquery.FieldNumericSum,
	"cantidad":         shardquery.FieldNumericCount,
	"id":               shardquery.FieldIdentifier,
	"id_infraccion":    shardquery.FieldIdentifier,
}

// cardinalityTable is the fixed catalogue of known per-column cardinalities
// used by ConsolidationPlanner's estimate.
var cardinalityTable = map[string]int64{
	"provincia":    24,
	"id_provincia": 24,
	"mes":          12,
	"anio":         10,
}

// KnownCardinality returns a known cardinality for name, or 0 if unknown.
func KnownCardinality(name string) (int64, bool) {
	v, ok := cardinalityTable[strings.ToLower(name)]
	return v, ok
}

// EstimateCardinality estimates an unknown column's cardinality from its
// classified kind.
func EstimateCardinality(kind shardquery.FieldKind) int64 {
	switch kind {
	case shardquery.FieldLocation:
		return 500
	case shardquery.FieldTime:
		return 365
	case shardquery.FieldCategorisation:
		return 20
	case shardquery.FieldIdentifier:
		return 1000
	case shardquery.FieldNumericSum, shardquery.FieldNumericCount:
		return 100
	default:
		return 100
	}
}

// ClassifyField classifies one SELECT expression.
func ClassifyField(expr string) AnalysedField {
	clean := strings.TrimSpace(expr)
	finalName := deriveFinalName(clean)

	kind := shardquery.FieldDetail
	isAggregate := reAggregate.MatchString(clean)
	isComputed := false

	if override, ok := nameOverrideTable[strings.ToLower(finalName)]; ok {
		kind = override
	} else if isAggregate {
		kind = shardquery.FieldNumericSum
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(clean)), "COUNT") {
			kind = shardquery.FieldNumericCount
		}
	} else if reComputed.MatchString(clean) || reArithmetic.MatchString(stripIdentifierChars(clean)) {
		kind = shardquery.FieldComputed
		isComputed = true
	} else {
		kind = classifyByName(finalName)
	}

	return AnalysedField{
		OriginalExpr: expr,
		CleanExpr:    clean,
		FinalName:    finalName,
		Kind:         kind,
		IsAggregate:  isAggregate,
		IsComputed:   isComputed,
	}
}

// deriveFinalName implements rule 1: alias if present, else the identifier
// tail after the last '.'.
func deriveFinalName(expr string) string {
	if m := reAsAlias.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(strings.Trim(m[1], `"`))
	}
	tail := expr
	if idx := strings.LastIndex(expr, "."); idx >= 0 && !strings.ContainsAny(expr[idx:], "()") {
		tail = expr[idx+1:]
	}
	if m := reIdentTail.FindStringSubmatch(tail); m != nil {
		return strings.ToLower(m[1])
	}
	return strings.ToLower(strings.TrimSpace(tail))
}

func classifyByName(name string) shardquery.FieldKind {
	switch {
	case reIDSuffix.MatchString(name):
		return shardquery.FieldIdentifier
	case reNumericName.MatchString(name):
		return shardquery.FieldNumericSum
	case reDetailName.MatchString(name):
		return shardquery.FieldDetail
	case reLocationName.MatchString(name):
		return shardquery.FieldLocation
	case reTimeName.MatchString(name):
		return shardquery.FieldTime
	case reCategoryName.MatchString(name):
		return shardquery.FieldCategorisation
	default:
		return shardquery.FieldDetail
	}
}

// stripIdentifierChars removes characters that make up identifiers/dotted
// paths so a raw "+-*/" scan doesn't mistake a quoted literal or negative
// numeric literal for an arithmetic expression.
func stripIdentifierChars(expr string) string {
	// Keep only symbols that matter for arithmetic detection outside of
	// function-call parens; a crude heuristic is sufficient here since
	// COMPUTED is a fallback classification, not a primary one.
	if idx := strings.Index(expr, "("); idx >= 0 {
		return expr[:idx]
	}
	return expr
}
