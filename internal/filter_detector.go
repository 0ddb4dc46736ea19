package internal

import (
	"regexp"
	"strings"

	"github.com/lychee-technology/shardquery"
)

var reDateFilter = regexp.MustCompile(`(?i)([a-zA-Z_][a-zA-Z0-9_]*\.)?(\w*fecha\w*)\s*(>=|<=|>|<|=|BETWEEN)`)

// arrayFilterColumn is one of the three shared "array filter" targets:
// state, infraction-type, and concession. Each is detected by the same
// priority-ordered heuristic.
type arrayFilterColumn struct {
	label  string
	column *regexp.Regexp
}

var arrayFilterColumns = []arrayFilterColumn{
	{label: "state", column: regexp.MustCompile(`(?i)([a-zA-Z_][a-zA-Z0-9_]*\.)?id_estado`)},
	{label: "infraction_type", column: regexp.MustCompile(`(?i)([a-zA-Z_][a-zA-Z0-9_]*\.)?id_tipo_infra`)},
	{label: "concession", column: regexp.MustCompile(`(?i)([a-zA-Z_][a-zA-Z0-9_]*\.)?id_concesion`)},
}

var reBooleanFilter = regexp.MustCompile(`(?i)([a-zA-Z_][a-zA-Z0-9_]*\.)?(exporta_sacit|es_[a-zA-Z0-9_]+)\s*(=|IN)\s*(true|false|TRUE|FALSE)`)

// DetectFilters scans a WHERE clause (already cleaned+protected) for the
// five kinds of filter spec.md §4.3 names, in priority order for the
// shared array-filter heuristic: "= ANY(...)" > "IN (...)" > "= <literal>".
func DetectFilters(whereClause string) []shardquery.FilterSpec {
	var specs []shardquery.FilterSpec

	if spec, ok := detectDateFilter(whereClause); ok {
		specs = append(specs, spec)
	}

	for _, afc := range arrayFilterColumns {
		if spec, ok := detectArrayFilter(whereClause, afc); ok {
			specs = append(specs, spec)
		}
	}

	if spec, ok := detectBooleanFilter(whereClause); ok {
		specs = append(specs, spec)
	}

	return specs
}

func detectDateFilter(where string) (shardquery.FilterSpec, bool) {
	m := reDateFilter.FindStringSubmatch(where)
	if m == nil {
		return shardquery.FilterSpec{}, false
	}
	col := strings.TrimSuffix(m[1], ".") + "." + m[2]
	col = strings.TrimPrefix(col, ".")
	suffix := strings.Trim(strings.ReplaceAll(m[2], "fecha", ""), "_")
	label := "Fecha"
	if suffix != "" {
		label = "Fecha de " + titleCaseLabel(suffix)
	}
	return shardquery.FilterSpec{
		Kind:       shardquery.FilterDateRange,
		SQLColumn:  col,
		Label:      label,
		Parameters: []string{"specificDate", "dateFrom", "dateTo"},
		DataType:   "date",
	}, true
}

func detectArrayFilter(where string, afc arrayFilterColumn) (shardquery.FilterSpec, bool) {
	full := afc.column.FindString(where)
	if full == "" {
		return shardquery.FilterSpec{}, false
	}

	colEscaped := regexp.QuoteMeta(full)
	reAny := regexp.MustCompile(`(?i)` + colEscaped + `\s*=\s*ANY\s*\(`)
	reIn := regexp.MustCompile(`(?i)` + colEscaped + `\s*IN\s*\(`)
	reLiteral := regexp.MustCompile(colEscaped + `\s*=\s*(\d+)`)

	hardCoded := false
	rewriteHint := ""
	switch {
	case reAny.MatchString(where):
		// already dynamic; nothing to flag.
	case reIn.MatchString(where):
		// already dynamic; nothing to flag.
	case reLiteral.MatchString(where):
		hardCoded = true
		lit := reLiteral.FindStringSubmatch(where)
		rewriteHint = "hard-coded literal " + lit[1] + "; consider rewriting as = ANY(:" + afc.label + ")"
	default:
		return shardquery.FilterSpec{}, false
	}

	return shardquery.FilterSpec{
		Kind:        shardquery.FilterArrayInteger,
		SQLColumn:   full,
		Label:       titleCaseLabel(stripIDPrefix(lastSegment(full))),
		Parameters:  []string{afc.label},
		DataType:    "integer",
		Multivalued: true,
		HardCoded:   hardCoded,
		RewriteHint: rewriteHint,
	}, true
}

func detectBooleanFilter(where string) (shardquery.FilterSpec, bool) {
	m := reBooleanFilter.FindStringSubmatch(where)
	if m == nil {
		return shardquery.FilterSpec{}, false
	}
	col := strings.TrimSuffix(m[1], ".") + "." + m[2]
	col = strings.TrimPrefix(col, ".")
	return shardquery.FilterSpec{
		Kind:       shardquery.FilterBoolean,
		SQLColumn:  col,
		Label:      titleCaseLabel(m[2]),
		Parameters: []string{m[2]},
		DataType:   "boolean",
		Options:    []string{"true", "false"},
	}, true
}

func lastSegment(col string) string {
	if idx := strings.LastIndex(col, "."); idx >= 0 {
		return col[idx+1:]
	}
	return col
}

func stripIDPrefix(name string) string {
	for _, prefix := range []string{"id_", "cod_"} {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			return name[len(prefix):]
		}
	}
	return name
}

// titleCaseLabel builds a human label by snake_case -> Title Case with
// ad-hoc prefix stripping ("id_", "cod_").
func titleCaseLabel(name string) string {
	name = stripIDPrefix(name)
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, " ")
}
