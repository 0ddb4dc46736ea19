// Package adapters holds the concrete ShardStore implementations: pgx against
// live province Postgres databases, database/sql+lib/pq against legacy
// province databases, and DuckDB+S3 Parquet against archived ("cold tier")
// provinces. None of this package is imported by internal — per spec.md §1,
// the concrete SQL dialect and driver are external collaborators referenced
// only through the ShardStore interface.
package adapters

import (
	"regexp"

	"github.com/lychee-technology/shardquery"
)

// namedParamValues flattens a FilterParams into the bag of named values a
// registered query's SQL text may reference as `@name` tokens, plus the
// limit/offset pagination pair every ExecutePage call appends.
func namedParamValues(f *shardquery.FilterParams) map[string]any {
	values := map[string]any{
		"specificDate":  f.SpecificDate,
		"dateFrom":      f.DateFrom,
		"dateTo":        f.DateTo,
		"stateIds":      f.StateIDs,
		"infractionIds": f.InfractionIDs,
		"concessionIds": f.ConcessionIDs,
		"exportaSacit":  f.ExportaSacit,
		"lastId":        f.LastID,
		"lastSerie":     f.LastSerie,
		"lastPlace":     f.LastPlace,
		"limit":         f.Limit,
	}

	offset := 0
	if f.Offset != nil {
		offset = *f.Offset
	}
	values["offset"] = offset

	for k, v := range f.ConsolidatedKey {
		values[k] = v
	}
	for k, v := range f.Extra {
		values[k] = v
	}

	return values
}

var reNamedParam = regexp.MustCompile(`@([a-zA-Z_][a-zA-Z0-9_]*)`)

// placeholderFunc renders the nth (1-based) bind parameter for a driver's
// positional placeholder syntax.
type placeholderFunc func(n int) string

// rewriteNamedParams replaces every `@name` token in sql, in order of
// appearance, with the placeholder next produces, collecting the
// corresponding value from values into a positional argument slice. Every
// driver but pgx (which understands `@name` natively via pgx.NamedArgs)
// needs this rewrite before the query can be executed.
func rewriteNamedParams(sql string, values map[string]any, next placeholderFunc) (string, []any) {
	var args []any
	n := 0
	out := reNamedParam.ReplaceAllStringFunc(sql, func(tok string) string {
		name := tok[1:]
		n++
		args = append(args, values[name])
		return next(n)
	})
	return out, args
}

func questionMarkPlaceholder(int) string { return "?" }
