package internal

import "github.com/lychee-technology/shardquery"

// RestampRow returns an immutable copy of row with the technical "row_id"
// column stripped, any inbound "provincia" value discarded, and "provincia"
// re-set to province. Used by every executor before a row crosses into the
// ProcessingContext, per spec.md §4.13/§4.15.
func RestampRow(row *shardquery.Row, province string) *shardquery.Row {
	out := row.Clone()
	out.Delete("row_id")
	out.Delete("provincia")
	out.Set("provincia", province)
	return out
}
