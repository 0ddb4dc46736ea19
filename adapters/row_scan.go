package adapters

import (
	"database/sql"

	"github.com/lychee-technology/shardquery"
)

// scanSQLRows drains a database/sql Rows cursor into Row values, using the
// driver-reported column order. Shared by the lib/pq and DuckDB adapters,
// neither of which exposes pgx's richer FieldDescriptions/Values API.
func scanSQLRows(rows *sql.Rows) ([]*shardquery.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []*shardquery.Row
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		values := make([]any, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		row := shardquery.NewRow()
		for i, col := range cols {
			row.Set(col, values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
