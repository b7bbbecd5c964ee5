package temporal

import (
	"database/sql"
	"fmt"
)

// Column names materialized on every feature table.
const (
	StartColumn = "start_year"
	EndColumn   = "end_year"
)

// Active reports whether a feature with the given validity interval exists at
// year. A missing start year is never active; a missing end year is ongoing.
func Active(start, end sql.NullInt64, year int) bool {
	if !start.Valid {
		return false
	}
	if start.Int64 > int64(year) {
		return false
	}
	return !end.Valid || end.Int64 >= int64(year)
}

// ActiveAtSQL renders Active as a SQL predicate over the materialized year
// columns. The year is rendered as an integer literal so the predicate can be
// handed to tools that take a plain SQL string.
func ActiveAtSQL(year int) string {
	return fmt.Sprintf("(%[1]s IS NOT NULL AND %[1]s <= %[3]d AND (%[2]s IS NULL OR %[2]s >= %[3]d))",
		StartColumn, EndColumn, year)
}
