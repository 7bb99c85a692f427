package syncengine

import (
	"errors"
	"regexp"
)

// Sentinels for the taxonomy in spec.md §7 that are specific to the sync
// engine (protocol- and transport-level errors live in package rets).
var (
	ErrLockedOut = errors.New("syncengine: resource/class is locked out")
	ErrSchema    = errors.New("syncengine: schema operation failed")
)

var reOffendingColumn = regexp.MustCompile(`(?i)column '([^']+)'`)

// ExtractOffendingColumn pulls the column name out of a MySQL driver error
// message (e.g. "Column 'L_ListPrice' cannot be null", "Data too long for
// column 'L_Remarks' at row 1"), per spec.md §7's DataError handling. It
// returns "" when the driver's message doesn't name a column.
func ExtractOffendingColumn(err error) string {
	if err == nil {
		return ""
	}
	m := reOffendingColumn.FindStringSubmatch(err.Error())
	if m == nil {
		return ""
	}
	return m[1]
}
