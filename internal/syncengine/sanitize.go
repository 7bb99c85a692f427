package syncengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/retssync/retsd/internal/models"
)

// SanitizeRow turns one parsed RETS search row into a column→value map
// ready for upsert, applying spec.md §4.5.1: empty/absent values become
// the type's zero value for date/datetime/time fields, NULL otherwise.
func SanitizeRow(fields []models.FieldDef, columns []string, row []string) map[string]interface{} {
	values := make(map[string]interface{}, len(columns))
	colIdx := make(map[string]int, len(columns))
	for i, c := range columns {
		colIdx[c] = i
	}

	fieldByName := make(map[string]models.FieldDef, len(fields))
	for _, f := range fields {
		fieldByName[f.SystemName] = f
	}

	for name, i := range colIdx {
		var raw string
		if i < len(row) {
			raw = row[i]
		}
		f, known := fieldByName[name]
		values[name] = sanitizeValue(raw, f, known)
	}
	return values
}

func sanitizeValue(raw string, f models.FieldDef, known bool) interface{} {
	if raw != "" {
		return raw
	}
	if !known {
		return nil
	}
	switch f.DataType {
	case models.TypeDate:
		return "0000-00-00"
	case models.TypeDateTime:
		return "0000-00-00 00:00:00"
	case models.TypeTime:
		return "00:00:00"
	default:
		return nil
	}
}

// ReplaceInto builds a `REPLACE INTO` statement (and its positional
// argument list) for one sanitized row, keyed on the declared primary key.
// Column order is sorted for determinism (map iteration order is not).
func ReplaceInto(tableName string, values map[string]interface{}) (string, []interface{}) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = "?"
		args[i] = values[c]
		quoted[i] = fmt.Sprintf("`%s`", c)
	}

	stmt := fmt.Sprintf("REPLACE INTO `%s` (%s) VALUES (%s)",
		tableName, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return stmt, args
}
