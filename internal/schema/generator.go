// Package schema maps RETS field metadata to relational DDL (C4, spec.md
// §4.4): the type mapping is a total function over the FieldDef variant,
// and a second "visible names" table family is synthesized alongside the
// primary table.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/retssync/retsd/internal/models"
)

// SQLType maps one FieldDef to its column type, per the table in
// spec.md §4.4. Lookup/LookupMulti interpretations override the base
// data-type mapping.
func SQLType(f models.FieldDef) string {
	switch f.Interpretation {
	case models.InterpretLookup:
		return "VARCHAR(50)"
	case models.InterpretLookupMulti:
		return "TEXT"
	}

	switch f.DataType {
	case models.TypeInt, models.TypeSmall, models.TypeTiny:
		return "INT"
	case models.TypeLong:
		return "BIGINT"
	case models.TypeDateTime:
		return "DATETIME default '0000-00-00 00:00:00' NOT NULL"
	case models.TypeDate:
		return "DATE default '0000-00-00' NOT NULL"
	case models.TypeTime:
		return "TIME default '00:00:00' NOT NULL"
	case models.TypeChar:
		if f.HasMaxLength && f.MaxLength >= 1 && f.MaxLength <= 255 {
			return fmt.Sprintf("VARCHAR(%d)", f.MaxLength)
		}
		return "TEXT"
	case models.TypeDecimal:
		if f.HasMaxLength && f.HasPrecision && f.MaxLength > f.Precision && f.Precision >= 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", f.MaxLength, f.Precision)
		}
		return "DECIMAL(10,2)"
	case models.TypeBoolean:
		return "CHAR(1)"
	default:
		return "TEXT"
	}
}

// CreateTable synthesizes the CREATE TABLE statement for one resource/class
// pair. A surrogate id column is added only when the resource has no
// key field; otherwise the matching field is declared PRIMARY KEY inline.
func CreateTable(tableName, keyField string, fields []models.FieldDef) string {
	var cols []string
	if keyField == "" {
		cols = append(cols, "id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY")
	}

	for _, f := range fields {
		col := fmt.Sprintf("`%s` %s", f.SystemName, SQLType(f))
		if f.SystemName == keyField {
			col += " PRIMARY KEY"
		}
		if f.LongName != "" {
			col += fmt.Sprintf(" COMMENT '%s'", escapeComment(f.LongName))
		}
		cols = append(cols, col)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n  %s\n)", tableName, strings.Join(cols, ",\n  "))
}

// VisibleTableName derives the name of the "visible names" companion
// table for a resource/class pair.
func VisibleTableName(resourceID, className string) string {
	if className == "" || className == resourceID {
		return resourceID + "_visible"
	}
	return resourceID + "_" + className + "_visible"
}

var (
	reLeadingNumberOf = regexp.MustCompile(`(?i)^Number of (?:of )?`)
	reLeadingNumberOf2 = regexp.MustCompile(`(?i)^NumberOf(?:Of)?`)
	reNonAlnum         = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// VisibleColumnName renames a column by an alphanumeric transform of its
// LongName: strip a leading "Number of "/"NumberOf" (and any immediately
// following "of"), then delete all non-alphanumeric characters, preserving
// case (spec.md §4.4).
func VisibleColumnName(longName string) string {
	name := reLeadingNumberOf.ReplaceAllString(longName, "")
	name = reLeadingNumberOf2.ReplaceAllString(name, "")
	name = reNonAlnum.ReplaceAllString(name, "")
	return name
}

// CreateVisibleTable synthesizes the MyISAM "visible names" companion
// table: every column renamed via VisibleColumnName, same type mapping.
func CreateVisibleTable(resourceID, className string, fields []models.FieldDef) string {
	tableName := VisibleTableName(resourceID, className)

	var cols []string
	seen := map[string]bool{}
	for _, f := range fields {
		name := VisibleColumnName(f.LongName)
		if name == "" {
			name = f.SystemName
		}
		for seen[name] {
			name += "_"
		}
		seen[name] = true

		col := fmt.Sprintf("`%s` %s", name, SQLType(f))
		if f.LongName != "" {
			col += fmt.Sprintf(" COMMENT '%s'", escapeComment(f.LongName))
		}
		cols = append(cols, col)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (\n  %s\n) ENGINE=MyISAM", tableName, strings.Join(cols, ",\n  "))
}

func escapeComment(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
