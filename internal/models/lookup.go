package models

// LookupCommonClass is the synthetic class under which Property-wide lookup
// tuples are cached in memory (spec.md §4.6).
const LookupCommonClass = "COMMON"

// LookupValue is one short/long value pair of a lookup domain, scoped to a
// resource/class/field. The tuple (ResourceID, ClassName, FieldName,
// ShortValue) is globally unique.
type LookupValue struct {
	ResourceID string `json:"resource_id" db:"resource_id"`
	ClassName  string `json:"class_id" db:"class_id"`
	FieldName  string `json:"field_name" db:"field_name"`
	ShortValue string `json:"short_value" db:"short_value"`
	LongValue  string `json:"long_value" db:"long_value"`
	SortOrder  int    `json:"sort_order" db:"sort_order"`
	Active     bool   `json:"active" db:"active"`
}
