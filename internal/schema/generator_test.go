package schema

import (
	"testing"

	"github.com/retssync/retsd/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSQLTypeMapping(t *testing.T) {
	cases := []struct {
		name string
		f    models.FieldDef
		want string
	}{
		{"int", models.FieldDef{DataType: models.TypeInt}, "INT"},
		{"small", models.FieldDef{DataType: models.TypeSmall}, "INT"},
		{"long", models.FieldDef{DataType: models.TypeLong}, "BIGINT"},
		{"char-short", models.FieldDef{DataType: models.TypeChar, MaxLength: 50, HasMaxLength: true}, "VARCHAR(50)"},
		{"char-long", models.FieldDef{DataType: models.TypeChar, MaxLength: 5000, HasMaxLength: true}, "TEXT"},
		{"char-no-len", models.FieldDef{DataType: models.TypeChar}, "TEXT"},
		{"decimal-valid", models.FieldDef{DataType: models.TypeDecimal, MaxLength: 10, HasMaxLength: true, Precision: 2, HasPrecision: true}, "DECIMAL(10,2)"},
		{"decimal-invalid", models.FieldDef{DataType: models.TypeDecimal, MaxLength: 2, HasMaxLength: true, Precision: 2, HasPrecision: true}, "DECIMAL(10,2)"},
		{"boolean", models.FieldDef{DataType: models.TypeBoolean}, "CHAR(1)"},
		{"lookup-overrides", models.FieldDef{DataType: models.TypeChar, MaxLength: 10, HasMaxLength: true, Interpretation: models.InterpretLookup}, "VARCHAR(50)"},
		{"lookup-multi-overrides", models.FieldDef{DataType: models.TypeInt, Interpretation: models.InterpretLookupMulti}, "TEXT"},
		{"unknown-type", models.FieldDef{DataType: "unknown"}, "TEXT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SQLType(tc.f))
		})
	}
}

func TestSQLTypeDateTimeDefaults(t *testing.T) {
	assert.Contains(t, SQLType(models.FieldDef{DataType: models.TypeDateTime}), "0000-00-00 00:00:00")
	assert.Contains(t, SQLType(models.FieldDef{DataType: models.TypeDate}), "0000-00-00")
	assert.Contains(t, SQLType(models.FieldDef{DataType: models.TypeTime}), "00:00:00")
}

func TestCreateTableSurrogateKey(t *testing.T) {
	fields := []models.FieldDef{
		{SystemName: "L_ListingID", LongName: "Listing ID", DataType: models.TypeChar, MaxLength: 20, HasMaxLength: true},
	}
	ddl := CreateTable("Property_RE_1", "", fields)
	assert.Contains(t, ddl, "id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY")
	assert.Contains(t, ddl, "`L_ListingID` VARCHAR(20)")
}

func TestCreateTableInlineKey(t *testing.T) {
	fields := []models.FieldDef{
		{SystemName: "L_ListingID", LongName: "Listing ID", DataType: models.TypeChar, MaxLength: 20, HasMaxLength: true},
	}
	ddl := CreateTable("Property_RE_1", "L_ListingID", fields)
	assert.NotContains(t, ddl, "AUTO_INCREMENT")
	assert.Contains(t, ddl, "`L_ListingID` VARCHAR(20) PRIMARY KEY")
}

func TestVisibleColumnName(t *testing.T) {
	cases := map[string]string{
		"Number of Bedrooms":    "Bedrooms",
		"NumberOfBathrooms":     "Bathrooms",
		"List Price":            "ListPrice",
		"Square Feet (Total)":   "SquareFeetTotal",
		"Number of of Garages":  "Garages",
	}
	for in, want := range cases {
		assert.Equal(t, want, VisibleColumnName(in), in)
	}
}

func TestVisibleTableName(t *testing.T) {
	assert.Equal(t, "Property_RE_1_visible", VisibleTableName("Property", "RE_1"))
	assert.Equal(t, "Office_visible", VisibleTableName("Office", "Office"))
	assert.Equal(t, "Office_visible", VisibleTableName("Office", ""))
}

func TestCreateVisibleTableEngine(t *testing.T) {
	fields := []models.FieldDef{
		{SystemName: "L_BedroomsTotal", LongName: "Number of Bedrooms", DataType: models.TypeInt},
	}
	ddl := CreateVisibleTable("Property", "RE_1", fields)
	assert.Contains(t, ddl, "ENGINE=MyISAM")
	assert.Contains(t, ddl, "`Bedrooms` INT")
}
