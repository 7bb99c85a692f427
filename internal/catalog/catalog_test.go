package catalog

import (
	"testing"

	"github.com/retssync/retsd/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestDeriveUpdateField(t *testing.T) {
	fields := []models.FieldDef{
		{SystemName: "U_RowID"},
		{SystemName: "O_OfficeKey"},
		{SystemName: "L_UpdateDate"},
		{SystemName: "L_ListPrice"},
	}
	assert.Equal(t, "L_UpdateDate", deriveUpdateField(fields))
}

func TestDeriveUpdateFieldNone(t *testing.T) {
	fields := []models.FieldDef{
		{SystemName: "U_RowID"},
		{SystemName: "L_ListPrice"},
	}
	assert.Equal(t, "", deriveUpdateField(fields))
}

func TestSyncInterval(t *testing.T) {
	assert.Equal(t, 1, syncInterval("Property", "L_UpdateDate"))
	assert.Equal(t, 1, syncInterval("Property_RE_1", "L_UpdateDate"))
	assert.Equal(t, 60, syncInterval("Office", "O_UpdateDate"))
	assert.Equal(t, 60, syncInterval("ActiveAgent", "A_UpdateDate"))
	assert.Equal(t, 1440, syncInterval("OpenHouse", "OH_UpdateDate"))
	assert.Equal(t, 1440, syncInterval("Deleted", "N/A"))
}

func TestParseFields(t *testing.T) {
	// exercised indirectly via fieldFromRow/columnIndex, unit-tested here
	// to pin the MaximumLength/Precision "has value" distinction used by
	// the schema generator (zero is a valid precision, not "absent").
	idx := columnIndex([]string{"SystemName", "LongName", "DataType", "MaximumLength", "Precision"})
	row := []string{"L_ListPrice", "List Price", "Decimal", "12", "0"}
	f := fieldFromRow("Property", "RE_1", row, idx)
	assert.True(t, f.HasMaxLength)
	assert.Equal(t, 12, f.MaxLength)
	assert.True(t, f.HasPrecision)
	assert.Equal(t, 0, f.Precision)
}
