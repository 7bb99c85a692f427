package syncengine

import (
	"testing"

	"github.com/retssync/retsd/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeRowZeroValues(t *testing.T) {
	fields := []models.FieldDef{
		{SystemName: "L_UpdateDate", DataType: models.TypeDateTime},
		{SystemName: "L_CloseDate", DataType: models.TypeDate},
		{SystemName: "L_ShowTime", DataType: models.TypeTime},
		{SystemName: "L_ListPrice", DataType: models.TypeInt},
	}
	columns := []string{"L_UpdateDate", "L_CloseDate", "L_ShowTime", "L_ListPrice"}
	row := []string{"", "", "", ""}

	values := SanitizeRow(fields, columns, row)
	assert.Equal(t, "0000-00-00 00:00:00", values["L_UpdateDate"])
	assert.Equal(t, "0000-00-00", values["L_CloseDate"])
	assert.Equal(t, "00:00:00", values["L_ShowTime"])
	assert.Nil(t, values["L_ListPrice"])
}

func TestSanitizeRowPassesThroughNonEmpty(t *testing.T) {
	fields := []models.FieldDef{{SystemName: "L_ListPrice", DataType: models.TypeInt}}
	values := SanitizeRow(fields, []string{"L_ListPrice"}, []string{"450000"})
	assert.Equal(t, "450000", values["L_ListPrice"])
}

func TestSanitizeRowUnknownFieldIsNull(t *testing.T) {
	values := SanitizeRow(nil, []string{"L_Mystery"}, []string{""})
	assert.Nil(t, values["L_Mystery"])
}

func TestReplaceIntoDeterministicColumnOrder(t *testing.T) {
	values := map[string]interface{}{"b": 1, "a": 2, "c": 3}
	stmt, args := ReplaceInto("Property_RE_1", values)
	assert.Equal(t, "REPLACE INTO `Property_RE_1` (`a`, `b`, `c`) VALUES (?, ?, ?)", stmt)
	assert.Equal(t, []interface{}{2, 1, 3}, args)
}

func TestExtractOffendingColumn(t *testing.T) {
	err := assert.AnError
	assert.Equal(t, "", ExtractOffendingColumn(err))

	wrapped := fmtErr("Data too long for column 'L_Remarks' at row 1")
	assert.Equal(t, "L_Remarks", ExtractOffendingColumn(wrapped))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func fmtErr(msg string) error { return simpleErr(msg) }
