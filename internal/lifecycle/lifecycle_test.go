package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRunPicksNextHourSameDay(t *testing.T) {
	now := time.Date(2026, 7, 30, 13, 15, 0, 0, time.Local)
	next := nextRun(now)
	assert.Equal(t, time.Date(2026, 7, 30, 15, 0, 0, 0, time.Local), next)
}

func TestNextRunWrapsToMidnightNextDay(t *testing.T) {
	now := time.Date(2026, 7, 30, 22, 0, 0, 0, time.Local)
	next := nextRun(now)
	assert.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.Local), next)
}

func TestDedupeByMaxStatusDateKeepsLatest(t *testing.T) {
	rows := []hotsheetRow{
		{ListingID: "A", StatusDate: "2026-07-28T10:00:00", StatusCatID: "4"},
		{ListingID: "A", StatusDate: "2026-07-29T10:00:00", StatusCatID: "2"},
		{ListingID: "B", StatusDate: "2026-07-29T09:00:00", StatusCatID: "5"},
	}
	best := dedupeByMaxStatusDate(rows)
	require.Len(t, best, 2)
	assert.Equal(t, "2", best["A"].StatusCatID)
	assert.Equal(t, "5", best["B"].StatusCatID)
}

func TestPartitionSplitsSoldFromWithdrawnOrExpired(t *testing.T) {
	rows := map[string]hotsheetRow{
		"A": {ListingID: "A", StatusCatID: "2"},
		"B": {ListingID: "B", StatusCatID: "4"},
		"C": {ListingID: "C", StatusCatID: "5"},
		"D": {ListingID: "D", StatusCatID: "3"},
	}
	sold, withdrawnOrExpired := partition(rows)
	assert.Contains(t, sold, "A")
	assert.Contains(t, withdrawnOrExpired, "B")
	assert.Contains(t, withdrawnOrExpired, "C")
	assert.NotContains(t, sold, "D")
	assert.NotContains(t, withdrawnOrExpired, "D")
}

func TestInQueryExpandsPlaceholders(t *testing.T) {
	query, args, err := inQuery("DELETE FROM `t` WHERE `id` IN (?)", []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `t` WHERE `id` IN (?,?,?)", query)
	assert.Equal(t, []any{"1", "2", "3"}, args)
}

func TestInQueryRejectsEmptyIDs(t *testing.T) {
	_, _, err := inQuery("DELETE FROM `t` WHERE `id` IN (?)", nil)
	assert.Error(t, err)
}

func TestColumnIndexAndCell(t *testing.T) {
	columns := []string{"L_ListingID", "L_Address"}
	row := []string{"123", "1 Main St"}
	idx := columnIndex(columns)
	assert.Equal(t, "123", cell(row, idx, "L_ListingID"))
	assert.Equal(t, "1 Main St", cell(row, idx, "L_Address"))
	assert.Equal(t, "", cell(row, idx, "L_Missing"))
}

func TestTableNameSingleClassMatchesResource(t *testing.T) {
	assert.Equal(t, "Property", tableName("Property", "Property", 1))
	assert.Equal(t, "Property_RE_1", tableName("Property", "RE_1", 4))
}
