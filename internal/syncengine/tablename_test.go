package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableName(t *testing.T) {
	cases := []struct {
		resource, class string
		classCount      int
		want            string
	}{
		{"Deleted", "Property", 1, "Deleted_Property"},
		{"Property", "RE_1", 4, "Property_RE_1"},
		{"Office", "Office", 1, "Office"},
		{"Office", "", 1, "Office"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TableName(tc.resource, tc.class, tc.classCount), "%s/%s", tc.resource, tc.class)
	}
}

func TestSearchTypeClassUnderscoreSplit(t *testing.T) {
	searchType, class := SearchTypeClass("OpenHouse_Event", "", 2)
	assert.Equal(t, "OpenHouse", searchType)
	assert.Equal(t, "Event", class)
}

func TestSearchTypeClassSingleClassEqualsResource(t *testing.T) {
	searchType, class := SearchTypeClass("Office", "Office", 1)
	assert.Equal(t, "Office", searchType)
	assert.Equal(t, "Office", class)
}

func TestSearchTypeClassExplicitClassPreserved(t *testing.T) {
	searchType, class := SearchTypeClass("Property", "RE_1", 4)
	assert.Equal(t, "Property", searchType)
	assert.Equal(t, "RE_1", class)
}
