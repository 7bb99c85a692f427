package lockout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndContains(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rets_lockout.json")
	s, err := Load(path)
	require.NoError(t, err)

	assert.False(t, s.Contains("Property", "CI_3"))
	require.NoError(t, s.Add("Property", "CI_3"))
	assert.True(t, s.Contains("Property", "CI_3"))
	assert.False(t, s.Contains("Property", "RE_1"))
}

func TestLoadPersistedAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rets_lockout.json")
	s1, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s1.Add("Property", "CI_3"))

	s2, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s2.Contains("Property", "CI_3"))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, s.Entries())
}
