package syncengine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullSyncTrackerFirstRunAlwaysDue(t *testing.T) {
	tracker := newFullSyncTracker(filepath.Join(t.TempDir(), "full_sync_times.json"))
	assert.True(t, tracker.shouldRun("Property_RE_1", 3*time.Hour, time.Now()))
}

func TestFullSyncTrackerGatesUntilIntervalElapses(t *testing.T) {
	tracker := newFullSyncTracker(filepath.Join(t.TempDir(), "full_sync_times.json"))
	now := time.Now()
	require.NoError(t, tracker.recordRun("Property_RE_1", now))

	assert.False(t, tracker.shouldRun("Property_RE_1", 3*time.Hour, now.Add(time.Hour)))
	assert.True(t, tracker.shouldRun("Property_RE_1", 3*time.Hour, now.Add(4*time.Hour)))
}

func TestFullSyncTrackerPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full_sync_times.json")
	now := time.Now()

	first := newFullSyncTracker(path)
	require.NoError(t, first.recordRun("Office", now))

	second := newFullSyncTracker(path)
	assert.False(t, second.shouldRun("Office", 3*time.Hour, now.Add(time.Minute)))
}

func TestFullSyncTrackerMissingFileIsDue(t *testing.T) {
	tracker := newFullSyncTracker(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, tracker.shouldRun("Anything", time.Hour, time.Now()))
}
