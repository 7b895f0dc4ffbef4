package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
)

func cacheScope() models.AttendanceScope {
	return models.AttendanceScope{
		StreamID: "stream-p5-west",
		Date:     time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC),
	}
}

func TestAttendanceCacheRoundTrip(t *testing.T) {
	cache, err := NewAttendanceCache(t.TempDir(), nil)
	require.NoError(t, err)
	scope := cacheScope()

	sheet := models.NewAttendanceSheet()
	reason := "Sick"
	sheet.Records["student-1"] = models.AttendanceMark{
		Status:       models.AttendanceStatusAbsent,
		TimeMarked:   time.Date(2026, time.March, 4, 8, 15, 0, 0, time.UTC),
		AbsentReason: &reason,
		MarkedBy:     "teacher-9",
	}
	sheet.SyncStatus["student-1"] = false

	require.NoError(t, cache.Save(scope, sheet))

	loaded, err := cache.Load(scope)
	require.NoError(t, err)
	mark, ok := loaded.Records["student-1"]
	require.True(t, ok)
	assert.Equal(t, models.AttendanceStatusAbsent, mark.Status)
	require.NotNil(t, mark.AbsentReason)
	assert.Equal(t, "Sick", *mark.AbsentReason)
	assert.False(t, loaded.SyncStatus["student-1"])
}

func TestAttendanceCacheMissingFileYieldsEmptySheet(t *testing.T) {
	cache, err := NewAttendanceCache(t.TempDir(), nil)
	require.NoError(t, err)

	sheet, err := cache.Load(cacheScope())
	require.NoError(t, err)
	assert.Empty(t, sheet.Records)
	assert.Empty(t, sheet.SyncStatus)
}

func TestAttendanceCacheCorruptedFileIsRecoverable(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewAttendanceCache(dir, nil)
	require.NoError(t, err)
	scope := cacheScope()

	path := filepath.Join(dir, "attendance_stream-p5-west_2026-03-04.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	sheet, err := cache.Load(scope)
	require.NoError(t, err, "a corrupted cache entry must not be fatal")
	assert.Empty(t, sheet.Records)

	// A fresh save replaces the corrupted file.
	sheet.Records["student-1"] = models.AttendanceMark{Status: models.AttendanceStatusPresent, TimeMarked: time.Now().UTC(), MarkedBy: "teacher-9"}
	sheet.SyncStatus["student-1"] = true
	require.NoError(t, cache.Save(scope, sheet))

	loaded, err := cache.Load(scope)
	require.NoError(t, err)
	assert.Len(t, loaded.Records, 1)
}

func TestAttendanceCacheClear(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewAttendanceCache(dir, nil)
	require.NoError(t, err)
	scope := cacheScope()

	sheet := models.NewAttendanceSheet()
	sheet.Records["student-1"] = models.AttendanceMark{Status: models.AttendanceStatusPresent, TimeMarked: time.Now().UTC(), MarkedBy: "teacher-9"}
	sheet.SyncStatus["student-1"] = true
	require.NoError(t, cache.Save(scope, sheet))

	require.NoError(t, cache.Clear(scope))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Clearing again is a no-op.
	require.NoError(t, cache.Clear(scope))
}

func TestAttendanceCachePendingScopes(t *testing.T) {
	cache, err := NewAttendanceCache(t.TempDir(), nil)
	require.NoError(t, err)

	dirty := cacheScope()
	clean := models.AttendanceScope{StreamID: "stream-p5-east", Date: dirty.Date}

	dirtySheet := models.NewAttendanceSheet()
	dirtySheet.Records["student-1"] = models.AttendanceMark{Status: models.AttendanceStatusPresent, TimeMarked: time.Now().UTC(), MarkedBy: "teacher-9"}
	dirtySheet.SyncStatus["student-1"] = false
	require.NoError(t, cache.Save(dirty, dirtySheet))

	cleanSheet := models.NewAttendanceSheet()
	cleanSheet.Records["student-2"] = models.AttendanceMark{Status: models.AttendanceStatusPresent, TimeMarked: time.Now().UTC(), MarkedBy: "teacher-9"}
	cleanSheet.SyncStatus["student-2"] = true
	require.NoError(t, cache.Save(clean, cleanSheet))

	scopes, err := cache.PendingScopes()
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, dirty.StreamID, scopes[0].StreamID)
	assert.Equal(t, dirty.DateString(), scopes[0].DateString())

	count, err := cache.UnsyncedScopes()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
