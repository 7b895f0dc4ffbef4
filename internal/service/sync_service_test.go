package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
)

func seedUnsynced(t *testing.T, cache *fakeAttendanceCache, scope models.AttendanceScope, studentIDs ...string) {
	t.Helper()
	sheet := models.NewAttendanceSheet()
	for _, id := range studentIDs {
		sheet.Records[id] = models.AttendanceMark{
			Status:     models.AttendanceStatusPresent,
			TimeMarked: schoolDay().Add(8 * time.Hour),
			MarkedBy:   "teacher-9",
		}
		sheet.SyncStatus[id] = false
	}
	require.NoError(t, cache.Save(scope, sheet))
}

func TestReconcilePushesAllPendingMarks(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	scope := testScope()
	seedUnsynced(t, cache, scope, "student-1", "student-2", "student-3", "student-4")

	svc := NewSyncService(cache, store, nil)
	result, err := svc.Reconcile(context.Background(), scope)

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 4, StillUnsynced: 0}, result)

	sheet := cache.sheet(scope)
	for _, id := range []string{"student-1", "student-2", "student-3", "student-4"} {
		assert.True(t, sheet.SyncStatus[id], id)
		_, stored := store.row(id, scope.StreamID, scope.Date)
		assert.True(t, stored, id)
	}
}

func TestReconcileEmptyScopeSkipsRemote(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	svc := NewSyncService(cache, store, nil)

	result, err := svc.Reconcile(context.Background(), testScope())

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, result)
	assert.Zero(t, store.upserts, "an empty scope must not touch the remote store")
}

func TestReconcileIsIdempotent(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	scope := testScope()
	seedUnsynced(t, cache, scope, "student-1", "student-2")

	svc := NewSyncService(cache, store, nil)
	first, err := svc.Reconcile(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 2, StillUnsynced: 0}, first)
	upsertsAfterFirst := store.upserts

	second, err := svc.Reconcile(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, second)
	assert.Equal(t, upsertsAfterFirst, store.upserts, "a fully synced sheet must be a no-op")
}

func TestReconcilePartialFailureHealsOnLaterPass(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	scope := testScope()

	ids := make([]string, 0, 50)
	for i := 1; i <= 50; i++ {
		ids = append(ids, fmt.Sprintf("student-%02d", i))
	}
	seedUnsynced(t, cache, scope, ids...)
	store.failFor["student-07"] = true
	store.failFor["student-33"] = true

	svc := NewSyncService(cache, store, nil)
	first, err := svc.Reconcile(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 48, StillUnsynced: 2}, first)

	sheet := cache.sheet(scope)
	assert.False(t, sheet.SyncStatus["student-07"])
	assert.False(t, sheet.SyncStatus["student-33"])

	// The store recovers; only the two stragglers are retried.
	store.failFor = map[string]bool{}
	upsertsBefore := store.upserts
	second, err := svc.Reconcile(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 2, StillUnsynced: 0}, second)
	assert.Equal(t, upsertsBefore+2, store.upserts)
}

func TestReconcileDropsStaleSyncFlags(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	scope := testScope()

	sheet := models.NewAttendanceSheet()
	sheet.SyncStatus["ghost-student"] = false
	require.NoError(t, cache.Save(scope, sheet))

	svc := NewSyncService(cache, store, nil)
	result, err := svc.Reconcile(context.Background(), scope)

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, result)
	_, tracked := cache.sheet(scope).SyncStatus["ghost-student"]
	assert.False(t, tracked)
}

func TestReconcileAllCoversEveryPendingScope(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	first := testScope()
	second := models.AttendanceScope{StreamID: "stream-p5-east", Date: schoolDay()}
	seedUnsynced(t, cache, first, "student-1", "student-2")
	seedUnsynced(t, cache, second, "student-3")

	svc := NewSyncService(cache, store, nil)
	total, err := svc.ReconcileAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 3, StillUnsynced: 0}, total)
}

func TestReconcileScopesSumsResults(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	first := testScope()
	second := models.AttendanceScope{StreamID: "stream-p5-east", Date: schoolDay()}
	seedUnsynced(t, cache, first, "student-1")
	seedUnsynced(t, cache, second, "student-2", "student-3")

	svc := NewSyncService(cache, store, nil)
	total, err := svc.ReconcileScopes(context.Background(), []models.AttendanceScope{first, second})

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 3, StillUnsynced: 0}, total)
}
