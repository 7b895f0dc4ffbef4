package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type fakeAttendanceCache struct {
	mu     sync.Mutex
	sheets map[string]*models.AttendanceSheet
	saves  int
}

func newFakeAttendanceCache() *fakeAttendanceCache {
	return &fakeAttendanceCache{sheets: map[string]*models.AttendanceSheet{}}
}

func (f *fakeAttendanceCache) key(scope models.AttendanceScope) string {
	return scope.StreamID + "|" + scope.DateString()
}

func (f *fakeAttendanceCache) Load(scope models.AttendanceScope) (*models.AttendanceSheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.sheets[f.key(scope)]
	if !ok {
		return models.NewAttendanceSheet(), nil
	}
	copied := models.NewAttendanceSheet()
	for id, mark := range stored.Records {
		copied.Records[id] = mark
	}
	for id, synced := range stored.SyncStatus {
		copied.SyncStatus[id] = synced
	}
	return copied, nil
}

func (f *fakeAttendanceCache) Save(scope models.AttendanceScope, sheet *models.AttendanceSheet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := models.NewAttendanceSheet()
	for id, mark := range sheet.Records {
		copied.Records[id] = mark
	}
	for id, synced := range sheet.SyncStatus {
		copied.SyncStatus[id] = synced
	}
	f.sheets[f.key(scope)] = copied
	f.saves++
	return nil
}

func (f *fakeAttendanceCache) Clear(scope models.AttendanceScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sheets, f.key(scope))
	return nil
}

func (f *fakeAttendanceCache) PendingScopes() ([]models.AttendanceScope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scopes []models.AttendanceScope
	for key, sheet := range f.sheets {
		if len(sheet.UnsyncedStudents()) == 0 {
			continue
		}
		parts := strings.SplitN(key, "|", 2)
		date, err := time.Parse(models.DateLayout, parts[1])
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, models.AttendanceScope{StreamID: parts[0], Date: date})
	}
	return scopes, nil
}

func (f *fakeAttendanceCache) sheet(scope models.AttendanceScope) *models.AttendanceSheet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sheets[f.key(scope)]
}

type fakeAttendanceStore struct {
	mu       sync.Mutex
	rows     map[string]models.AttendanceRecord
	upserts  int
	failFor  map[string]bool
	failAll  bool
	failErr  error
	listRows []models.AttendanceRecord
}

func newFakeAttendanceStore() *fakeAttendanceStore {
	return &fakeAttendanceStore{
		rows:    map[string]models.AttendanceRecord{},
		failFor: map[string]bool{},
		failErr: fmt.Errorf("remote store unavailable"),
	}
}

func (f *fakeAttendanceStore) rowKey(record *models.AttendanceRecord) string {
	return record.StudentID + "|" + record.StreamID + "|" + record.Date.Format(models.DateLayout)
}

func (f *fakeAttendanceStore) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failAll || f.failFor[record.StudentID] {
		return nil, f.failErr
	}
	stored := *record
	f.rows[f.rowKey(record)] = stored
	return &stored, nil
}

func (f *fakeAttendanceStore) ListByScope(ctx context.Context, streamID string, date time.Time) ([]models.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listRows, nil
}

func (f *fakeAttendanceStore) row(studentID, streamID string, date time.Time) (models.AttendanceRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[studentID+"|"+streamID+"|"+date.Format(models.DateLayout)]
	return rec, ok
}

type fakeRoster struct {
	students []models.Student
}

func (f *fakeRoster) ListByStream(ctx context.Context, streamID string) ([]models.Student, error) {
	return f.students, nil
}

func schoolDay() time.Time {
	// A Wednesday.
	return time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
}

func testScope() models.AttendanceScope {
	return models.AttendanceScope{StreamID: "stream-p5-west", Date: schoolDay()}
}

func newAttendanceFixture() (*AttendanceService, *fakeAttendanceCache, *fakeAttendanceStore) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	roster := &fakeRoster{}
	svc := NewAttendanceService(cache, store, roster, nil, nil, nil)
	return svc, cache, store
}

func TestMarkPersistsLocallyBeforeRemote(t *testing.T) {
	svc, cache, store := newAttendanceFixture()
	store.failAll = true
	scope := testScope()

	outcome, err := svc.Mark(context.Background(), scope, MarkRequest{
		StudentID: "student-1",
		Status:    string(models.AttendanceStatusPresent),
	}, "teacher-9")

	require.NoError(t, err)
	assert.False(t, outcome.Synced)

	sheet := cache.sheet(scope)
	require.NotNil(t, sheet)
	mark, ok := sheet.Records["student-1"]
	require.True(t, ok, "mark must be durable locally despite remote failure")
	assert.Equal(t, models.AttendanceStatusPresent, mark.Status)
	assert.Equal(t, "teacher-9", mark.MarkedBy)
	assert.False(t, sheet.SyncStatus["student-1"])

	_, stored := store.row("student-1", scope.StreamID, scope.Date)
	assert.False(t, stored)
}

func TestMarkFlipsSyncFlagOnRemoteSuccess(t *testing.T) {
	svc, cache, store := newAttendanceFixture()
	scope := testScope()

	outcome, err := svc.Mark(context.Background(), scope, MarkRequest{
		StudentID: "student-1",
		Status:    string(models.AttendanceStatusPresent),
	}, "teacher-9")

	require.NoError(t, err)
	assert.True(t, outcome.Synced)
	assert.True(t, cache.sheet(scope).SyncStatus["student-1"])

	rec, ok := store.row("student-1", scope.StreamID, scope.Date)
	require.True(t, ok)
	assert.Equal(t, models.AttendanceStatusPresent, rec.Status)
}

func TestMarkRejectsWeekendWithoutTouchingCache(t *testing.T) {
	svc, cache, _ := newAttendanceFixture()
	saturday := models.AttendanceScope{
		StreamID: "stream-p5-west",
		Date:     time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC),
	}

	_, err := svc.Mark(context.Background(), saturday, MarkRequest{
		StudentID: "student-1",
		Status:    string(models.AttendanceStatusPresent),
	}, "teacher-9")

	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrWeekendDay.Code, appErr.Code)
	assert.Nil(t, cache.sheet(saturday))
	assert.Zero(t, cache.saves)
}

func TestMarkAbsentRequiresReason(t *testing.T) {
	svc, cache, _ := newAttendanceFixture()
	scope := testScope()

	_, err := svc.Mark(context.Background(), scope, MarkRequest{
		StudentID: "student-1",
		Status:    string(models.AttendanceStatusAbsent),
	}, "teacher-9")

	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAbsenceReasonRequired.Code, appErr.Code)
	assert.Zero(t, cache.saves)

	outcome, err := svc.Mark(context.Background(), scope, MarkRequest{
		StudentID:    "student-1",
		Status:       string(models.AttendanceStatusAbsent),
		AbsentReason: "Sick",
	}, "teacher-9")
	require.NoError(t, err)
	require.NotNil(t, outcome.Mark.AbsentReason)
	assert.Equal(t, "Sick", *outcome.Mark.AbsentReason)
}

func TestMarkLastWriteWins(t *testing.T) {
	svc, cache, store := newAttendanceFixture()
	scope := testScope()
	ctx := context.Background()

	_, err := svc.Mark(ctx, scope, MarkRequest{StudentID: "student-1", Status: string(models.AttendanceStatusAbsent), AbsentReason: "Sick"}, "teacher-9")
	require.NoError(t, err)
	_, err = svc.Mark(ctx, scope, MarkRequest{StudentID: "student-1", Status: string(models.AttendanceStatusPresent)}, "teacher-9")
	require.NoError(t, err)

	mark := cache.sheet(scope).Records["student-1"]
	assert.Equal(t, models.AttendanceStatusPresent, mark.Status)
	assert.Nil(t, mark.AbsentReason)

	rec, ok := store.row("student-1", scope.StreamID, scope.Date)
	require.True(t, ok)
	assert.Equal(t, models.AttendanceStatusPresent, rec.Status)
	assert.Nil(t, rec.AbsentReason)
}

func TestMarkAllIndependentPerStudent(t *testing.T) {
	svc, cache, store := newAttendanceFixture()
	store.failFor["student-2"] = true
	scope := testScope()

	outcome, err := svc.MarkAll(context.Background(), scope, BulkMarkRequest{
		StudentIDs: []string{"student-1", "student-2", "student-3"},
		Status:     string(models.AttendanceStatusPresent),
	}, "teacher-9")

	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Marked)
	assert.Equal(t, 2, outcome.Synced)
	assert.Equal(t, 1, outcome.Unsynced)

	sheet := cache.sheet(scope)
	assert.True(t, sheet.SyncStatus["student-1"])
	assert.False(t, sheet.SyncStatus["student-2"])
	assert.True(t, sheet.SyncStatus["student-3"])
}

func TestMarkAllRejectsBulkAbsentWithoutReason(t *testing.T) {
	svc, _, _ := newAttendanceFixture()

	_, err := svc.MarkAll(context.Background(), testScope(), BulkMarkRequest{
		StudentIDs: []string{"student-1"},
		Status:     string(models.AttendanceStatusAbsent),
	}, "teacher-9")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAbsenceReasonRequired.Code, appErrors.FromError(err).Code)
}

func TestMarkAllAbsentSharesReason(t *testing.T) {
	svc, cache, _ := newAttendanceFixture()
	scope := testScope()

	outcome, err := svc.MarkAll(context.Background(), scope, BulkMarkRequest{
		StudentIDs:   []string{"student-1", "student-2"},
		Status:       string(models.AttendanceStatusAbsent),
		AbsentReason: "Sports day at the district grounds",
	}, "teacher-9")

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Marked)

	sheet := cache.sheet(scope)
	for _, id := range []string{"student-1", "student-2"} {
		mark := sheet.Records[id]
		assert.Equal(t, models.AttendanceStatusAbsent, mark.Status, id)
		require.NotNil(t, mark.AbsentReason, id)
		assert.Equal(t, "Sports day at the district grounds", *mark.AbsentReason, id)
	}
}

func TestRollCallMergesCacheOverRemote(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	roster := &fakeRoster{students: []models.Student{
		{ID: "student-1", FirstName: "Amina", LastName: "Nankya"},
		{ID: "student-2", FirstName: "Brian", LastName: "Okello"},
		{ID: "student-3", FirstName: "Cissy", LastName: "Namono"},
	}}
	scope := testScope()

	markedAt := schoolDay().Add(8 * time.Hour)
	store.listRows = []models.AttendanceRecord{
		{StudentID: "student-1", StreamID: scope.StreamID, Date: scope.Date, Status: models.AttendanceStatusAbsent, MarkedAt: markedAt},
	}

	sheet := models.NewAttendanceSheet()
	sheet.Records["student-1"] = models.AttendanceMark{Status: models.AttendanceStatusPresent, TimeMarked: markedAt.Add(time.Hour), MarkedBy: "teacher-9"}
	sheet.SyncStatus["student-1"] = false
	require.NoError(t, cache.Save(scope, sheet))

	svc := NewAttendanceService(cache, store, roster, nil, nil, nil)
	view, err := svc.RollCall(context.Background(), scope)
	require.NoError(t, err)

	require.Len(t, view.Rows, 3)
	assert.Equal(t, models.AttendanceStatusPresent, view.Rows[0].Status, "cached mark overrides remote row")
	assert.False(t, view.Rows[0].Synced)
	assert.Equal(t, models.AttendanceStatusUnmarked, view.Rows[1].Status)
	assert.Equal(t, models.RollCallSummary{Total: 3, Present: 1, Absent: 0, Unmarked: 2}, view.Summary)
}

func TestRollCallRunsReconcileFirst(t *testing.T) {
	cache := newFakeAttendanceCache()
	store := newFakeAttendanceStore()
	roster := &fakeRoster{students: []models.Student{{ID: "student-1", FirstName: "Amina", LastName: "Nankya"}}}
	scope := testScope()

	sheet := models.NewAttendanceSheet()
	sheet.Records["student-1"] = models.AttendanceMark{Status: models.AttendanceStatusPresent, TimeMarked: schoolDay(), MarkedBy: "teacher-9"}
	sheet.SyncStatus["student-1"] = false
	require.NoError(t, cache.Save(scope, sheet))

	reconciler := NewSyncService(cache, store, nil)
	svc := NewAttendanceService(cache, store, roster, reconciler, nil, nil)

	view, err := svc.RollCall(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 1, StillUnsynced: 0}, view.Sync)
	assert.True(t, view.Rows[0].Synced)

	_, stored := store.row("student-1", scope.StreamID, scope.Date)
	assert.True(t, stored)
}

func TestClearDropsLocalScopeOnly(t *testing.T) {
	svc, cache, store := newAttendanceFixture()
	scope := testScope()
	ctx := context.Background()

	_, err := svc.Mark(ctx, scope, MarkRequest{StudentID: "student-1", Status: string(models.AttendanceStatusPresent)}, "teacher-9")
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, scope))
	assert.Nil(t, cache.sheet(scope))

	_, stored := store.row("student-1", scope.StreamID, scope.Date)
	assert.True(t, stored, "synced remote rows are not retracted by clear")
}

func TestParseScope(t *testing.T) {
	scope, err := ParseScope("stream-p5-west", "2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, "stream-p5-west", scope.StreamID)
	assert.Equal(t, "2026-03-04", scope.DateString())

	_, err = ParseScope("", "2026-03-04")
	require.Error(t, err)

	_, err = ParseScope("stream-p5-west", "04/03/2026")
	require.Error(t, err)
}
