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

type fakeDashboardSources struct {
	students    int
	teachers    int
	streams     int
	overview    []models.StreamAttendanceOverview
	unsynced    int
	unsyncedErr error
	calls       int
}

func (f *fakeDashboardSources) CountActive(ctx context.Context) (int, error) {
	f.calls++
	return f.students, nil
}

func (f *fakeDashboardSources) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	if role != models.RoleTeacher {
		return 0, fmt.Errorf("unexpected role %s", role)
	}
	return f.teachers, nil
}

func (f *fakeDashboardSources) CountStreams(ctx context.Context) (int, error) {
	return f.streams, nil
}

func (f *fakeDashboardSources) OverviewByDate(ctx context.Context, date time.Time) ([]models.StreamAttendanceOverview, error) {
	return f.overview, nil
}

func (f *fakeDashboardSources) UnsyncedScopes() (int, error) {
	return f.unsynced, f.unsyncedErr
}

func newDashboardService(sources *fakeDashboardSources) *DashboardService {
	return NewDashboardService(DashboardServiceParams{
		Students:   sources,
		Users:      sources,
		Classes:    sources,
		Attendance: sources,
		Local:      sources,
	})
}

func TestAdminDashboardComposesTotals(t *testing.T) {
	sources := &fakeDashboardSources{
		students: 480,
		teachers: 32,
		streams:  14,
		unsynced: 2,
		overview: []models.StreamAttendanceOverview{
			{StreamID: "stream-p5-west", StreamName: "P5 West", Present: 25, Absent: 3, Marked: 28},
		},
	}
	svc := newDashboardService(sources)
	svc.now = func() time.Time { return time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC) }

	dashboard, cached, err := svc.Admin(context.Background(), time.Date(2026, time.March, 4, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 480, dashboard.TotalStudents)
	assert.Equal(t, 32, dashboard.TotalTeachers)
	assert.Equal(t, 14, dashboard.TotalStreams)
	assert.Equal(t, 2, dashboard.UnsyncedScopes)
	assert.Equal(t, "2026-03-04", dashboard.Date)
	require.Len(t, dashboard.Attendance, 1)
	assert.Equal(t, 25, dashboard.Attendance[0].Present)
}

func TestAdminDashboardDegradesWhenLocalCountFails(t *testing.T) {
	sources := &fakeDashboardSources{students: 10, unsyncedErr: fmt.Errorf("cache dir unreadable")}
	svc := newDashboardService(sources)

	dashboard, _, err := svc.Admin(context.Background(), time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err, "a local cache failure must not break the dashboard")
	assert.Zero(t, dashboard.UnsyncedScopes)
	assert.Equal(t, 10, dashboard.TotalStudents)
}
