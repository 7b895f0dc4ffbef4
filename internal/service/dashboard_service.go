package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type studentCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type roleCounter interface {
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

type streamCounter interface {
	CountStreams(ctx context.Context) (int, error)
}

type attendanceOverviewer interface {
	OverviewByDate(ctx context.Context, date time.Time) ([]models.StreamAttendanceOverview, error)
}

type unsyncedCounter interface {
	UnsyncedScopes() (int, error)
}

// DashboardService composes the admin landing-page summary.
type DashboardService struct {
	students   studentCounter
	users      roleCounter
	classes    streamCounter
	attendance attendanceOverviewer
	local      unsyncedCounter
	cache      *CacheService
	cacheTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Students   studentCounter
	Users      roleCounter
	Classes    streamCounter
	Attendance attendanceOverviewer
	Local      unsyncedCounter
	Cache      *CacheService
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		students:   params.Students,
		users:      params.Users,
		classes:    params.Classes,
		attendance: params.Attendance,
		local:      params.Local,
		cache:      params.Cache,
		cacheTTL:   ttl,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Admin returns the admin dashboard for a date and reports cache utilisation.
func (s *DashboardService) Admin(ctx context.Context, date time.Time) (*models.AdminDashboard, bool, error) {
	date = date.UTC().Truncate(24 * time.Hour)
	key := fmt.Sprintf("dash:admin:%s", date.Format("2006-01-02"))

	if s.cache.Enabled() {
		var cached models.AdminDashboard
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, true, nil
		}
	}

	dashboard, err := s.compose(ctx, date)
	if err != nil {
		return nil, false, err
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, dashboard, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return dashboard, false, nil
}

// Invalidate drops cached dashboards after roster or attendance changes.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "dash:admin:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) compose(ctx context.Context, date time.Time) (*models.AdminDashboard, error) {
	totalStudents, err := s.students.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	totalTeachers, err := s.users.CountByRole(ctx, models.RoleTeacher)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	totalStreams, err := s.classes.CountStreams(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count streams")
	}
	overview, err := s.attendance.OverviewByDate(ctx, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance overview")
	}

	// The unsynced count comes from the local write cache, never the remote
	// store, so a counting failure only degrades the dashboard.
	unsynced := 0
	if s.local != nil {
		if count, err := s.local.UnsyncedScopes(); err != nil {
			s.logger.Warn("unsynced scope count failed", zap.Error(err))
		} else {
			unsynced = count
		}
	}

	return &models.AdminDashboard{
		TotalStudents:  totalStudents,
		TotalTeachers:  totalTeachers,
		TotalStreams:   totalStreams,
		Attendance:     overview,
		UnsyncedScopes: unsynced,
		Date:           date.Format("2006-01-02"),
		GeneratedAt:    s.now(),
	}, nil
}
