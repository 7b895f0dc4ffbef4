package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type attendanceCache interface {
	Load(scope models.AttendanceScope) (*models.AttendanceSheet, error)
	Save(scope models.AttendanceScope, sheet *models.AttendanceSheet) error
	Clear(scope models.AttendanceScope) error
	PendingScopes() ([]models.AttendanceScope, error)
}

type attendanceStore interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	ListByScope(ctx context.Context, streamID string, date time.Time) ([]models.AttendanceRecord, error)
}

type attendanceRoster interface {
	ListByStream(ctx context.Context, streamID string) ([]models.Student, error)
}

type scopeReconciler interface {
	Reconcile(ctx context.Context, scope models.AttendanceScope) (models.SyncResult, error)
}

// MarkRequest is the payload for marking one student.
type MarkRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	Status       string `json:"status" validate:"required,attendance_status"`
	AbsentReason string `json:"absent_reason"`
}

// BulkMarkRequest marks every listed student with the same status. A shared
// absent reason is required when the status is absent.
type BulkMarkRequest struct {
	StudentIDs   []string `json:"student_ids" validate:"required,min=1,dive,required"`
	Status       string   `json:"status" validate:"required,attendance_status"`
	AbsentReason string   `json:"absent_reason"`
}

// AttendanceService implements roll-call marking with a durable local cache
// in front of the remote store. Marks are saved locally first; a failed
// remote write leaves the mark unsynced rather than failing the operation.
type AttendanceService struct {
	cache      attendanceCache
	store      attendanceStore
	roster     attendanceRoster
	reconciler scopeReconciler
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewAttendanceService constructs the service.
func NewAttendanceService(cache attendanceCache, store attendanceStore, roster attendanceRoster, reconciler scopeReconciler, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerAttendanceValidators(validate)
	return &AttendanceService{
		cache:      cache,
		store:      store,
		roster:     roster,
		reconciler: reconciler,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func registerAttendanceValidators(v *validator.Validate) {
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("export_format", func(fl validator.FieldLevel) bool {
		return models.ExportFormat(fl.Field().String()).Valid()
	})
}

// Mark records one student's attendance. The mark is persisted to the local
// cache before the remote store is contacted; remote failures degrade to an
// unsynced outcome and never fail the call.
func (s *AttendanceService) Mark(ctx context.Context, scope models.AttendanceScope, req MarkRequest, markedBy string) (*models.MarkOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !scope.IsSchoolDay() {
		return nil, appErrors.ErrWeekendDay
	}
	status := models.AttendanceStatus(req.Status)
	if status == models.AttendanceStatusAbsent && req.AbsentReason == "" {
		return nil, appErrors.ErrAbsenceReasonRequired
	}

	mark := models.AttendanceMark{
		Status:     status,
		TimeMarked: s.now(),
		MarkedBy:   markedBy,
	}
	if status == models.AttendanceStatusAbsent {
		reason := req.AbsentReason
		mark.AbsentReason = &reason
	}

	sheet, err := s.cache.Load(scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load local attendance")
	}
	sheet.Records[req.StudentID] = mark
	sheet.SyncStatus[req.StudentID] = false
	if err := s.cache.Save(scope, sheet); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save local attendance")
	}

	synced := s.push(ctx, scope, req.StudentID, mark)
	if synced {
		sheet.SyncStatus[req.StudentID] = true
		if err := s.cache.Save(scope, sheet); err != nil {
			s.logger.Warn("failed to persist sync flag", zap.String("student_id", req.StudentID), zap.Error(err))
		}
	}

	return &models.MarkOutcome{StudentID: req.StudentID, Mark: mark, Synced: synced}, nil
}

// push attempts the remote upsert for one cached mark. Returns false on any
// remote failure; the mark stays locally durable for the reconciler.
func (s *AttendanceService) push(ctx context.Context, scope models.AttendanceScope, studentID string, mark models.AttendanceMark) bool {
	record := &models.AttendanceRecord{
		StudentID:    studentID,
		StreamID:     scope.StreamID,
		Date:         scope.Date,
		Status:       mark.Status,
		AbsentReason: mark.AbsentReason,
		MarkedBy:     mark.MarkedBy,
		MarkedAt:     mark.TimeMarked,
	}
	if _, err := s.store.Upsert(ctx, record); err != nil {
		s.logger.Warn("remote attendance write failed, mark kept unsynced",
			zap.String("student_id", studentID),
			zap.String("stream_id", scope.StreamID),
			zap.String("date", scope.DateString()),
			zap.Error(err))
		return false
	}
	return true
}

// MarkAll applies one status to every listed student, sequentially. Each
// student is independent: a remote failure for one does not stop the rest.
// Marking everyone absent needs a shared reason, recorded on each student.
func (s *AttendanceService) MarkAll(ctx context.Context, scope models.AttendanceScope, req BulkMarkRequest, markedBy string) (*models.BulkMarkOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	if !scope.IsSchoolDay() {
		return nil, appErrors.ErrWeekendDay
	}
	status := models.AttendanceStatus(req.Status)
	if status == models.AttendanceStatusAbsent && req.AbsentReason == "" {
		return nil, appErrors.Clone(appErrors.ErrAbsenceReasonRequired, "marking everyone absent requires a shared reason")
	}

	outcome := &models.BulkMarkOutcome{}
	for _, studentID := range req.StudentIDs {
		res, err := s.Mark(ctx, scope, MarkRequest{StudentID: studentID, Status: req.Status, AbsentReason: req.AbsentReason}, markedBy)
		if err != nil {
			return nil, err
		}
		outcome.Marked++
		if res.Synced {
			outcome.Synced++
		} else {
			outcome.Unsynced++
		}
	}
	return outcome, nil
}

// RollCall builds the marking screen view: the stream roster overlaid with
// remote rows, then with cached marks (the cache wins while unsynced).
// Opening the view first runs a reconcile pass over the scope.
func (s *AttendanceService) RollCall(ctx context.Context, scope models.AttendanceScope) (*models.RollCall, error) {
	syncResult := models.SyncResult{}
	if s.reconciler != nil {
		res, err := s.reconciler.Reconcile(ctx, scope)
		if err != nil {
			s.logger.Warn("roll-call reconcile pass failed",
				zap.String("stream_id", scope.StreamID),
				zap.String("date", scope.DateString()),
				zap.Error(err))
		} else {
			syncResult = res
		}
	}

	students, err := s.roster.ListByStream(ctx, scope.StreamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stream roster")
	}

	remote := map[string]models.AttendanceRecord{}
	records, err := s.store.ListByScope(ctx, scope.StreamID, scope.Date)
	if err != nil {
		s.logger.Warn("remote attendance read failed, serving local state",
			zap.String("stream_id", scope.StreamID),
			zap.String("date", scope.DateString()),
			zap.Error(err))
	} else {
		for _, rec := range records {
			remote[rec.StudentID] = rec
		}
	}

	sheet, err := s.cache.Load(scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load local attendance")
	}

	view := &models.RollCall{
		StreamID: scope.StreamID,
		Date:     scope.DateString(),
		Rows:     make([]models.RollCallRow, 0, len(students)),
		Sync:     syncResult,
	}
	for _, student := range students {
		row := models.RollCallRow{
			StudentID:   student.ID,
			StudentName: student.FullName(),
			Status:      models.AttendanceStatusUnmarked,
			Synced:      true,
		}
		if rec, ok := remote[student.ID]; ok {
			row.Status = rec.Status
			markedAt := rec.MarkedAt
			row.TimeMarked = &markedAt
			row.AbsentReason = rec.AbsentReason
		}
		if mark, ok := sheet.Records[student.ID]; ok {
			row.Status = mark.Status
			timeMarked := mark.TimeMarked
			row.TimeMarked = &timeMarked
			row.AbsentReason = mark.AbsentReason
			row.Synced = sheet.SyncStatus[student.ID]
		}
		view.Summary.Total++
		switch row.Status {
		case models.AttendanceStatusPresent:
			view.Summary.Present++
		case models.AttendanceStatusAbsent:
			view.Summary.Absent++
		default:
			view.Summary.Unmarked++
		}
		view.Rows = append(view.Rows, row)
	}
	return view, nil
}

// Clear drops the local sheet for a scope. Rows already synced to the remote
// store are not retracted.
func (s *AttendanceService) Clear(ctx context.Context, scope models.AttendanceScope) error {
	if err := s.cache.Clear(scope); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear local attendance")
	}
	return nil
}

// ParseScope validates raw stream/date parameters into a scope.
func ParseScope(streamID, rawDate string) (models.AttendanceScope, error) {
	if streamID == "" {
		return models.AttendanceScope{}, appErrors.Clone(appErrors.ErrValidation, "stream id is required")
	}
	date, err := time.Parse(models.DateLayout, rawDate)
	if err != nil {
		return models.AttendanceScope{}, appErrors.Clone(appErrors.ErrValidation, "date must be formatted yyyy-MM-dd")
	}
	return models.AttendanceScope{StreamID: streamID, Date: date}, nil
}
