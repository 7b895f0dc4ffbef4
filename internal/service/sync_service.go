package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

// SyncService re-sends cached marks that never reached the remote store.
// It runs when the roll-call view opens and when a sync is requested
// explicitly; there is no background timer.
type SyncService struct {
	cache  attendanceCache
	store  attendanceStore
	logger *zap.Logger
}

// NewSyncService constructs the reconciler.
func NewSyncService(cache attendanceCache, store attendanceStore, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{cache: cache, store: store, logger: logger}
}

// Reconcile pushes every unsynced mark in the scope to the remote store.
// A scope with nothing unsynced returns zeros without any remote call.
// Failures stay unsynced and are retried on the next pass, so repeated
// passes converge without duplicating remote rows.
func (s *SyncService) Reconcile(ctx context.Context, scope models.AttendanceScope) (models.SyncResult, error) {
	sheet, err := s.cache.Load(scope)
	if err != nil {
		return models.SyncResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load local attendance")
	}

	pending := sheet.UnsyncedStudents()
	if len(pending) == 0 {
		return models.SyncResult{}, nil
	}
	sort.Strings(pending)

	result := models.SyncResult{}
	for _, studentID := range pending {
		mark, ok := sheet.Records[studentID]
		if !ok {
			// A sync flag without a record is stale bookkeeping; drop it.
			delete(sheet.SyncStatus, studentID)
			continue
		}
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
			s.logger.Warn("reconcile push failed, will retry on next pass",
				zap.String("student_id", studentID),
				zap.String("stream_id", scope.StreamID),
				zap.String("date", scope.DateString()),
				zap.Error(err))
			result.StillUnsynced++
			continue
		}
		sheet.SyncStatus[studentID] = true
		result.Succeeded++
	}

	if err := s.cache.Save(scope, sheet); err != nil {
		return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist sync flags")
	}

	if result.Succeeded > 0 || result.StillUnsynced > 0 {
		s.logger.Info("attendance reconcile pass finished",
			zap.String("stream_id", scope.StreamID),
			zap.String("date", scope.DateString()),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("still_unsynced", result.StillUnsynced))
	}
	return result, nil
}

// ReconcileAll reconciles every scope that still has unsynced marks in the
// local cache. This backs the explicit portal-wide sync action.
func (s *SyncService) ReconcileAll(ctx context.Context) (models.SyncResult, error) {
	scopes, err := s.cache.PendingScopes()
	if err != nil {
		return models.SyncResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan local attendance")
	}
	return s.ReconcileScopes(ctx, scopes)
}

// ReconcileScopes reconciles the provided scopes sequentially and sums the
// results. Used by the explicit portal-wide sync action.
func (s *SyncService) ReconcileScopes(ctx context.Context, scopes []models.AttendanceScope) (models.SyncResult, error) {
	total := models.SyncResult{}
	for _, scope := range scopes {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		res, err := s.Reconcile(ctx, scope)
		if err != nil {
			return total, err
		}
		total.Succeeded += res.Succeeded
		total.StillUnsynced += res.StillUnsynced
	}
	return total, nil
}
