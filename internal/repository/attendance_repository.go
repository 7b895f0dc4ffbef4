package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/glorious-schools/portal-api/internal/models"
)

// AttendanceRepository handles persistence for the remote attendance store.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert inserts or updates the record keyed by (student_id, stream_id, date).
// The newest write wins: conflicting rows take the incoming status, reason,
// marker and timestamps.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	query := `INSERT INTO attendance (id, student_id, stream_id, date, status, absent_reason, marked_by, marked_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (student_id, stream_id, date)
DO UPDATE SET status = EXCLUDED.status, absent_reason = EXCLUDED.absent_reason, marked_by = EXCLUDED.marked_by, marked_at = EXCLUDED.marked_at, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, stream_id, date, status, absent_reason, marked_by, marked_at, created_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query,
		record.ID, record.StudentID, record.StreamID, record.Date, record.Status,
		record.AbsentReason, record.MarkedBy, record.MarkedAt, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// ListByScope returns the persisted rows for one stream on one date.
func (r *AttendanceRepository) ListByScope(ctx context.Context, streamID string, date time.Time) ([]models.AttendanceRecord, error) {
	query := `SELECT id, student_id, stream_id, date, status, absent_reason, marked_by, marked_at, created_at, updated_at
FROM attendance
WHERE stream_id = $1 AND date = $2`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, streamID, date); err != nil {
		return nil, fmt.Errorf("list attendance by scope: %w", err)
	}
	return rows, nil
}

// List returns attendance rows matching the provided filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StreamID != "" {
		where = append(where, fmt.Sprintf("stream_id = $%d", len(args)+1))
		args = append(args, filter.StreamID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil && filter.Status.Valid() {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")
	sortBy := filter.SortBy
	allowedSort := map[string]string{
		"date":      "date",
		"status":    "status",
		"marked_at": "marked_at",
	}
	if sortBy == "" {
		sortBy = "date"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, stream_id, date, status, absent_reason, marked_by, marked_at, created_at, updated_at
        FROM attendance WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, whereClause, sortColumn, order, size, offset)

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}

// OverviewByDate aggregates per-stream marking counts for one date.
func (r *AttendanceRepository) OverviewByDate(ctx context.Context, date time.Time) ([]models.StreamAttendanceOverview, error) {
	query := `SELECT st.id AS stream_id, st.name AS stream_name,
        COUNT(*) FILTER (WHERE a.status = 'present') AS present,
        COUNT(*) FILTER (WHERE a.status = 'absent') AS absent,
        COUNT(a.id) AS marked
FROM streams st
LEFT JOIN attendance a ON a.stream_id = st.id AND a.date = $1
GROUP BY st.id, st.name
ORDER BY st.name`
	var rows []models.StreamAttendanceOverview
	if err := r.db.SelectContext(ctx, &rows, query, date); err != nil {
		return nil, fmt.Errorf("attendance overview: %w", err)
	}
	return rows, nil
}

// StudentHistory returns a student's persisted attendance, newest first.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	where := []string{"student_id = $1"}
	args := []interface{}{studentID}
	if from != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT id, student_id, stream_id, date, status, absent_reason, marked_by, marked_at, created_at, updated_at
FROM attendance
WHERE %s
ORDER BY date DESC`, strings.Join(where, " AND "))
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return rows, nil
}
