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

// ClassRepository manages classes and their streams.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes matching the filter, ordered by level.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	whereClause := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, level, created_at, updated_at
        FROM classes WHERE %s ORDER BY level ASC LIMIT %d OFFSET %d`, whereClause, size, offset)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM classes WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID fetches a class by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	var class models.Class
	if err := r.db.GetContext(ctx, &class, "SELECT id, name, level, created_at, updated_at FROM classes WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create inserts a class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, level, created_at, updated_at)
        VALUES (:id, :name, :level, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// ListStreams returns the streams for a class with roster sizes.
func (r *ClassRepository) ListStreams(ctx context.Context, classID string) ([]models.StreamDetail, error) {
	const query = `SELECT st.id, st.class_id, st.name, st.teacher_id, st.created_at, st.updated_at,
        c.name AS class_name,
        COUNT(s.id) FILTER (WHERE s.active) AS student_count
        FROM streams st
        JOIN classes c ON c.id = st.class_id
        LEFT JOIN students s ON s.stream_id = st.id
        WHERE st.class_id = $1
        GROUP BY st.id, st.class_id, st.name, st.teacher_id, st.created_at, st.updated_at, c.name
        ORDER BY st.name`
	var streams []models.StreamDetail
	if err := r.db.SelectContext(ctx, &streams, query, classID); err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	return streams, nil
}

// FindStreamByID fetches one stream with its class name and roster size.
func (r *ClassRepository) FindStreamByID(ctx context.Context, id string) (*models.StreamDetail, error) {
	const query = `SELECT st.id, st.class_id, st.name, st.teacher_id, st.created_at, st.updated_at,
        c.name AS class_name,
        COUNT(s.id) FILTER (WHERE s.active) AS student_count
        FROM streams st
        JOIN classes c ON c.id = st.class_id
        LEFT JOIN students s ON s.stream_id = st.id
        WHERE st.id = $1
        GROUP BY st.id, st.class_id, st.name, st.teacher_id, st.created_at, st.updated_at, c.name`
	var stream models.StreamDetail
	if err := r.db.GetContext(ctx, &stream, query, id); err != nil {
		return nil, err
	}
	return &stream, nil
}

// CreateStream inserts a stream under a class.
func (r *ClassRepository) CreateStream(ctx context.Context, stream *models.Stream) error {
	if stream.ID == "" {
		stream.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if stream.CreatedAt.IsZero() {
		stream.CreatedAt = now
	}
	stream.UpdatedAt = now
	const query = `INSERT INTO streams (id, class_id, name, teacher_id, created_at, updated_at)
        VALUES (:id, :class_id, :name, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, stream); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

// CountStreams returns the total number of streams.
func (r *ClassRepository) CountStreams(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM streams"); err != nil {
		return 0, fmt.Errorf("count streams: %w", err)
	}
	return total, nil
}
