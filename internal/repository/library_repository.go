package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/glorious-schools/portal-api/internal/models"
)

// LibraryRepository reads the digital library catalogue.
type LibraryRepository struct {
	db *sqlx.DB
}

// NewLibraryRepository constructs the repository.
func NewLibraryRepository(db *sqlx.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// List returns resources matching the filter.
func (r *LibraryRepository) List(ctx context.Context, filter models.LibraryFilter) ([]models.LibraryResource, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)+1))
		args = append(args, filter.Subject)
	}
	if filter.ClassLevel != nil {
		conditions = append(conditions, fmt.Sprintf("class_level = $%d", len(args)+1))
		args = append(args, *filter.ClassLevel)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(author) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	whereClause := strings.Join(conditions, " AND ")

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"title":      "title",
		"author":     "author",
		"created_at": "created_at",
	}
	if sortBy == "" {
		sortBy = "title"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "title"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, title, author, category, subject, class_level, resource_url, created_at
        FROM library_resources WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`, whereClause, column, order, size, offset)
	var resources []models.LibraryResource
	if err := r.db.SelectContext(ctx, &resources, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list library resources: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM library_resources WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count library resources: %w", err)
	}
	return resources, total, nil
}

// FindByID fetches a single resource.
func (r *LibraryRepository) FindByID(ctx context.Context, id string) (*models.LibraryResource, error) {
	const query = `SELECT id, title, author, category, subject, class_level, resource_url, created_at
        FROM library_resources WHERE id = $1`
	var resource models.LibraryResource
	if err := r.db.GetContext(ctx, &resource, query, id); err != nil {
		return nil, err
	}
	return &resource, nil
}
