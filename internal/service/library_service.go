package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type libraryRepository interface {
	List(ctx context.Context, filter models.LibraryFilter) ([]models.LibraryResource, int, error)
	FindByID(ctx context.Context, id string) (*models.LibraryResource, error)
}

type libraryListing struct {
	Resources  []models.LibraryResource `json:"resources"`
	Pagination models.Pagination        `json:"pagination"`
}

// LibraryService serves the digital library catalogue. Listings are hot read
// paths and go through the cache when one is configured.
type LibraryService struct {
	repo     libraryRepository
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewLibraryService constructs the library service.
func NewLibraryService(repo libraryRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &LibraryService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// List returns catalogue entries and pagination metadata.
func (s *LibraryService) List(ctx context.Context, filter models.LibraryFilter) ([]models.LibraryResource, *models.Pagination, error) {
	key := libraryListKey(filter)
	if s.cache.Enabled() {
		var cached libraryListing
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Resources, &cached.Pagination, nil
		}
	}

	resources, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list library resources")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := models.Pagination{Page: page, PageSize: size, TotalCount: total}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, libraryListing{Resources: resources, Pagination: pagination}, s.cacheTTL)
	}
	return resources, &pagination, nil
}

// Get fetches one catalogue entry.
func (s *LibraryService) Get(ctx context.Context, id string) (*models.LibraryResource, error) {
	resource, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "library resource not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load library resource")
	}
	return resource, nil
}

// InvalidateListings drops cached catalogue pages after catalogue changes.
func (s *LibraryService) InvalidateListings(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "library:list:*"); err != nil {
		s.logger.Warn("library cache invalidation failed", zap.Error(err))
	}
}

func libraryListKey(filter models.LibraryFilter) string {
	level := "any"
	if filter.ClassLevel != nil {
		level = fmt.Sprintf("%d", *filter.ClassLevel)
	}
	return fmt.Sprintf("library:list:%s:%s:%s:%s:%d:%d:%s:%s",
		filter.Category, filter.Subject, level, filter.Search,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}
