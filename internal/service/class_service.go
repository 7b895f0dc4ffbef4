package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	ListStreams(ctx context.Context, classID string) ([]models.StreamDetail, error)
	FindStreamByID(ctx context.Context, id string) (*models.StreamDetail, error)
	CreateStream(ctx context.Context, stream *models.Stream) error
}

// CreateClassRequest adds a year group.
type CreateClassRequest struct {
	Name  string `json:"name" validate:"required"`
	Level int    `json:"level" validate:"required,min=1,max=7"`
}

// CreateStreamRequest adds a section under a class.
type CreateStreamRequest struct {
	Name      string  `json:"name" validate:"required"`
	TeacherID *string `json:"teacher_id,omitempty"`
}

// ClassService manages classes and their streams.
type ClassService struct {
	repo      classRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs the class service.
func NewClassService(repo classRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, validator: validate, logger: logger}
}

// List returns classes and pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get fetches one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create adds a class.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class := &models.Class{Name: strings.TrimSpace(req.Name), Level: req.Level}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("name", class.Name))
	return class, nil
}

// Streams returns the streams under a class with roster sizes.
func (s *ClassService) Streams(ctx context.Context, classID string) ([]models.StreamDetail, error) {
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	streams, err := s.repo.ListStreams(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list streams")
	}
	return streams, nil
}

// GetStream fetches one stream with its class name.
func (s *ClassService) GetStream(ctx context.Context, id string) (*models.StreamDetail, error) {
	stream, err := s.repo.FindStreamByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "stream not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stream")
	}
	return stream, nil
}

// CreateStream adds a stream under a class.
func (s *ClassService) CreateStream(ctx context.Context, classID string, req CreateStreamRequest) (*models.Stream, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid stream payload")
	}
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	stream := &models.Stream{ClassID: classID, Name: strings.TrimSpace(req.Name), TeacherID: req.TeacherID}
	if err := s.repo.CreateStream(ctx, stream); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create stream")
	}
	s.logger.Info("stream created",
		zap.String("stream_id", stream.ID),
		zap.String("class_id", classID),
		zap.String("name", stream.Name))
	return stream, nil
}
