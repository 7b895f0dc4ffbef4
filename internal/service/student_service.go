package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

type studentAccountRepository interface {
	Create(ctx context.Context, user *models.User) error
}

type studentHistoryRepository interface {
	StudentHistory(ctx context.Context, studentID string, from, to *time.Time) ([]models.AttendanceRecord, error)
}

// StudentService handles student roster use-cases, including account
// provisioning with generated school emails and passwords.
type StudentService struct {
	repo        studentRepository
	accounts    studentAccountRepository
	history     studentHistoryRepository
	validator   *validator.Validate
	logger      *zap.Logger
	emailDomain string
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, accounts studentAccountRepository, history studentHistoryRepository, validate *validator.Validate, logger *zap.Logger, emailDomain string) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if emailDomain == "" {
		emailDomain = "glorious.com"
	}
	return &StudentService{repo: repo, accounts: accounts, history: history, validator: validate, logger: logger, emailDomain: emailDomain}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get fetches one student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}

// Create provisions a new student. When no email is supplied one is
// generated from the student's name; a one-time password is always
// generated and returned exactly once.
func (s *StudentService) Create(ctx context.Context, req models.CreateStudentRequest) (*models.ProvisionedStudent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		generated, err := s.generateSchoolEmail(ctx, req.FirstName, req.LastName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate school email")
		}
		email = generated
	} else {
		taken, err := s.repo.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already in use")
		}
	}

	password, err := generateSecurePassword(12)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	student := &models.Student{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     email,
		ClassID:   req.ClassID,
		StreamID:  req.StreamID,
		Active:    true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if s.accounts != nil {
		account := &models.User{
			ID:           student.ID,
			Email:        email,
			PasswordHash: string(hash),
			FullName:     student.FullName(),
			Role:         models.RoleStudent,
			Active:       true,
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student account")
		}
	}

	s.logger.Info("student provisioned",
		zap.String("student_id", student.ID),
		zap.String("email", email),
		zap.String("stream_id", student.StreamID))
	return &models.ProvisionedStudent{Student: *student, Password: password}, nil
}

// Update applies partial changes to a student.
func (s *StudentService) Update(ctx context.Context, id string, req models.UpdateStudentRequest) (*models.StudentDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	student := detail.Student
	if req.FirstName != nil {
		student.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		student.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.ClassID != nil {
		student.ClassID = *req.ClassID
	}
	if req.StreamID != nil {
		student.StreamID = *req.StreamID
	}
	if req.PhotoURL != nil {
		student.PhotoURL = req.PhotoURL
	}
	if req.Active != nil {
		student.Active = *req.Active
	}

	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return s.Get(ctx, id)
}

// AttendanceHistory returns the student's attendance rows from the remote
// store, optionally bounded by a date range.
func (s *StudentService) AttendanceHistory(ctx context.Context, id string, from, to *time.Time) ([]models.AttendanceRecord, error) {
	if s.history == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "attendance history unavailable")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	records, err := s.history.StudentHistory(ctx, id, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return records, nil
}

// Deactivate soft-deletes a student.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	return nil
}

// generateSchoolEmail builds "<first><last-initial><n>@<domain>", bumping n
// until the address is free.
func (s *StudentService) generateSchoolEmail(ctx context.Context, firstName, lastName string) (string, error) {
	first := sanitizeEmailPart(firstName)
	lastInitial := ""
	if cleaned := sanitizeEmailPart(lastName); cleaned != "" {
		lastInitial = cleaned[:1]
	}
	if first == "" {
		first = "student"
	}

	for n := 1; n <= 999; n++ {
		candidate := fmt.Sprintf("%s%s%d@%s", first, lastInitial, n, s.emailDomain)
		taken, err := s.repo.ExistsByEmail(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free email variant for %s %s", firstName, lastName)
}

func sanitizeEmailPart(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const (
	passwordUpper   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordLower   = "abcdefghijkmnpqrstuvwxyz"
	passwordDigits  = "23456789"
	passwordSymbols = "!@#$%&*"
)

// generateSecurePassword returns a random password guaranteed to contain at
// least one character from each class.
func generateSecurePassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}
	classes := []string{passwordUpper, passwordLower, passwordDigits, passwordSymbols}
	all := strings.Join(classes, "")

	chars := make([]byte, 0, length)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates so the guaranteed characters are not clustered up front.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		chars[i], chars[j.Int64()] = chars[j.Int64()], chars[i]
	}
	return string(chars), nil
}

func randomChar(pool string) (byte, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return 0, err
	}
	return pool[idx.Int64()], nil
}
