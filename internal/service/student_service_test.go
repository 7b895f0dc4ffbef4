package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
)

type fakeStudentRepo struct {
	emails   map[string]bool
	created  []*models.Student
	details  map[string]*models.StudentDetail
	updated  []*models.Student
	disabled []string
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{emails: map[string]bool{}, details: map[string]*models.StudentDetail{}}
}

func (f *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	return nil, 0, nil
}

func (f *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if detail, ok := f.details[id]; ok {
		return detail, nil
	}
	return nil, errNoRows{}
}

func (f *fakeStudentRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return f.emails[email], nil
}

func (f *fakeStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = "student-new"
	f.emails[student.Email] = true
	f.created = append(f.created, student)
	return nil
}

func (f *fakeStudentRepo) Update(ctx context.Context, student *models.Student) error {
	f.updated = append(f.updated, student)
	return nil
}

func (f *fakeStudentRepo) Deactivate(ctx context.Context, id string) error {
	f.disabled = append(f.disabled, id)
	return nil
}

type errNoRows struct{}

func (errNoRows) Error() string { return "sql: no rows in result set" }

type fakeAccountRepo struct {
	users []*models.User
}

func (f *fakeAccountRepo) Create(ctx context.Context, user *models.User) error {
	f.users = append(f.users, user)
	return nil
}

func TestStudentCreateGeneratesEmailAndPassword(t *testing.T) {
	repo := newFakeStudentRepo()
	accounts := &fakeAccountRepo{}
	svc := NewStudentService(repo, accounts, nil, nil, nil, "glorious.com")

	result, err := svc.Create(context.Background(), models.CreateStudentRequest{
		FirstName: "Amina",
		LastName:  "Nankya",
		ClassID:   "class-p5",
		StreamID:  "stream-p5-west",
	})

	require.NoError(t, err)
	assert.Equal(t, "aminan1@glorious.com", result.Student.Email)
	assert.Len(t, result.Password, 12)
	assert.True(t, strings.ContainsAny(result.Password, passwordUpper))
	assert.True(t, strings.ContainsAny(result.Password, passwordLower))
	assert.True(t, strings.ContainsAny(result.Password, passwordDigits))
	assert.True(t, strings.ContainsAny(result.Password, passwordSymbols))

	require.Len(t, accounts.users, 1)
	assert.Equal(t, models.RoleStudent, accounts.users[0].Role)
	assert.NotEqual(t, result.Password, accounts.users[0].PasswordHash)
}

func TestStudentCreateBumpsEmailSuffixWhenTaken(t *testing.T) {
	repo := newFakeStudentRepo()
	repo.emails["aminan1@glorious.com"] = true
	repo.emails["aminan2@glorious.com"] = true
	svc := NewStudentService(repo, nil, nil, nil, nil, "glorious.com")

	result, err := svc.Create(context.Background(), models.CreateStudentRequest{
		FirstName: "Amina",
		LastName:  "Nankya",
		ClassID:   "class-p5",
		StreamID:  "stream-p5-west",
	})

	require.NoError(t, err)
	assert.Equal(t, "aminan3@glorious.com", result.Student.Email)
}

func TestStudentCreateRejectsTakenExplicitEmail(t *testing.T) {
	repo := newFakeStudentRepo()
	repo.emails["taken@glorious.com"] = true
	svc := NewStudentService(repo, nil, nil, nil, nil, "glorious.com")

	_, err := svc.Create(context.Background(), models.CreateStudentRequest{
		FirstName: "Amina",
		LastName:  "Nankya",
		ClassID:   "class-p5",
		StreamID:  "stream-p5-west",
		Email:     "taken@glorious.com",
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGenerateSecurePasswordMeetsPolicy(t *testing.T) {
	for i := 0; i < 20; i++ {
		password, err := generateSecurePassword(12)
		require.NoError(t, err)
		assert.Len(t, password, 12)
		assert.True(t, strings.ContainsAny(password, passwordUpper))
		assert.True(t, strings.ContainsAny(password, passwordLower))
		assert.True(t, strings.ContainsAny(password, passwordDigits))
		assert.True(t, strings.ContainsAny(password, passwordSymbols))
	}
}
