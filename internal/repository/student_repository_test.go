package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
)

func TestStudentListByStream(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "class_id", "stream_id", "photo_url", "active", "created_at", "updated_at"}).
		AddRow("student-1", "Amina", "Nankya", "aminan1@glorious.com", "class-p5", "stream-p5-west", nil, true, now, now).
		AddRow("student-2", "Brian", "Okello", "briano1@glorious.com", "class-p5", "stream-p5-west", nil, true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE stream_id = $1 AND active = true")).
		WithArgs("stream-p5-west").
		WillReturnRows(rows)

	students, err := repo.ListByStream(context.Background(), "stream-p5-west")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Amina Nankya", students[0].FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentExistsByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("aminan1@glorious.com").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByEmail(context.Background(), "aminan1@glorious.com")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("fresh@glorious.com").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsByEmail(context.Background(), "fresh@glorious.com")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{
		FirstName: "Amina",
		LastName:  "Nankya",
		Email:     "aminan1@glorious.com",
		ClassID:   "class-p5",
		StreamID:  "stream-p5-west",
		Active:    true,
	}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
