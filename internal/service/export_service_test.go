package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/pkg/storage"
)

type fakeRollCallProvider struct {
	sheet *models.RollCall
}

func (f *fakeRollCallProvider) RollCall(ctx context.Context, scope models.AttendanceScope) (*models.RollCall, error) {
	return f.sheet, nil
}

type fakeStreamFinder struct{}

func (fakeStreamFinder) FindStreamByID(ctx context.Context, id string) (*models.StreamDetail, error) {
	return &models.StreamDetail{Stream: models.Stream{ID: id, Name: "P5 West"}}, nil
}

func registerFixture() *models.RollCall {
	marked := time.Date(2026, time.March, 4, 8, 15, 0, 0, time.UTC)
	reason := "Sick"
	return &models.RollCall{
		StreamID: "stream-p5-west",
		Date:     "2026-03-04",
		Rows: []models.RollCallRow{
			{StudentID: "student-1", StudentName: "Amina Nankya", Status: models.AttendanceStatusPresent, TimeMarked: &marked, Synced: true},
			{StudentID: "student-2", StudentName: "Brian Okello", Status: models.AttendanceStatusAbsent, TimeMarked: &marked, AbsentReason: &reason, Synced: false},
			{StudentID: "student-3", StudentName: "Cissy Apio", Status: models.AttendanceStatusUnmarked},
		},
		Summary: models.RollCallSummary{Total: 3, Present: 1, Absent: 1, Unmarked: 1},
	}
}

func newExportFixture(t *testing.T) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(&fakeRollCallProvider{sheet: registerFixture()}, fakeStreamFinder{}, store, signer, ExportConfig{APIPrefix: "/api/v1"}, nil)
}

func TestExportGenerateCSV(t *testing.T) {
	svc := newExportFixture(t)
	job := &models.ExportJob{
		ID:     "job-1",
		Params: models.ExportJobParams{StreamID: "stream-p5-west", Date: "2026-03-04", Format: models.ExportFormatCSV},
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))
	assert.Equal(t, models.ExportFormatCSV, result.Format)

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()

	buf := make([]byte, 4096)
	n, _ := file.Read(buf)
	content := string(buf[:n])
	assert.Contains(t, content, "Amina Nankya")
	assert.Contains(t, content, "Sick")
	assert.Contains(t, content, "Attendance Rate,50.0%")
}

func TestExportGenerateRejectsBadDate(t *testing.T) {
	svc := newExportFixture(t)
	job := &models.ExportJob{
		ID:     "job-1",
		Params: models.ExportJobParams{StreamID: "stream-p5-west", Date: "04/03/2026", Format: models.ExportFormatCSV},
	}

	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}

func TestExportTokenRoundTrip(t *testing.T) {
	svc := newExportFixture(t)
	job := &models.ExportJob{
		ID:     "job-1",
		Params: models.ExportJobParams{StreamID: "stream-p5-west", Date: "2026-03-04", Format: models.ExportFormatJSON},
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, result.RelativePath, relPath)
}
