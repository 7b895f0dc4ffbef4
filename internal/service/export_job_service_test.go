package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/repository"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
	"github.com/glorious-schools/portal-api/pkg/jobs"
)

type fakeExportStore struct {
	jobs    map[string]*models.ExportJob
	updates []repository.UpdateExportJobParams
}

func newFakeExportStore() *fakeExportStore {
	return &fakeExportStore{jobs: map[string]*models.ExportJob{}}
}

func (f *fakeExportStore) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", len(f.jobs)+1)
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeExportStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, errNoRows{}
	}
	copied := *job
	return &copied, nil
}

func (f *fakeExportStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	f.updates = append(f.updates, params)
	job, ok := f.jobs[id]
	if !ok {
		return fmt.Errorf("no such job %s", id)
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		at := *params.FinishedAt
		job.FinishedAt = &at
	}
	return nil
}

func (f *fakeExportStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var queued []models.ExportJob
	for _, job := range f.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (f *fakeExportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	return nil, nil
}

type fakeDispatcher struct {
	enqueued []jobs.Job
	fail     bool
}

func (f *fakeDispatcher) Enqueue(job jobs.Job) error {
	if f.fail {
		return fmt.Errorf("queue stopped")
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

type fakeGenerator struct {
	result *ExportResult
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	return f.result, f.err
}

func TestCreateJobQueuesExport(t *testing.T) {
	store := newFakeExportStore()
	dispatcher := &fakeDispatcher{}
	svc := NewExportJobService(store, dispatcher, nil, nil, nil, ExportJobConfig{})

	job, err := svc.CreateJob(context.Background(), models.CreateExportRequest{
		StreamID: "stream-p5-west",
		Date:     "2026-03-04",
		Format:   "xlsx",
	}, "teacher-9")

	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, models.ExportFormatXLSX, job.Params.Format)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)
}

func TestCreateJobRejectsUnknownFormat(t *testing.T) {
	svc := NewExportJobService(newFakeExportStore(), &fakeDispatcher{}, nil, nil, nil, ExportJobConfig{})

	_, err := svc.CreateJob(context.Background(), models.CreateExportRequest{
		StreamID: "stream-p5-west",
		Date:     "2026-03-04",
		Format:   "docx",
	}, "teacher-9")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateJobMarksFailedWhenEnqueueFails(t *testing.T) {
	store := newFakeExportStore()
	svc := NewExportJobService(store, &fakeDispatcher{fail: true}, nil, nil, nil, ExportJobConfig{})

	_, err := svc.CreateJob(context.Background(), models.CreateExportRequest{
		StreamID: "stream-p5-west",
		Date:     "2026-03-04",
		Format:   "csv",
	}, "teacher-9")

	require.Error(t, err)
	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
	}
}

func TestGetStatusEnforcesTeacherOwnership(t *testing.T) {
	store := newFakeExportStore()
	store.jobs["job-1"] = &models.ExportJob{ID: "job-1", CreatedBy: "teacher-9", Status: models.ExportStatusFinished}
	svc := NewExportJobService(store, &fakeDispatcher{}, nil, nil, nil, ExportJobConfig{})

	_, err := svc.GetStatus(context.Background(), "job-1", "teacher-4", models.RoleTeacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	job, err := svc.GetStatus(context.Background(), "job-1", "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
}

func TestWorkerMarksJobFinished(t *testing.T) {
	store := newFakeExportStore()
	store.jobs["job-1"] = &models.ExportJob{
		ID:     "job-1",
		Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{StreamID: "stream-p5-west", Date: "2026-03-04", Format: models.ExportFormatCSV},
	}
	generator := &fakeGenerator{result: &ExportResult{URL: "/api/v1/export/token-abc", RelativePath: "file.csv"}}
	worker := NewExportWorker(store, generator, 3, nil)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))

	job := store.jobs["job-1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/v1/export/token-abc", *job.ResultURL)
	require.NotNil(t, job.FinishedAt)
}

func TestWorkerRequeuesUntilRetriesExhausted(t *testing.T) {
	store := newFakeExportStore()
	store.jobs["job-1"] = &models.ExportJob{ID: "job-1", Status: models.ExportStatusQueued}
	generator := &fakeGenerator{err: fmt.Errorf("render failed")}
	worker := NewExportWorker(store, generator, 2, nil)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0}))
	assert.Equal(t, models.ExportStatusQueued, store.jobs["job-1"].Status)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2}))
	assert.Equal(t, models.ExportStatusFailed, store.jobs["job-1"].Status)
	require.NotNil(t, store.jobs["job-1"].ErrorMessage)
	assert.Equal(t, "render failed", *store.jobs["job-1"].ErrorMessage)
}
