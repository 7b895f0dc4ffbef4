package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/glorious-schools/portal-api/internal/middleware"
	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/repository"
	"github.com/glorious-schools/portal-api/internal/service"
	"github.com/glorious-schools/portal-api/pkg/response"
)

type attendanceStoreMock struct {
	upserts []models.AttendanceRecord
	fail    bool
}

func (m *attendanceStoreMock) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if m.fail {
		return nil, context.DeadlineExceeded
	}
	m.upserts = append(m.upserts, *record)
	return record, nil
}

func (m *attendanceStoreMock) ListByScope(ctx context.Context, streamID string, date time.Time) ([]models.AttendanceRecord, error) {
	return nil, nil
}

type rosterMock struct {
	students []models.Student
}

func (m *rosterMock) ListByStream(ctx context.Context, streamID string) ([]models.Student, error) {
	return m.students, nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func newAttendanceHandlerFixture(t *testing.T, store *attendanceStoreMock) *AttendanceHandler {
	t.Helper()
	cache, err := repository.NewAttendanceCache(t.TempDir(), nil)
	require.NoError(t, err)
	roster := &rosterMock{students: []models.Student{
		{ID: "stu-1", FirstName: "Amina", LastName: "Nankya", StreamID: "stream-1", Active: true},
		{ID: "stu-2", FirstName: "Brian", LastName: "Okello", StreamID: "stream-1", Active: true},
	}}
	sync := service.NewSyncService(cache, store, nil)
	svc := service.NewAttendanceService(cache, store, roster, sync, nil, nil)
	return NewAttendanceHandler(svc, sync, nil)
}

func TestAttendanceHandlerMark(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &attendanceStoreMock{}
	handler := newAttendanceHandlerFixture(t, store)

	payload, _ := json.Marshal(service.MarkRequest{StudentID: "stu-1", Status: string(models.AttendanceStatusPresent)})
	c, w := newGinContext(http.MethodPost, "/attendance/stream-1/2026-03-04/mark", payload)
	c.Params = gin.Params{{Key: "streamId", Value: "stream-1"}, {Key: "date", Value: "2026-03-04"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	handler.Mark(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.upserts, 1)
	require.Equal(t, "stu-1", store.upserts[0].StudentID)
}

func TestAttendanceHandlerMarkRejectsWeekend(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandlerFixture(t, &attendanceStoreMock{})

	payload, _ := json.Marshal(service.MarkRequest{StudentID: "stu-1", Status: string(models.AttendanceStatusPresent)})
	c, w := newGinContext(http.MethodPost, "/attendance/stream-1/2026-03-07/mark", payload)
	c.Params = gin.Params{{Key: "streamId", Value: "stream-1"}, {Key: "date", Value: "2026-03-07"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	handler.Mark(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, "WEEKEND_DAY", envelope.Error.Code)
}

func TestAttendanceHandlerMarkRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandlerFixture(t, &attendanceStoreMock{})

	payload, _ := json.Marshal(service.MarkRequest{StudentID: "stu-1", Status: string(models.AttendanceStatusPresent)})
	c, w := newGinContext(http.MethodPost, "/attendance/stream-1/2026-03-04/mark", payload)
	c.Params = gin.Params{{Key: "streamId", Value: "stream-1"}, {Key: "date", Value: "2026-03-04"}}

	handler.Mark(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandlerRollCallBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAttendanceHandlerFixture(t, &attendanceStoreMock{})

	c, w := newGinContext(http.MethodGet, "/attendance/stream-1/03-04-2026", nil)
	c.Params = gin.Params{{Key: "streamId", Value: "stream-1"}, {Key: "date", Value: "03-04-2026"}}

	handler.RollCall(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerSyncPushesPendingMarks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &attendanceStoreMock{fail: true}
	handler := newAttendanceHandlerFixture(t, store)

	payload, _ := json.Marshal(service.MarkRequest{StudentID: "stu-2", Status: string(models.AttendanceStatusPresent)})
	c, _ := newGinContext(http.MethodPost, "/attendance/stream-1/2026-03-04/mark", payload)
	c.Params = gin.Params{{Key: "streamId", Value: "stream-1"}, {Key: "date", Value: "2026-03-04"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	handler.Mark(c)

	store.fail = false
	c, w := newGinContext(http.MethodPost, "/attendance/sync", nil)
	handler.Sync(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.upserts, 1)

	var envelope struct {
		Data models.SyncResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, 1, envelope.Data.Succeeded)
	require.Equal(t, 0, envelope.Data.StillUnsynced)
}
