package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glorious-schools/portal-api/internal/service"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
	"github.com/glorious-schools/portal-api/pkg/response"
)

// AttendanceHandler wires the roll-call endpoints to the attendance service.
type AttendanceHandler struct {
	service   *service.AttendanceService
	sync      *service.SyncService
	dashboard *service.DashboardService
}

// NewAttendanceHandler creates a new handler. dashboard may be nil when the
// dashboard module is disabled.
func NewAttendanceHandler(svc *service.AttendanceService, sync *service.SyncService, dashboard *service.DashboardService) *AttendanceHandler {
	return &AttendanceHandler{service: svc, sync: sync, dashboard: dashboard}
}

func (h *AttendanceHandler) invalidateDashboards(c *gin.Context) {
	if h.dashboard != nil {
		h.dashboard.Invalidate(c.Request.Context())
	}
}

// RollCall godoc
// @Summary Roll-call sheet for a stream and date
// @Description Returns the merged remote and locally cached marks. Opening the sheet reconciles unsynced marks first.
// @Tags Attendance
// @Produce json
// @Param streamId path string true "Stream ID"
// @Param date path string true "Date (yyyy-MM-dd)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/{streamId}/{date} [get]
func (h *AttendanceHandler) RollCall(c *gin.Context) {
	scope, err := service.ParseScope(c.Param("streamId"), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sheet, err := h.service.RollCall(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Mark godoc
// @Summary Mark one student
// @Description Saves the mark to the local cache first, then pushes to the remote store. A remote failure leaves the mark unsynced.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param streamId path string true "Stream ID"
// @Param date path string true "Date (yyyy-MM-dd)"
// @Param payload body service.MarkRequest true "Mark payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/{streamId}/{date}/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	scope, err := service.ParseScope(c.Param("streamId"), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid mark payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	outcome, err := h.service.Mark(c.Request.Context(), scope, req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboards(c)
	response.JSON(c, http.StatusOK, outcome, nil)
}

// MarkAll godoc
// @Summary Mark every listed student with one status
// @Description Applies a single status to the listed students. Marking everyone absent requires a shared absent_reason.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param streamId path string true "Stream ID"
// @Param date path string true "Date (yyyy-MM-dd)"
// @Param payload body service.BulkMarkRequest true "Bulk mark payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/{streamId}/{date}/mark-all [post]
func (h *AttendanceHandler) MarkAll(c *gin.Context) {
	scope, err := service.ParseScope(c.Param("streamId"), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk mark payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	outcome, err := h.service.MarkAll(c.Request.Context(), scope, req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboards(c)
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Clear godoc
// @Summary Clear the local sheet for a scope
// @Description Drops locally cached marks. Rows already synced to the remote store are not retracted.
// @Tags Attendance
// @Produce json
// @Param streamId path string true "Stream ID"
// @Param date path string true "Date (yyyy-MM-dd)"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/{streamId}/{date} [delete]
func (h *AttendanceHandler) Clear(c *gin.Context) {
	scope, err := service.ParseScope(c.Param("streamId"), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Clear(c.Request.Context(), scope); err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateDashboards(c)
	response.NoContent(c)
}

// Sync godoc
// @Summary Push unsynced marks for every pending scope
// @Description Reconciles all cached scopes that still have unsynced marks.
// @Tags Attendance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attendance/sync [post]
func (h *AttendanceHandler) Sync(c *gin.Context) {
	result, err := h.sync.ReconcileAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
