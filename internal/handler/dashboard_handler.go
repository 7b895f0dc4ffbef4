package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/glorious-schools/portal-api/internal/middleware"
	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/service"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
	"github.com/glorious-schools/portal-api/pkg/response"
)

// DashboardHandler serves the admin overview.
type DashboardHandler struct {
	dashboard *service.DashboardService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Admin godoc
// @Summary Admin dashboard
// @Description Headline counts plus the attendance overview for the given date. Defaults to today.
// @Tags Dashboard
// @Produce json
// @Param date query string false "Date (yyyy-MM-dd)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	date := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted yyyy-MM-dd"))
			return
		}
		date = parsed
	}

	start := time.Now()
	dashboard, cached, err := h.dashboard.Admin(c.Request.Context(), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, dashboard, nil, meta)
}
