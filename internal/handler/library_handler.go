package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/service"
	"github.com/glorious-schools/portal-api/pkg/response"
)

// LibraryHandler exposes the digital library catalogue.
type LibraryHandler struct {
	library *service.LibraryService
}

// NewLibraryHandler constructs LibraryHandler.
func NewLibraryHandler(library *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// List godoc
// @Summary List library resources
// @Tags Library
// @Produce json
// @Param category query string false "Filter by category"
// @Param subject query string false "Filter by subject"
// @Param classLevel query int false "Filter by class level"
// @Param search query string false "Search by title"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /library [get]
func (h *LibraryHandler) List(c *gin.Context) {
	var filter models.LibraryFilter
	filter.Category = c.Query("category")
	filter.Subject = c.Query("subject")
	if raw := c.Query("classLevel"); raw != "" {
		if level, err := strconv.Atoi(raw); err == nil {
			filter.ClassLevel = &level
		}
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	resources, pagination, err := h.library.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, pagination)
}

// Get godoc
// @Summary Get one library resource
// @Tags Library
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Router /library/{id} [get]
func (h *LibraryHandler) Get(c *gin.Context) {
	resource, err := h.library.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}
