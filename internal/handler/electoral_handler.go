package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/service"
	appErrors "github.com/glorious-schools/portal-api/pkg/errors"
	"github.com/glorious-schools/portal-api/pkg/response"
)

// deviceFingerprintHeader carries the client-computed device identifier used
// to flag shared-device voting. Falls back to the client IP when absent.
const deviceFingerprintHeader = "X-Device-Fingerprint"

// ElectoralHandler exposes the prefect election endpoints.
type ElectoralHandler struct {
	electoral *service.ElectoralService
}

// NewElectoralHandler constructs ElectoralHandler.
func NewElectoralHandler(electoral *service.ElectoralService) *ElectoralHandler {
	return &ElectoralHandler{electoral: electoral}
}

// Positions godoc
// @Summary List prefect positions on the ballot
// @Tags Electoral
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /electoral/positions [get]
func (h *ElectoralHandler) Positions(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.electoral.Positions(), nil)
}

// Apply godoc
// @Summary Submit a candidacy application
// @Tags Electoral
// @Accept json
// @Produce json
// @Param payload body models.ApplyRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /electoral/applications [post]
func (h *ElectoralHandler) Apply(c *gin.Context) {
	var req models.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	application, err := h.electoral.Apply(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, application)
}

// Applications godoc
// @Summary List candidacy applications
// @Tags Electoral
// @Produce json
// @Param status query string false "Filter by status (PENDING, APPROVED, REJECTED)"
// @Success 200 {object} response.Envelope
// @Router /electoral/applications [get]
func (h *ElectoralHandler) Applications(c *gin.Context) {
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	applications, err := h.electoral.ListApplications(c.Request.Context(), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, nil)
}

type reviewApplicationRequest struct {
	Approve bool `json:"approve"`
}

// Review godoc
// @Summary Approve or reject a candidacy application
// @Tags Electoral
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body reviewApplicationRequest true "Review decision"
// @Success 204 {object} response.Envelope
// @Router /electoral/applications/{id}/review [post]
func (h *ElectoralHandler) Review(c *gin.Context) {
	var req reviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.electoral.Review(c.Request.Context(), c.Param("id"), claims.UserID, req.Approve); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Candidates godoc
// @Summary List approved candidates
// @Tags Electoral
// @Produce json
// @Param position query string false "Filter by position"
// @Success 200 {object} response.Envelope
// @Router /electoral/candidates [get]
func (h *ElectoralHandler) Candidates(c *gin.Context) {
	candidates, err := h.electoral.Candidates(c.Request.Context(), c.Query("position"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}

// Vote godoc
// @Summary Cast a vote for one position
// @Description One ballot per voter per position. Votes outside the voting window are rejected.
// @Tags Electoral
// @Accept json
// @Produce json
// @Param payload body models.CastVoteRequest true "Ballot selection"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /electoral/votes [post]
func (h *ElectoralHandler) Vote(c *gin.Context) {
	var req models.CastVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid vote payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fingerprint := c.GetHeader(deviceFingerprintHeader)
	if fingerprint == "" {
		fingerprint = c.ClientIP()
	}
	vote, err := h.electoral.CastVote(c.Request.Context(), claims.UserID, fingerprint, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, vote)
}

// Receipt godoc
// @Summary Ballot receipt for the caller
// @Description Returns the caller's cast selections. With format=pdf the confirmation is streamed as a PDF.
// @Tags Electoral
// @Produce json
// @Param format query string false "Set to pdf for a printable confirmation"
// @Success 200 {object} response.Envelope
// @Router /electoral/votes/receipt [get]
func (h *ElectoralHandler) Receipt(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if c.Query("format") == "pdf" {
		pdf, err := h.electoral.ReceiptPDF(c.Request.Context(), claims.UserID, claims.FullName)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename=\"ballot_confirmation.pdf\"")
		c.Data(http.StatusOK, "application/pdf", pdf)
		return
	}
	receipt, err := h.electoral.Receipt(c.Request.Context(), claims.UserID, claims.FullName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, receipt, nil)
}

// Results godoc
// @Summary Tally for every position, or one position
// @Tags Electoral
// @Produce json
// @Param position query string false "Limit the tally to one position"
// @Success 200 {object} response.Envelope
// @Router /electoral/results [get]
func (h *ElectoralHandler) Results(c *gin.Context) {
	if position := c.Query("position"); position != "" {
		tally, err := h.electoral.ResultsFor(c.Request.Context(), position)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, tally, nil)
		return
	}
	tallies, err := h.electoral.Results(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tallies, nil)
}
