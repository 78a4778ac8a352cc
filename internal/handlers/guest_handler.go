package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/examforge/exam-engine/internal/services"
	"github.com/examforge/exam-engine/internal/utils"
	"github.com/examforge/exam-engine/internal/validator"
)

// GuestHandler exposes the unauthenticated exam-taking flow. Guests
// identify by display name only, carried in the body on start and in
// the X-Guest-Name header afterwards.
type GuestHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	validator         *validator.Validator
}

func NewGuestHandler(submissionService services.SubmissionService, validator *validator.Validator, logger utils.Logger) *GuestHandler {
	return &GuestHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		validator:         validator,
	}
}

// StartSubmission starts a guest exam session
// @Summary Start a guest submission
// @Tags guest
// @Accept json
// @Produce json
// @Param request body services.StartSubmissionRequest true "Start submission request"
// @Success 201 {object} services.SubmissionResponse
// @Router /guest/submissions [post]
func (h *GuestHandler) StartSubmission(c *gin.Context) {
	var req services.StartSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	caller := services.Caller{}
	if req.GuestName != nil {
		caller.GuestName = strings.TrimSpace(*req.GuestName)
	}

	response, err := h.submissionService.Start(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Guest submission started", "submission_id", response.ID, "exam_id", req.ExamID)
	c.JSON(http.StatusCreated, response)
}

// UpdateAnswers autosaves answers on a guest submission
// @Summary Autosave guest answers
// @Tags guest
// @Accept json
// @Produce json
// @Param id path int true "Submission ID"
// @Param X-Guest-Name header string true "Guest display name"
// @Param request body services.UpdateAnswersRequest true "Answers payload"
// @Success 200 {object} services.AutoSaveResponse
// @Router /guest/submissions/{id}/answers [put]
func (h *GuestHandler) UpdateAnswers(c *gin.Context) {
	caller := guestCallerFromRequest(c)
	if caller.GuestName == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Guest name is required"})
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	response, err := h.submissionService.UpdateAnswers(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// SubmitSubmission finalizes a guest submission
// @Summary Submit a guest exam
// @Tags guest
// @Produce json
// @Param id path int true "Submission ID"
// @Param X-Guest-Name header string true "Guest display name"
// @Success 200 {object} services.SubmissionResponse
// @Router /guest/submissions/{id}/submit [post]
func (h *GuestHandler) SubmitSubmission(c *gin.Context) {
	caller := guestCallerFromRequest(c)
	if caller.GuestName == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Guest name is required"})
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	response, err := h.submissionService.Submit(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Guest submission finalized",
		"submission_id", id,
		"status", response.Status)
	c.JSON(http.StatusOK, response)
}

// GetSubmission returns a guest submission with its answers
// @Summary Get a guest submission
// @Tags guest
// @Produce json
// @Param id path int true "Submission ID"
// @Param X-Guest-Name header string true "Guest display name"
// @Success 200 {object} services.SubmissionResponse
// @Router /guest/submissions/{id} [get]
func (h *GuestHandler) GetSubmission(c *gin.Context) {
	caller := guestCallerFromRequest(c)
	if caller.GuestName == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Guest name is required"})
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	response, err := h.submissionService.GetByID(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetTimeRemaining reports seconds left on a guest submission
// @Summary Get guest remaining time
// @Tags guest
// @Produce json
// @Param id path int true "Submission ID"
// @Param X-Guest-Name header string true "Guest display name"
// @Success 200 {object} map[string]int
// @Router /guest/submissions/{id}/time-remaining [get]
func (h *GuestHandler) GetTimeRemaining(c *gin.Context) {
	caller := guestCallerFromRequest(c)
	if caller.GuestName == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Guest name is required"})
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	remaining, err := h.submissionService.GetTimeRemaining(c.Request.Context(), id, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"time_remaining": remaining})
}
