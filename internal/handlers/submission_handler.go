package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examforge/exam-engine/internal/repositories"
	"github.com/examforge/exam-engine/internal/services"
	"github.com/examforge/exam-engine/internal/utils"
	"github.com/examforge/exam-engine/internal/validator"
)

// SubmissionHandler handles authenticated submission endpoints
type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	validator         *validator.Validator
}

func NewSubmissionHandler(submissionService services.SubmissionService, validator *validator.Validator, logger utils.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		validator:         validator,
	}
}

// StartSubmission starts a new exam session or resumes the active one
// @Summary Start an exam submission
// @Tags submissions
// @Accept json
// @Produce json
// @Param request body services.StartSubmissionRequest true "Start submission request"
// @Success 201 {object} services.SubmissionResponse
// @Router /submissions [post]
func (h *SubmissionHandler) StartSubmission(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	var req services.StartSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	response, err := h.submissionService.Start(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Submission started", "submission_id", response.ID, "exam_id", req.ExamID)
	c.JSON(http.StatusCreated, response)
}

// UpdateAnswers saves a batch of answers on an in-progress submission
// @Summary Autosave submission answers
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path int true "Submission ID"
// @Param request body services.UpdateAnswersRequest true "Answers payload"
// @Success 200 {object} services.AutoSaveResponse
// @Router /submissions/{id}/answers [put]
func (h *SubmissionHandler) UpdateAnswers(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
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

// SubmitSubmission finalizes and grades an in-progress submission
// @Summary Submit an exam
// @Tags submissions
// @Produce json
// @Param id path int true "Submission ID"
// @Success 200 {object} services.SubmissionResponse
// @Router /submissions/{id}/submit [post]
func (h *SubmissionHandler) SubmitSubmission(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
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

	h.LogRequest(c, "Submission finalized",
		"submission_id", id,
		"status", response.Status,
		"score", response.Score)
	c.JSON(http.StatusOK, response)
}

// GetSubmission returns a single submission with its answers
// @Summary Get a submission
// @Tags submissions
// @Produce json
// @Param id path int true "Submission ID"
// @Success 200 {object} services.SubmissionResponse
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
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

// ListSubmissions lists submissions with optional filters (staff only)
// @Summary List submissions
// @Tags submissions
// @Produce json
// @Param exam_id query int false "Filter by exam"
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} services.SubmissionListResponse
// @Router /submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	filters := repositories.SubmissionFilters{
		Limit:  20,
		Offset: 0,
	}
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}

	response, err := h.submissionService.List(c.Request.Context(), filters, caller.UserID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetTimeRemaining reports seconds left on an in-progress submission
// @Summary Get remaining time
// @Tags submissions
// @Produce json
// @Param id path int true "Submission ID"
// @Success 200 {object} map[string]int
// @Router /submissions/{id}/time-remaining [get]
func (h *SubmissionHandler) GetTimeRemaining(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
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

// RecordProctoringEvent appends a proctoring violation or warning
// @Summary Record a proctoring event
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path int true "Submission ID"
// @Param request body services.ProctoringEventRequest true "Proctoring event"
// @Success 204
// @Router /submissions/{id}/proctoring [post]
func (h *SubmissionHandler) RecordProctoringEvent(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ProctoringEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := h.submissionService.RecordProctoringEvent(c.Request.Context(), id, &req, caller); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
