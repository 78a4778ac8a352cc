package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examforge/exam-engine/internal/services"
	"github.com/examforge/exam-engine/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LeaderboardHandler serves exam leaderboards and their export
type LeaderboardHandler struct {
	BaseHandler
	leaderboardService services.LeaderboardService
}

func NewLeaderboardHandler(leaderboardService services.LeaderboardService, logger utils.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		BaseHandler:        NewBaseHandler(logger),
		leaderboardService: leaderboardService,
	}
}

// GetLeaderboard returns the ranked leaderboard for an exam. Auth is
// optional: anonymous and guest callers see it unless the exam hides it.
// @Summary Get exam leaderboard
// @Tags leaderboard
// @Produce json
// @Param id path int true "Exam ID"
// @Success 200 {object} services.LeaderboardResponse
// @Router /exams/{id}/leaderboard [get]
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	caller, ok := callerFromContext(c)
	if !ok {
		caller = guestCallerFromRequest(c)
	}

	response, err := h.leaderboardService.Get(c.Request.Context(), examID, caller)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ExportLeaderboard streams the leaderboard as an xlsx workbook. Only
// the exam creator and staff may export.
// @Summary Export exam leaderboard
// @Tags leaderboard
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Exam ID"
// @Success 200 {file} binary
// @Router /exams/{id}/leaderboard/export [get]
func (h *LeaderboardHandler) ExportLeaderboard(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Authentication required"})
		return
	}

	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	data, filename, err := h.leaderboardService.Export(c.Request.Context(), examID, caller.UserID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Leaderboard exported", "exam_id", examID, "bytes", len(data))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
