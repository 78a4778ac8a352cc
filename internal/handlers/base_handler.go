package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/examforge/exam-engine/internal/services"
	"github.com/examforge/exam-engine/internal/utils"
)

// BaseHandler carries shared helpers for all HTTP handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// LogRequest logs with the request-scoped logger when available
func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	utils.GetLogger(c, h.logger).Info(msg, args...)
}

// parseIDParam parses a positive uint path parameter; writes the 400
// itself and returns 0 on failure.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
		})
		return 0
	}
	return uint(id)
}

// handleServiceError maps service-layer errors onto HTTP statuses
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	switch {
	case services.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})

	case services.IsPermissionError(err),
		errors.Is(err, services.ErrExamUnavailable),
		errors.Is(err, services.ErrInvalidPassword),
		errors.Is(err, services.ErrLeaderboardHidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrSubmissionFinalized):
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrTimeLimitExceeded),
		errors.Is(err, services.ErrAttemptsExhausted):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Message: err.Error()})

	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrGuestNameRequired),
		errors.Is(err, services.ErrIdentityRequired),
		services.IsValidationError(err),
		strings.Contains(err.Error(), "validation failed"):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})

	default:
		utils.GetLogger(c, h.logger).Error("Unhandled service error",
			"error", err,
			"path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}

// callerFromContext builds the authenticated caller identity set by
// the auth middleware.
func callerFromContext(c *gin.Context) (services.Caller, bool) {
	userID, err := GetUserIDFromContext(c)
	if err != nil {
		return services.Caller{}, false
	}

	caller := services.Caller{UserID: userID}
	if role, err := GetUserRoleFromContext(c); err == nil {
		caller.Role = role
	}
	return caller, true
}

// guestCallerFromRequest builds a guest identity from the request.
// Guests identify by display name only: header first, then query.
func guestCallerFromRequest(c *gin.Context) services.Caller {
	name := strings.TrimSpace(c.GetHeader("X-Guest-Name"))
	if name == "" {
		name = strings.TrimSpace(c.Query("guest_name"))
	}
	return services.Caller{GuestName: name}
}
