package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/examforge/exam-engine/internal/config"
	"github.com/examforge/exam-engine/internal/models"
	"github.com/examforge/exam-engine/internal/repositories"
	"github.com/examforge/exam-engine/internal/services"
	"github.com/examforge/exam-engine/internal/utils"
	"github.com/examforge/exam-engine/internal/validator"
)

type HandlerManager struct {
	submissionHandler  *SubmissionHandler
	guestHandler       *GuestHandler
	leaderboardHandler *LeaderboardHandler
	authMiddleware     *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		submissionHandler:  NewSubmissionHandler(serviceManager.Submission(), validator, logger),
		guestHandler:       NewGuestHandler(serviceManager.Submission(), validator, logger),
		leaderboardHandler: NewLeaderboardHandler(serviceManager.Leaderboard(), logger),
		authMiddleware:     authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	// Authenticated submission routes
	submissions := v1.Group("/submissions")
	submissions.Use(hm.authMiddleware.AuthMiddleware())
	{
		submissions.POST("", hm.submissionHandler.StartSubmission)
		submissions.GET("", hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleProctor, models.RoleAdmin), hm.submissionHandler.ListSubmissions)
		submissions.GET("/:id", hm.submissionHandler.GetSubmission)
		submissions.PUT("/:id/answers", hm.submissionHandler.UpdateAnswers)
		submissions.POST("/:id/submit", hm.submissionHandler.SubmitSubmission)
		submissions.GET("/:id/time-remaining", hm.submissionHandler.GetTimeRemaining)
		submissions.POST("/:id/proctoring", hm.submissionHandler.RecordProctoringEvent)
	}

	// Guest routes, no authentication
	guest := v1.Group("/guest/submissions")
	{
		guest.POST("", hm.guestHandler.StartSubmission)
		guest.GET("/:id", hm.guestHandler.GetSubmission)
		guest.PUT("/:id/answers", hm.guestHandler.UpdateAnswers)
		guest.POST("/:id/submit", hm.guestHandler.SubmitSubmission)
		guest.GET("/:id/time-remaining", hm.guestHandler.GetTimeRemaining)
	}

	// Leaderboard routes
	exams := v1.Group("/exams")
	{
		exams.GET("/:id/leaderboard", hm.authMiddleware.OptionalAuthMiddleware(), hm.leaderboardHandler.GetLeaderboard)
		exams.GET("/:id/leaderboard/export",
			hm.authMiddleware.AuthMiddleware(),
			hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleProctor, models.RoleAdmin),
			hm.leaderboardHandler.ExportLeaderboard)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "exam-engine",
		})
	})
}
