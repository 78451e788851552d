package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/handler"
	"github.com/upl-platform/exam-portal/internal/middleware"
	"github.com/upl-platform/exam-portal/internal/response"
	"github.com/upl-platform/exam-portal/internal/service"
)

// Handlers groups all HTTP handlers for dependency injection.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Report        *handler.ReportHandler
	Monitor       *handler.MonitorHandler
}

// SetupRouter creates and configures the Gin engine with all routes.
// limiter may be nil, which disables rate limiting.
func SetupRouter(authService *service.AuthService, handlers *Handlers, limiter *middleware.RateLimiter, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 && cfg.AllowedOrigins[0] != "*" {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(cors.New(corsConfig))
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())
	if limiter != nil {
		router.Use(limiter.Middleware())
	}

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	// ─── 1. Student Group (JWT, student role) ──────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireAuth(authService),
		middleware.RequireStudent(),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/lobby", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/exams/:exam_id/start", handlers.StudentPortal.StartExam)
		studentAPI.GET("/session", handlers.StudentPortal.GetSession)
		studentAPI.DELETE("/session", handlers.StudentPortal.LeaveSession)
		studentAPI.POST("/session/navigate", handlers.StudentPortal.Navigate)
		studentAPI.PUT("/session/answers", handlers.StudentPortal.SelectAnswer)
		studentAPI.POST("/session/submit", handlers.StudentPortal.Submit)
		studentAPI.POST("/logout", handlers.StudentPortal.Logout)
	}

	// ─── 2. WebSocket Group (token in query) ───────────────────────────
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireAuth(authService), middleware.RequireStudent())
	{
		wsGroup.GET("/student/session/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Reports Group (JWT, staff roles) ───────────────────────────
	reports := router.Group("/api/v1/reports")
	reports.Use(middleware.RequireAuth(authService), middleware.RequireStaff())
	{
		reports.GET("/results", handlers.Report.ListResults)
		reports.GET("/results/export", handlers.Report.ExportResults)
		reports.GET("/sessions", handlers.Monitor.ListActiveSessions)
		reports.GET("/exams/:exam_id/monitor", handlers.Monitor.StreamExam)
	}

	return router
}
