package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/config"
	"github.com/stemsi/exstem-examcore/internal/handler"
	"github.com/stemsi/exstem-examcore/internal/middleware"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Exam          *handler.ExamHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// rdb may be nil, in which case rate limits are kept per instance.
func SetupRouter(
	auth middleware.TokenVerifier,
	handlers *Handlers,
	cfg *config.Config,
	rdb *redis.Client,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Start and submit share one budget per student.
	attemptLimiter := middleware.NewRateLimiter("attempt", cfg.SubmitRateLimitPerMinute, time.Minute, rdb, log)

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(auth),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/exams", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/exams/:exam_id/start", attemptLimiter.Middleware(), handlers.StudentPortal.StartExam)
		studentAPI.GET("/exams/:exam_id/questions", handlers.StudentPortal.GetQuestions)
		studentAPI.GET("/exams/:exam_id/state", handlers.StudentPortal.GetState)
		studentAPI.POST("/exams/:exam_id/submit", attemptLimiter.Middleware(), handlers.StudentPortal.SubmitExam)
		studentAPI.GET("/exams/:exam_id/result", handlers.StudentPortal.GetResult)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(auth))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(auth))
	{
		adminAPI.POST("/exams",
			middleware.RequirePermission(string(model.PermissionExamsWrite)),
			handlers.Exam.CreateExam,
		)
		adminAPI.GET("/exams/:id",
			middleware.RequirePermission(string(model.PermissionExamsRead)),
			handlers.Exam.GetExam,
		)
		adminAPI.PUT("/exams/:id",
			middleware.RequirePermission(string(model.PermissionExamsWrite)),
			handlers.Exam.UpdateExam,
		)
		adminAPI.POST("/exams/:id/questions",
			middleware.RequirePermission(string(model.PermissionExamsWrite)),
			handlers.Exam.AddQuestion,
		)
		adminAPI.DELETE("/exams/:id/questions/:question_id",
			middleware.RequirePermission(string(model.PermissionExamsWrite)),
			handlers.Exam.DeleteQuestion,
		)
		adminAPI.GET("/exams/:id/results",
			middleware.RequireAnyPermission(string(model.PermissionResultsRead), string(model.PermissionExamsRead)),
			handlers.Exam.GetExamResults,
		)
		adminAPI.POST("/exams/:id/students/:student_id/allow-retake",
			middleware.RequirePermission(string(model.PermissionAttemptsReset)),
			handlers.Exam.AllowRetake,
		)
	}

	return router
}
