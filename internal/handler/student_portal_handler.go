package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-examcore/internal/middleware"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/response"
	"github.com/stemsi/exstem-examcore/internal/service"
	"github.com/stemsi/exstem-examcore/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (lobby, exam taking).
type StudentPortalHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	examService *service.ExamService,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService: attemptService,
		examService:    examService,
	}
}

// GetLobby godoc
// GET /api/v1/student/exams
// Returns the exams open right now with the student's attempt status.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.attemptService.Lobby(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Creates the attempt (201) or resumes the running one (200).
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	claims, examID, ok := studentExam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.examService.EnsureOfferable(ctx, examID); err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	a, created, err := h.attemptService.Start(ctx, examID, claims.UserID)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, model.StartedAttempt{
		AttemptID: a.ID,
		Status:    a.Status,
		StartedAt: a.StartedAt,
		ExpiresAt: a.ExpiresAt,
	})
}

// GetQuestions godoc
// GET /api/v1/student/exams/:exam_id/questions
// Returns the randomized paper. Repeated calls return the same paper.
func (h *StudentPortalHandler) GetQuestions(c *gin.Context) {
	claims, examID, ok := studentExam(c)
	if !ok {
		return
	}

	p, err := h.attemptService.Present(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, p)
}

// GetState godoc
// GET /api/v1/student/exams/:exam_id/state
// Returns the attempt status and the seconds left on the server clock.
func (h *StudentPortalHandler) GetState(c *gin.Context) {
	claims, examID, ok := studentExam(c)
	if !ok {
		return
	}

	st, err := h.attemptService.State(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err, response.ErrAttemptNotActive)
		return
	}

	response.Success(c, http.StatusOK, st)
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
// Grades the answers and finishes the attempt.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	claims, examID, ok := studentExam(c)
	if !ok {
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), examID, claims.UserID, req.Answers)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetResult godoc
// GET /api/v1/student/exams/:exam_id/result
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	claims, examID, ok := studentExam(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		fail(c, err, response.ErrResultNotFound)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// studentExam extracts the caller's claims and the :exam_id parameter,
// writing the error response itself when either is missing.
func studentExam(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, examID, true
}
