package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/response"
	"github.com/stemsi/exstem-examcore/internal/service"
	"github.com/stemsi/exstem-examcore/internal/validator"
)

// ExamHandler handles exam management endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// CreateExam godoc
// POST /api/v1/admin/exams
// Creates a new exam. Pass percentage defaults to 50.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), &req)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Created(c, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/admin/exams/:id
// Returns the exam with its questions and answer key.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	detail, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": detail})
}

// UpdateExam godoc
// PUT /api/v1/admin/exams/:id
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.UpdateExam(c.Request.Context(), examID, &req)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// AddQuestion godoc
// POST /api/v1/admin/exams/:id/questions
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.examService.AddQuestion(c.Request.Context(), examID, &req)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Created(c, gin.H{"question": q})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/exams/:id/questions/:question_id
func (h *ExamHandler) DeleteQuestion(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathUUID(c, "question_id")
	if !ok {
		return
	}

	if err := h.examService.DeleteQuestion(c.Request.Context(), examID, questionID); err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GetExamResults godoc
// GET /api/v1/admin/exams/:id/results
// Lists stored results, newest submission first.
func (h *ExamHandler) GetExamResults(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	results, pagination, err := h.examService.ListResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// AllowRetake godoc
// POST /api/v1/admin/exams/:id/students/:student_id/allow-retake
// Deletes the student's attempt and result so they can start over.
func (h *ExamHandler) AllowRetake(c *gin.Context) {
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	studentID, err := strconv.Atoi(c.Param("student_id"))
	if err != nil || studentID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.examService.AllowRetake(c.Request.Context(), examID, studentID); err != nil {
		fail(c, err, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
