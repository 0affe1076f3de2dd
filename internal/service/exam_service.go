package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/response"
)

// ErrExamNotAvailable is returned when an exam exists but its schedule window
// is closed.
var ErrExamNotAvailable = errors.New("exam is not available")

// ExamDetail is an exam together with its full answer key.
type ExamDetail struct {
	model.Exam
	Questions []model.Question `json:"questions"`
}

// ExamService handles exam authoring, the schedule gate and result listing.
type ExamService struct {
	exams     ExamReader
	writer    ExamWriter
	questions QuestionReader
	cache     QuestionInvalidator
	attempts  AttemptStore
	results   ResultStore
	now       func() time.Time
	log       zerolog.Logger
}

// NewExamService creates a new ExamService. cache may be nil.
func NewExamService(
	exams ExamReader,
	writer ExamWriter,
	questions QuestionReader,
	cache QuestionInvalidator,
	attempts AttemptStore,
	results ResultStore,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		writer:    writer,
		questions: questions,
		cache:     cache,
		attempts:  attempts,
		results:   results,
		now:       time.Now,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// CreateExam stores a new exam built from req.
func (s *ExamService) CreateExam(ctx context.Context, req *model.CreateExamRequest) (*model.Exam, error) {
	e := &model.Exam{
		ID:              uuid.New(),
		Title:           req.Title,
		DurationMinutes: req.DurationMinutes,
		Disclaimer:      req.Disclaimer,
		PassPercentage:  model.DefaultPassPercentage,
		ScheduleStart:   req.ScheduleStart,
		ScheduleEnd:     req.ScheduleEnd,
		IsActive:        true,
	}
	if req.PassPercentage != nil {
		e.PassPercentage = *req.PassPercentage
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}

	if err := s.writer.CreateExam(ctx, e); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", e.ID.String()).Str("title", e.Title).Msg("Exam created")
	return e, nil
}

// UpdateExam applies req to an existing exam. Results already stored keep
// the pass percentage they were graded with.
func (s *ExamService) UpdateExam(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	e, err := s.exams.GetExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	req.Apply(e)
	if e.ScheduleStart != nil && e.ScheduleEnd != nil && !e.ScheduleEnd.After(*e.ScheduleStart) {
		return nil, fmt.Errorf("%w: schedule end must be after start", engine.ErrInvalidPayload)
	}
	if err := s.writer.UpdateExam(ctx, e); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return e, nil
}

// GetExam returns the exam with its answer key.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*ExamDetail, error) {
	e, err := s.exams.GetExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	qs, err := s.questions.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if qs == nil {
		qs = []model.Question{}
	}
	return &ExamDetail{Exam: *e, Questions: qs}, nil
}

// AddQuestion validates req against its single/multi flag and appends it to
// the exam.
func (s *ExamService) AddQuestion(ctx context.Context, examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.exams.GetExam(ctx, examID); err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	q, err := req.ToQuestion(examID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidPayload, err)
	}
	q.ID = uuid.New()

	if err := s.writer.CreateQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	s.invalidate(ctx, examID)
	return q, nil
}

// DeleteQuestion removes a question from the exam's answer key.
func (s *ExamService) DeleteQuestion(ctx context.Context, examID, questionID uuid.UUID) error {
	if err := s.writer.DeleteQuestion(ctx, examID, questionID); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	s.invalidate(ctx, examID)
	return nil
}

func (s *ExamService) invalidate(ctx context.Context, examID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, examID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to invalidate question cache")
	}
}

// EnsureOfferable is the schedule gate applied before an attempt is started.
// Inactive exams are reported as not found.
func (s *ExamService) EnsureOfferable(ctx context.Context, examID uuid.UUID) error {
	e, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if !e.IsActive {
		return fmt.Errorf("%w: exam %s is inactive", engine.ErrNotFound, examID)
	}
	if !e.OfferableAt(s.now()) {
		return ErrExamNotAvailable
	}
	return nil
}

// ListResults returns one page of an exam's results.
func (s *ExamService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Result, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	results, total, err := s.results.ListResultsByExam(ctx, examID, limit, offset)
	if err != nil {
		return nil, nil, fmt.Errorf("list results: %w", err)
	}
	if results == nil {
		results = []model.Result{}
	}

	totalPages := (total + perPage - 1) / perPage

	return results, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// AllowRetake deletes a student's attempt and result so they can start again.
func (s *ExamService) AllowRetake(ctx context.Context, examID uuid.UUID, studentID int) error {
	if err := s.attempts.DeleteAttempt(ctx, examID, studentID); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt reset for retake")
	return nil
}
