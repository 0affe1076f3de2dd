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
)

// LobbyStatus is the student's standing on one exam as shown in the lobby.
type LobbyStatus string

const (
	LobbyNotAttempted LobbyStatus = "not_attempted"
	LobbyInProgress   LobbyStatus = "in_progress"
	LobbyCompleted    LobbyStatus = "completed"
	LobbyExpired      LobbyStatus = "expired"
)

// LobbyExam is an exam as listed in the student lobby.
type LobbyExam struct {
	ID              uuid.UUID            `json:"id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	Disclaimer      string               `json:"disclaimer,omitempty"`
	Status          LobbyStatus          `json:"status"`
	ScheduleStart   *time.Time           `json:"schedule_start,omitempty"`
	ScheduleEnd     *time.Time           `json:"schedule_end,omitempty"`
	ScheduleStatus  model.ScheduleStatus `json:"schedule_status"`
	ExpiresAt       *time.Time           `json:"expires_at,omitempty"`
}

// AttemptService drives a student's attempt from start to graded result.
type AttemptService struct {
	exams     ExamReader
	questions QuestionReader
	attempts  AttemptStore
	results   ResultStore
	now       func() time.Time
	rng       engine.Rand
	log       zerolog.Logger
}

// AttemptOption customises an AttemptService.
type AttemptOption func(*AttemptService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AttemptOption {
	return func(s *AttemptService) { s.now = now }
}

// WithRand replaces the shuffle source. It must be safe for concurrent use
// if the service is shared between goroutines.
func WithRand(rng engine.Rand) AttemptOption {
	return func(s *AttemptService) { s.rng = rng }
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	exams ExamReader,
	questions QuestionReader,
	attempts AttemptStore,
	results ResultStore,
	log zerolog.Logger,
	opts ...AttemptOption,
) *AttemptService {
	s := &AttemptService{
		exams:     exams,
		questions: questions,
		attempts:  attempts,
		results:   results,
		now:       time.Now,
		rng:       engine.DefaultRand,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the student's attempt, or resumes it if one is still running.
// The boolean reports whether a new attempt was created.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, bool, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, false, fmt.Errorf("get exam: %w", err)
	}

	now := s.now()
	existing, err := s.attempts.GetAttempt(ctx, examID, studentID)
	switch {
	case err == nil:
		a, err := s.resume(ctx, existing, now)
		return a, false, err
	case !errors.Is(err, engine.ErrNotFound):
		return nil, false, fmt.Errorf("get attempt: %w", err)
	}

	questions, err := s.questions.ListQuestions(ctx, examID)
	if err != nil {
		return nil, false, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, false, fmt.Errorf("%w: exam %s has no questions", engine.ErrInvalidPayload, examID)
	}

	a := engine.NewAttempt(exam.ID, studentID, exam.Duration(), now)
	created, err := s.attempts.CreateAttempt(ctx, a)
	if err != nil {
		return nil, false, fmt.Errorf("create attempt: %w", err)
	}
	if created {
		s.log.Info().
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Time("expires_at", a.ExpiresAt).
			Msg("Attempt started")
		return a, true, nil
	}

	// Another request created the row first; continue with theirs.
	existing, err = s.attempts.GetAttempt(ctx, examID, studentID)
	if err != nil {
		return nil, false, fmt.Errorf("get attempt after conflict: %w", err)
	}
	a, err = s.resume(ctx, existing, now)
	return a, false, err
}

func (s *AttemptService) resume(ctx context.Context, a *model.Attempt, now time.Time) (*model.Attempt, error) {
	if err := s.expireIfOverdue(ctx, a, now); err != nil {
		return nil, err
	}
	if err := engine.GuardStart(a); err != nil {
		return nil, err
	}
	return a, nil
}

// Present returns the randomized paper for the student's running attempt.
// The question order and option mappings are drawn on the first call and
// replayed unchanged afterwards.
func (s *AttemptService) Present(ctx context.Context, examID uuid.UUID, studentID int) (*model.Presentation, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	a, err := s.activeAttempt(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	questions, err := s.questions.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: exam %s has no questions", engine.ErrInvalidPayload, examID)
	}

	plan := engine.PlanPresentation(a, questions, s.rng)
	if !plan.Empty() {
		stored, err := s.attempts.SavePresentation(ctx, a.ID, plan)
		if err != nil {
			return nil, fmt.Errorf("save presentation: %w", err)
		}
		a = stored
	}

	p, err := engine.BuildPresentation(a, exam, questions)
	if err != nil {
		s.logInconsistent(err, a)
		return nil, err
	}
	return p, nil
}

// Submit decodes raw answers against the answer key and grades them.
func (s *AttemptService) Submit(ctx context.Context, examID uuid.UUID, studentID int, raw []model.SubmittedAnswer) (*model.Result, error) {
	questions, err := s.questions.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	entries, err := DecodeAnswers(questions, raw)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, examID, studentID, questions, entries)
}

// SubmitSelections grades already-typed selections.
func (s *AttemptService) SubmitSelections(ctx context.Context, examID uuid.UUID, studentID int, entries []model.AnswerEntry) (*model.Result, error) {
	questions, err := s.questions.ListQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return s.submit(ctx, examID, studentID, questions, entries)
}

func (s *AttemptService) submit(ctx context.Context, examID uuid.UUID, studentID int, questions []model.Question, entries []model.AnswerEntry) (*model.Result, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	a, err := s.activeAttempt(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}

	presented := make(map[uuid.UUID]bool, len(a.QuestionOrder))
	for _, id := range a.QuestionOrder {
		presented[id] = true
	}
	for _, e := range entries {
		if !presented[e.QuestionID] {
			return nil, fmt.Errorf("%w: question %s was not presented", engine.ErrInvalidPayload, e.QuestionID)
		}
	}

	sum, err := engine.Grade(questions, a.OptionMappings, entries, exam.PassPercentage)
	if err != nil {
		s.logInconsistent(err, a)
		return nil, err
	}

	now := s.now()
	a.Status = model.AttemptSubmitted
	a.SubmittedAt = &now
	a.Answers = entries
	a.Score = &sum.Score
	a.TotalQuestions = &sum.TotalQuestions
	a.UpdatedAt = now

	result := sum.Result(a, now)
	if err := s.attempts.SubmitAttempt(ctx, a, result); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Int("total_questions", sum.TotalQuestions).
		Int("correct", sum.Score).
		Float64("obtained_marks", sum.ObtainedMarks).
		Float64("total_marks", sum.TotalMarks).
		Int("percentage", sum.Percentage).
		Int("pass_percentage", sum.PassPercentage).
		Bool("passed", sum.Passed).
		Msg("Attempt graded")

	return result, nil
}

// GetResult returns the stored result for the student's submitted attempt.
func (s *AttemptService) GetResult(ctx context.Context, examID uuid.UUID, studentID int) (*model.Result, error) {
	r, err := s.results.GetResult(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

// State reports the attempt's status and remaining time, expiring it first
// if its deadline has passed.
func (s *AttemptService) State(ctx context.Context, examID uuid.UUID, studentID int) (*model.AttemptState, error) {
	st, _, err := s.loadState(ctx, examID, studentID)
	return st, err
}

// ActiveState is State followed by the running-attempt check applied to
// present and submit. The state is returned even when the check fails.
func (s *AttemptService) ActiveState(ctx context.Context, examID uuid.UUID, studentID int) (*model.AttemptState, error) {
	st, a, err := s.loadState(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	return st, engine.GuardActive(a)
}

func (s *AttemptService) loadState(ctx context.Context, examID uuid.UUID, studentID int) (*model.AttemptState, *model.Attempt, error) {
	a, err := s.attempts.GetAttempt(ctx, examID, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}
	now := s.now()
	if err := s.expireIfOverdue(ctx, a, now); err != nil {
		return nil, nil, err
	}

	var remaining int64
	if a.Status == model.AttemptInProgress {
		remaining = int64(a.Remaining(now) / time.Second)
	}
	return &model.AttemptState{
		AttemptID:        a.ID,
		Status:           a.Status,
		ExpiresAt:        a.ExpiresAt,
		RemainingSeconds: remaining,
	}, a, nil
}

// Lobby lists the active exams whose schedule window is open, each with the
// student's attempt status. Overdue attempts are shown as expired without
// being written.
func (s *AttemptService) Lobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.exams.ListActiveExams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	attempts, err := s.attempts.ListAttemptsByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	byExam := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		byExam[attempts[i].ExamID] = &attempts[i]
	}

	now := s.now()
	lobby := make([]LobbyExam, 0, len(exams))
	for i := range exams {
		e := &exams[i]
		if !e.OfferableAt(now) {
			continue
		}
		item := LobbyExam{
			ID:              e.ID,
			Title:           e.Title,
			DurationMinutes: e.DurationMinutes,
			Disclaimer:      e.Disclaimer,
			Status:          LobbyNotAttempted,
			ScheduleStart:   e.ScheduleStart,
			ScheduleEnd:     e.ScheduleEnd,
			ScheduleStatus:  e.ScheduleStatusAt(now),
		}
		if a, ok := byExam[e.ID]; ok {
			item.Status = lobbyStatus(a, now)
			if item.Status == LobbyInProgress {
				expiresAt := a.ExpiresAt
				item.ExpiresAt = &expiresAt
			}
		}
		lobby = append(lobby, item)
	}
	return lobby, nil
}

func lobbyStatus(a *model.Attempt, now time.Time) LobbyStatus {
	switch {
	case a.Status == model.AttemptSubmitted:
		return LobbyCompleted
	case a.Status == model.AttemptExpired, engine.Overdue(a, now):
		return LobbyExpired
	default:
		return LobbyInProgress
	}
}

// activeAttempt loads the attempt and applies the lazy expiry check. A
// missing attempt counts as not active.
func (s *AttemptService) activeAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	a, err := s.attempts.GetAttempt(ctx, examID, studentID)
	if errors.Is(err, engine.ErrNotFound) {
		return nil, fmt.Errorf("%w: no attempt for exam %s", engine.ErrAttemptNotActive, examID)
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if err := s.expireIfOverdue(ctx, a, s.now()); err != nil {
		return nil, err
	}
	if err := engine.GuardActive(a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AttemptService) expireIfOverdue(ctx context.Context, a *model.Attempt, now time.Time) error {
	if !engine.CheckExpiry(a, now) {
		return nil
	}
	if err := s.attempts.MarkExpired(ctx, a.ID, now); err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	s.log.Info().
		Str("attempt_id", a.ID.String()).
		Int("student_id", a.StudentID).
		Time("expired_at", a.ExpiresAt).
		Msg("Attempt expired")
	return nil
}

func (s *AttemptService) logInconsistent(err error, a *model.Attempt) {
	if errors.Is(err, engine.ErrInconsistentState) {
		s.log.Error().Err(err).
			Str("attempt_id", a.ID.String()).
			Str("exam_id", a.ExamID.String()).
			Int("student_id", a.StudentID).
			Msg("Attempt data is inconsistent")
	}
}

// DecodeAnswers turns raw submitted answers into typed selections using each
// question's single/multi flag. Unknown or malformed question ids and values
// are rejected with engine.ErrInvalidPayload.
func DecodeAnswers(questions []model.Question, raw []model.SubmittedAnswer) ([]model.AnswerEntry, error) {
	multi := make(map[uuid.UUID]bool, len(questions))
	for _, q := range questions {
		multi[q.ID] = q.IsMultipleChoice
	}

	entries := make([]model.AnswerEntry, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad question id %q", engine.ErrInvalidPayload, r.QuestionID)
		}
		isMulti, ok := multi[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %s", engine.ErrInvalidPayload, id)
		}
		sel, err := model.DecodeSelection(r.Selected, isMulti)
		if err != nil {
			return nil, fmt.Errorf("%w: question %s: %v", engine.ErrInvalidPayload, id, err)
		}
		entries = append(entries, model.AnswerEntry{QuestionID: id, Selection: sel})
	}
	return entries, nil
}
