package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
)

type attemptKey struct {
	examID    uuid.UUID
	studentID int
}

// MemoryStore keeps exams, questions, attempts and results in process memory.
// It follows the same conditional-update rules as the PostgreSQL
// repositories and hands out copies, never its own records.
type MemoryStore struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]*model.Exam
	questions map[uuid.UUID][]model.Question
	attempts  map[attemptKey]*model.Attempt
	byID      map[uuid.UUID]attemptKey
	results   map[attemptKey]*model.Result
	now       func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		exams:     make(map[uuid.UUID]*model.Exam),
		questions: make(map[uuid.UUID][]model.Question),
		attempts:  make(map[attemptKey]*model.Attempt),
		byID:      make(map[uuid.UUID]attemptKey),
		results:   make(map[attemptKey]*model.Result),
		now:       time.Now,
	}
}

// ─── Exams ─────────────────────────────────────────────────────────────

// GetExam returns a copy of the exam with the given ID.
func (m *MemoryStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, fmt.Errorf("%w: exam %s", engine.ErrNotFound, id)
	}
	return cloneExam(e), nil
}

// ListActiveExams returns every exam flagged active.
func (m *MemoryStore) ListActiveExams(_ context.Context) ([]model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Exam
	for _, e := range m.exams {
		if e.IsActive {
			out = append(out, *cloneExam(e))
		}
	}
	slices.SortFunc(out, func(a, b model.Exam) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// CreateExam stores a new exam.
func (m *MemoryStore) CreateExam(_ context.Context, e *model.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := m.now()
	e.CreatedAt, e.UpdatedAt = now, now
	m.exams[e.ID] = cloneExam(e)
	return nil
}

// UpdateExam replaces an existing exam.
func (m *MemoryStore) UpdateExam(_ context.Context, e *model.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[e.ID]; !ok {
		return fmt.Errorf("%w: exam %s", engine.ErrNotFound, e.ID)
	}
	e.UpdatedAt = m.now()
	m.exams[e.ID] = cloneExam(e)
	return nil
}

func cloneExam(e *model.Exam) *model.Exam {
	c := *e
	if e.ScheduleStart != nil {
		t := *e.ScheduleStart
		c.ScheduleStart = &t
	}
	if e.ScheduleEnd != nil {
		t := *e.ScheduleEnd
		c.ScheduleEnd = &t
	}
	return &c
}

// ─── Questions ─────────────────────────────────────────────────────────

// ListQuestions returns the exam's questions ordered by question number.
func (m *MemoryStore) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.questions[examID]
	out := make([]model.Question, len(src))
	for i := range src {
		out[i] = cloneQuestion(src[i])
	}
	slices.SortStableFunc(out, compareQuestionNumber)
	return out, nil
}

// CreateQuestion adds a question to its exam.
func (m *MemoryStore) CreateQuestion(_ context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.exams[q.ExamID]; !ok {
		return fmt.Errorf("%w: exam %s", engine.ErrNotFound, q.ExamID)
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	m.questions[q.ExamID] = append(m.questions[q.ExamID], cloneQuestion(*q))
	return nil
}

// DeleteQuestion removes a question from an exam.
func (m *MemoryStore) DeleteQuestion(_ context.Context, examID, questionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := m.questions[examID]
	i := slices.IndexFunc(qs, func(q model.Question) bool { return q.ID == questionID })
	if i < 0 {
		return fmt.Errorf("%w: question %s", engine.ErrNotFound, questionID)
	}
	m.questions[examID] = slices.Delete(qs, i, i+1)
	return nil
}

// Unnumbered questions sort after numbered ones.
func compareQuestionNumber(a, b model.Question) int {
	switch {
	case a.QuestionNumber == nil && b.QuestionNumber == nil:
		return 0
	case a.QuestionNumber == nil:
		return 1
	case b.QuestionNumber == nil:
		return -1
	}
	return cmp.Compare(*a.QuestionNumber, *b.QuestionNumber)
}

func cloneQuestion(q model.Question) model.Question {
	if q.QuestionNumber != nil {
		n := *q.QuestionNumber
		q.QuestionNumber = &n
	}
	q.CorrectOptions = slices.Clone(q.CorrectOptions)
	return q
}

// ─── Attempts ──────────────────────────────────────────────────────────

// GetAttempt returns the student's attempt for an exam.
func (m *MemoryStore) GetAttempt(_ context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptKey{examID, studentID}]
	if !ok {
		return nil, fmt.Errorf("%w: attempt for student %d", engine.ErrNotFound, studentID)
	}
	return a.Clone(), nil
}

// CreateAttempt stores a unless the student already has an attempt for
// the exam, in which case it reports false.
func (m *MemoryStore) CreateAttempt(_ context.Context, a *model.Attempt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attemptKey{a.ExamID, a.StudentID}
	if _, exists := m.attempts[key]; exists {
		return false, nil
	}
	m.attempts[key] = a.Clone()
	m.byID[a.ID] = key
	return true, nil
}

// MarkExpired moves a running attempt to expired.
func (m *MemoryStore) MarkExpired(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.attemptByID(id); a != nil && a.Status == model.AttemptInProgress {
		a.Status = model.AttemptExpired
		a.UpdatedAt = now
	}
	return nil
}

// SavePresentation fills in the question order and mappings that are
// still missing and returns the stored attempt.
func (m *MemoryStore) SavePresentation(_ context.Context, id uuid.UUID, plan engine.Plan) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.attemptByID(id)
	if a == nil {
		return nil, fmt.Errorf("%w: attempt %s", engine.ErrNotFound, id)
	}
	if err := engine.GuardActive(a); err != nil {
		return nil, err
	}

	if len(a.QuestionOrder) == 0 && plan.Order != nil {
		a.QuestionOrder = slices.Clone(plan.Order)
	}
	for qid, mapping := range plan.Mappings {
		if a.OptionMappings == nil {
			a.OptionMappings = make(map[uuid.UUID]model.OptionMapping)
		}
		if _, taken := a.OptionMappings[qid]; !taken {
			a.OptionMappings[qid] = mapping
		}
	}
	a.UpdatedAt = m.now()
	return a.Clone(), nil
}

// SubmitAttempt records the graded attempt and its result together.
func (m *MemoryStore) SubmitAttempt(_ context.Context, a *model.Attempt, r *model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.attemptByID(a.ID)
	if stored == nil {
		return fmt.Errorf("%w: attempt %s", engine.ErrNotFound, a.ID)
	}
	if err := engine.GuardActive(stored); err != nil {
		return err
	}
	if a.SubmittedAt == nil || a.SubmittedAt.After(stored.ExpiresAt) {
		return fmt.Errorf("%w: attempt %s passed its deadline", engine.ErrAttemptNotActive, a.ID)
	}

	next := a.Clone()
	next.QuestionOrder = stored.QuestionOrder
	next.OptionMappings = stored.OptionMappings
	m.attempts[m.byID[a.ID]] = next

	key := attemptKey{r.ExamID, r.StudentID}
	now := m.now()
	res := *r
	if prev, ok := m.results[key]; ok {
		res.ID = prev.ID
		res.CreatedAt = prev.CreatedAt
	} else {
		res.ID = uuid.New()
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	m.results[key] = &res
	*r = res
	return nil
}

// DeleteAttempt removes the student's attempt and result for an exam.
func (m *MemoryStore) DeleteAttempt(_ context.Context, examID uuid.UUID, studentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attemptKey{examID, studentID}
	a, ok := m.attempts[key]
	if !ok {
		return fmt.Errorf("%w: attempt for student %d", engine.ErrNotFound, studentID)
	}
	delete(m.byID, a.ID)
	delete(m.attempts, key)
	delete(m.results, key)
	return nil
}

// ExpireOverdue expires every running attempt past its deadline.
func (m *MemoryStore) ExpireOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.attempts {
		if engine.CheckExpiry(a, now) {
			n++
		}
	}
	return n, nil
}

// ListAttemptsByStudent returns a student's attempts, newest first.
func (m *MemoryStore) ListAttemptsByStudent(_ context.Context, studentID int) ([]model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Attempt
	for key, a := range m.attempts {
		if key.studentID == studentID {
			out = append(out, *a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Attempt) int { return b.StartedAt.Compare(a.StartedAt) })
	return out, nil
}

func (m *MemoryStore) attemptByID(id uuid.UUID) *model.Attempt {
	key, ok := m.byID[id]
	if !ok {
		return nil
	}
	return m.attempts[key]
}

// ─── Results ───────────────────────────────────────────────────────────

// GetResult returns the student's result for an exam.
func (m *MemoryStore) GetResult(_ context.Context, examID uuid.UUID, studentID int) (*model.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[attemptKey{examID, studentID}]
	if !ok {
		return nil, fmt.Errorf("%w: result for student %d", engine.ErrNotFound, studentID)
	}
	c := *r
	return &c, nil
}

// ListResultsByExam returns one page of an exam's results and the total count.
func (m *MemoryStore) ListResultsByExam(_ context.Context, examID uuid.UUID, limit, offset int) ([]model.Result, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Result
	for key, r := range m.results {
		if key.examID == examID {
			all = append(all, *r)
		}
	}
	slices.SortFunc(all, func(a, b model.Result) int { return b.SubmittedAt.Compare(a.SubmittedAt) })

	total := len(all)
	if offset >= total {
		return []model.Result{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}
