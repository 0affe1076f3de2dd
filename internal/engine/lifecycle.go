package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examcore/internal/model"
)

// NewAttempt builds a fresh in-progress attempt that expires duration after now.
func NewAttempt(examID uuid.UUID, studentID int, duration time.Duration, now time.Time) *model.Attempt {
	return &model.Attempt{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.AttemptInProgress,
		StartedAt: now,
		ExpiresAt: now.Add(duration),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Overdue reports whether an in-progress attempt has run past its deadline.
// The deadline instant itself still counts as active.
func Overdue(a *model.Attempt, now time.Time) bool {
	return a.Status == model.AttemptInProgress && now.After(a.ExpiresAt)
}

// CheckExpiry moves an overdue attempt to expired and reports whether it did.
// The caller persists the transition.
func CheckExpiry(a *model.Attempt, now time.Time) bool {
	if !Overdue(a, now) {
		return false
	}
	a.Status = model.AttemptExpired
	a.UpdatedAt = now
	return true
}

// GuardStart maps an existing attempt's status to the outcome of a start
// request: nil to resume, ErrAttemptTerminal otherwise.
func GuardStart(a *model.Attempt) error {
	switch a.Status {
	case model.AttemptInProgress:
		return nil
	case model.AttemptSubmitted, model.AttemptExpired:
		return fmt.Errorf("%w: attempt %s is %s", ErrAttemptTerminal, a.ID, a.Status)
	default:
		return fmt.Errorf("%w: attempt %s has status %q", ErrInconsistentState, a.ID, a.Status)
	}
}

// GuardActive is the precondition for present and submit: the attempt must
// still be in progress. A submitted attempt yields ErrAttemptTerminal, an
// expired one ErrAttemptNotActive.
func GuardActive(a *model.Attempt) error {
	switch a.Status {
	case model.AttemptInProgress:
		return nil
	case model.AttemptSubmitted:
		return fmt.Errorf("%w: attempt %s was submitted", ErrAttemptTerminal, a.ID)
	default:
		return fmt.Errorf("%w: attempt %s is %s", ErrAttemptNotActive, a.ID, a.Status)
	}
}

// Plan holds the presentation data that still has to be written for an attempt.
type Plan struct {
	// Order is nil when the attempt already has a question order.
	Order []uuid.UUID
	// Mappings holds only the questions that had no mapping yet.
	Mappings map[uuid.UUID]model.OptionMapping
}

// Empty reports whether nothing needs to be persisted.
func (p Plan) Empty() bool {
	return p.Order == nil && len(p.Mappings) == 0
}

// PlanPresentation works out what must be generated for a. A question order
// is drawn only when none is stored; a mapping is drawn only for ordered
// questions that lack one. Stored values are never replaced, and an empty
// order is never drawn.
func PlanPresentation(a *model.Attempt, questions []model.Question, rng Rand) Plan {
	var plan Plan

	order := a.QuestionOrder
	if len(order) == 0 && len(questions) > 0 {
		order = make([]uuid.UUID, len(questions))
		for i := range questions {
			order[i] = questions[i].ID
		}
		Shuffle(order, rng)
		plan.Order = order
	}

	for _, id := range order {
		if _, ok := a.OptionMappings[id]; ok {
			continue
		}
		if plan.Mappings == nil {
			plan.Mappings = make(map[uuid.UUID]model.OptionMapping)
		}
		plan.Mappings[id] = DrawMapping(rng)
	}
	return plan
}

// BuildPresentation renders a's stored order and mappings. Questions in the
// order that no longer exist in the answer key are skipped.
func BuildPresentation(a *model.Attempt, exam *model.Exam, questions []model.Question) (*model.Presentation, error) {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	out := make([]model.PresentedQuestion, 0, len(a.QuestionOrder))
	for _, id := range a.QuestionOrder {
		q, ok := byID[id]
		if !ok {
			continue
		}
		mapping, ok := a.OptionMappings[id]
		if !ok || !mapping.Valid() {
			return nil, fmt.Errorf("%w: attempt %s has no usable mapping for question %s", ErrInconsistentState, a.ID, id)
		}
		out = append(out, PresentQuestion(q, mapping))
	}

	previous := make(map[uuid.UUID]any, len(a.Answers))
	for _, e := range a.Answers {
		previous[e.QuestionID] = e.Selection.ClientValue()
	}

	return &model.Presentation{
		AttemptID:       a.ID,
		ExamID:          a.ExamID,
		Title:           exam.Title,
		StartedAt:       a.StartedAt,
		ExpiresAt:       a.ExpiresAt,
		Questions:       out,
		PreviousAnswers: previous,
	}, nil
}
