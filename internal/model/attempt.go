package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates exam attempt states.
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSubmitted || s == AttemptExpired
}

// Attempt is one student's single sitting of one exam.
type Attempt struct {
	ID             uuid.UUID                   `json:"id"`
	ExamID         uuid.UUID                   `json:"exam_id"`
	StudentID      int                         `json:"student_id"`
	Status         AttemptStatus               `json:"status"`
	StartedAt      time.Time                   `json:"started_at"`
	ExpiresAt      time.Time                   `json:"expires_at"`
	SubmittedAt    *time.Time                  `json:"submitted_at,omitempty"`
	QuestionOrder  []uuid.UUID                 `json:"question_order,omitempty"`
	OptionMappings map[uuid.UUID]OptionMapping `json:"option_mappings,omitempty"`
	Answers        []AnswerEntry               `json:"answers,omitempty"`
	Score          *int                        `json:"score,omitempty"`
	TotalQuestions *int                        `json:"total_questions,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// Remaining returns the time left at now, floored at zero.
func (a *Attempt) Remaining(now time.Time) time.Duration {
	if d := a.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Clone returns a deep copy of a.
func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	c := *a
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		c.SubmittedAt = &t
	}
	if a.Score != nil {
		v := *a.Score
		c.Score = &v
	}
	if a.TotalQuestions != nil {
		v := *a.TotalQuestions
		c.TotalQuestions = &v
	}
	if a.QuestionOrder != nil {
		c.QuestionOrder = append([]uuid.UUID(nil), a.QuestionOrder...)
	}
	if a.OptionMappings != nil {
		c.OptionMappings = make(map[uuid.UUID]OptionMapping, len(a.OptionMappings))
		for k, v := range a.OptionMappings {
			c.OptionMappings[k] = v
		}
	}
	if a.Answers != nil {
		c.Answers = make([]AnswerEntry, len(a.Answers))
		for i, e := range a.Answers {
			c.Answers[i] = AnswerEntry{
				QuestionID: e.QuestionID,
				Selection: Selection{
					Kind:    e.Selection.Kind,
					Letters: append([]Letter(nil), e.Selection.Letters...),
				},
			}
		}
	}
	return &c
}

// Presentation is the student's view of an in-progress attempt.
type Presentation struct {
	AttemptID       uuid.UUID           `json:"attempt_id"`
	ExamID          uuid.UUID           `json:"exam_id"`
	Title           string              `json:"title"`
	StartedAt       time.Time           `json:"started_at"`
	ExpiresAt       time.Time           `json:"expires_at"`
	Questions       []PresentedQuestion `json:"questions"`
	PreviousAnswers map[uuid.UUID]any   `json:"previous_answers"`
}

// SubmittedAnswer is one element of the submit payload. Selected is a letter
// string for single-select questions and a list of letters for multi-select.
type SubmittedAnswer struct {
	QuestionID string          `json:"question_id" binding:"required,uuid"`
	Selected   json.RawMessage `json:"selected" binding:"required"`
}

// SubmitExamRequest is the payload for submitting an attempt.
type SubmitExamRequest struct {
	Answers []SubmittedAnswer `json:"answers" binding:"required,dive"`
}

// StartedAttempt is returned by the start endpoint.
type StartedAttempt struct {
	AttemptID uuid.UUID     `json:"attempt_id"`
	Status    AttemptStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// AttemptState is the server-authoritative timer view of an attempt.
type AttemptState struct {
	AttemptID        uuid.UUID     `json:"attempt_id"`
	Status           AttemptStatus `json:"status"`
	ExpiresAt        time.Time     `json:"expires_at"`
	RemainingSeconds int64         `json:"remaining_seconds"`
}
