package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
)

// ExamReader loads exams. Missing exams are reported as engine.ErrNotFound.
type ExamReader interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListActiveExams(ctx context.Context) ([]model.Exam, error)
}

// ExamWriter persists exam and question authoring changes.
type ExamWriter interface {
	CreateExam(ctx context.Context, e *model.Exam) error
	UpdateExam(ctx context.Context, e *model.Exam) error
	CreateQuestion(ctx context.Context, q *model.Question) error
	DeleteQuestion(ctx context.Context, examID, questionID uuid.UUID) error
}

// QuestionReader returns an exam's answer key ordered by question number.
type QuestionReader interface {
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// QuestionInvalidator drops any cached copy of an exam's answer key.
type QuestionInvalidator interface {
	Invalidate(ctx context.Context, examID uuid.UUID) error
}

// AttemptStore persists attempts. Every status change is conditional on the
// row still being in_progress.
type AttemptStore interface {
	// GetAttempt returns engine.ErrNotFound when the student has no attempt.
	GetAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error)
	// CreateAttempt inserts a unless an attempt for the same exam and student
	// exists, and reports whether a was inserted.
	CreateAttempt(ctx context.Context, a *model.Attempt) (bool, error)
	// MarkExpired flips an in_progress attempt to expired.
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) error
	// SavePresentation stores the plan without overwriting an existing order
	// or mapping and returns the attempt as stored afterwards.
	SavePresentation(ctx context.Context, id uuid.UUID, plan engine.Plan) (*model.Attempt, error)
	// SubmitAttempt moves a from in_progress to submitted and upserts r in one
	// transaction. When the attempt is no longer in progress nothing is
	// written and engine.ErrAttemptTerminal or engine.ErrAttemptNotActive is
	// returned.
	SubmitAttempt(ctx context.Context, a *model.Attempt, r *model.Result) error
	// DeleteAttempt removes the attempt and its result.
	DeleteAttempt(ctx context.Context, examID uuid.UUID, studentID int) error
	// ExpireOverdue expires every in_progress attempt past its deadline.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	ListAttemptsByStudent(ctx context.Context, studentID int) ([]model.Attempt, error)
}

// ResultStore reads graded results.
type ResultStore interface {
	GetResult(ctx context.Context, examID uuid.UUID, studentID int) (*model.Result, error)
	ListResultsByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Result, int, error)
}
