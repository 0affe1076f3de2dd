package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the graded outcome of a submitted attempt.
type Result struct {
	ID             uuid.UUID `json:"id"`
	ExamID         uuid.UUID `json:"exam_id"`
	StudentID      int       `json:"student_id"`
	AttemptID      uuid.UUID `json:"attempt_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	ObtainedMarks  float64   `json:"obtained_marks"`
	TotalMarks     float64   `json:"total_marks"`
	Percentage     int       `json:"percentage"`
	PassPercentage int       `json:"pass_percentage"`
	Passed         bool      `json:"passed"`
	SubmittedAt    time.Time `json:"submitted_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
