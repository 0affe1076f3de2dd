package model

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// MinMarks is the smallest weight a question may carry.
const MinMarks = 0.5

// Question is one exam question together with its answer key.
// CorrectOption is used for single-select questions and CorrectOptions for
// multi-select ones; IsMultipleChoice decides which.
type Question struct {
	ID               uuid.UUID `json:"id"`
	ExamID           uuid.UUID `json:"exam_id"`
	QuestionNumber   *int      `json:"question_number,omitempty"`
	QuestionText     string    `json:"question_text"`
	OptionA          string    `json:"option_a"`
	OptionB          string    `json:"option_b"`
	OptionC          string    `json:"option_c"`
	OptionD          string    `json:"option_d"`
	IsMultipleChoice bool      `json:"is_multiple_choice"`
	CorrectOption    Letter    `json:"correct_option,omitempty"`
	CorrectOptions   []Letter  `json:"correct_options,omitempty"`
	Marks            float64   `json:"marks"`
}

// Options returns the option texts in canonical order.
func (q *Question) Options() [4]string {
	return [4]string{q.OptionA, q.OptionB, q.OptionC, q.OptionD}
}

// PresentedQuestion is a question as shown to one student: options relabelled
// by that student's mapping and no answer key.
type PresentedQuestion struct {
	ID               uuid.UUID `json:"id"`
	QuestionText     string    `json:"question_text"`
	OptionA          string    `json:"option_a"`
	OptionB          string    `json:"option_b"`
	OptionC          string    `json:"option_c"`
	OptionD          string    `json:"option_d"`
	IsMultipleChoice bool      `json:"is_multiple_choice"`
	Marks            float64   `json:"marks"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	QuestionNumber   *int     `json:"question_number" binding:"omitempty,min=1"`
	QuestionText     string   `json:"question_text" binding:"required,min=1,max=2000"`
	OptionA          string   `json:"option_a" binding:"required,max=1000"`
	OptionB          string   `json:"option_b" binding:"required,max=1000"`
	OptionC          string   `json:"option_c" binding:"required,max=1000"`
	OptionD          string   `json:"option_d" binding:"required,max=1000"`
	IsMultipleChoice bool     `json:"is_multiple_choice"`
	CorrectOption    string   `json:"correct_option" binding:"omitempty,letter"`
	CorrectOptions   []string `json:"correct_options" binding:"omitempty,max=4,unique,dive,letter"`
	Marks            float64  `json:"marks" binding:"required,gte=0.5"`
}

// ToQuestion checks the answer key matches the question kind and builds the
// Question for examID.
func (r *AddQuestionRequest) ToQuestion(examID uuid.UUID) (*Question, error) {
	q := &Question{
		ExamID:           examID,
		QuestionNumber:   r.QuestionNumber,
		QuestionText:     r.QuestionText,
		OptionA:          r.OptionA,
		OptionB:          r.OptionB,
		OptionC:          r.OptionC,
		OptionD:          r.OptionD,
		IsMultipleChoice: r.IsMultipleChoice,
		Marks:            r.Marks,
	}
	if q.Marks < MinMarks {
		return nil, fmt.Errorf("marks must be at least %.1f", MinMarks)
	}

	if r.IsMultipleChoice {
		if len(r.CorrectOptions) == 0 {
			return nil, fmt.Errorf("multi-select question needs at least one correct option")
		}
		for _, s := range r.CorrectOptions {
			l, err := ParseLetter(s)
			if err != nil {
				return nil, err
			}
			if slices.Contains(q.CorrectOptions, l) {
				return nil, fmt.Errorf("correct option %s listed twice", l)
			}
			q.CorrectOptions = append(q.CorrectOptions, l)
		}
		return q, nil
	}

	l, err := ParseLetter(r.CorrectOption)
	if err != nil {
		return nil, fmt.Errorf("single-select question needs a correct option: %w", err)
	}
	q.CorrectOption = l
	return q, nil
}
