package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
)

// QuestionRepository handles question (answer key) data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListQuestions returns the exam's questions ordered by question number,
// unnumbered ones last in insertion order.
func (r *QuestionRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_number, question_text,
		        option_a, option_b, option_c, option_d,
		        is_multiple_choice, correct_option, correct_options, marks
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY question_number ASC NULLS LAST, created_at ASC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q        model.Question
			single   *string
			multiple []string
		)
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionNumber, &q.QuestionText,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.IsMultipleChoice, &single, &multiple, &q.Marks); err != nil {
			return nil, err
		}
		if single != nil {
			q.CorrectOption = model.Letter(*single)
		}
		for _, l := range multiple {
			q.CorrectOptions = append(q.CorrectOptions, model.Letter(l))
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateQuestion inserts a question.
func (r *QuestionRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	var single *string
	if !q.IsMultipleChoice {
		s := string(q.CorrectOption)
		single = &s
	}
	multiple := make([]string, 0, len(q.CorrectOptions))
	for _, l := range q.CorrectOptions {
		multiple = append(multiple, string(l))
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, exam_id, question_number, question_text,
		                        option_a, option_b, option_c, option_d,
		                        is_multiple_choice, correct_option, correct_options, marks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		q.ID, q.ExamID, q.QuestionNumber, q.QuestionText,
		q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.IsMultipleChoice, single, multiple, q.Marks,
	)
	return err
}

// DeleteQuestion removes a question from an exam.
func (r *QuestionRepository) DeleteQuestion(ctx context.Context, examID, questionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM questions WHERE id = $1 AND exam_id = $2`, questionID, examID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: question %s", engine.ErrNotFound, questionID)
	}
	return nil
}
