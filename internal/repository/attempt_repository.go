package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
)

const attemptColumns = `id, exam_id, student_id, status, started_at, expires_at, submitted_at,
	question_order, option_mappings, answers, score, total_questions, created_at, updated_at`

// AttemptRepository handles attempt and result data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetAttempt retrieves the attempt for an exam-student pair.
func (r *AttemptRepository) GetAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID)
	a, err := scanAttempt(row)
	if err != nil {
		return nil, notFound(err, "attempt for student %d", studentID)
	}
	return a, nil
}

// CreateAttempt inserts the attempt unless one already exists for the pair.
func (r *AttemptRepository) CreateAttempt(ctx context.Context, a *model.Attempt) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, student_id, status, started_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING created_at, updated_at`,
		a.ID, a.ExamID, a.StudentID, a.Status, a.StartedAt, a.ExpiresAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkExpired flips an in_progress attempt to expired. Other states are left alone.
func (r *AttemptRepository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = $4`,
		id, model.AttemptExpired, now, model.AttemptInProgress)
	return err
}

// SavePresentation writes the question order only if none is stored and adds
// mappings only for questions without one; existing JSON keys win the merge.
func (r *AttemptRepository) SavePresentation(ctx context.Context, id uuid.UUID, plan engine.Plan) (*model.Attempt, error) {
	var order []byte
	if plan.Order != nil {
		b, err := json.Marshal(plan.Order)
		if err != nil {
			return nil, fmt.Errorf("encode question order: %w", err)
		}
		order = b
	}
	mappings, err := json.Marshal(plan.Mappings)
	if err != nil {
		return nil, fmt.Errorf("encode option mappings: %w", err)
	}
	if plan.Mappings == nil {
		mappings = []byte(`{}`)
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET question_order  = COALESCE(NULLIF(question_order, '[]'::jsonb), $2::jsonb),
		     option_mappings = $3::jsonb || option_mappings,
		     updated_at      = NOW()
		 WHERE id = $1 AND status = $4
		 RETURNING `+attemptColumns,
		id, nullableJSON(order), string(mappings), model.AttemptInProgress)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.inactiveReason(ctx, r.pool, id)
	}
	return a, err
}

// SubmitAttempt performs the in_progress → submitted compare-and-set and the
// result upsert in one transaction.
func (r *AttemptRepository) SubmitAttempt(ctx context.Context, a *model.Attempt, res *model.Result) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $2, submitted_at = $3, answers = $4::jsonb,
		     score = $5, total_questions = $6, updated_at = $3
		 WHERE id = $1 AND status = $7 AND expires_at >= $3`,
		a.ID, model.AttemptSubmitted, a.SubmittedAt, string(answers),
		a.Score, a.TotalQuestions, model.AttemptInProgress)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.inactiveReason(ctx, tx, a.ID)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO results (id, exam_id, student_id, attempt_id, score, total_questions,
		                      obtained_marks, total_marks, percentage, pass_percentage,
		                      passed, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET attempt_id = EXCLUDED.attempt_id, score = EXCLUDED.score,
		     total_questions = EXCLUDED.total_questions,
		     obtained_marks = EXCLUDED.obtained_marks, total_marks = EXCLUDED.total_marks,
		     percentage = EXCLUDED.percentage, pass_percentage = EXCLUDED.pass_percentage,
		     passed = EXCLUDED.passed, submitted_at = EXCLUDED.submitted_at,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		uuid.New(), res.ExamID, res.StudentID, res.AttemptID, res.Score, res.TotalQuestions,
		res.ObtainedMarks, res.TotalMarks, res.Percentage, res.PassPercentage,
		res.Passed, res.SubmittedAt,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteAttempt removes the attempt and its result.
func (r *AttemptRepository) DeleteAttempt(ctx context.Context, examID uuid.UUID, studentID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM results WHERE exam_id = $1 AND student_id = $2`, examID, studentID); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM attempts WHERE exam_id = $1 AND student_id = $2`, examID, studentID)
	if err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: attempt for student %d", engine.ErrNotFound, studentID)
	}
	return tx.Commit(ctx)
}

// ExpireOverdue expires all in_progress attempts whose deadline is before now.
func (r *AttemptRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET status = $1, updated_at = $2
		 WHERE status = $3 AND expires_at < $2`,
		model.AttemptExpired, now, model.AttemptInProgress)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListAttemptsByStudent retrieves all attempts of a student, newest first.
func (r *AttemptRepository) ListAttemptsByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE student_id = $1 ORDER BY started_at DESC`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// GetResult retrieves the result for an exam-student pair.
func (r *AttemptRepository) GetResult(ctx context.Context, examID uuid.UUID, studentID int) (*model.Result, error) {
	res := &model.Result{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID,
	).Scan(resultDest(res)...)
	if err != nil {
		return nil, notFound(err, "result for student %d", studentID)
	}
	return res, nil
}

// ListResultsByExam retrieves one page of an exam's results, latest submission first.
func (r *AttemptRepository) ListResultsByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Result, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM results
		 WHERE exam_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var res model.Result
		if err := rows.Scan(resultDest(&res)...); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

const resultColumns = `id, exam_id, student_id, attempt_id, score, total_questions,
	obtained_marks, total_marks, percentage, pass_percentage, passed, submitted_at,
	created_at, updated_at`

func resultDest(res *model.Result) []any {
	return []any{&res.ID, &res.ExamID, &res.StudentID, &res.AttemptID, &res.Score, &res.TotalQuestions,
		&res.ObtainedMarks, &res.TotalMarks, &res.Percentage, &res.PassPercentage, &res.Passed,
		&res.SubmittedAt, &res.CreatedAt, &res.UpdatedAt}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// inactiveReason explains why a conditional update on id matched nothing.
func (r *AttemptRepository) inactiveReason(ctx context.Context, q querier, id uuid.UUID) error {
	var status model.AttemptStatus
	err := q.QueryRow(ctx, `SELECT status FROM attempts WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return notFound(err, "attempt %s", id)
	}
	if status == model.AttemptSubmitted {
		return fmt.Errorf("%w: attempt %s was submitted", engine.ErrAttemptTerminal, id)
	}
	return fmt.Errorf("%w: attempt %s is %s", engine.ErrAttemptNotActive, id, status)
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	var a model.Attempt
	var order, mappings, answers []byte
	if err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartedAt, &a.ExpiresAt,
		&a.SubmittedAt, &order, &mappings, &answers, &a.Score, &a.TotalQuestions,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &a.QuestionOrder); err != nil {
			return nil, fmt.Errorf("decode question order: %w", err)
		}
	}
	if len(mappings) > 0 {
		if err := json.Unmarshal(mappings, &a.OptionMappings); err != nil {
			return nil, fmt.Errorf("decode option mappings: %w", err)
		}
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return &a, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
