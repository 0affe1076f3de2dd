package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
)

const examColumns = `id, title, duration_minutes, disclaimer, pass_percentage,
	schedule_start, schedule_end, is_active, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetExam retrieves an exam by its UUID.
func (r *ExamRepository) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.Disclaimer, &e.PassPercentage,
		&e.ScheduleStart, &e.ScheduleEnd, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "exam %s", id)
	}
	return e, nil
}

// ListActiveExams returns active exams, newest first.
func (r *ExamRepository) ListActiveExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.Disclaimer, &e.PassPercentage,
			&e.ScheduleStart, &e.ScheduleEnd, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// CreateExam inserts a new exam.
func (r *ExamRepository) CreateExam(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, title, duration_minutes, disclaimer, pass_percentage,
		                    schedule_start, schedule_end, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		e.ID, e.Title, e.DurationMinutes, e.Disclaimer, e.PassPercentage,
		e.ScheduleStart, e.ScheduleEnd, e.IsActive,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

// UpdateExam overwrites the editable fields of an exam.
func (r *ExamRepository) UpdateExam(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET title = $2, duration_minutes = $3, disclaimer = $4, pass_percentage = $5,
		     schedule_start = $6, schedule_end = $7, is_active = $8, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		e.ID, e.Title, e.DurationMinutes, e.Disclaimer, e.PassPercentage,
		e.ScheduleStart, e.ScheduleEnd, e.IsActive,
	).Scan(&e.UpdatedAt)
	if err != nil {
		return notFound(err, "exam %s", e.ID)
	}
	return nil
}

// notFound translates pgx.ErrNoRows into engine.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: "+format, append([]any{engine.ErrNotFound}, args...)...)
	}
	return err
}

// ExamCatalog serves exams and their questions from one pool.
type ExamCatalog struct {
	*ExamRepository
	*QuestionRepository
}

// NewExamCatalog creates a new ExamCatalog.
func NewExamCatalog(pool *pgxpool.Pool) *ExamCatalog {
	return &ExamCatalog{
		ExamRepository:     NewExamRepository(pool),
		QuestionRepository: NewQuestionRepository(pool),
	}
}
