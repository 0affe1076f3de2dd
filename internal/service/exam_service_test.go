package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInvalidator struct {
	calls []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(_ context.Context, examID uuid.UUID) error {
	r.calls = append(r.calls, examID)
	return nil
}

func newExamService(f *fixture, cache QuestionInvalidator) *ExamService {
	s := NewExamService(f.store, f.store, f.store, cache, f.store, f.store, zerolog.Nop())
	s.now = f.clock.Now
	return s
}

func TestCreateExamDefaults(t *testing.T) {
	f := newFixture(t, 60)
	svc := newExamService(f, nil)

	e, err := svc.CreateExam(context.Background(), &model.CreateExamRequest{
		Title:           "Physics",
		DurationMinutes: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPassPercentage, e.PassPercentage)
	assert.True(t, e.IsActive)

	stored, err := f.store.GetExam(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Physics", stored.Title)
}

func TestUpdateExamRejectsInvertedSchedule(t *testing.T) {
	f := newFixture(t, 60)
	svc := newExamService(f, nil)

	start := f.clock.Now().Add(time.Hour)
	end := f.clock.Now()
	_, err := svc.UpdateExam(context.Background(), f.exam.ID, &model.UpdateExamRequest{
		ScheduleStart: &start,
		ScheduleEnd:   &end,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidPayload)
}

func TestEnsureOfferable(t *testing.T) {
	f := newFixture(t, 60)
	svc := newExamService(f, nil)
	ctx := context.Background()

	require.NoError(t, svc.EnsureOfferable(ctx, f.exam.ID))

	assert.ErrorIs(t, svc.EnsureOfferable(ctx, uuid.New()), engine.ErrNotFound)

	end := f.clock.Now().Add(-time.Minute)
	f.exam.ScheduleEnd = &end
	require.NoError(t, f.store.UpdateExam(ctx, f.exam))
	assert.ErrorIs(t, svc.EnsureOfferable(ctx, f.exam.ID), ErrExamNotAvailable)

	f.exam.IsActive = false
	require.NoError(t, f.store.UpdateExam(ctx, f.exam))
	assert.ErrorIs(t, svc.EnsureOfferable(ctx, f.exam.ID), engine.ErrNotFound)
}

func TestAddQuestion(t *testing.T) {
	f := newFixture(t, 60)
	cache := &recordingInvalidator{}
	svc := newExamService(f, cache)
	ctx := context.Background()

	q, err := svc.AddQuestion(ctx, f.exam.ID, &model.AddQuestionRequest{
		QuestionText:     "Pick the primes",
		OptionA:          "2",
		OptionB:          "4",
		OptionC:          "5",
		OptionD:          "9",
		IsMultipleChoice: true,
		CorrectOptions:   []string{"A", "C"},
		Marks:            1.5,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, q.ID)
	assert.Equal(t, []uuid.UUID{f.exam.ID}, cache.calls)

	detail, err := svc.GetExam(ctx, f.exam.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Questions, 3)

	_, err = svc.AddQuestion(ctx, f.exam.ID, &model.AddQuestionRequest{
		QuestionText: "Missing key",
		OptionA:      "a",
		OptionB:      "b",
		OptionC:      "c",
		OptionD:      "d",
		Marks:        1,
	})
	assert.ErrorIs(t, err, engine.ErrInvalidPayload)

	_, err = svc.AddQuestion(ctx, uuid.New(), &model.AddQuestionRequest{})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestDeleteQuestion(t *testing.T) {
	f := newFixture(t, 60)
	cache := &recordingInvalidator{}
	svc := newExamService(f, cache)
	ctx := context.Background()

	require.NoError(t, svc.DeleteQuestion(ctx, f.exam.ID, f.single.ID))
	assert.Equal(t, []uuid.UUID{f.exam.ID}, cache.calls)

	assert.ErrorIs(t, svc.DeleteQuestion(ctx, f.exam.ID, f.single.ID), engine.ErrNotFound)
}

func TestAllowRetake(t *testing.T) {
	f := newFixture(t, 60)
	svc := newExamService(f, nil)
	ctx := context.Background()

	first, err := f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, f.correctAnswers(t))
	require.NoError(t, err)

	require.NoError(t, svc.AllowRetake(ctx, f.exam.ID, f.studentID))

	_, err = f.svc.GetResult(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	a, created, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.AttemptID, a.ID)

	assert.ErrorIs(t, svc.AllowRetake(ctx, f.exam.ID, 42), engine.ErrNotFound)
}

func TestListResultsPagination(t *testing.T) {
	f := newFixture(t, 60)
	svc := newExamService(f, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.studentID = 2000 + i
		_, err := f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, f.correctAnswers(t))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	results, page, err := svc.ListResults(ctx, f.exam.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2002, results[0].StudentID, "newest first")
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)

	results, _, err = svc.ListResults(ctx, f.exam.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2000, results[0].StudentID)

	results, page, err = svc.ListResults(ctx, uuid.New(), 0, 500)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PerPage)
}
