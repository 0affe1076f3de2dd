package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/repository"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store     *repository.MemoryStore
	clock     *fakeClock
	svc       *AttemptService
	exam      *model.Exam
	single    model.Question // key B, 1 mark
	multi     model.Question // key A+C, 2 marks
	studentID int
}

func newFixture(t *testing.T, durationMinutes int, opts ...AttemptOption) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:     repository.NewMemoryStore(),
		clock:     &fakeClock{now: time.Date(2026, 4, 20, 8, 0, 0, 0, time.UTC)},
		studentID: 1001,
	}

	f.exam = &model.Exam{
		ID:              uuid.New(),
		Title:           "Chemistry midterm",
		DurationMinutes: durationMinutes,
		PassPercentage:  50,
		IsActive:        true,
	}
	require.NoError(t, f.store.CreateExam(ctx, f.exam))

	one, two := 1, 2
	f.single = model.Question{
		ID:             uuid.New(),
		ExamID:         f.exam.ID,
		QuestionNumber: &one,
		QuestionText:   "Symbol for sodium?",
		OptionA:        "S",
		OptionB:        "Na",
		OptionC:        "So",
		OptionD:        "N",
		CorrectOption:  model.LetterB,
		Marks:          1,
	}
	f.multi = model.Question{
		ID:               uuid.New(),
		ExamID:           f.exam.ID,
		QuestionNumber:   &two,
		QuestionText:     "Noble gases?",
		OptionA:          "Neon",
		OptionB:          "Nitrogen",
		OptionC:          "Argon",
		OptionD:          "Oxygen",
		IsMultipleChoice: true,
		CorrectOptions:   []model.Letter{model.LetterA, model.LetterC},
		Marks:            2,
	}
	require.NoError(t, f.store.CreateQuestion(ctx, &f.single))
	require.NoError(t, f.store.CreateQuestion(ctx, &f.multi))

	opts = append([]AttemptOption{WithClock(f.clock.Now)}, opts...)
	f.svc = NewAttemptService(f.store, f.store, f.store, f.store, zerolog.Nop(), opts...)
	return f
}

// displayed returns what the student saw for the canonical letters of q.
func (f *fixture) displayed(t *testing.T, q model.Question, canonical ...model.Letter) []model.Letter {
	t.Helper()
	a, err := f.store.GetAttempt(context.Background(), f.exam.ID, f.studentID)
	require.NoError(t, err)
	m, ok := a.OptionMappings[q.ID]
	require.True(t, ok, "no mapping for question %s", q.ID)

	out := make([]model.Letter, len(canonical))
	for i, c := range canonical {
		out[i] = m.Displayed(c)
	}
	return out
}

// correctAnswers starts and presents the attempt and returns a fully
// correct answer set in displayed letters.
func (f *fixture) correctAnswers(t *testing.T) []model.AnswerEntry {
	t.Helper()
	ctx := context.Background()
	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	_, err = f.svc.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	return []model.AnswerEntry{
		{QuestionID: f.single.ID, Selection: model.Single(f.displayed(t, f.single, model.LetterB)[0])},
		{QuestionID: f.multi.ID, Selection: model.Multiple(f.displayed(t, f.multi, model.LetterA, model.LetterC)...)},
	}
}
