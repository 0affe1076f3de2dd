package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCreatesThenResumes(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()

	first, created, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.AttemptInProgress, first.Status)
	assert.Equal(t, f.clock.Now().Add(time.Hour), first.ExpiresAt)

	f.clock.Advance(10 * time.Minute)
	again, created, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.StartedAt, again.StartedAt, "resume keeps the original clock")
}

func TestStartUnknownExam(t *testing.T) {
	f := newFixture(t, 60)
	_, _, err := f.svc.Start(context.Background(), uuid.New(), f.studentID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestLazyExpiry(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	f.clock.Advance(60 * time.Second)
	_, err = f.svc.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err, "the deadline instant is still active")

	f.clock.Advance(time.Second)
	_, err = f.svc.Present(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrAttemptNotActive)

	stored, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, stored.Status, "expiry is persisted")

	_, _, err = f.svc.Start(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrAttemptTerminal)

	_, err = f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, []model.AnswerEntry{
		{QuestionID: f.single.ID, Selection: model.Single(model.LetterA)},
	})
	assert.ErrorIs(t, err, engine.ErrAttemptNotActive)

	_, err = f.svc.GetResult(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSubmitDetectsExpiryWithoutPriorRead(t *testing.T) {
	f := newFixture(t, 1)
	answers := f.correctAnswers(t)

	f.clock.Advance(61 * time.Second)
	_, err := f.svc.SubmitSelections(context.Background(), f.exam.ID, f.studentID, answers)
	assert.ErrorIs(t, err, engine.ErrAttemptNotActive)
}

func TestPresentIsIdempotent(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	first, err := f.svc.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	require.Len(t, first.Questions, 2)

	f.clock.Advance(5 * time.Minute)
	second, err := f.svc.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, first.Questions, second.Questions)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
}

func TestPresentationIsWriteOnce(t *testing.T) {
	f := newFixture(t, 60, WithRand(rand.New(rand.NewPCG(1, 1))))
	ctx := context.Background()
	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	first, err := f.svc.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	before, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	other := NewAttemptService(f.store, f.store, f.store, f.store, zerolog.Nop(),
		WithClock(f.clock.Now), WithRand(rand.New(rand.NewPCG(987654321, 123456789))))
	second, err := other.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	after, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, before.QuestionOrder, after.QuestionOrder)
	assert.Equal(t, before.OptionMappings, after.OptionMappings)
	assert.Equal(t, first.Questions, second.Questions)
}

func TestPresentHidesAnswerKey(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	p, err := f.svc.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct_option")
	assert.NotContains(t, string(raw), "option_mappings")
}

func TestPresentWithoutAttempt(t *testing.T) {
	f := newFixture(t, 60)
	_, err := f.svc.Present(context.Background(), f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrAttemptNotActive)
}

func TestExamWithoutQuestionsCannotStart(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	require.NoError(t, f.store.DeleteQuestion(ctx, f.exam.ID, f.single.ID))
	require.NoError(t, f.store.DeleteQuestion(ctx, f.exam.ID, f.multi.ID))

	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrInvalidPayload)

	_, err = f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrNotFound, "no attempt is stored")
}

func TestPresentWithoutQuestionsKeepsOrderUnset(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteQuestion(ctx, f.exam.ID, f.single.ID))
	require.NoError(t, f.store.DeleteQuestion(ctx, f.exam.ID, f.multi.ID))
	_, err = f.svc.Present(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrInvalidPayload)

	a, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Empty(t, a.QuestionOrder)

	single := f.single
	require.NoError(t, f.store.CreateQuestion(ctx, &single))
	p, err := f.svc.Present(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	require.Len(t, p.Questions, 1)
	assert.Equal(t, f.single.ID, p.Questions[0].ID)
}

func TestSubmitBeforePresentIsRejected(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	_, _, err := f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	_, err = f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, []model.AnswerEntry{
		{QuestionID: f.single.ID, Selection: model.Single(model.LetterB)},
	})
	assert.ErrorIs(t, err, engine.ErrInvalidPayload)
	assert.NotErrorIs(t, err, engine.ErrInconsistentState)

	a, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, a.Status)
}

func TestSubmitRejectsQuestionAddedAfterPresent(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	answers := f.correctAnswers(t)

	three := 3
	late := model.Question{
		ID:             uuid.New(),
		ExamID:         f.exam.ID,
		QuestionNumber: &three,
		QuestionText:   "Symbol for iron?",
		OptionA:        "Fe",
		OptionB:        "Ir",
		OptionC:        "In",
		OptionD:        "F",
		CorrectOption:  model.LetterA,
		Marks:          1,
	}
	require.NoError(t, f.store.CreateQuestion(ctx, &late))

	answers = append(answers, model.AnswerEntry{QuestionID: late.ID, Selection: model.Single(model.LetterA)})
	_, err := f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, answers)
	assert.ErrorIs(t, err, engine.ErrInvalidPayload)

	a, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, a.Status)
}

func TestSubmitAndGetResult(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	answers := f.correctAnswers(t)

	f.clock.Advance(20 * time.Minute)
	res, err := f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, answers)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 2, res.TotalQuestions)
	assert.Equal(t, 3.0, res.ObtainedMarks)
	assert.Equal(t, 3.0, res.TotalMarks)
	assert.Equal(t, 100, res.Percentage)
	assert.True(t, res.Passed)

	stored, err := f.svc.GetResult(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, stored.ID)
	assert.Equal(t, f.clock.Now(), stored.SubmittedAt)

	a, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptSubmitted, a.Status)
	assert.Equal(t, answers, a.Answers, "raw displayed answers are kept")
	require.NotNil(t, a.SubmittedAt)
}

func TestSubmitPartialCredit(t *testing.T) {
	f := newFixture(t, 60)
	answers := f.correctAnswers(t)

	// Wrong single-select, correct multi-select: 2 of 3 marks.
	wrong := f.displayed(t, f.single, model.LetterA)[0]
	answers[0].Selection = model.Single(wrong)

	res, err := f.svc.SubmitSelections(context.Background(), f.exam.ID, f.studentID, answers)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 67, res.Percentage)
	assert.True(t, res.Passed)
}

func TestSubmitRawAnswers(t *testing.T) {
	f := newFixture(t, 60)
	answers := f.correctAnswers(t)

	single, err := json.Marshal(answers[0].Selection.Letters[0])
	require.NoError(t, err)
	multi, err := json.Marshal(answers[1].Selection.Letters)
	require.NoError(t, err)

	res, err := f.svc.Submit(context.Background(), f.exam.ID, f.studentID, []model.SubmittedAnswer{
		{QuestionID: f.single.ID.String(), Selected: single},
		{QuestionID: f.multi.ID.String(), Selected: multi},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Percentage)
}

func TestSubmitRejectsBadPayloads(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	f.correctAnswers(t)

	tests := []struct {
		name string
		raw  []model.SubmittedAnswer
	}{
		{"empty", nil},
		{"unknown question", []model.SubmittedAnswer{{QuestionID: uuid.NewString(), Selected: json.RawMessage(`"A"`)}}},
		{"malformed id", []model.SubmittedAnswer{{QuestionID: "nope", Selected: json.RawMessage(`"A"`)}}},
		{"list for single", []model.SubmittedAnswer{{QuestionID: f.single.ID.String(), Selected: json.RawMessage(`["A"]`)}}},
		{"letter for multi", []model.SubmittedAnswer{{QuestionID: f.multi.ID.String(), Selected: json.RawMessage(`"A"`)}}},
		{"bad letter", []model.SubmittedAnswer{{QuestionID: f.single.ID.String(), Selected: json.RawMessage(`"Q"`)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, f.exam.ID, f.studentID, tt.raw)
			assert.ErrorIs(t, err, engine.ErrInvalidPayload)
		})
	}

	a, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, a.Status, "rejected payloads leave the attempt running")
}

func TestDoubleSubmitIsTerminal(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	answers := f.correctAnswers(t)

	first, err := f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, answers)
	require.NoError(t, err)

	worse := []model.AnswerEntry{answers[1]}
	_, err = f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, worse)
	assert.ErrorIs(t, err, engine.ErrAttemptTerminal)

	stored, err := f.svc.GetResult(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, first.Percentage, stored.Percentage)
	assert.Equal(t, first.UpdatedAt, stored.UpdatedAt)

	_, _, err = f.svc.Start(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrAttemptTerminal)
	_, err = f.svc.Present(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrAttemptTerminal)
}

func TestConcurrentSubmitHasOneWinner(t *testing.T) {
	f := newFixture(t, 60)
	answers := f.correctAnswers(t)

	const workers = 32
	var (
		gate      = make(chan struct{})
		wg        sync.WaitGroup
		successes atomic.Int32
		terminal  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_, err := f.svc.SubmitSelections(context.Background(), f.exam.ID, f.studentID, answers)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, engine.ErrAttemptTerminal):
				terminal.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), terminal.Load())
}

func TestConcurrentStartCreatesOneAttempt(t *testing.T) {
	f := newFixture(t, 60)

	const workers = 32
	var (
		gate    = make(chan struct{})
		wg      sync.WaitGroup
		created atomic.Int32
		ids     sync.Map
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			a, isNew, err := f.svc.Start(context.Background(), f.exam.ID, f.studentID)
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			if isNew {
				created.Add(1)
			}
			ids.Store(a.ID, true)
		}()
	}
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	distinct := 0
	ids.Range(func(_, _ any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct)
}

func TestPassThresholdIsSnapshotted(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()
	answers := f.correctAnswers(t)
	answers[0].Selection = model.Single(f.displayed(t, f.single, model.LetterD)[0])

	res, err := f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, answers)
	require.NoError(t, err)
	require.Equal(t, 67, res.Percentage)
	require.True(t, res.Passed)

	f.exam.PassPercentage = 90
	require.NoError(t, f.store.UpdateExam(ctx, f.exam))

	stored, err := f.svc.GetResult(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.PassPercentage)
	assert.True(t, stored.Passed)
}

func TestState(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.State(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, _, err = f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)

	f.clock.Advance(15 * time.Second)
	st, err := f.svc.State(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, st.Status)
	assert.Equal(t, int64(45), st.RemainingSeconds)

	f.clock.Advance(time.Minute)
	st, err = f.svc.State(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, st.Status)
	assert.Zero(t, st.RemainingSeconds)
}

func TestLobby(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	past := f.clock.Now().Add(-time.Hour)
	future := f.clock.Now().Add(time.Hour)
	closed := &model.Exam{ID: uuid.New(), Title: "Closed", DurationMinutes: 30, IsActive: true, ScheduleEnd: &past}
	upcoming := &model.Exam{ID: uuid.New(), Title: "Upcoming", DurationMinutes: 30, IsActive: true, ScheduleStart: &future}
	hidden := &model.Exam{ID: uuid.New(), Title: "Hidden", DurationMinutes: 30, IsActive: false}
	open := &model.Exam{ID: uuid.New(), Title: "Open", DurationMinutes: 30, IsActive: true}
	for _, e := range []*model.Exam{closed, upcoming, hidden, open} {
		require.NoError(t, f.store.CreateExam(ctx, e))
	}

	lobby, err := f.svc.Lobby(ctx, f.studentID)
	require.NoError(t, err)
	require.Len(t, lobby, 2)
	for _, item := range lobby {
		assert.Equal(t, LobbyNotAttempted, item.Status)
		assert.Equal(t, model.ScheduleAvailable, item.ScheduleStatus)
	}

	_, _, err = f.svc.Start(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, LobbyInProgress, lobbyItem(t, f, f.exam.ID).Status)

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, LobbyExpired, lobbyItem(t, f, f.exam.ID).Status)
	a, err := f.store.GetAttempt(ctx, f.exam.ID, f.studentID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, a.Status, "lobby does not write")

	other := newFixture(t, 60)
	_, err = other.svc.SubmitSelections(ctx, other.exam.ID, other.studentID, other.correctAnswers(t))
	require.NoError(t, err)
	item := lobbyItem(t, other, other.exam.ID)
	assert.Equal(t, LobbyCompleted, item.Status)
	assert.Nil(t, item.ExpiresAt)
}

func lobbyItem(t *testing.T, f *fixture, examID uuid.UUID) LobbyExam {
	t.Helper()
	lobby, err := f.svc.Lobby(context.Background(), f.studentID)
	require.NoError(t, err)
	for _, item := range lobby {
		if item.ID == examID {
			return item
		}
	}
	t.Fatalf("exam %s not in lobby", examID)
	return LobbyExam{}
}

func TestActiveState(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()

	_, err := f.svc.ActiveState(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = f.svc.SubmitSelections(ctx, f.exam.ID, f.studentID, f.correctAnswers(t))
	require.NoError(t, err)

	st, err := f.svc.ActiveState(ctx, f.exam.ID, f.studentID)
	assert.ErrorIs(t, err, engine.ErrAttemptTerminal)
	require.NotNil(t, st)
	assert.Equal(t, model.AttemptSubmitted, st.Status)
}
