package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/config"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls     atomic.Int32
	questions map[uuid.UUID][]model.Question
	err       error
}

func (s *countingSource) ListQuestions(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.questions[examID], nil
}

func setup(t *testing.T) (*miniredis.Miniredis, *countingSource, *QuestionCache, uuid.UUID) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	examID := uuid.New()
	src := &countingSource{questions: map[uuid.UUID][]model.Question{
		examID: {
			{ID: uuid.New(), ExamID: examID, QuestionText: "2+2?", CorrectOption: model.LetterC, Marks: 1},
			{ID: uuid.New(), ExamID: examID, QuestionText: "Evens?", IsMultipleChoice: true,
				CorrectOptions: []model.Letter{model.LetterA, model.LetterD}, Marks: 2.5},
		},
	}}
	return mr, src, NewQuestionCache(rdb, src, time.Minute, zerolog.Nop()), examID
}

func TestReadThrough(t *testing.T) {
	mr, src, c, examID := setup(t)
	ctx := context.Background()

	first, err := c.ListQuestions(ctx, examID)
	require.NoError(t, err)
	second, err := c.ListQuestions(ctx, examID)
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, src.questions[examID], first)
	assert.Equal(t, first, second)

	key := config.CacheKey.ExamQuestionsKey(examID.String())
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(2 * time.Minute)
	_, err = c.ListQuestions(ctx, examID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load(), "expired entries are reloaded")
}

func TestInvalidate(t *testing.T) {
	mr, src, c, examID := setup(t)
	ctx := context.Background()

	_, err := c.ListQuestions(ctx, examID)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, examID))
	assert.False(t, mr.Exists(config.CacheKey.ExamQuestionsKey(examID.String())))

	_, err = c.ListQuestions(ctx, examID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCorruptEntryIsReloaded(t *testing.T) {
	mr, src, c, examID := setup(t)
	require.NoError(t, mr.Set(config.CacheKey.ExamQuestionsKey(examID.String()), "{not json"))

	got, err := c.ListQuestions(context.Background(), examID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestRedisDownFallsBack(t *testing.T) {
	mr, src, c, examID := setup(t)
	mr.Close()

	got, err := c.ListQuestions(context.Background(), examID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestSourceErrorIsReturned(t *testing.T) {
	mr, src, c, examID := setup(t)
	src.err = errors.New("db down")

	_, err := c.ListQuestions(context.Background(), examID)
	assert.ErrorIs(t, err, src.err)
	assert.False(t, mr.Exists(config.CacheKey.ExamQuestionsKey(examID.String())))
}

func TestPrewarm(t *testing.T) {
	mr, src, c, examID := setup(t)
	src.questions[uuid.Nil] = nil

	c.Prewarm(context.Background(), []model.Exam{{ID: examID}, {ID: uuid.Nil}})
	assert.True(t, mr.Exists(config.CacheKey.ExamQuestionsKey(examID.String())))
	assert.Equal(t, int32(2), src.calls.Load())

	_, err := c.ListQuestions(context.Background(), examID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}
