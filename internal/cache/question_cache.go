package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/config"
	"github.com/stemsi/exstem-examcore/internal/model"
)

// QuestionSource is the backing store the cache reads through to.
type QuestionSource interface {
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// QuestionCache is a Redis read-through cache of each exam's answer key.
// Redis failures fall back to the source; they never fail a request.
type QuestionCache struct {
	rdb    *redis.Client
	source QuestionSource
	ttl    time.Duration
	log    zerolog.Logger
}

// NewQuestionCache creates a new QuestionCache. A ttl of zero keeps entries
// until they are invalidated.
func NewQuestionCache(rdb *redis.Client, source QuestionSource, ttl time.Duration, log zerolog.Logger) *QuestionCache {
	return &QuestionCache{
		rdb:    rdb,
		source: source,
		ttl:    ttl,
		log:    log.With().Str("component", "question_cache").Logger(),
	}
}

// ListQuestions returns the cached answer key, loading it from the source on
// a miss.
func (c *QuestionCache) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	key := config.CacheKey.ExamQuestionsKey(examID.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var questions []model.Question
		if err := json.Unmarshal(data, &questions); err == nil {
			return questions, nil
		}
		c.log.Warn().Str("exam_id", examID.String()).Msg("Discarding unreadable cache entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Question cache read failed")
	}

	return c.load(ctx, examID)
}

func (c *QuestionCache) load(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	questions, err := c.source.ListQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(questions)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}
	key := config.CacheKey.ExamQuestionsKey(examID.String())
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Question cache write failed")
	}
	return questions, nil
}

// Invalidate drops the cached answer key of an exam.
func (c *QuestionCache) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if err := c.rdb.Del(ctx, config.CacheKey.ExamQuestionsKey(examID.String())).Err(); err != nil {
		return fmt.Errorf("invalidate questions: %w", err)
	}
	return nil
}

// Prewarm loads the answer keys of the given exams before traffic arrives.
// Failures are logged and skipped.
func (c *QuestionCache) Prewarm(ctx context.Context, exams []model.Exam) {
	if len(exams) == 0 {
		c.log.Info().Msg("No active exams to prewarm")
		return
	}

	warmed := 0
	for i := range exams {
		if _, err := c.load(ctx, exams[i].ID); err != nil {
			c.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	c.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
}
