package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/engine"
	"github.com/stemsi/exstem-examcore/internal/model"
	"github.com/stemsi/exstem-examcore/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireOverdue(context.Context, time.Time) (int64, error) {
	e.calls.Add(1)
	return 0, e.err
}

func TestRunOnceExpiresOverdueAttempts(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2026, 4, 20, 8, 0, 0, 0, time.UTC)

	overdue := engine.NewAttempt(uuid.New(), 1, time.Minute, start)
	running := engine.NewAttempt(uuid.New(), 2, time.Hour, start)
	for _, a := range []*model.Attempt{overdue, running} {
		_, err := store.CreateAttempt(ctx, a)
		require.NoError(t, err)
	}

	w, err := NewExpiryWorker(store, "@every 1m", zerolog.Nop())
	require.NoError(t, err)
	w.now = func() time.Time { return start.Add(10 * time.Minute) }

	assert.Equal(t, int64(1), w.RunOnce(ctx))
	assert.Equal(t, int64(0), w.RunOnce(ctx))

	got, err := store.GetAttempt(ctx, overdue.ExamID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptExpired, got.Status)
	got, err = store.GetAttempt(ctx, running.ExamID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, got.Status)
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	w, err := NewExpiryWorker(&countingExpirer{err: errors.New("db down")}, "", zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, w.RunOnce(context.Background()))
}

func TestInvalidSpec(t *testing.T) {
	_, err := NewExpiryWorker(&countingExpirer{}, "every now and then", zerolog.Nop())
	assert.Error(t, err)
}

func TestDisabledWorkerReturns(t *testing.T) {
	w, err := NewExpiryWorker(&countingExpirer{}, "", zerolog.Nop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker did not return")
	}
}

func TestStartSweepsAndStops(t *testing.T) {
	exp := &countingExpirer{}
	w, err := NewExpiryWorker(exp, "@every 1s", zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Start(ctx)
	}()

	assert.Eventually(t, func() bool { return exp.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	wg.Wait()
}
