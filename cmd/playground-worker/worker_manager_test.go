package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/playground/pkg/log"
)

type fakeRunner struct {
	startErr error
	started  atomic.Bool
	waited   atomic.Bool
}

func (r *fakeRunner) Start(context.Context) error {
	r.started.Store(true)

	return r.startErr
}

func (r *fakeRunner) Wait() {
	r.waited.Store(true)
}

func TestNewWorkerManager(t *testing.T) {
	runner := &fakeRunner{}
	wm := NewWorkerManager("test-worker-1", runner, log.Discard())

	assert.Equal(t, "test-worker-1", wm.id)
	assert.Equal(t, runner, wm.runner)
	assert.NotNil(t, wm.logger)
}

func TestWorkerManager_StartStopsWithContext(t *testing.T) {
	runner := &fakeRunner{}
	wm := NewWorkerManager("test-worker", runner, log.Discard())

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, wm.Start(ctx))

	assert.True(t, runner.started.Load())
	assert.True(t, runner.waited.Load())
}

func TestWorkerManager_StartError(t *testing.T) {
	errSubscribe := errors.New("subscribe failed")
	runner := &fakeRunner{startErr: errSubscribe}
	wm := NewWorkerManager("test-worker", runner, log.Discard())

	err := wm.Start(t.Context())

	require.ErrorIs(t, err, errSubscribe)
	assert.False(t, runner.waited.Load())
}
