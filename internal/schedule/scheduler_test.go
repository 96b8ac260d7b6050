package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsTask(t *testing.T) {
	s := New(quietLogger())
	var runs atomic.Int32
	require.NoError(t, s.Add("@every 1s", TaskFunc{TaskName: "count", Fn: func(context.Context) error {
		runs.Add(1)
		return errors.New("errors are logged, not fatal")
	}}))

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(quietLogger())
	err := s.Add("not a cron spec", TaskFunc{TaskName: "bad", Fn: func(context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestWrap_SkipsOverlappingRuns(t *testing.T) {
	s := New(quietLogger())
	release := make(chan struct{})
	var runs atomic.Int32

	run := s.wrap(TaskFunc{TaskName: "slow", Fn: func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}}, "@every 1s")

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	run() // returns immediately, first run still holds the flag
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	<-done
	run()
	assert.Equal(t, int32(2), runs.Load())
}
