package sideeffect

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/streamtweet/internal/metrics"
)

func TestDispatcher_RunsAndDrainsOnShutdown(t *testing.T) {
	d := New(Config{Workers: 2, QueueSize: 16}, nil, nil)

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, d.Go("count", func(context.Context) error {
			time.Sleep(time.Millisecond)
			n.Add(1)
			return nil
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.EqualValues(t, 10, n.Load())

	assert.False(t, d.Go("late", func(context.Context) error { return nil }))
	assert.NoError(t, d.Shutdown(ctx))
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSideEffectMetrics(reg)
	d := New(Config{Workers: 1, QueueSize: 1}, nil, m)

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, d.Go("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.True(t, d.Go("queued", func(context.Context) error { return nil }))
	assert.False(t, d.Go("overflow", func(context.Context) error { return nil }))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("overflow", "dropped")))

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("queued", "ok")))
}

func TestDispatcher_LogsFailuresAndPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	d := New(Config{Workers: 1}, logger, nil)

	d.Go("fails", func(context.Context) error { return errors.New("broker down") })
	d.Go("panics", func(context.Context) error { panic("boom") })
	require.NoError(t, d.Shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"job":"fails"`)
	assert.Contains(t, out, "broker down")
	assert.Contains(t, out, "panic: boom")
}

func TestDispatcher_JobTimeout(t *testing.T) {
	d := New(Config{Workers: 1, JobTimeout: 20 * time.Millisecond}, nil, nil)

	errCh := make(chan error, 1)
	d.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	})
	require.NoError(t, d.Shutdown(context.Background()))
	assert.ErrorIs(t, <-errCh, context.DeadlineExceeded)
}

func TestDispatcher_ShutdownRespectsDeadline(t *testing.T) {
	d := New(Config{Workers: 1, JobTimeout: time.Second}, nil, nil)
	release := make(chan struct{})
	defer close(release)
	d.Go("stuck", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
}
