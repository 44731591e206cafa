package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvesdmateus/easydeploy/internal/observability"
)

func TestPoller_SkipsOverlappingPolls(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32

	p := NewPoller(func(ctx context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}, 0)

	done := make(chan bool)
	go func() {
		done <- p.PollNow(context.Background())
	}()

	<-started
	assert.False(t, p.PollNow(context.Background()))

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
}

func TestPoller_StartAndStop(t *testing.T) {
	var runs atomic.Int32
	p := NewPoller(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, 5*time.Millisecond)

	p.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestPoller_TriggerAfter(t *testing.T) {
	var runs atomic.Int32
	p := NewPoller(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, 0)

	p.TriggerAfter(context.Background(), 10*time.Millisecond)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestPoller_FiredTriggersAreReleased(t *testing.T) {
	var runs atomic.Int32
	p := NewPoller(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, 0)
	defer p.Stop()

	for i := 0; i < 50; i++ {
		p.TriggerAfter(context.Background(), time.Millisecond)
	}
	assert.Eventually(t, func() bool { return p.pendingTriggers() == 0 }, time.Second, 5*time.Millisecond)
	assert.Positive(t, runs.Load())

	p.TriggerAfter(context.Background(), time.Hour)
	assert.Equal(t, 1, p.pendingTriggers())
}

func TestPoller_StopCancelsPendingTrigger(t *testing.T) {
	var runs atomic.Int32
	p := NewPoller(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, 0)

	p.TriggerAfter(context.Background(), time.Hour)
	p.Stop()
	assert.Equal(t, int32(0), runs.Load())
	assert.Zero(t, p.pendingTriggers())
}

func TestPoller_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)

	fail := true
	p := NewPoller(func(ctx context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}, 0, WithPollerMetrics(m))

	require.True(t, p.PollNow(context.Background()))
	fail = false
	require.True(t, p.PollNow(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollsTotal.WithLabelValues("ok")))
}
