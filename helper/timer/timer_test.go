package timer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithTickerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- RunWithTicker(ctx, &Interval{Duration: 5 * time.Millisecond}, func(context.Context) error {
			n.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunWithTicker did not stop")
	}
}

func TestRunWithTickerPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := RunWithTicker(context.Background(), &Interval{Duration: time.Millisecond}, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunWithTickerRejectsZeroInterval(t *testing.T) {
	err := RunWithTicker(context.Background(), &Interval{}, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestBoundedJitter(t *testing.T) {
	d := 100 * time.Millisecond
	j := boundedJitter{max: 10 * time.Millisecond}
	for i := 0; i < 100; i++ {
		got := j.Jitter(d)
		assert.GreaterOrEqual(t, got, 90*time.Millisecond)
		assert.Less(t, got, 110*time.Millisecond)
	}

	assert.Equal(t, d, boundedJitter{}.Jitter(d))

	// Oversized jitter is capped instead of producing negative periods
	got := boundedJitter{max: time.Second}.Jitter(d)
	assert.Greater(t, got, time.Duration(0))
}
