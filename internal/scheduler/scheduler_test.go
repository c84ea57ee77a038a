package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTrigger struct {
	calls atomic.Int32
	fired chan struct{}
}

func (c *countingTrigger) OnSchedule(context.Context) (copytrading.RolloverResult, error) {
	c.calls.Add(1)
	c.fired <- struct{}{}

	return copytrading.RolloverResult{}, nil
}

func TestNextMonthStart(t *testing.T) {
	utc := time.UTC

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid month", time.Date(2024, 5, 17, 13, 45, 0, 0, utc), time.Date(2024, 6, 1, 0, 0, 0, 0, utc)},
		{"december wraps year", time.Date(2024, 12, 31, 23, 59, 59, 0, utc), time.Date(2025, 1, 1, 0, 0, 0, 0, utc)},
		{"exactly at boundary", time.Date(2024, 3, 1, 0, 0, 0, 0, utc), time.Date(2024, 4, 1, 0, 0, 0, 0, utc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextMonthStart(tt.now, utc))
		})
	}
}

func TestNextMonthStartInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)

	// 22:00 UTC 31 января - уже 1 февраля по UTC+3
	now := time.Date(2024, 1, 31, 22, 0, 0, 0, time.UTC)

	next := NextMonthStart(now, loc)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, loc), next)
}

func TestRunFiresAndStops(t *testing.T) {
	trigger := &countingTrigger{fired: make(chan struct{}, 4)}
	s := New(trigger, time.UTC, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ticks := make(chan time.Time)
	s.after = func(time.Duration) <-chan time.Time { return ticks }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		s.Run(ctx)
		close(done)
	}()

	for range 2 {
		ticks <- time.Now()

		select {
		case <-trigger.fired:
		case <-time.After(5 * time.Second):
			t.Fatal("schedule did not fire")
		}
	}

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	require.EqualValues(t, 2, trigger.calls.Load())
}
