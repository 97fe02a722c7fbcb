// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package ratelimit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	return newLimiter(cfg, clock.now), clock
}

func TestNewLimiterDefaults(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantBurst int
		wantRate  float64
	}{
		{name: "zero config", cfg: Config{}, wantBurst: DefaultBurst, wantRate: DefaultRate},
		{name: "negative values", cfg: Config{Burst: -5, Rate: -1}, wantBurst: DefaultBurst, wantRate: DefaultRate},
		{name: "custom values", cfg: Config{Burst: 20, Rate: 5}, wantBurst: 20, wantRate: 5},
		{name: "rate floor", cfg: Config{Rate: 0.01}, wantBurst: DefaultBurst, wantRate: MinRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLimiter(tt.cfg)
			assert.Equal(t, tt.wantBurst, l.burst)
			assert.Equal(t, tt.wantRate, l.rate)
		})
	}
}

func TestLimiterAllow(t *testing.T) {
	t.Run("allows up to burst", func(t *testing.T) {
		l, _ := newTestLimiter(Config{Burst: 3, Rate: 1})

		for range 3 {
			allowed, wait := l.Allow("s1")
			assert.True(t, allowed)
			assert.Zero(t, wait)
		}

		allowed, wait := l.Allow("s1")
		assert.False(t, allowed)
		assert.Equal(t, time.Second, wait)
	})

	t.Run("refills over time", func(t *testing.T) {
		l, clock := newTestLimiter(Config{Burst: 1, Rate: 2})

		allowed, _ := l.Allow("s1")
		assert.True(t, allowed)
		allowed, _ = l.Allow("s1")
		assert.False(t, allowed)

		clock.advance(500 * time.Millisecond)
		allowed, _ = l.Allow("s1")
		assert.True(t, allowed)
	})

	t.Run("never exceeds burst", func(t *testing.T) {
		l, clock := newTestLimiter(Config{Burst: 2, Rate: 1})
		l.Allow("s1")
		clock.advance(time.Hour)

		assert.True(t, first(l.Allow("s1")))
		assert.True(t, first(l.Allow("s1")))
		assert.False(t, first(l.Allow("s1")))
	})

	t.Run("keys are independent", func(t *testing.T) {
		l, _ := newTestLimiter(Config{Burst: 1, Rate: 1})

		assert.True(t, first(l.Allow("s1")))
		assert.False(t, first(l.Allow("s1")))
		assert.True(t, first(l.Allow("s2")))
	})
}

func first(allowed bool, _ time.Duration) bool { return allowed }

func TestLimiterForget(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_buckets"})
	l, _ := newTestLimiter(Config{Burst: 1, Gauge: gauge})

	l.Allow("s1")
	l.Allow("s2")
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	l.Forget("s1")
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge))
	assert.True(t, first(l.Allow("s1")), "forgotten keys start with a full bucket")
}

func TestLimiterSweep(t *testing.T) {
	l, clock := newTestLimiter(Config{})

	l.Allow("old")
	clock.advance(2 * time.Hour)
	l.Allow("fresh")

	l.Sweep(time.Hour)

	assert.Equal(t, 1, l.Len())
}

func TestLimiterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := New(Config{CleanupInterval: time.Millisecond})
	l.Allow("s1")
	l.Close()
}
