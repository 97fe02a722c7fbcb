// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package ratelimit provides a keyed token bucket limiter.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Defaults.
const (
	// DefaultBurst is the number of actions a key may take in a burst.
	DefaultBurst = 10

	// DefaultRate is the sustained number of actions per second.
	DefaultRate = 2.0

	// MinRate keeps the refill rate from reaching zero.
	MinRate = 0.1

	// DefaultCleanupInterval is how often idle buckets are swept.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultMaxIdle is how long a bucket may sit unused before it is swept.
	DefaultMaxIdle = time.Hour
)

// Config configures a Limiter. Zero values select the defaults.
type Config struct {
	Burst           int
	Rate            float64
	CleanupInterval time.Duration
	MaxIdle         time.Duration

	// Gauge, if set, tracks the number of live buckets.
	Gauge prometheus.Gauge
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter is a token bucket limiter keyed by string. It is safe for
// concurrent use. Call Close to stop the background sweep.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	burst   int
	rate    float64
	maxIdle time.Duration
	gauge   prometheus.Gauge
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a limiter and starts its background sweep.
func New(cfg Config) *Limiter {
	l := newLimiter(cfg, time.Now)

	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	l.wg.Add(1)
	go l.sweepLoop(interval)
	return l
}

func newLimiter(cfg Config, now func() time.Time) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	rate = max(rate, MinRate)
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}

	return &Limiter{
		buckets: make(map[string]*bucket),
		burst:   burst,
		rate:    rate,
		maxIdle: maxIdle,
		gauge:   cfg.Gauge,
		now:     now,
		stop:    make(chan struct{}),
	}
}

// Allow consumes one token for key. When no token is available it returns
// false and the time until the next token.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
		l.updateGauge()
	}

	b.tokens = min(b.tokens+now.Sub(b.lastCheck).Seconds()*l.rate, float64(l.burst))
	b.lastCheck = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := (1 - b.tokens) / l.rate
	return false, time.Duration(wait * float64(time.Second))
}

// Forget drops the bucket for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
	l.updateGauge()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep removes buckets unused for longer than maxIdle.
func (l *Limiter) Sweep(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	threshold := l.now().Add(-maxIdle)
	for key, b := range l.buckets {
		if b.lastCheck.Before(threshold) {
			delete(l.buckets, key)
		}
	}
	l.updateGauge()
}

func (l *Limiter) updateGauge() {
	if l.gauge != nil {
		l.gauge.Set(float64(len(l.buckets)))
	}
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Sweep(l.maxIdle)
		}
	}
}

// Close stops the background sweep and waits for it to exit.
func (l *Limiter) Close() {
	close(l.stop)
	l.wg.Wait()
}
