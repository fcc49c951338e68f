// Package infra provides shared infrastructure components used across
// the application: the two-tier cache, snapshot persistence, pacing and clocks.
package infra

import (
	"context"
	"time"
)

// --- Clock ---

// Clock abstracts time.Now so TTL decisions can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// --- Pacer ---

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning early with ctx.Err() if the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer spaces out one sequence of attempts: the first Wait returns
// immediately and every later Wait sleeps for the configured delay.
// A Pacer is not safe for concurrent use; create one per sequence.
type Pacer struct {
	delay    time.Duration
	sleep    SleepFunc
	attempts int
}

// NewPacer creates a pacer. A nil sleep uses Sleep.
func NewPacer(delay time.Duration, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{delay: delay, sleep: sleep}
}

// Wait blocks until the next attempt may start.
func (p *Pacer) Wait(ctx context.Context) error {
	p.attempts++
	if p.attempts == 1 || p.delay <= 0 {
		return nil
	}
	return p.sleep(ctx, p.delay)
}

// Attempts returns how many times Wait has been called.
func (p *Pacer) Attempts() int {
	return p.attempts
}
