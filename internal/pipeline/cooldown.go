package pipeline

import (
	"context"
	"time"
)

// Cooldown is a per-worker adaptive backoff timer. A worker that gets
// throttled raises the level and every subsequent Wait doubles it up to
// a ceiling, while a fully successful request clears it so a recovered
// worker returns to full speed immediately. Not safe for concurrent use;
// each worker owns its own.
type Cooldown struct {
	level    time.Duration // current backoff
	resumeAt time.Time
	initial  time.Duration // level applied by Set(0)
	ceiling  time.Duration // hard cap for the doubling
}

// NewCooldown returns a cleared cooldown with the given default level
// and ceiling.
func NewCooldown(initial, ceiling time.Duration) *Cooldown {
	return &Cooldown{initial: initial, ceiling: ceiling, resumeAt: time.Now()}
}

// Set raises the level to at least d (the configured default when d is
// zero) and pushes the resume point out by the resulting level.
func (c *Cooldown) Set(d time.Duration) {
	if d == 0 {
		d = c.initial
	}
	if d > c.level {
		c.level = d
	}
	c.resumeAt = time.Now().Add(c.level)
}

// Wait sleeps until the resume point when it lies in the future and
// reports whether a sleep occurred. After an actual sleep the level
// doubles, up to the ceiling, so persistent throttling backs off
// geometrically.
func (c *Cooldown) Wait(ctx context.Context) bool {
	delay := time.Until(c.resumeAt)
	if delay <= 0 {
		return false
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	c.level *= 2
	if c.level > c.ceiling {
		c.level = c.ceiling
	}
	return true
}

// Clear resets the backoff after a fully successful request.
func (c *Cooldown) Clear() {
	c.level = 0
	c.resumeAt = time.Now()
}
