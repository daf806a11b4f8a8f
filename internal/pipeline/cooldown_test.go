package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestCooldownStartsCleared(t *testing.T) {
	cd := NewCooldown(10*time.Millisecond, 100*time.Millisecond)
	if cd.Wait(context.Background()) {
		t.Errorf("fresh cooldown should not sleep")
	}
}

func TestCooldownSetThenWait(t *testing.T) {
	cd := NewCooldown(5*time.Millisecond, 100*time.Millisecond)
	cd.Set(0)

	start := time.Now()
	if !cd.Wait(context.Background()) {
		t.Fatalf("Wait after Set should sleep")
	}
	if elapsed := time.Since(start); elapsed < 4*time.Millisecond {
		t.Errorf("slept %v, want at least the initial level", elapsed)
	}

	// The resume point is in the past again once the sleep is over.
	if cd.Wait(context.Background()) {
		t.Errorf("second Wait without a new Set should not sleep")
	}
}

func TestCooldownDoublesUpToCeiling(t *testing.T) {
	cd := NewCooldown(5*time.Millisecond, 8*time.Millisecond)

	cd.Set(0)
	if cd.level != 5*time.Millisecond {
		t.Fatalf("level = %v, want 5ms", cd.level)
	}
	cd.Wait(context.Background())
	if cd.level != 8*time.Millisecond {
		t.Errorf("level after first sleep = %v, want the 8ms ceiling", cd.level)
	}

	cd.Set(0)
	cd.Wait(context.Background())
	if cd.level != 8*time.Millisecond {
		t.Errorf("level must never exceed the ceiling, got %v", cd.level)
	}
}

func TestCooldownSetKeepsHigherLevel(t *testing.T) {
	cd := NewCooldown(5*time.Millisecond, 100*time.Millisecond)
	cd.Set(50 * time.Millisecond)
	cd.Set(0)
	if cd.level != 50*time.Millisecond {
		t.Errorf("Set(0) lowered the level to %v", cd.level)
	}
}

func TestCooldownClear(t *testing.T) {
	cd := NewCooldown(50*time.Millisecond, 100*time.Millisecond)
	cd.Set(0)
	cd.Clear()
	if cd.Wait(context.Background()) {
		t.Errorf("cleared cooldown should not sleep")
	}
	if cd.level != 0 {
		t.Errorf("level = %v, want 0", cd.level)
	}
}

func TestCooldownWaitHonorsContext(t *testing.T) {
	cd := NewCooldown(10*time.Second, time.Minute)
	cd.Set(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	cd.Wait(ctx)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait ignored the cancelled context, slept %v", elapsed)
	}
}
