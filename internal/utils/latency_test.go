package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(100)
	if got := tracker.Percentile(95); got != 0 {
		t.Errorf("empty tracker p95 = %v, want 0", got)
	}

	for i := 1; i <= 100; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if got := tracker.Count(); got != 100 {
		t.Errorf("count = %d, want 100", got)
	}

	p95 := tracker.Percentile(95)
	if p95 < 90*time.Millisecond || p95 > 100*time.Millisecond {
		t.Errorf("p95 = %v, want within [90ms, 100ms]", p95)
	}
	if got := tracker.Percentile(0); got != 1*time.Millisecond {
		t.Errorf("p0 = %v, want 1ms", got)
	}
	if got := tracker.Percentile(100); got != 100*time.Millisecond {
		t.Errorf("p100 = %v, want 100ms", got)
	}
}

func TestLatencyTrackerEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 5; i++ {
		tracker.Observe(time.Duration(i) * time.Second)
	}
	if got := tracker.Count(); got != 3 {
		t.Errorf("count = %d, want capped at 3", got)
	}
	if got := tracker.Percentile(0); got != 3*time.Second {
		t.Errorf("oldest sample = %v, want 3s after eviction", got)
	}
}
