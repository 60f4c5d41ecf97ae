package generation

import (
	"testing"
	"time"
)

func TestCalculateBackoffZeroAttempt(t *testing.T) {
	if d := calculateBackoff(time.Second, 0); d != 0 {
		t.Errorf("expected 0 for attempt 0, got %v", d)
	}
}

func TestCalculateBackoffZeroBaseDelay(t *testing.T) {
	// A zero base delay means retry immediately; there is nothing to jitter
	for attempt := 1; attempt <= 5; attempt++ {
		if d := calculateBackoff(0, attempt); d != 0 {
			t.Errorf("expected 0 for zero base delay at attempt %d, got %v", attempt, d)
		}
	}
}

func TestCalculateBackoffTinyBaseDelay(t *testing.T) {
	// Sub-jitter delays must come back unmodified rather than blow up
	if d := calculateBackoff(time.Nanosecond, 1); d != 2*time.Nanosecond {
		t.Errorf("expected 2ns for 1ns base at attempt 1, got %v", d)
	}
}

func TestCalculateBackoffGrows(t *testing.T) {
	base := time.Second
	// With +/-25% jitter, attempt 2 (4s) always exceeds attempt 1's max (2.5s)
	d1 := calculateBackoff(base, 1)
	d2 := calculateBackoff(base, 2)
	if d2 <= d1 {
		t.Errorf("expected backoff to grow: attempt1=%v attempt2=%v", d1, d2)
	}
}

func TestCalculateBackoffCapped(t *testing.T) {
	// 2^40 seconds would overflow without the cap
	d := calculateBackoff(time.Second, 40)
	max := 30*time.Second + 30*time.Second/4
	if d > max {
		t.Errorf("backoff %v exceeds cap with jitter %v", d, max)
	}
}
