package circuitbreaker

import (
	"testing"
	"time"
)

func TestStaysClosedBelowThreshold(t *testing.T) {
	b := New("test", 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()

	if !b.Allow() {
		t.Fatal("circuit should still allow calls below the failure threshold")
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %v", b.State())
	}
}

func TestOpensAtThreshold(t *testing.T) {
	b := New("test", 3, time.Minute)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	if b.Allow() {
		t.Fatal("open circuit should reject calls")
	}
	if b.State() != StateOpen {
		t.Errorf("expected open, got %v", b.State())
	}
}

func TestSuccessResetsStreak(t *testing.T) {
	b := New("test", 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if !b.Allow() {
		t.Fatal("success should have reset the failure streak")
	}
}

func TestProbeAfterCooldown(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond)

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("circuit should be open immediately after tripping")
	}

	time.Sleep(15 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("cooldown elapsed, one probe should be allowed")
	}
	if b.State() != StateHalfOpen {
		t.Errorf("expected half-open during probe, got %v", b.State())
	}
	if b.Allow() {
		t.Fatal("only one probe may be in flight")
	}
}

func TestProbeSuccessCloses(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("probe should be allowed after cooldown")
	}

	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", b.State())
	}
	if !b.Allow() {
		t.Fatal("closed circuit should allow calls")
	}
}

func TestProbeFailureReopens(t *testing.T) {
	b := New("test", 1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	b.Allow() // take the probe slot
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Errorf("expected reopen after failed probe, got %v", b.State())
	}
	if b.Allow() {
		t.Fatal("circuit should reject calls until the next cooldown elapses")
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(42):     "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
