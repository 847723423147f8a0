package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := clock.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(5 * time.Second)
	if got := clock.Since(start); got != 5*time.Second {
		t.Errorf("Since() = %v, want 5s", got)
	}
}

func TestMockTicker_Fires(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(20 * time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(10 * time.Millisecond)
	select {
	case got := <-ticker.C():
		if want := start.Add(20 * time.Millisecond); !got.Equal(want) {
			t.Errorf("tick time = %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestMockTicker_DropsWhenFull(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Millisecond)

	for i := 0; i < 5; i++ {
		clock.Advance(time.Millisecond)
	}
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("expected a single buffered tick")
	default:
	}
}

func TestMockTicker_StopAndReset(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Millisecond)
	if n := clock.ActiveTickers(); n != 1 {
		t.Fatalf("ActiveTickers() = %d, want 1", n)
	}

	ticker.Stop()
	if n := clock.ActiveTickers(); n != 0 {
		t.Fatalf("ActiveTickers() = %d after Stop, want 0", n)
	}
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}

	ticker.Reset(10 * time.Millisecond)
	clock.Advance(5 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("reset ticker fired early")
	default:
	}
	clock.Advance(5 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("reset ticker did not fire")
	}
}
