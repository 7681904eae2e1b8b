package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	clock := RealClock{}
	timer := clock.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
		// Timer fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("timer did not fire")
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		// Ticker fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestFakeClock_Now(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewFakeClock(fixedTime)

	if !clock.Now().Equal(fixedTime) {
		t.Errorf("got %v, want %v", clock.Now(), fixedTime)
	}
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	clock.Advance(time.Hour)
	expected := start.Add(time.Hour)

	if !clock.Now().Equal(expected) {
		t.Errorf("got %v, want %v", clock.Now(), expected)
	}
}

func TestFakeClock_Since(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(now)
	past := now.Add(-5 * time.Minute)

	if d := clock.Since(past); d != 5*time.Minute {
		t.Errorf("got %v, want 5m", d)
	}
}

func TestFakeClock_Sleep(t *testing.T) {
	clock := NewFakeClock(time.Now())
	clock.Sleep(time.Second)
	clock.Sleep(100 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("recorded %d sleeps, want 2", len(sleeps))
	}
	if sleeps[0] != time.Second || sleeps[1] != 100*time.Millisecond {
		t.Errorf("sleeps = %v, want [1s 100ms]", sleeps)
	}
}

func TestFakeClock_TimerFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	timer := clock.NewTimer(50 * time.Millisecond)

	clock.Advance(49 * time.Millisecond)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case fired := <-timer.C():
		want := start.Add(50 * time.Millisecond)
		if !fired.Equal(want) {
			t.Errorf("timer fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFakeClock_TimerStop(t *testing.T) {
	clock := NewFakeClock(time.Now())
	timer := clock.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop on an armed timer should report true")
	}
	if timer.Stop() {
		t.Error("Stop on a stopped timer should report false")
	}

	clock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Error("stopped timer must not fire")
	default:
	}
}

func TestFakeClock_TickerRearms(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)
	ticker := clock.NewTicker(30 * time.Millisecond)
	defer ticker.Stop()

	for i := 1; i <= 3; i++ {
		clock.Advance(30 * time.Millisecond)
		select {
		case fired := <-ticker.C():
			want := start.Add(time.Duration(i) * 30 * time.Millisecond)
			if !fired.Equal(want) {
				t.Errorf("tick %d at %v, want %v", i, fired, want)
			}
		default:
			t.Fatalf("ticker did not fire on advance %d", i)
		}
	}
}

func TestFakeClock_TickerDropsUndrainedTicks(t *testing.T) {
	clock := NewFakeClock(time.Now())
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	// Nothing drains the channel, so a large advance delivers only the
	// buffered tick and drops the rest.
	clock.Advance(100 * time.Millisecond)

	got := 0
	for {
		select {
		case <-ticker.C():
			got++
			continue
		default:
		}
		break
	}
	if got != 1 {
		t.Errorf("drained %d ticks, want 1 buffered tick", got)
	}
}

func TestFakeClock_AdvanceOrdersDeadlines(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	late := clock.NewTimer(80 * time.Millisecond)
	early := clock.NewTimer(20 * time.Millisecond)

	clock.Advance(100 * time.Millisecond)

	earlyAt := <-early.C()
	lateAt := <-late.C()
	if !earlyAt.Before(lateAt) {
		t.Errorf("deadlines fired out of order: early %v, late %v", earlyAt, lateAt)
	}
}

func TestFakeClock_Waiters(t *testing.T) {
	clock := NewFakeClock(time.Now())
	if clock.Waiters() != 0 {
		t.Fatalf("fresh clock has %d waiters, want 0", clock.Waiters())
	}

	timer := clock.NewTimer(time.Second)
	ticker := clock.NewTicker(time.Second)
	if clock.Waiters() != 2 {
		t.Errorf("got %d waiters, want 2", clock.Waiters())
	}

	timer.Stop()
	ticker.Stop()
	if clock.Waiters() != 0 {
		t.Errorf("got %d waiters after stops, want 0", clock.Waiters())
	}
}

func TestFakeClock_After(t *testing.T) {
	clock := NewFakeClock(time.Now())
	ch := clock.After(time.Minute)

	clock.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Error("After channel did not receive once the clock passed the deadline")
	}
}
