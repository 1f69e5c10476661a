package clock

import (
	"testing"
	"time"
)

func TestSimClockAdvanceFiresDueTimersInOrder(t *testing.T) {
	c := NewSimClock(0)
	var fired []int64
	c.ScheduleAt(300, func(ts int64) { fired = append(fired, ts) })
	c.ScheduleAt(100, func(ts int64) { fired = append(fired, ts) })
	c.ScheduleAt(200, func(ts int64) { fired = append(fired, ts) })

	c.Advance(250)
	if len(fired) != 2 || fired[0] != 100 || fired[1] != 200 {
		t.Fatalf("fire order mismatch: %v", fired)
	}
	if c.Now() != 250 {
		t.Fatalf("now mismatch: got %d want 250", c.Now())
	}

	c.Advance(300)
	if len(fired) != 3 || fired[2] != 300 {
		t.Fatalf("remaining timer not fired: %v", fired)
	}
}

func TestSimClockEqualTimestampsFireInScheduleOrder(t *testing.T) {
	c := NewSimClock(0)
	var fired []int
	c.ScheduleAt(100, func(int64) { fired = append(fired, 1) })
	c.ScheduleAt(100, func(int64) { fired = append(fired, 2) })
	c.ScheduleAt(100, func(int64) { fired = append(fired, 3) })

	c.Advance(100)
	if len(fired) != 3 || fired[0] != 1 || fired[1] != 2 || fired[2] != 3 {
		t.Fatalf("schedule order broken: %v", fired)
	}
}

func TestSimClockCancel(t *testing.T) {
	c := NewSimClock(0)
	fired := false
	cancel := c.ScheduleAt(100, func(int64) { fired = true })
	cancel()
	c.Advance(200)
	if fired {
		t.Fatal("cancelled timer fired")
	}
	if c.PendingTimers() != 0 {
		t.Fatalf("pending timers: got %d want 0", c.PendingTimers())
	}
}

func TestSimClockNeverGoesBackwards(t *testing.T) {
	c := NewSimClock(500)
	c.Advance(100)
	if c.Now() != 500 {
		t.Fatalf("clock went backwards: %d", c.Now())
	}
}

func TestSimClockTimerSeesFireTimeNotObservation(t *testing.T) {
	c := NewSimClock(0)
	var nowAtFire int64
	c.ScheduleAt(100, func(ts int64) {
		nowAtFire = c.Now()
		if ts != 100 {
			t.Fatalf("fire ts mismatch: got %d want 100", ts)
		}
	})
	c.Advance(1000)
	if nowAtFire != 100 {
		t.Fatalf("clock not at fire time during callback: got %d want 100", nowAtFire)
	}
}

func TestSimClockPastTimerFiresOnNextAdvance(t *testing.T) {
	c := NewSimClock(1000)
	fired := false
	c.ScheduleAt(500, func(int64) { fired = true })
	c.Advance(1000)
	if !fired {
		t.Fatal("past timer did not fire")
	}
}

func TestWallClockMonotonic(t *testing.T) {
	c := NewWallClock()
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		if now < prev {
			t.Fatalf("wall clock went backwards: %d after %d", now, prev)
		}
		prev = now
	}
}

func TestWallClockScheduleAt(t *testing.T) {
	c := NewWallClock()
	done := make(chan int64, 1)
	target := c.Now() + int64(10*time.Millisecond)
	c.ScheduleAt(target, func(ts int64) { done <- ts })

	select {
	case ts := <-done:
		if ts != target {
			t.Fatalf("fire ts mismatch: got %d want %d", ts, target)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestWallClockCancel(t *testing.T) {
	c := NewWallClock()
	fired := make(chan struct{}, 1)
	cancel := c.ScheduleAt(c.Now()+int64(50*time.Millisecond), func(int64) {
		fired <- struct{}{}
	})
	cancel()
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
