package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	if got.Before(before) {
		t.Errorf("RealClock.Now() = %v, before %v", got, before)
	}
}

func TestMockClock_TickerFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	tk := c.NewTicker(10 * time.Millisecond)

	c.Advance(5 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired before interval")
	default:
	}

	c.Advance(5 * time.Millisecond)
	select {
	case got := <-tk.C():
		if !got.Equal(start.Add(10 * time.Millisecond)) {
			t.Errorf("tick time = %v", got)
		}
	default:
		t.Fatal("ticker did not fire")
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockClock_TimerFiresOnce(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tm := c.NewTimer(time.Second)

	c.Advance(2 * time.Second)
	select {
	case <-tm.C():
	default:
		t.Fatal("timer did not fire")
	}
	if tm.Stop() {
		t.Error("Stop after fire should report inactive")
	}
	c.Advance(2 * time.Second)
	select {
	case <-tm.C():
		t.Fatal("timer fired twice")
	default:
	}
}
