package call

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFormatTime(t *testing.T) {
	cases := map[int]string{
		0:      "00:00:00",
		59:     "00:00:59",
		60:     "00:01:00",
		3661:   "01:01:01",
		86399:  "23:59:59",
		360000: "100:00:00",
		-5:     "00:00:00",
	}
	for in, want := range cases {
		if got := FormatTime(in); got != want {
			t.Fatalf("FormatTime(%d)=%q, want %q", in, got, want)
		}
	}
}

func TestTimer_StartResetsAndCounts(t *testing.T) {
	sched := &manualScheduler{}
	tm := NewTimer(sched, time.Second)

	var lastGen uint64
	tm.Start(func(gen uint64) { lastGen = gen; tm.Tick(gen) })
	sched.fireActive(3)
	if tm.Elapsed() != 3 {
		t.Fatalf("elapsed=%d", tm.Elapsed())
	}

	tm.Start(func(gen uint64) { tm.Tick(gen) })
	if tm.Elapsed() != 0 {
		t.Fatalf("restart must reset, elapsed=%d", tm.Elapsed())
	}
	if sched.active() != 1 {
		t.Fatalf("restart must cancel the previous tick, active=%d", sched.active())
	}
	if tm.Tick(lastGen) {
		t.Fatal("tick from the previous generation was counted")
	}
}

func TestTimer_StopDiscardsInFlightTicks(t *testing.T) {
	sched := &manualScheduler{}
	tm := NewTimer(sched, time.Second)
	tm.Start(func(gen uint64) { tm.Tick(gen) })
	sched.fireActive(2)
	tm.Stop()
	tm.Stop()

	sched.fireAll(5)
	if tm.Elapsed() != 2 {
		t.Fatalf("elapsed=%d, want frozen at 2", tm.Elapsed())
	}
	if tm.Running() {
		t.Fatal("timer still running after Stop")
	}
}

func TestTickerScheduler_CancelStopsTicks(t *testing.T) {
	var n atomic.Int32
	cancel := TickerScheduler{}.Every(5*time.Millisecond, func() { n.Add(1) })
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("ticker never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	cancel()
	time.Sleep(20 * time.Millisecond)
	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	if n.Load() != after {
		t.Fatalf("ticks continued after cancel: %d -> %d", after, n.Load())
	}
}
