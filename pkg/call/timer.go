package call

import (
	"fmt"
	"sync"
	"time"
)

// Scheduler runs fn every d until the returned cancel func is called.
type Scheduler interface {
	Every(d time.Duration, fn func()) (cancel func())
}

// TickerScheduler is the Scheduler backed by time.Ticker.
type TickerScheduler struct{}

func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// Timer counts elapsed call seconds. It is not safe for concurrent use; the
// controller drives it under its own lock.
//
// Every Start bumps a generation number and ticks carry the generation they
// were scheduled with, so a tick that races with Stop or a restart is
// discarded instead of counted.
type Timer struct {
	sched    Scheduler
	interval time.Duration

	gen     uint64
	cancel  func()
	elapsed int
}

func NewTimer(sched Scheduler, interval time.Duration) *Timer {
	if sched == nil {
		sched = TickerScheduler{}
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{sched: sched, interval: interval}
}

// Start cancels any running tick, resets the count to zero and schedules a
// new tick that calls onTick with the new generation.
func (t *Timer) Start(onTick func(gen uint64)) {
	t.Stop()
	t.elapsed = 0
	gen := t.gen
	t.cancel = t.sched.Every(t.interval, func() { onTick(gen) })
}

// Tick counts one interval if gen is the running generation.
func (t *Timer) Tick(gen uint64) bool {
	if t.cancel == nil || gen != t.gen {
		return false
	}
	t.elapsed++
	return true
}

// Stop cancels the tick and freezes the count. Safe to call when stopped.
func (t *Timer) Stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
}

func (t *Timer) Running() bool { return t.cancel != nil }
func (t *Timer) Elapsed() int { return t.elapsed }

// FormatTime renders seconds as zero-padded HH:MM:SS. Hours are not clamped.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
