// Package timer is a fixed pool of software timers driven by a seconds clock.
// Timers fire from Advance, on the goroutine calling it.
package timer

import (
	"errors"
	"time"
)

// MaxTimers is the pool capacity.
const MaxTimers = 16

// Mode selects whether a timer re-arms itself after firing.
type Mode int

const (
	OneShot Mode = iota
	Periodic
)

// Handle identifies a timer allocated with Init.
type Handle int

// Callback is invoked when a timer fires.
type Callback func()

// Clock returns the current time in seconds.
type Clock interface {
	Now() uint32
}

var (
	ErrNoTimer      = errors.New("no free timer")
	ErrInvalidTimer = errors.New("invalid timer handle")
)

type entry struct {
	used     bool
	running  bool
	mode     Mode
	period   uint32
	deadline uint32
	cb       Callback
}

// Wheel owns the timers.
type Wheel struct {
	clock  Clock
	timers [MaxTimers]entry
}

func NewWheel(clock Clock) *Wheel {
	return &Wheel{clock: clock}
}

// Init allocates a stopped timer calling cb.
func (w *Wheel) Init(cb Callback) (Handle, error) {
	for i := range w.timers {
		if !w.timers[i].used {
			w.timers[i] = entry{used: true, cb: cb}
			return Handle(i), nil
		}
	}
	return -1, ErrNoTimer
}

// Release frees a timer.
func (w *Wheel) Release(h Handle) {
	if w.valid(h) {
		w.timers[h] = entry{}
	}
}

// Set arms h to fire after seconds, restarting it when already running.
func (w *Wheel) Set(h Handle, mode Mode, seconds uint32) {
	if !w.valid(h) {
		return
	}
	t := &w.timers[h]
	t.mode = mode
	t.period = seconds
	t.deadline = w.clock.Now() + seconds
	t.running = true
}

func (w *Wheel) Cancel(h Handle) {
	if w.valid(h) {
		w.timers[h].running = false
	}
}

func (w *Wheel) Running(h Handle) bool {
	return w.valid(h) && w.timers[h].running
}

// Remaining returns the seconds left before h fires, 0 when stopped.
func (w *Wheel) Remaining(h Handle) uint32 {
	if !w.Running(h) {
		return 0
	}
	now := w.clock.Now()
	if d := w.timers[h].deadline; d > now {
		return d - now
	}
	return 0
}

// Advance fires every timer whose deadline has passed.
// Callbacks may set or cancel any timer, including their own.
func (w *Wheel) Advance() {
	now := w.clock.Now()
	for i := range w.timers {
		t := &w.timers[i]
		if !t.used || !t.running || t.deadline > now {
			continue
		}
		if t.mode == Periodic && t.period > 0 {
			t.deadline += t.period
			for t.deadline <= now {
				t.deadline += t.period
			}
		} else {
			t.running = false
		}
		if t.cb != nil {
			t.cb()
		}
	}
}

func (w *Wheel) valid(h Handle) bool {
	return h >= 0 && int(h) < MaxTimers && w.timers[h].used
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() uint32 { return uint32(time.Now().Unix()) }

// ManualClock is a clock moved by hand.
type ManualClock struct {
	T uint32
}

func (c *ManualClock) Now() uint32 { return c.T }

// Add moves the clock forward.
func (c *ManualClock) Add(seconds uint32) { c.T += seconds }
