package minigame

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled callback. Stop may be called more than once.
type Stopper interface {
	Stop()
}

// Scheduler runs callbacks later. Callbacks may run on any goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
	Every(d time.Duration, f func()) Stopper
}

// SystemScheduler schedules on the wall clock.
func SystemScheduler() Scheduler {
	return systemScheduler{}
}

type systemScheduler struct{}

type timerStopper struct{ t *time.Timer }

func (s timerStopper) Stop() { s.t.Stop() }

func (systemScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return timerStopper{time.AfterFunc(d, f)}
}

type tickerStopper struct {
	done chan struct{}
	once sync.Once
}

func (s *tickerStopper) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (systemScheduler) Every(d time.Duration, f func()) Stopper {
	s := &tickerStopper{done: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f()
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// Timing sets the pace of a match.
type Timing struct {
	// CountdownTicks is the countdown length of each round.
	CountdownTicks int
	// Tick is the countdown period.
	Tick time.Duration
	// Reveal is how long a resolved round is shown.
	Reveal time.Duration
	// NextRound is the pause before the next countdown.
	NextRound time.Duration
	// Handshake bounds waiting for a challenge answer or for both sides to
	// be ready. Negative disables it.
	Handshake time.Duration
}

// DefaultTiming is the pace of a regular match.
var DefaultTiming = Timing{
	CountdownTicks: 5,
	Tick:           time.Second,
	Reveal:         2 * time.Second,
	NextRound:      2 * time.Second,
	Handshake:      30 * time.Second,
}

func (t Timing) withDefaults() Timing {
	if t.CountdownTicks <= 0 {
		t.CountdownTicks = DefaultTiming.CountdownTicks
	}
	if t.Tick <= 0 {
		t.Tick = DefaultTiming.Tick
	}
	if t.Reveal <= 0 {
		t.Reveal = DefaultTiming.Reveal
	}
	if t.NextRound <= 0 {
		t.NextRound = DefaultTiming.NextRound
	}
	switch {
	case t.Handshake == 0:
		t.Handshake = DefaultTiming.Handshake
	case t.Handshake < 0:
		t.Handshake = 0
	}
	return t
}
