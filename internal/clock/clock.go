// Package clock schedules one-shot and repeating callbacks behind an interface
// so that pollers, heartbeats and mining runs can be driven by a fake in tests.
package clock

import (
	"sync"
	"time"
)

// Timer cancels a scheduled callback. Stop reports whether the call stopped
// the task; it returns false if the task already fired (one-shot) or was
// already stopped.
type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	// AfterFunc calls f once after d.
	AfterFunc(d time.Duration, f func()) Timer
	// Every calls f every d until stopped. Calls never overlap; ticks that
	// fall due while f is still running are dropped.
	Every(d time.Duration, f func()) Timer
}

func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) Every(d time.Duration, f func()) Timer {
	t := &ticker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

type ticker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *ticker) run(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			select {
			case <-t.done:
				return
			default:
			}
			f()
		}
	}
}

func (t *ticker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
