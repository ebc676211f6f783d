package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks run synchronously on the
// goroutine calling Advance, in due-time order.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*fakeTask
}

type fakeTask struct {
	clock  *Fake
	seq    uint64
	at     time.Time
	period time.Duration
	f      func()
	done   bool
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	return c.schedule(d, 0, f)
}

func (c *Fake) Every(d time.Duration, f func()) Timer {
	return c.schedule(d, d, f)
}

func (c *Fake) schedule(d, period time.Duration, f func()) *fakeTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &fakeTask{
		clock:  c,
		seq:    c.seq,
		at:     c.now.Add(d),
		period: period,
		f:      f,
	}
	c.tasks = append(c.tasks, t)
	return t
}

// Advance moves the clock forward by d, firing every task that falls due.
// Tasks scheduled by callbacks fire too if they fall due within d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}

		c.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			c.remove(next)
		}
		f := next.f
		c.mu.Unlock()

		f()
	}
}

// Active returns the number of scheduled tasks that have not fired or been stopped.
func (c *Fake) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func (c *Fake) nextDue(target time.Time) *fakeTask {
	var next *fakeTask
	for _, t := range c.tasks {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (c *Fake) remove(t *fakeTask) {
	t.done = true
	for i, task := range c.tasks {
		if task == t {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			return
		}
	}
}

func (t *fakeTask) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.done {
		return false
	}
	t.clock.remove(t)
	return true
}
