// Package mining simulates a randomized, bounded mining task that pays out a
// single "mine" transaction when it completes.
package mining

import (
	"context"
	"sync"
	"time"

	"github.com/paper-piper/Dini/internal/clock"
	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/logger"
	"github.com/shopspring/decimal"
)

type Submitter interface {
	Submit(ctx context.Context, typ domain.TxType, amount decimal.Decimal, details string) (domain.Transaction, error)
}

type Progress struct {
	Fraction float64
	Reels    [3]string
}

type Simulator struct {
	submitter Submitter
	clock     clock.Clock
	schedule  Schedule
	tick      time.Duration
	reward    decimal.Decimal

	mu     sync.Mutex
	active *Run
}

func NewSimulator(submitter Submitter, clk clock.Clock, schedule Schedule, tick time.Duration, reward decimal.Decimal) *Simulator {
	return &Simulator{
		submitter: submitter,
		clock:     clk,
		schedule:  schedule,
		tick:      tick,
		reward:    reward,
	}
}

// Start begins a run. Only one run may be in progress at a time. Cancelling
// ctx cancels the run unless it has already completed.
func (s *Simulator) Start(ctx context.Context) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, domain.ErrAlreadyRunning
	}

	run := &Run{
		sim:      s,
		ctx:      ctx,
		started:  s.clock.Now(),
		total:    s.schedule.Duration(),
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
	}
	s.active = run

	run.mu.Lock()
	run.ticker = s.clock.Every(s.tick, run.onTick)
	run.finish = s.clock.AfterFunc(run.total, run.complete)
	run.stopWatch = context.AfterFunc(ctx, func() { run.Cancel() })
	run.mu.Unlock()

	logger.Log.Info("mining started", logger.Duration("duration", run.total))
	return run, nil
}

func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Simulator) release(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == run {
		s.active = nil
	}
}

type runState int

const (
	running runState = iota
	completing
	completed
	cancelled
)

// Run is a single mining attempt. Progress is a finite stream that keeps only
// the latest value and is closed once the run ends.
type Run struct {
	sim      *Simulator
	ctx      context.Context
	started  time.Time
	total    time.Duration
	progress chan Progress
	done     chan struct{}

	mu        sync.Mutex
	state     runState
	ticker    clock.Timer
	finish    clock.Timer
	stopWatch func() bool
	tx        domain.Transaction
	err       error
}

func (r *Run) Duration() time.Duration { return r.total }

func (r *Run) Progress() <-chan Progress { return r.progress }

func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel aborts the run and reports whether it did. It is a no-op once
// completion has begun.
func (r *Run) Cancel() bool {
	r.mu.Lock()
	if r.state != running {
		r.mu.Unlock()
		return false
	}
	r.state = cancelled
	r.err = domain.ErrCancelled
	r.stopTimersLocked()
	close(r.progress)
	r.mu.Unlock()

	logger.Log.Info("mining cancelled")
	r.end()
	return true
}

// Wait blocks until the run ends and returns the reward transaction.
func (r *Run) Wait(ctx context.Context) (domain.Transaction, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return domain.Transaction{}, ctx.Err()
	}
}

// Result returns the outcome of a finished run.
func (r *Run) Result() (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tx, r.err
}

func (r *Run) onTick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != running {
		return
	}
	r.publishLocked(Progress{
		Fraction: r.fraction(),
		Reels:    r.sim.schedule.Reels(),
	})
}

func (r *Run) complete() {
	r.mu.Lock()
	if r.state != running {
		r.mu.Unlock()
		return
	}
	r.state = completing
	r.stopTimersLocked()
	r.publishLocked(Progress{Fraction: 1, Reels: Jackpot})
	r.mu.Unlock()

	tx, err := r.sim.submitter.Submit(r.ctx, domain.TxMine, r.sim.reward, "")
	if err != nil {
		logger.Log.Error("error submitting mining reward", logger.Error(err))
	} else {
		logger.Log.Info("mining completed", logger.String("id", tx.ID))
	}

	r.mu.Lock()
	r.state = completed
	r.tx, r.err = tx, err
	close(r.progress)
	r.mu.Unlock()

	r.end()
}

func (r *Run) end() {
	r.sim.release(r)
	close(r.done)
}

func (r *Run) fraction() float64 {
	if r.total <= 0 {
		return 1
	}
	f := float64(r.sim.clock.Now().Sub(r.started)) / float64(r.total)
	if f > 1 {
		return 1
	}
	return f
}

func (r *Run) stopTimersLocked() {
	r.ticker.Stop()
	r.finish.Stop()
	if r.stopWatch != nil {
		r.stopWatch()
	}
}

// publishLocked replaces any unread value so a slow reader sees the latest.
func (r *Run) publishLocked(p Progress) {
	select {
	case r.progress <- p:
		return
	default:
	}
	select {
	case <-r.progress:
	default:
	}
	select {
	case r.progress <- p:
	default:
	}
}
