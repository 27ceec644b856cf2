package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State of the gate.
type State int

const (
	Idle State = iota
	Transitioning
)

func (s State) String() string {
	if s == Transitioning {
		return "transitioning"
	}
	return "idle"
}

// Step describes one modal transition. Every hook is optional.
type Step struct {
	Close  func() error
	Reload func(ctx context.Context) error
	Open   func() error
}

// Gate serializes modal transitions: only one runs at a time and requests
// arriving meanwhile are dropped.
type Gate struct {
	settle time.Duration
	busy   atomic.Bool

	mu      sync.Mutex
	pending *time.Timer
	seq     uint64
}

// New returns a gate that waits settle between closing one modal and opening
// the next.
func New(settle time.Duration) *Gate {
	return &Gate{settle: settle}
}

func (g *Gate) State() State {
	if g.busy.Load() {
		return Transitioning
	}
	return Idle
}

// Transition runs step unless another transition holds the gate, in which
// case it returns false without side effects. The gate is released on every
// exit path, including panics in the hooks.
func (g *Gate) Transition(ctx context.Context, step Step) (bool, error) {
	return g.run(ctx, step, g.settle)
}

func (g *Gate) run(ctx context.Context, step Step, settle time.Duration) (bool, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return false, nil
	}
	defer g.busy.Store(false)

	if step.Close != nil {
		if err := step.Close(); err != nil {
			return true, err
		}
	}
	if settle > 0 {
		t := time.NewTimer(settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return true, ctx.Err()
		}
	}
	if step.Reload != nil {
		if err := step.Reload(ctx); err != nil {
			return true, err
		}
	}
	if step.Open != nil {
		if err := step.Open(); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Schedule arms step to run after the settle delay, replacing any scheduled
// step that has not fired yet. The timer is the settle delay; the step itself
// does not wait again. The returned channel receives the outcome of
// the step if it fires.
func (g *Gate) Schedule(step Step) <-chan error {
	result := make(chan error, 1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		g.pending.Stop()
	}
	g.seq++
	seq := g.seq
	g.pending = time.AfterFunc(g.settle, func() {
		g.mu.Lock()
		if g.seq != seq {
			g.mu.Unlock()
			return
		}
		g.pending = nil
		g.mu.Unlock()
		ran, err := g.run(context.Background(), step, 0)
		if ran {
			result <- err
		}
	})
	return result
}

// Cancel drops a scheduled step that has not fired yet.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
	g.seq++
}
