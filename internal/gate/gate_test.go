package gate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fieldline/internal/gate"
)

func TestTransitionRunsStepsInOrder(t *testing.T) {
	g := gate.New(5 * time.Millisecond)
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	ran, err := g.Transition(context.Background(), gate.Step{
		Close:  func() error { record("close"); return nil },
		Reload: func(context.Context) error { record("reload"); return nil },
		Open:   func() error { record("open"); return nil },
	})
	if !ran || err != nil {
		t.Fatalf("transition ran=%v err=%v", ran, err)
	}
	if len(order) != 3 || order[0] != "close" || order[1] != "reload" || order[2] != "open" {
		t.Fatalf("unexpected order %v", order)
	}
	if g.State() != gate.Idle {
		t.Fatalf("gate not released")
	}
}

func TestConcurrentTransitionIsDropped(t *testing.T) {
	g := gate.New(0)
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Transition(context.Background(), gate.Step{
			Close: func() error {
				close(entered)
				<-release
				return nil
			},
		})
	}()
	<-entered
	if g.State() != gate.Transitioning {
		t.Fatalf("expected transitioning state")
	}
	var opened atomic.Bool
	ran, err := g.Transition(context.Background(), gate.Step{Open: func() error { opened.Store(true); return nil }})
	if ran || err != nil || opened.Load() {
		t.Fatalf("second transition should be dropped: ran=%v err=%v", ran, err)
	}
	close(release)
	<-done
	if g.State() != gate.Idle {
		t.Fatalf("gate not released")
	}
}

func TestGateReleasedOnErrorAndPanic(t *testing.T) {
	g := gate.New(0)
	boom := errors.New("reload failed")
	ran, err := g.Transition(context.Background(), gate.Step{
		Reload: func(context.Context) error { return boom },
		Open:   func() error { t.Errorf("open must not run after failed reload"); return nil },
	})
	if !ran || !errors.Is(err, boom) {
		t.Fatalf("expected reload error, got ran=%v err=%v", ran, err)
	}
	if g.State() != gate.Idle {
		t.Fatalf("gate held after error")
	}

	func() {
		defer func() { recover() }()
		g.Transition(context.Background(), gate.Step{Open: func() error { panic("render") }})
	}()
	if g.State() != gate.Idle {
		t.Fatalf("gate held after panic")
	}
}

func TestScheduleOnlyLatestFires(t *testing.T) {
	g := gate.New(20 * time.Millisecond)
	var first, second atomic.Int32
	g.Schedule(gate.Step{Open: func() error { first.Add(1); return nil }})
	res := g.Schedule(gate.Step{Open: func() error { second.Add(1); return nil }})
	select {
	case err := <-res:
		if err != nil {
			t.Fatalf("scheduled step failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled step never fired")
	}
	time.Sleep(50 * time.Millisecond)
	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("unexpected fire counts first=%d second=%d", first.Load(), second.Load())
	}
}

func TestCancelDropsScheduledStep(t *testing.T) {
	g := gate.New(10 * time.Millisecond)
	var fired atomic.Bool
	g.Schedule(gate.Step{Open: func() error { fired.Store(true); return nil }})
	g.Cancel()
	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("cancelled step fired")
	}
}

func TestScheduledStepWaitsSettleOnce(t *testing.T) {
	const settle = 100 * time.Millisecond
	g := gate.New(settle)
	opened := make(chan time.Time, 1)
	start := time.Now()
	done := g.Schedule(gate.Step{Open: func() error {
		opened <- time.Now()
		return nil
	}})
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("scheduled step failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled step never ran")
	}
	elapsed := (<-opened).Sub(start)
	if elapsed < settle {
		t.Fatalf("opened before the settle delay: %v", elapsed)
	}
	if elapsed >= 2*settle-20*time.Millisecond {
		t.Fatalf("settle delay applied twice: %v", elapsed)
	}
}
