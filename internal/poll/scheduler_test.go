package poll_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fieldline/internal/poll"
)

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func (m *manualTicker) tick() { m.ch <- time.Now() }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newScheduler(t *testing.T) (*poll.Scheduler, *manualTicker, *syncBuffer) {
	t.Helper()
	tk := &manualTicker{ch: make(chan time.Time)}
	out := &syncBuffer{}
	s := poll.New(log.New(out, "", 0))
	s.NewTicker = func(time.Duration) poll.Ticker { return tk }
	t.Cleanup(s.StopAll)
	return s, tk, out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("channel goroutine did not exit")
	}
}

func TestStartFetchesImmediatelyAndOnEveryTick(t *testing.T) {
	s, tk, _ := newScheduler(t)
	var calls atomic.Int32
	ok := s.Start(poll.Channel{
		Name:     "home",
		Interval: 30 * time.Second,
		Fetch: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	})
	if !ok {
		t.Fatalf("start failed")
	}
	waitFor(t, func() bool { return calls.Load() == 1 })
	tk.tick()
	tk.tick()
	waitFor(t, func() bool { return calls.Load() == 3 })
}

func TestStartIsIdempotentPerName(t *testing.T) {
	s, _, _ := newScheduler(t)
	ch := poll.Channel{Name: "roster", Interval: time.Second, Fetch: func(context.Context) error { return nil }}
	if !s.Start(ch) {
		t.Fatalf("first start failed")
	}
	if s.Start(ch) {
		t.Fatalf("second start should report already running")
	}
	if got := s.Names(); len(got) != 1 || got[0] != "roster" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestFailedFetchIsLoggedAndTimerContinues(t *testing.T) {
	s, tk, out := newScheduler(t)
	var calls atomic.Int32
	s.Start(poll.Channel{
		Name:     "heartbeat",
		Interval: time.Second,
		Fetch: func(ctx context.Context) error {
			if calls.Add(1) == 1 {
				return errors.New("network unavailable")
			}
			return nil
		},
	})
	waitFor(t, func() bool { return calls.Load() == 1 })
	tk.tick()
	waitFor(t, func() bool { return calls.Load() == 2 })
	if !strings.Contains(out.String(), "poll: channel heartbeat fetch failed: network unavailable") {
		t.Fatalf("failure not logged: %q", out.String())
	}
	if !s.Running("heartbeat") {
		t.Fatalf("channel stopped after failure")
	}
}

func TestStopCancelsInFlightFetch(t *testing.T) {
	s, tk, _ := newScheduler(t)
	started := make(chan struct{})
	var cancelled atomic.Bool
	s.Start(poll.Channel{
		Name:     "chat:private",
		Interval: time.Second,
		Fetch: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	})
	<-started
	waitClosed(t, s.Stop("chat:private"))
	if !cancelled.Load() {
		t.Fatalf("in-flight fetch was not cancelled")
	}
	if s.Running("chat:private") {
		t.Fatalf("channel still running")
	}
	if !tk.stopped.Load() {
		t.Fatalf("ticker not stopped")
	}
}

func TestInactiveChannelStopsItself(t *testing.T) {
	s, tk, out := newScheduler(t)
	var active atomic.Bool
	active.Store(true)
	var calls atomic.Int32
	s.Start(poll.Channel{
		Name:       "roster",
		Interval:   time.Second,
		ActiveWhen: active.Load,
		Fetch: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	})
	waitFor(t, func() bool { return calls.Load() == 1 })
	active.Store(false)
	tk.tick()
	waitFor(t, func() bool { return !s.Running("roster") })
	if calls.Load() != 1 {
		t.Fatalf("fetched while inactive: %d calls", calls.Load())
	}
	if !strings.Contains(out.String(), "poll: channel roster inactive, stopping") {
		t.Fatalf("self-stop not logged: %q", out.String())
	}
	if !s.Start(poll.Channel{Name: "roster", Interval: time.Second, Fetch: func(context.Context) error { return nil }}) {
		t.Fatalf("restart after self-stop failed")
	}
}

func TestFetchesNeverOverlap(t *testing.T) {
	s, tk, _ := newScheduler(t)
	var inFlight, maxInFlight, calls atomic.Int32
	s.Start(poll.Channel{
		Name:     "chat:channel",
		Interval: time.Second,
		Fetch: func(context.Context) error {
			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
			calls.Add(1)
			return nil
		},
	})
	for i := 0; i < 3; i++ {
		tk.tick()
	}
	waitFor(t, func() bool { return calls.Load() >= 3 })
	if maxInFlight.Load() != 1 {
		t.Fatalf("fetches overlapped: max %d", maxInFlight.Load())
	}
}
