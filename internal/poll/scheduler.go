package poll

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// Channel is one independently refreshed data feed.
type Channel struct {
	Name     string
	Interval time.Duration
	// ActiveWhen is checked before every fetch. Once it reports false the
	// channel stops itself. Nil means always active.
	ActiveWhen func() bool
	// Fetch must not publish results once ctx is done.
	Fetch func(ctx context.Context) error
}

// Ticker abstracts time.Ticker so tests can drive the schedule.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Scheduler runs poll channels, at most one goroutine per channel name.
type Scheduler struct {
	Logger    *log.Logger
	NewTicker func(d time.Duration) Ticker

	mu      sync.Mutex
	running map[string]*runner
}

type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(logger *log.Logger) *Scheduler {
	return &Scheduler{Logger: logger}
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s *Scheduler) ticker(d time.Duration) Ticker {
	if s.NewTicker != nil {
		return s.NewTicker(d)
	}
	return realTicker{t: time.NewTicker(d)}
}

// Start launches ch. It fetches immediately and then once per interval. It
// returns false when a channel with the same name is already running.
func (s *Scheduler) Start(ch Channel) bool {
	if ch.Name == "" || ch.Fetch == nil || ch.Interval <= 0 {
		s.logger().Printf("poll: refusing invalid channel %q", ch.Name)
		return false
	}
	s.mu.Lock()
	if s.running == nil {
		s.running = map[string]*runner{}
	}
	if _, ok := s.running[ch.Name]; ok {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan struct{})}
	s.running[ch.Name] = r
	s.mu.Unlock()

	go s.run(ctx, ch, r)
	return true
}

// Stop cancels the named channel and any fetch it has in flight. The returned
// channel closes once the channel's goroutine has exited; Stop itself does not
// wait, so it is safe to call from inside a Fetch.
func (s *Scheduler) Stop(name string) <-chan struct{} {
	s.mu.Lock()
	r, ok := s.running[name]
	if ok {
		delete(s.running, name)
	}
	s.mu.Unlock()
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	r.cancel()
	return r.done
}

func (s *Scheduler) StopAll() {
	for _, name := range s.Names() {
		s.Stop(name)
	}
}

func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[name]
	return ok
}

func (s *Scheduler) Names() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	return names
}

// Wait blocks until the named channel's goroutine has exited or ctx is done.
// It returns immediately for unknown names.
func (s *Scheduler) Wait(ctx context.Context, name string) error {
	s.mu.Lock()
	r, ok := s.running[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, ch Channel, r *runner) {
	defer s.finish(ch.Name, r)
	t := s.ticker(ch.Interval)
	defer t.Stop()
	for {
		if ch.ActiveWhen != nil && !ch.ActiveWhen() {
			s.logger().Printf("poll: channel %s inactive, stopping", ch.Name)
			return
		}
		s.fetch(ctx, ch)
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
	}
}

func (s *Scheduler) fetch(ctx context.Context, ch Channel) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger().Printf("poll: channel %s fetch panicked: %v", ch.Name, rec)
		}
	}()
	err := ch.Fetch(ctx)
	if err == nil || errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return
	}
	s.logger().Printf("poll: channel %s fetch failed: %v", ch.Name, err)
}

func (s *Scheduler) finish(name string, r *runner) {
	r.cancel()
	s.mu.Lock()
	if cur, ok := s.running[name]; ok && cur == r {
		delete(s.running, name)
	}
	s.mu.Unlock()
	close(r.done)
}
