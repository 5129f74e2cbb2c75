package sink

import (
	"context"
	"sync"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/monitoring"
	"github.com/kestrel-sense/driverwatch/internal/timeutil"
)

// DefaultDebounce is how long a routine save waits for further updates before
// it is flushed.
const DefaultDebounce = 5 * time.Second

// Sender delivers one record to the collector. *Client implements it.
type Sender interface {
	Send(ctx context.Context, rec Record) error
}

// Scheduler coalesces telemetry saves. It holds at most one pending record:
// every Schedule call overwrites the previous pending state. Routine saves
// wait out a debounce window (each newer call restarts the window); immediate
// saves flush on the spot and cancel whatever send is still in flight. Sends
// never overlap. Delivery failures are logged and dropped so persistence can
// never stall the caller.
type Scheduler struct {
	sender   Sender
	clock    timeutil.Clock
	debounce time.Duration

	mu       sync.Mutex
	pending  *Record
	deadline time.Time
	timer    timeutil.Timer
	cancel   context.CancelFunc
	lastDone chan struct{}
	closed   bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a Scheduler flushing through sender. A nil clk gets
// the real clock; a non-positive debounce gets DefaultDebounce.
func NewScheduler(sender Sender, clk timeutil.Clock, debounce time.Duration) *Scheduler {
	if clk == nil {
		clk = timeutil.RealClock{}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	s := &Scheduler{
		sender:   sender,
		clock:    clk,
		debounce: debounce,
		quit:     make(chan struct{}),
	}
	// Parked until the first routine save arms it.
	s.timer = clk.NewTimer(time.Hour)
	s.timer.Stop()

	s.wg.Add(1)
	go s.run()
	return s
}

// Schedule records rec as the pending snapshot, replacing any previous one.
// With immediate set it flushes now, superseding an in-flight send; otherwise
// the debounce timer restarts and the latest pending state goes out when it
// expires. Calls after Close are ignored.
func (s *Scheduler) Schedule(rec Record, immediate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &rec

	if immediate {
		s.timer.Stop()
		s.deadline = time.Time{}
		s.dispatchLocked()
		return
	}

	s.deadline = s.clock.Now().Add(s.debounce)
	s.timer.Reset(s.debounce)
}

// Close stops the scheduler. An in-flight send is cancelled; a still-pending
// snapshot is flushed once, best-effort. Safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timer.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	rec := s.pending
	s.pending = nil
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()

	if rec != nil {
		if err := s.sender.Send(context.Background(), *rec); err != nil {
			monitoring.Debugf("sink: final flush dropped: %v", err)
		}
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case <-s.timer.C():
			s.mu.Lock()
			// A stale tick from a superseded arm fires early; the deadline
			// check rejects it.
			if !s.closed && s.pending != nil && !s.clock.Now().Before(s.deadline) {
				s.dispatchLocked()
			}
			s.mu.Unlock()
		}
	}
}

// dispatchLocked hands the pending record to a sender goroutine. The caller
// holds mu and guarantees pending is non-nil. Superseding cancels the prior
// send; the new goroutine waits for the prior one to wind down before issuing
// its request, so at most one request is ever outstanding.
func (s *Scheduler) dispatchLocked() {
	rec := *s.pending
	s.pending = nil

	if s.cancel != nil {
		s.cancel()
	}
	prev := s.lastDone

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.lastDone = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()

		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}
		if err := s.sender.Send(ctx, rec); err != nil {
			monitoring.Debugf("sink: save dropped: %v", err)
		}
	}()
}
