package progress

import (
	"context"
	"sync"

	"github.com/maas-mcp/bridge/internal/event"
)

// Stream is a live subscription to one operation's events. Callers read
// from Events until Done fires, then stop.
type Stream struct {
	operationID string
	ch          chan event.Event
	ctx         context.Context
	cancel      context.CancelFunc

	mu      sync.Mutex
	armed   bool // false while a replay is still in flight
	pending []event.Event
}

func newStream(operationID string, bufSize int, parent context.Context, armed bool) *Stream {
	if bufSize <= 0 {
		bufSize = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		operationID: operationID,
		ch:          make(chan event.Event, bufSize),
		ctx:         ctx,
		cancel:      cancel,
		armed:       armed,
	}
}

// Events is the channel new events are delivered on.
func (s *Stream) Events() <-chan event.Event { return s.ch }

// Done fires when the subscription ends, either because the caller's own
// context was cancelled or because the operation's scope was cancelled.
func (s *Stream) Done() <-chan struct{} { return s.ctx.Done() }

// Close ends the subscription. Safe to call more than once.
func (s *Stream) Close() { s.cancel() }

// deliverLive is called by the operation's broadcaster for every freshly
// emitted event. While a replay is in flight (armed == false) events are
// queued rather than sent, preserving replay-then-live ordering.
func (s *Stream) deliverLive(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		s.pending = append(s.pending, e)
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

// runReplay sends replayed events to the subscriber in order, then flushes
// whatever live events queued up while the replay was in flight, then arms
// the subscription for direct delivery. Queued events the replay already
// delivered (same or lower sequence) are skipped. Run in its own goroutine
// so Subscribe never blocks on a slow consumer.
func (s *Stream) runReplay(replay []event.Event) {
	var lastReplayed int64
	for _, e := range replay {
		select {
		case s.ch <- e:
			lastReplayed = e.Sequence
		case <-s.ctx.Done():
			return
		}
	}

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.armed = true
	s.mu.Unlock()

	for _, e := range pending {
		if !e.IsHeartbeat() && e.Sequence <= lastReplayed {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}
