package progress

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maas-mcp/bridge/internal/cancelmgr"
	"github.com/maas-mcp/bridge/internal/event"
)

// DefaultHeartbeatInterval is used when Tracker is constructed with a
// non-positive interval.
const DefaultHeartbeatInterval = 30 * time.Second

// opRecord is the tracker's internal bookkeeping for one operation. All
// mutation of op and subs goes through mu, kept as a short critical section
// per spec: holders never block on channel sends or I/O while holding it.
type opRecord struct {
	mu   sync.Mutex
	op   Operation
	ctx  context.Context
	seq  int64
	subs map[int64]*Stream

	fanout chan event.Event
	stop   chan struct{}
}

func (rec *opRecord) nextSeq() int64 {
	rec.seq++
	return rec.seq
}

// Tracker is the progress tracker (component C): it owns the operation
// lifecycle state machine, the per-operation event history, and the live
// subscription fan-out, backed by an event.Store for reconnection replay
// and a cancelmgr.Manager for per-operation cancellation scopes.
type Tracker struct {
	ring              *event.Store
	cancelMgr         *cancelmgr.Manager
	bufferSize        int
	heartbeatInterval time.Duration

	mu  sync.RWMutex
	ops map[string]*opRecord

	nextSubID    atomic.Int64
	heartbeatSeq atomic.Int64
	stopHeartbeat chan struct{}
	stopOnce      sync.Once
}

// New builds a Tracker over the given event store and cancellation manager.
// bufferSize bounds both the per-operation fan-out channel and every
// subscription's downstream channel; heartbeatInterval is the cadence of
// the keep-alive events sent to live subscribers (DefaultHeartbeatInterval
// if <= 0).
func New(store *event.Store, cancelMgr *cancelmgr.Manager, bufferSize int, heartbeatInterval time.Duration) *Tracker {
	if bufferSize <= 0 {
		bufferSize = event.DefaultRingCapacity
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	t := &Tracker{
		ring:              store,
		cancelMgr:         cancelMgr,
		bufferSize:        bufferSize,
		heartbeatInterval: heartbeatInterval,
		ops:               make(map[string]*opRecord),
		stopHeartbeat:     make(chan struct{}),
	}
	go t.runHeartbeats()
	return t
}

// StartOperation registers a new operation, returning a Reporter for the
// handler to report through and the cancellation context it should thread
// into every upstream call. Returns OperationExists if id is already
// tracked.
func (t *Tracker) StartOperation(id string) (Reporter, context.Context, error) {
	t.mu.Lock()
	if _, exists := t.ops[id]; exists {
		t.mu.Unlock()
		return nil, nil, OperationExists
	}
	ctx := t.cancelMgr.RegisterOperation(id)
	now := time.Now()
	rec := &opRecord{
		op: Operation{
			ID:             id,
			StartTime:      now,
			LastUpdateTime: now,
			Status:         StatusInitializing,
		},
		ctx:    ctx,
		subs:   make(map[int64]*Stream),
		fanout: make(chan event.Event, t.bufferSize),
		stop:   make(chan struct{}),
	}
	t.ops[id] = rec
	t.mu.Unlock()

	go t.runBroadcast(rec)

	rec.mu.Lock()
	seq := rec.nextSeq()
	initial := event.Event{
		ID:             event.GenerateID(id, event.KindStatus, now.UnixNano(), seq),
		OperationID:    id,
		Kind:           event.KindStatus,
		Timestamp:      now,
		TimestampNanos: now.UnixNano(),
		Sequence:       seq,
		Status: &event.StatusPayload{
			Previous: "",
			Current:  string(StatusInitializing),
		},
	}
	rec.op.Events = append(rec.op.Events, initial)
	rec.mu.Unlock()
	t.ring.Add(initial)

	return &reporter{tracker: t, id: id}, ctx, nil
}

// GetOperation returns a point-in-time snapshot of id's record.
func (t *Tracker) GetOperation(id string) (Operation, error) {
	rec, ok := t.lookup(id)
	if !ok {
		return Operation{}, OperationNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.op.snapshot(), nil
}

// GetEvents returns the full buffered event history for id, in emission
// order. Unlike the reconnection ring this is unbounded for the lifetime
// of the operation.
func (t *Tracker) GetEvents(id string) ([]event.Event, error) {
	rec, ok := t.lookup(id)
	if !ok {
		return nil, OperationNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]event.Event, len(rec.op.Events))
	copy(out, rec.op.Events)
	return out, nil
}

// Subscribe opens a live subscription to id's events. callerCtx is merged
// with the operation's own cancellation scope: the subscription ends when
// either fires. If lastEventID is non-empty, buffered events after it are
// replayed before any newly-emitted event is delivered.
func (t *Tracker) Subscribe(callerCtx context.Context, id, lastEventID string) (*Stream, error) {
	rec, ok := t.lookup(id)
	if !ok {
		return nil, OperationNotFound
	}

	t.cancelMgr.ClientConnected(id)

	armed := lastEventID == ""
	parent := mergeDone(callerCtx, rec.ctx)
	stream := newStream(id, t.bufferSize, parent, armed)

	subID := t.nextSubID.Add(1)
	rec.mu.Lock()
	rec.subs[subID] = stream
	rec.mu.Unlock()

	if !armed {
		replay := t.ring.After(id, lastEventID)
		go stream.runReplay(replay)
	}

	go func() {
		<-stream.Done()
		rec.mu.Lock()
		delete(rec.subs, subID)
		rec.mu.Unlock()
		t.cancelMgr.ClientDisconnected(id)
	}()

	return stream, nil
}

// CancelOperation transitions id to the cancelled status and cancels its
// scope. Idempotent: on an already-terminal operation it emits no event and
// leaves the status unchanged (the scope is still cancelled if it was not
// already).
func (t *Tracker) CancelOperation(id string) error {
	err := t.appendEvent(id, func(rec *opRecord) ([]event.Event, error) {
		if rec.op.Status.IsTerminal() {
			return nil, nil
		}
		previous := rec.op.Status
		rec.op.Status = StatusCancelled
		return []event.Event{*t.statusEvent(rec, previous, StatusCancelled, "operation cancelled", nil)}, nil
	})
	if err != nil {
		return err
	}
	t.cancelMgr.CancelOperation(id)
	return nil
}

// CleanupOperation removes id's bookkeeping entirely: its ring is dropped,
// its cancellation scope cancelled, its live subscriptions closed, and its
// broadcaster goroutine stopped. Safe to call on an operation that is
// already terminal; a no-op (OperationNotFound) if id is unknown.
func (t *Tracker) CleanupOperation(id string) error {
	t.mu.Lock()
	rec, ok := t.ops[id]
	if ok {
		delete(t.ops, id)
	}
	t.mu.Unlock()
	if !ok {
		return OperationNotFound
	}

	t.ring.CleanupOperation(id)
	t.cancelMgr.CleanupOperation(id)
	close(rec.stop)

	rec.mu.Lock()
	subs := make([]*Stream, 0, len(rec.subs))
	for _, s := range rec.subs {
		subs = append(subs, s)
	}
	rec.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	return nil
}

// Shutdown cleans up every tracked operation and stops the heartbeat loop.
// Safe to call more than once.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() { close(t.stopHeartbeat) })

	t.mu.RLock()
	ids := make([]string, 0, len(t.ops))
	for id := range t.ops {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	for _, id := range ids {
		_ = t.CleanupOperation(id)
	}
}

func (t *Tracker) lookup(id string) (*opRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.ops[id]
	return rec, ok
}

// appendEvent looks up id's record and runs build under its lock. build
// returns (nil, nil) to skip silently (used for idempotent operations),
// (nil, err) to reject the update, or one or more constructed events — in
// emission order — to append and broadcast. A terminal transition emits its
// preceding status event and its completion/error event together here so
// the two are never observed out of order or with another event interleaved
// between them.
func (t *Tracker) appendEvent(id string, build func(rec *opRecord) ([]event.Event, error)) error {
	rec, ok := t.lookup(id)
	if !ok {
		return OperationNotFound
	}

	rec.mu.Lock()
	events, err := build(rec)
	if err != nil {
		rec.mu.Unlock()
		return err
	}
	if len(events) == 0 {
		rec.mu.Unlock()
		return nil
	}
	rec.op.Events = append(rec.op.Events, events...)
	rec.op.LastUpdateTime = events[len(events)-1].Timestamp
	rec.mu.Unlock()

	for _, e := range events {
		t.ring.Add(e)
		select {
		case rec.fanout <- e:
		default:
			slog.Warn("progress: fan-out channel full, dropping event", "operation_id", id, "kind", e.Kind)
		}
	}
	return nil
}

// statusEvent must be called with rec.mu held.
func (t *Tracker) statusEvent(rec *opRecord, previous, current Status, message string, details map[string]any) *event.Event {
	now := time.Now()
	seq := rec.nextSeq()
	return &event.Event{
		ID:             event.GenerateID(rec.op.ID, event.KindStatus, now.UnixNano(), seq),
		OperationID:    rec.op.ID,
		Kind:           event.KindStatus,
		Timestamp:      now,
		TimestampNanos: now.UnixNano(),
		Sequence:       seq,
		Status: &event.StatusPayload{
			Previous: string(previous),
			Current:  string(current),
			Message:  message,
			Details:  details,
		},
	}
}

func (t *Tracker) recordProgress(id string, percentage int, message string, details map[string]any) error {
	return t.appendEvent(id, func(rec *opRecord) ([]event.Event, error) {
		if rec.op.Status.IsTerminal() {
			return nil, OperationFinalized
		}
		if percentage < 0 {
			percentage = 0
		}
		if percentage > 100 {
			percentage = 100
		}
		if percentage < rec.op.Progress {
			percentage = rec.op.Progress
		}
		rec.op.Progress = percentage
		if rec.op.Status != StatusInProgress {
			rec.op.Status = StatusInProgress
		}

		now := time.Now()
		seq := rec.nextSeq()
		return []event.Event{{
			ID:             event.GenerateID(id, event.KindProgress, now.UnixNano(), seq),
			OperationID:    id,
			Kind:           event.KindProgress,
			Timestamp:      now,
			TimestampNanos: now.UnixNano(),
			Sequence:       seq,
			Progress: &event.ProgressPayload{
				Status:     string(rec.op.Status),
				Percentage: percentage,
				Message:    message,
				Details:    details,
			},
		}}, nil
	})
}

func (t *Tracker) recordLog(id string, level event.LogLevel, message, source string, details map[string]any) error {
	return t.appendEvent(id, func(rec *opRecord) ([]event.Event, error) {
		now := time.Now()
		seq := rec.nextSeq()
		return []event.Event{{
			ID:             event.GenerateID(id, event.KindLog, now.UnixNano(), seq),
			OperationID:    id,
			Kind:           event.KindLog,
			Timestamp:      now,
			TimestampNanos: now.UnixNano(),
			Sequence:       seq,
			Log: &event.LogPayload{
				Level:   level,
				Message: message,
				Source:  source,
				Details: details,
			},
		}}, nil
	})
}

func (t *Tracker) recordStatus(id string, next Status, message string, details map[string]any) error {
	return t.appendEvent(id, func(rec *opRecord) ([]event.Event, error) {
		if rec.op.Status.IsTerminal() {
			return nil, OperationFinalized
		}
		if next.IsTerminal() {
			return nil, errUseCompleteOrFail
		}
		previous := rec.op.Status
		rec.op.Status = next
		return []event.Event{*t.statusEvent(rec, previous, next, message, details)}, nil
	})
}

// recordComplete transitions id to complete, emitting the preceding status
// transition event followed by the completion event so subscribers never
// observe the completion payload without having first seen the status
// change that produced it.
func (t *Tracker) recordComplete(id string, result any, message string) error {
	return t.appendEvent(id, func(rec *opRecord) ([]event.Event, error) {
		if rec.op.Status.IsTerminal() {
			return nil, OperationFinalized
		}
		previous := rec.op.Status
		rec.op.Status = StatusComplete
		rec.op.Progress = 100
		rec.op.Result = result

		statusEvt := t.statusEvent(rec, previous, StatusComplete, message, nil)

		now := time.Now()
		seq := rec.nextSeq()
		completionEvt := event.Event{
			ID:             event.GenerateID(id, event.KindCompletion, now.UnixNano(), seq),
			OperationID:    id,
			Kind:           event.KindCompletion,
			Timestamp:      now,
			TimestampNanos: now.UnixNano(),
			Sequence:       seq,
			Completion: &event.CompletionPayload{
				Result:      result,
				Message:     message,
				ElapsedSecs: now.Sub(rec.op.StartTime).Seconds(),
			},
		}
		return []event.Event{*statusEvt, completionEvt}, nil
	})
}

// recordFail transitions id to failed, emitting the preceding status
// transition event followed by the error event, mirroring recordComplete.
func (t *Tracker) recordFail(id string, message string, code int, details map[string]any, recoverable bool) error {
	return t.appendEvent(id, func(rec *opRecord) ([]event.Event, error) {
		if rec.op.Status.IsTerminal() {
			return nil, OperationFinalized
		}
		previous := rec.op.Status
		rec.op.Status = StatusFailed
		rec.op.ErrorMessage = message
		rec.op.ErrorCode = code

		statusEvt := t.statusEvent(rec, previous, StatusFailed, message, nil)

		now := time.Now()
		seq := rec.nextSeq()
		errEvt := event.Event{
			ID:             event.GenerateID(id, event.KindError, now.UnixNano(), seq),
			OperationID:    id,
			Kind:           event.KindError,
			Timestamp:      now,
			TimestampNanos: now.UnixNano(),
			Sequence:       seq,
			Error: &event.ErrorPayload{
				Message:     message,
				Code:        code,
				Details:     details,
				Recoverable: recoverable,
			},
		}
		return []event.Event{*statusEvt, errEvt}, nil
	})
}

// runBroadcast is the sole reader of rec.fanout; it copies each event to
// every subscription currently registered for rec, independently and
// without blocking on a slow consumer.
func (t *Tracker) runBroadcast(rec *opRecord) {
	for {
		select {
		case <-rec.stop:
			return
		case e := <-rec.fanout:
			rec.mu.Lock()
			subs := make([]*Stream, 0, len(rec.subs))
			for _, s := range rec.subs {
				subs = append(subs, s)
			}
			rec.mu.Unlock()
			for _, s := range subs {
				s.deliverLive(e)
			}
		}
	}
}

// runHeartbeats sends a keep-alive event to every live subscription on a
// fixed cadence. Heartbeats bypass the ring and the per-operation event
// history entirely: they exist only to keep idle connections open.
func (t *Tracker) runHeartbeats() {
	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopHeartbeat:
			return
		case <-ticker.C:
			t.mu.RLock()
			recs := make([]*opRecord, 0, len(t.ops))
			for _, rec := range t.ops {
				recs = append(recs, rec)
			}
			t.mu.RUnlock()

			for _, rec := range recs {
				rec.mu.Lock()
				subs := make([]*Stream, 0, len(rec.subs))
				for _, s := range rec.subs {
					subs = append(subs, s)
				}
				id := rec.op.ID
				rec.mu.Unlock()
				if len(subs) == 0 {
					continue
				}

				seq := t.heartbeatSeq.Add(1)
				now := time.Now()
				hb := event.Event{
					ID:             event.GenerateID(id, event.KindHeartbeat, now.UnixNano(), seq),
					OperationID:    id,
					Kind:           event.KindHeartbeat,
					Timestamp:      now,
					TimestampNanos: now.UnixNano(),
					Sequence:       seq,
					Heartbeat:      &event.HeartbeatPayload{Sequence: seq},
				}
				for _, s := range subs {
					s.deliverLive(hb)
				}
			}
		}
	}
}

// mergeDone returns a context that is done as soon as either a or b is
// done. The background goroutine it starts exits once that happens.
func mergeDone(a, b context.Context) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
		case <-b.Done():
		}
		cancel()
	}()
	return ctx
}
