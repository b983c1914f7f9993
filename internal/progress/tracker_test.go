package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maas-mcp/bridge/internal/cancelmgr"
	"github.com/maas-mcp/bridge/internal/event"
)

func newTestTracker() *Tracker {
	return New(event.NewStore(10), cancelmgr.New(50*time.Millisecond), 16, 20*time.Millisecond)
}

func TestStartOperationRejectsDuplicateID(t *testing.T) {
	tr := newTestTracker()
	if _, _, err := tr.StartOperation("op1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := tr.StartOperation("op1"); !errors.Is(err, OperationExists) {
		t.Fatalf("expected OperationExists, got %v", err)
	}
}

func TestTerminalStatusIsAbsorbing(t *testing.T) {
	tr := newTestTracker()
	rep, _, _ := tr.StartOperation("op1")

	if err := rep.Complete("done", "finished"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := rep.Progress(50, "still going?", nil); !errors.Is(err, OperationFinalized) {
		t.Fatalf("expected OperationFinalized after Complete, got %v", err)
	}
	if err := rep.Fail("too late", 500, nil, false); !errors.Is(err, OperationFinalized) {
		t.Fatalf("expected OperationFinalized, got %v", err)
	}

	op, err := tr.GetOperation("op1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Status != StatusComplete || op.Progress != 100 {
		t.Fatalf("expected complete/100, got %v/%d", op.Status, op.Progress)
	}
}

func TestProgressNeverRegresses(t *testing.T) {
	tr := newTestTracker()
	rep, _, _ := tr.StartOperation("op1")

	_ = rep.Progress(50, "halfway", nil)
	_ = rep.Progress(20, "oops", nil) // should be clamped, not regress

	op, _ := tr.GetOperation("op1")
	if op.Progress != 50 {
		t.Fatalf("expected progress to stay at 50, got %d", op.Progress)
	}
}

func TestEventOrderingMatchesEmissionOrder(t *testing.T) {
	tr := newTestTracker()
	rep, _, _ := tr.StartOperation("op1")

	_ = rep.Progress(10, "step1", nil)
	_ = rep.Progress(40, "step2", nil)
	_ = rep.Complete(nil, "done")

	events, err := tr.GetEvents("op1")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 5 { // initial status + 2 progress + complete status + completion
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	kinds := []event.Kind{event.KindStatus, event.KindProgress, event.KindProgress, event.KindStatus, event.KindCompletion}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Fatalf("event %d: expected kind %s, got %s", i, k, events[i].Kind)
		}
	}
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			t.Fatalf("sequence not strictly increasing at index %d", i)
		}
	}
}

func TestFailEmitsStatusThenError(t *testing.T) {
	tr := newTestTracker()
	rep, _, _ := tr.StartOperation("op1")

	_ = rep.Progress(10, "step1", nil)
	_ = rep.Fail("upstream exploded", 502, nil, false)

	events, err := tr.GetEvents("op1")
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	if len(events) != 4 { // initial status + progress + failed status + error
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	kinds := []event.Kind{event.KindStatus, event.KindProgress, event.KindStatus, event.KindError}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Fatalf("event %d: expected kind %s, got %s", i, k, events[i].Kind)
		}
	}
	if events[2].Status.Previous != string(StatusInProgress) || events[2].Status.Current != string(StatusFailed) {
		t.Fatalf("expected in_progress->failed transition, got %+v", events[2].Status)
	}
}

func TestSubscribeReplayThenLive(t *testing.T) {
	tr := newTestTracker()
	rep, _, _ := tr.StartOperation("op1")
	_ = rep.Progress(10, "step1", nil)
	_ = rep.Progress(20, "step2", nil)

	history, _ := tr.GetEvents("op1")
	lastSeen := history[0].ID // resume after the initial status event

	stream, err := tr.Subscribe(context.Background(), "op1", lastSeen)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	_ = rep.Progress(30, "step3", nil)

	var got []event.Event
	timeout := time.After(500 * time.Millisecond)
	for len(got) < 3 {
		select {
		case e := <-stream.Events():
			got = append(got, e)
		case <-timeout:
			t.Fatalf("timed out waiting for replay+live events, got %d", len(got))
		}
	}
	if got[0].Progress.Percentage != 10 || got[1].Progress.Percentage != 20 || got[2].Progress.Percentage != 30 {
		t.Fatalf("expected replay-then-live ordering 10,20,30, got %v", []int{got[0].Progress.Percentage, got[1].Progress.Percentage, got[2].Progress.Percentage})
	}
}

func TestSubscribeUnknownOperation(t *testing.T) {
	tr := newTestTracker()
	if _, err := tr.Subscribe(context.Background(), "ghost", ""); !errors.Is(err, OperationNotFound) {
		t.Fatalf("expected OperationNotFound, got %v", err)
	}
}

func TestHeartbeatsBypassHistory(t *testing.T) {
	tr := newTestTracker()
	_, _, _ = tr.StartOperation("op1")
	stream, err := tr.Subscribe(context.Background(), "op1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	select {
	case e := <-stream.Events():
		if e.Kind != event.KindHeartbeat {
			t.Fatalf("expected a heartbeat event, got %s", e.Kind)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no heartbeat received")
	}

	events, _ := tr.GetEvents("op1")
	for _, e := range events {
		if e.Kind == event.KindHeartbeat {
			t.Fatal("heartbeat leaked into the persistent event history")
		}
	}
}

func TestCancelOperationIdempotentAndTerminal(t *testing.T) {
	tr := newTestTracker()
	_, ctx, _ := tr.StartOperation("op1")

	if err := tr.CancelOperation("op1"); err != nil {
		t.Fatalf("CancelOperation: %v", err)
	}
	if err := tr.CancelOperation("op1"); err != nil {
		t.Fatalf("expected idempotent no-op, got %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected operation's cancellation scope to fire")
	}

	op, _ := tr.GetOperation("op1")
	if op.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %v", op.Status)
	}
}

func TestCleanupOperationRemovesState(t *testing.T) {
	tr := newTestTracker()
	tr.StartOperation("op1")
	if err := tr.CleanupOperation("op1"); err != nil {
		t.Fatalf("CleanupOperation: %v", err)
	}
	if _, err := tr.GetOperation("op1"); !errors.Is(err, OperationNotFound) {
		t.Fatalf("expected OperationNotFound after cleanup, got %v", err)
	}
}

func TestShutdownStopsHeartbeatsAndCancelsAll(t *testing.T) {
	tr := newTestTracker()
	_, ctx, _ := tr.StartOperation("op1")
	tr.Shutdown()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected shutdown to cancel all operation scopes")
	}
}
