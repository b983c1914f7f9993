package event

import "testing"

func mkEvent(op string, seq int64) Event {
	return Event{
		ID:          GenerateID(op, KindProgress, int64(seq)*1000, seq),
		OperationID: op,
		Kind:        KindProgress,
		Sequence:    seq,
	}
}

func TestStoreAfterEmptyOrUnknownReturnsFullReplay(t *testing.T) {
	s := NewStore(10)
	e1 := mkEvent("op1", 1)
	e2 := mkEvent("op1", 2)
	s.Add(e1)
	s.Add(e2)

	got := s.After("op1", "")
	if len(got) != 2 {
		t.Fatalf("expected 2 events for empty lastEventID, got %d", len(got))
	}

	got = s.After("op1", "does-not-exist")
	if len(got) != 2 {
		t.Fatalf("expected full replay for unknown lastEventID, got %d", len(got))
	}
}

func TestStoreAfterReturnsStrictlyAfter(t *testing.T) {
	s := NewStore(10)
	e1 := mkEvent("op1", 1)
	e2 := mkEvent("op1", 2)
	e3 := mkEvent("op1", 3)
	s.Add(e1)
	s.Add(e2)
	s.Add(e3)

	got := s.After("op1", e1.ID)
	if len(got) != 2 || got[0].ID != e2.ID || got[1].ID != e3.ID {
		t.Fatalf("expected [e2, e3], got %+v", got)
	}

	got = s.After("op1", e3.ID)
	if len(got) != 0 {
		t.Fatalf("expected empty slice when lastEventID is the newest event, got %d", len(got))
	}
}

func TestRingOverflowEvictsOldestAndPurgesIndex(t *testing.T) {
	s := NewStore(3)
	var ids []string
	for i := int64(1); i <= 4; i++ {
		e := mkEvent("op1", i)
		ids = append(ids, e.ID)
		s.Add(e)
	}

	// Capacity 3: the first event should have been evicted.
	got := s.After("op1", "")
	if len(got) != 3 {
		t.Fatalf("expected 3 buffered events after overflow, got %d", len(got))
	}
	if got[0].Sequence != 2 {
		t.Fatalf("expected oldest surviving event to have sequence 2, got %d", got[0].Sequence)
	}

	// The evicted id is absent from the after-index: looking it up falls
	// back to a full replay rather than erroring.
	got = s.After("op1", ids[0])
	if len(got) != 3 {
		t.Fatalf("expected full replay when lastEventID fell off the ring, got %d", len(got))
	}
}

func TestStoreCleanupOperation(t *testing.T) {
	s := NewStore(10)
	s.Add(mkEvent("op1", 1))
	s.CleanupOperation("op1")

	got := s.After("op1", "")
	if got != nil {
		t.Fatalf("expected nil after cleanup, got %+v", got)
	}
}

func TestEventIDRoundTrip(t *testing.T) {
	id := GenerateID("op-abc", KindStatus, 123456789, 7)
	parsed, err := ParseID(id)
	if err != nil {
		t.Fatalf("ParseID returned error: %v", err)
	}
	if parsed.OperationID != "op-abc" || parsed.Kind != KindStatus || parsed.TimestampNanos != 123456789 || parsed.Sequence != 7 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestParseIDMalformed(t *testing.T) {
	if _, err := ParseID("not-an-event-id"); err == nil {
		t.Fatal("expected error for malformed event id")
	}
}
