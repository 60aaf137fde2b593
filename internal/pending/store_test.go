package pending

import (
	"testing"

	"github.com/qti-engine/session-engine/internal/qtimodel"
)

func TestStoreAddAndGetPending(t *testing.T) {
	s := NewStore()

	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 0, Responses: qtimodel.NewState()})

	got, ok := s.GetPending("Q1", 0)
	if !ok {
		t.Fatalf("GetPending() ok = false, want true")
	}

	if got.ItemRefIdentifier != "Q1" || got.Occurrence != 0 {
		t.Errorf("GetPending() = %+v, want ItemRefIdentifier=Q1 Occurrence=0", got)
	}

	if _, ok := s.GetPending("Q1", 1); ok {
		t.Errorf("GetPending() for unqueued occurrence ok = true, want false")
	}
}

func TestStoreGetPendingReturnsMostRecent(t *testing.T) {
	s := NewStore()

	first := qtimodel.NewState()
	second := qtimodel.NewState()

	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 0, Responses: first})
	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 0, Responses: second})

	got, ok := s.GetPending("Q1", 0)
	if !ok {
		t.Fatalf("GetPending() ok = false, want true")
	}

	if got.Responses != second {
		t.Errorf("GetPending() returned stale entry, want the most recently queued one")
	}
}

func TestStoreAllPreservesArrivalOrder(t *testing.T) {
	s := NewStore()

	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 0})
	s.AddPending(Response{ItemRefIdentifier: "Q2", Occurrence: 0})
	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 1})

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("All() len = %d, want 3", len(all))
	}

	if all[0].ItemRefIdentifier != "Q1" || all[0].Occurrence != 0 {
		t.Errorf("All()[0] = %+v, want Q1.0", all[0])
	}

	if all[1].ItemRefIdentifier != "Q2" {
		t.Errorf("All()[1] = %+v, want Q2.0", all[1])
	}

	if all[2].ItemRefIdentifier != "Q1" || all[2].Occurrence != 1 {
		t.Errorf("All()[2] = %+v, want Q1.1", all[2])
	}
}

func TestStoreAllReturnsIndependentCopy(t *testing.T) {
	s := NewStore()
	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 0})

	all := s.All()
	all[0].ItemRefIdentifier = "mutated"

	got, _ := s.GetPending("Q1", 0)
	if got.ItemRefIdentifier != "Q1" {
		t.Errorf("mutating All()'s result affected the store's own entries")
	}
}

func TestStoreLen(t *testing.T) {
	s := NewStore()

	if s.Len() != 0 {
		t.Fatalf("Len() on empty store = %d, want 0", s.Len())
	}

	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 0})
	s.AddPending(Response{ItemRefIdentifier: "Q2", Occurrence: 0})

	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore()
	s.AddPending(Response{ItemRefIdentifier: "Q1", Occurrence: 0})
	s.AddPending(Response{ItemRefIdentifier: "Q2", Occurrence: 0})

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", s.Len())
	}

	if _, ok := s.GetPending("Q1", 0); ok {
		t.Errorf("GetPending() after Clear() ok = true, want false")
	}
}
