package itemsession

import (
	"testing"

	"github.com/qti-engine/session-engine/internal/route"
)

func TestStoreAddAndGet(t *testing.T) {
	st := NewStore()
	s := NewItemSession("Q1", 0, nil, route.ItemSessionControl{}, route.TimeLimits{})

	if err := st.AddSession(s, 0); err != nil {
		t.Fatalf("AddSession() unexpected error: %v", err)
	}

	got, ok := st.GetSession("Q1", 0)
	if !ok || got != s {
		t.Fatalf("GetSession() = %+v, %v, want the added session", got, ok)
	}

	if !st.HasSession("Q1", 0) {
		t.Errorf("HasSession() = false, want true")
	}

	if st.HasSession("Q1", 1) {
		t.Errorf("HasSession(occurrence=1) = true, want false")
	}
}

func TestStoreRejectsDuplicateSlot(t *testing.T) {
	st := NewStore()
	s1 := NewItemSession("Q1", 0, nil, route.ItemSessionControl{}, route.TimeLimits{})
	s2 := NewItemSession("Q1", 0, nil, route.ItemSessionControl{}, route.TimeLimits{})

	_ = st.AddSession(s1, 0)

	if err := st.AddSession(s2, 0); err == nil {
		t.Errorf("AddSession() duplicate slot = nil error, want error")
	}
}

func TestStorePreservesInsertionOrder(t *testing.T) {
	st := NewStore()
	s1 := NewItemSession("Q1", 0, nil, route.ItemSessionControl{}, route.TimeLimits{})
	s2 := NewItemSession("Q2", 0, nil, route.ItemSessionControl{}, route.TimeLimits{})
	s3 := NewItemSession("Q1", 1, nil, route.ItemSessionControl{}, route.TimeLimits{})

	_ = st.AddSession(s1, 0)
	_ = st.AddSession(s2, 0)
	_ = st.AddSession(s3, 1)

	all := st.All()
	if len(all) != 3 || all[0] != s1 || all[1] != s2 || all[2] != s3 {
		t.Fatalf("All() order = %+v, want [s1, s2, s3]", all)
	}

	if st.Len() != 3 {
		t.Errorf("Len() = %d, want 3", st.Len())
	}
}
