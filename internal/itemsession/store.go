package itemsession

import "fmt"

// key identifies one (itemRef, occurrence) slot.
type key struct {
	itemRef    string
	occurrence int
}

// Store maps (itemRef, occurrence) to its ItemSession, guaranteeing at most
// one session per slot and preserving insertion order for deterministic
// iteration (used by the snapshot codec and by endTestSession's "close any
// still open" sweep).
type Store struct {
	sessions map[key]*ItemSession
	order    []key
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[key]*ItemSession)}
}

// AddSession inserts session under (itemRef, occurrence). Returns an error
// if a session already occupies that slot: at most one session may live at
// a given (itemRef, occurrence) slot at a time.
func (st *Store) AddSession(session *ItemSession, occurrence int) error {
	k := key{itemRef: session.ItemRefIdentifier, occurrence: occurrence}

	if _, exists := st.sessions[k]; exists {
		return fmt.Errorf("%w: session already exists for %s.%d", ErrStateViolation, k.itemRef, k.occurrence)
	}

	st.sessions[k] = session
	st.order = append(st.order, k)

	return nil
}

// GetSession returns the session at (itemRef, occurrence), or false if none
// has been added.
func (st *Store) GetSession(itemRef string, occurrence int) (*ItemSession, bool) {
	s, ok := st.sessions[key{itemRef: itemRef, occurrence: occurrence}]

	return s, ok
}

// HasSession reports whether a session exists at (itemRef, occurrence).
func (st *Store) HasSession(itemRef string, occurrence int) bool {
	_, ok := st.sessions[key{itemRef: itemRef, occurrence: occurrence}]

	return ok
}

// All returns every session in insertion order.
func (st *Store) All() []*ItemSession {
	result := make([]*ItemSession, 0, len(st.order))
	for _, k := range st.order {
		result = append(result, st.sessions[k])
	}

	return result
}

// Len returns the number of sessions held.
func (st *Store) Len() int { return len(st.order) }
