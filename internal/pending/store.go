// Package pending provides the (itemRef, occurrence, responses) staging area
// used in SIMULTANEOUS submission mode: responses are queued here until the
// testPart ends, at which point the driver flushes them in arrival order.
package pending

import "github.com/qti-engine/session-engine/internal/qtimodel"

// Response is one staged (itemRef, occurrence, response-variable-state)
// triple, queued per testPart when submissionMode = SIMULTANEOUS.
type Response struct {
	ItemRefIdentifier string
	Occurrence        int
	Responses         *qtimodel.State
}

// Store holds PendingResponses in arrival order.
type Store struct {
	entries []Response
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// AddPending appends pr to the queue.
func (s *Store) AddPending(pr Response) {
	s.entries = append(s.entries, pr)
}

// GetPending returns the most recently queued entry for (itemRef, occurrence),
// or false if none is queued.
func (s *Store) GetPending(itemRef string, occurrence int) (Response, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.ItemRefIdentifier == itemRef && e.Occurrence == occurrence {
			return e, true
		}
	}

	return Response{}, false
}

// All returns every queued entry in arrival (insertion) order.
func (s *Store) All() []Response {
	result := make([]Response, len(s.entries))
	copy(result, s.entries)

	return result
}

// Clear empties the queue.
func (s *Store) Clear() {
	s.entries = nil
}

// Len returns the number of queued entries.
func (s *Store) Len() int { return len(s.entries) }
