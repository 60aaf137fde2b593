// Package itemsession provides the per-item-occurrence state machine and the
// store that maps (itemRef, occurrence) to a live session.
package itemsession

import "errors"

// Sentinel errors for item session state transitions and attempt validation.
// Each is wrapped with fmt.Errorf("%w: <itemRef>.<occurrence> ...") at the
// point of detection so the message always carries the affected item.
var (
	// ErrStateViolation indicates the session is in the wrong state for the
	// requested operation (e.g. beginAttempt while Closed).
	ErrStateViolation = errors.New("item session state violation")

	// ErrDurationOverflow indicates the item's accumulated duration has
	// reached or exceeded its declared maxTime.
	ErrDurationOverflow = errors.New("item duration overflow")

	// ErrDurationUnderflow indicates an endAttempt was attempted before the
	// item's declared minTime was reached.
	ErrDurationUnderflow = errors.New("item duration underflow")

	// ErrAttemptsOverflow indicates numAttempts has reached the declared
	// maxAttempts and no further attempt may begin.
	ErrAttemptsOverflow = errors.New("item attempts overflow")

	// ErrInvalidResponse indicates a response variable's shape (cardinality
	// or base type) does not match its declaration.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrSkippingForbidden indicates an attempt was submitted with no
	// responses while itemSessionControl forbids skipping.
	ErrSkippingForbidden = errors.New("skipping forbidden")
)
