package qtimodel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedIdentifier indicates a string matched none of the three
// supported identifier forms: "name", "prefix.name", "prefix.N.name".
var ErrMalformedIdentifier = errors.New("malformed variable identifier")

// Identifier is a parsed QTI variable reference of one of three forms:
//
//	name          - global scope
//	prefix.name   - item-scoped (occurrence implied)
//	prefix.N.name - item-scoped, N-th occurrence (1-based)
type Identifier struct {
	raw            string
	prefix         string
	hasPrefix      bool
	name           string
	sequenceNumber int
	hasSequence    bool
}

// ParseIdentifier parses raw into an Identifier, or returns
// ErrMalformedIdentifier wrapped with the offending string.
func ParseIdentifier(raw string) (Identifier, error) {
	parts := strings.Split(raw, ".")

	switch len(parts) {
	case 1:
		if !isLexicalIdentifier(parts[0]) {
			return Identifier{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, raw)
		}

		return Identifier{raw: raw, name: parts[0]}, nil

	case 2:
		if !isLexicalIdentifier(parts[0]) || !isLexicalIdentifier(parts[1]) {
			return Identifier{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, raw)
		}

		return Identifier{raw: raw, prefix: parts[0], hasPrefix: true, name: parts[1]}, nil

	case 3:
		if !isLexicalIdentifier(parts[0]) || !isLexicalIdentifier(parts[2]) {
			return Identifier{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, raw)
		}

		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return Identifier{}, fmt.Errorf("%w: %q (sequence number must be >= 1)", ErrMalformedIdentifier, raw)
		}

		return Identifier{
			raw: raw, prefix: parts[0], hasPrefix: true,
			name: parts[2], sequenceNumber: n, hasSequence: true,
		}, nil

	default:
		return Identifier{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, raw)
	}
}

// HasPrefix reports whether the identifier has an item-scope prefix.
func (id Identifier) HasPrefix() bool { return id.hasPrefix }

// Prefix returns the item-scope prefix, or "" for a global identifier.
func (id Identifier) Prefix() string { return id.prefix }

// Name returns the variable's local name.
func (id Identifier) Name() string { return id.name }

// HasSequenceNumber reports whether an explicit N.th-occurrence was given.
func (id Identifier) HasSequenceNumber() bool { return id.hasSequence }

// SequenceNumber returns the explicit 1-based occurrence number, or 0 if
// HasSequenceNumber is false.
func (id Identifier) SequenceNumber() int { return id.sequenceNumber }

// String returns the original input string.
func (id Identifier) String() string { return id.raw }

// isLexicalIdentifier reports whether s matches the QTI identifier lexical
// form: starts with a letter or underscore, followed by letters, digits,
// underscores, or hyphens.
func isLexicalIdentifier(s string) bool {
	if s == "" {
		return false
	}

	first := s[0]
	if !(first == '_' || (first >= 'A' && first <= 'Z') || (first >= 'a' && first <= 'z')) {
		return false
	}

	for i := 1; i < len(s); i++ {
		c := s[i]

		ok := c == '_' || c == '-' ||
			(c >= 'A' && c <= 'Z') ||
			(c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9')
		if !ok {
			return false
		}
	}

	return true
}
