package qtimodel

import (
	"errors"
	"testing"
)

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantErr    bool
		wantPrefix string
		wantHasSeq bool
		wantSeq    int
		wantName   string
	}{
		{name: "global", raw: "SCORE", wantName: "SCORE"},
		{name: "item scoped", raw: "Q1.RESPONSE", wantPrefix: "Q1", wantName: "RESPONSE"},
		{
			name: "item scoped with occurrence", raw: "Q1.2.RESPONSE",
			wantPrefix: "Q1", wantHasSeq: true, wantSeq: 2, wantName: "RESPONSE",
		},
		{name: "duration global", raw: "duration", wantName: "duration"},
		{name: "too many segments", raw: "a.b.c.d", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "leading digit", raw: "1abc", wantErr: true},
		{name: "zero occurrence invalid", raw: "Q1.0.RESPONSE", wantErr: true},
		{name: "negative occurrence invalid", raw: "Q1.-1.RESPONSE", wantErr: true},
		{name: "non numeric middle segment", raw: "Q1.RESPONSE.EXTRA", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseIdentifier(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseIdentifier(%q) expected error, got nil", tt.raw)
				}

				if !errors.Is(err, ErrMalformedIdentifier) {
					t.Errorf("expected ErrMalformedIdentifier, got %v", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseIdentifier(%q) unexpected error: %v", tt.raw, err)
			}

			if id.Prefix() != tt.wantPrefix {
				t.Errorf("Prefix() = %q, want %q", id.Prefix(), tt.wantPrefix)
			}

			if id.HasPrefix() != (tt.wantPrefix != "") {
				t.Errorf("HasPrefix() = %v, want %v", id.HasPrefix(), tt.wantPrefix != "")
			}

			if id.HasSequenceNumber() != tt.wantHasSeq {
				t.Errorf("HasSequenceNumber() = %v, want %v", id.HasSequenceNumber(), tt.wantHasSeq)
			}

			if id.SequenceNumber() != tt.wantSeq {
				t.Errorf("SequenceNumber() = %d, want %d", id.SequenceNumber(), tt.wantSeq)
			}

			if id.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", id.Name(), tt.wantName)
			}
		})
	}
}
