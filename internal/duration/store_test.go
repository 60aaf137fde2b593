package duration

import (
	"testing"
	"time"
)

func TestStoreGetInitializesToZero(t *testing.T) {
	s := NewStore()

	if got := s.Get("test"); got != 0 {
		t.Errorf("Get() on unseen identifier = %v, want 0", got)
	}

	if len(s.Identifiers()) != 1 {
		t.Errorf("Get() should silently initialize an entry, Identifiers() = %v", s.Identifiers())
	}
}

func TestStoreAddIsAdditive(t *testing.T) {
	s := NewStore()

	s.Add("test", 5*time.Second)
	s.Add("test", 3*time.Second)

	if got := s.Get("test"); got != 8*time.Second {
		t.Errorf("Add() cumulative = %v, want 8s", got)
	}
}

func TestStoreSetOverwrites(t *testing.T) {
	s := NewStore()

	s.Add("test", 10*time.Second)
	s.Set("test", 2*time.Second)

	if got := s.Get("test"); got != 2*time.Second {
		t.Errorf("Set() = %v, want 2s", got)
	}
}

func TestStoreCloneIsIndependent(t *testing.T) {
	s := NewStore()
	s.Add("test", time.Second)

	clone := s.Clone()
	clone.Add("test", time.Second)

	if s.Get("test") != time.Second {
		t.Errorf("mutating clone affected original store: %v", s.Get("test"))
	}
}
