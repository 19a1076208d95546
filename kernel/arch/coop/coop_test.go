package coop

import (
	"testing"

	"github.com/go-tinyos/kernel/kernel/arch"
)

func TestSwitchToRunsEntryOnFirstCall(t *testing.T) {
	s := New()
	ran := false
	ctx := s.NewContext(func(argv []string) { ran = true }, nil, 4096)

	s.SwitchTo(ctx)

	if !ran {
		t.Fatalf("expected entry to run on the first SwitchTo")
	}
	if !s.Finished(ctx) {
		t.Fatalf("expected the context to report finished after entry returns")
	}
}

func TestYieldParksAndResumes(t *testing.T) {
	s := New()
	var steps []string

	// selfRef lets the entry closure call Yield on its own Context value,
	// which NewContext only returns after the closure itself is built.
	var selfRef arch.Context
	c := s.NewContext(func(argv []string) {
		steps = append(steps, "before-yield")
		s.Yield(selfRef)
		steps = append(steps, "after-yield")
	}, nil, 4096)
	selfRef = c

	s.SwitchTo(c)
	if len(steps) != 1 || steps[0] != "before-yield" {
		t.Fatalf("expected exactly one step recorded before the yield, got %v", steps)
	}
	if s.Finished(c) {
		t.Fatalf("expected the context to still be unfinished after yielding")
	}

	s.SwitchTo(c)
	if len(steps) != 2 || steps[1] != "after-yield" {
		t.Fatalf("expected the second step to run after resuming, got %v", steps)
	}
	if !s.Finished(c) {
		t.Fatalf("expected the context to be finished once its entry returns")
	}
}

func TestDestroyMarksContextFinished(t *testing.T) {
	s := New()
	// Entry is never run (no SwitchTo call): Destroy must mark a
	// not-yet-started context finished too.
	ctx := s.NewContext(func(argv []string) {}, nil, 4096)
	s.Destroy(ctx)
	if !s.Finished(ctx) {
		t.Fatalf("expected Destroy to mark the context finished")
	}
}
