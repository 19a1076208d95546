package sched

import "testing"

func TestAddProcessClampsPriority(t *testing.T) {
	s := New()
	low := &PCR{Pid: 1, Priority: -5}
	high := &PCR{Pid: 2, Priority: 99}
	s.AddProcess(low)
	s.AddProcess(high)

	if low.Priority != 0 {
		t.Fatalf("expected negative priority clamped to 0, got %d", low.Priority)
	}
	if high.Priority != MaxPriorities-1 {
		t.Fatalf("expected overflow priority clamped to %d, got %d", MaxPriorities-1, high.Priority)
	}
}

func TestPickNextScansHighestLevelFirst(t *testing.T) {
	s := New()
	lo := &PCR{Pid: 1, Priority: 0}
	mid := &PCR{Pid: 2, Priority: 2}
	hi := &PCR{Pid: 3, Priority: 3}
	s.AddProcess(lo)
	s.AddProcess(mid)
	s.AddProcess(hi)

	got := s.PickNext()
	if got != hi {
		t.Fatalf("expected the highest-priority process first, got pid %d", got.Pid)
	}
	got = s.PickNext()
	if got != mid {
		t.Fatalf("expected the next-highest process second, got pid %d", got.Pid)
	}
	got = s.PickNext()
	if got != lo {
		t.Fatalf("expected the lowest-priority process last, got pid %d", got.Pid)
	}
	if s.PickNext() != nil {
		t.Fatalf("expected nil once every queue is drained")
	}
}

func TestPickNextIsFIFOWithinALevel(t *testing.T) {
	s := New()
	a := &PCR{Pid: 1, Priority: 1}
	b := &PCR{Pid: 2, Priority: 1}
	c := &PCR{Pid: 3, Priority: 1}
	s.AddProcess(a)
	s.AddProcess(b)
	s.AddProcess(c)

	for _, want := range []*PCR{a, b, c} {
		if got := s.PickNext(); got != want {
			t.Fatalf("expected FIFO order, got pid %d want pid %d", got.Pid, want.Pid)
		}
	}
}

func TestScheduleMarksCurrentRunning(t *testing.T) {
	s := New()
	s.AddProcess(&PCR{Pid: 1, Priority: 1})

	p, err := s.Schedule()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.State != StateRunning {
		t.Fatalf("expected scheduled process to be running, got %v", p.State)
	}
	if s.Current() != p {
		t.Fatalf("expected Current() to report the scheduled process")
	}
}

func TestScheduleWithNothingReadyReturnsError(t *testing.T) {
	s := New()
	if _, err := s.Schedule(); err == nil {
		t.Fatalf("expected an error when no process is ready")
	}
}

func TestUnscheduleClearsCurrent(t *testing.T) {
	s := New()
	s.AddProcess(&PCR{Pid: 1, Priority: 1})
	p, _ := s.Schedule()

	got := s.Unschedule()
	if got != p {
		t.Fatalf("expected Unschedule to return the previously running process")
	}
	if s.Current() != nil {
		t.Fatalf("expected Current() to be nil after Unschedule")
	}
}

func TestRemoveTakesProcessOutOfReadyQueue(t *testing.T) {
	s := New()
	p := &PCR{Pid: 1, Priority: 2}
	s.AddProcess(p)

	if !s.Remove(p) {
		t.Fatalf("expected Remove to find the queued process")
	}
	if s.ReadyCount(2) != 0 {
		t.Fatalf("expected the ready queue to be empty after removal")
	}
	if s.Remove(p) {
		t.Fatalf("expected a second Remove of the same process to report false")
	}
}

func TestAgingPromotesStarvedProcess(t *testing.T) {
	s := New()
	s.EnableAging(2)
	low := &PCR{Pid: 1, Priority: 0}
	s.AddProcess(low)

	// Keep a higher-priority process always ready so low never gets
	// picked on its own merits, only by aging promotion.
	for i := 0; i < 3; i++ {
		hi := &PCR{Pid: int32(10 + i), Priority: 3}
		s.AddProcess(hi)
		got := s.PickNext()
		if got == low {
			break
		}
		if got != nil {
			s.AddProcess(got)
		}
	}

	if low.Priority == 0 {
		t.Fatalf("expected aging to have promoted the starved process above priority 0")
	}
}
