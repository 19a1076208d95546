package proc

import (
	"testing"

	"github.com/go-tinyos/kernel/kernel/arch/coop"
	"github.com/go-tinyos/kernel/kernel/mem"
	"github.com/go-tinyos/kernel/kernel/mem/pmm"
	"github.com/go-tinyos/kernel/kernel/sched"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	pages := pmm.NewListAllocator()
	pages.CreateMemory(0x300000, 16*mem.Mb)
	return NewTable(pages, coop.New())
}

func TestCreateProcessAssignsDistinctPids(t *testing.T) {
	tbl := newTestTable(t)
	noop := func(argv []string) {}

	p1, err := tbl.CreateProcess("a", noop, nil, 1, true, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := tbl.CreateProcess("b", noop, nil, 1, true, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct pids, got %d twice", p1)
	}
}

func TestCreateProcessExhaustsSlots(t *testing.T) {
	tbl := newTestTable(t)
	noop := func(argv []string) {}

	for i := 0; i < MaxProcesses; i++ {
		if _, err := tbl.CreateProcess("p", noop, nil, 0, false, 0, 0); err != nil {
			t.Fatalf("expected process %d/%d to be created, got %v", i, MaxProcesses, err)
		}
	}
	if _, err := tbl.CreateProcess("overflow", noop, nil, 0, false, 0, 0); err == nil {
		t.Fatalf("expected table exhaustion to fail process creation")
	}
}

func TestRunExecutesEntryAndExitFreesSlot(t *testing.T) {
	tbl := newTestTable(t)
	ran := false

	pid, err := tbl.CreateProcess("worker", func(argv []string) {
		ran = true
		if err := tbl.ExitCurrentProcess(0); err != nil {
			t.Errorf("unexpected error from ExitCurrentProcess: %v", err)
		}
	}, nil, 1, true, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tbl.Run(); err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	if !ran {
		t.Fatalf("expected the process entry function to run")
	}
	if _, err := tbl.GetProcessSnapshotByPid(pid); err == nil {
		t.Fatalf("expected the exited process's slot to be freed")
	}
}

func TestRunTreatsEntryReturnAsImplicitExit(t *testing.T) {
	tbl := newTestTable(t)
	ran := false

	pid, err := tbl.CreateProcess("quick", func(argv []string) {
		ran = true
		// returns without calling ExitCurrentProcess
	}, nil, 1, true, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tbl.Run(); err != nil {
		t.Fatalf("unexpected error from Run: %v", err)
	}
	if !ran {
		t.Fatalf("expected the process entry function to run")
	}
	if _, err := tbl.GetProcessSnapshotByPid(pid); err == nil {
		t.Fatalf("expected falling off the end of the entry function to free its slot")
	}
	if tbl.Scheduler().ReadyCount(1) != 0 {
		t.Fatalf("expected the finished process not to be re-queued")
	}
}

func TestWaitProcessBlocksCallerUntilTargetExits(t *testing.T) {
	tbl := newTestTable(t)

	targetPid, err := tbl.CreateProcess("target", func(argv []string) {
		tbl.ExitCurrentProcess(7)
	}, nil, 1, true, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var waiterPid int32
	waiterPid, err = tbl.CreateProcess("waiter", func(argv []string) {
		if err := tbl.WaitProcess(waiterPid, targetPid); err != nil {
			t.Errorf("unexpected error from WaitProcess: %v", err)
		}
	}, nil, 2, true, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Run the waiter first (its higher priority puts it ahead of target):
	// it should block immediately without finishing, since target has not
	// exited yet.
	if err := tbl.Run(); err != nil {
		t.Fatalf("unexpected error from Run (waiter): %v", err)
	}
	snap, err := tbl.GetProcessSnapshotByPid(waiterPid)
	if err != nil {
		t.Fatalf("unexpected error getting waiter snapshot: %v", err)
	}
	if snap.State != sched.StateBlocked {
		t.Fatalf("expected waiter to be blocked, got %v", snap.State)
	}

	// Now run target; it exits and should wake the waiter.
	if err := tbl.Run(); err != nil {
		t.Fatalf("unexpected error from Run (target): %v", err)
	}
	snap, err = tbl.GetProcessSnapshotByPid(waiterPid)
	if err != nil {
		t.Fatalf("unexpected error getting waiter snapshot: %v", err)
	}
	if snap.State == sched.StateBlocked {
		t.Fatalf("expected waiter to be woken after target exited")
	}
}

func TestKillProcessWakesWaiter(t *testing.T) {
	tbl := newTestTable(t)
	noop := func(argv []string) {}

	a, _ := tbl.CreateProcess("a", noop, nil, 1, true, 0, 0)
	b, _ := tbl.CreateProcess("b", noop, nil, 1, true, 0, 0)

	if err := tbl.WaitProcess(b, a); err != nil {
		t.Fatalf("unexpected error from WaitProcess: %v", err)
	}
	if err := tbl.KillProcess(a); err != nil {
		t.Fatalf("unexpected error from KillProcess: %v", err)
	}

	snap, err := tbl.GetProcessSnapshotByPid(b)
	if err != nil {
		t.Fatalf("unexpected error getting snapshot: %v", err)
	}
	if snap.State == sched.StateBlocked {
		t.Fatalf("expected killing the awaited process to unblock its waiter")
	}
}

func TestToggleProcessBlockIsIdempotent(t *testing.T) {
	tbl := newTestTable(t)
	pid, err := tbl.CreateProcess("p", func(argv []string) {}, nil, 1, true, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := tbl.ToggleProcessBlock(pid, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tbl.ToggleProcessBlock(pid, true); err != nil {
		t.Fatalf("unexpected error on repeated block: %v", err)
	}
	snap, _ := tbl.GetProcessSnapshotByPid(pid)
	if snap.State != sched.StateBlocked {
		t.Fatalf("expected process to remain blocked, got %v", snap.State)
	}
}

func TestGetProcessSnapshotEnumeratesOccupiedSlotsOnly(t *testing.T) {
	tbl := newTestTable(t)
	noop := func(argv []string) {}

	const created = 3
	for i := 0; i < created; i++ {
		if _, err := tbl.CreateProcess("p", noop, nil, 1, true, 0, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	buf := make([]Snapshot, MaxProcesses)
	n := tbl.GetProcessSnapshot(buf, MaxProcesses)
	if n != created {
		t.Fatalf("expected %d occupied slots, got %d", created, n)
	}
	for i := 0; i < n; i++ {
		if buf[i].Pid == 0 {
			t.Fatalf("expected every returned snapshot to name a live pid, got zero at index %d", i)
		}
	}
}

func TestGetProcessSnapshotRespectsMaxCount(t *testing.T) {
	tbl := newTestTable(t)
	noop := func(argv []string) {}
	for i := 0; i < 3; i++ {
		if _, err := tbl.CreateProcess("p", noop, nil, 1, true, 0, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	buf := make([]Snapshot, 3)
	n := tbl.GetProcessSnapshot(buf, 2)
	if n != 2 {
		t.Fatalf("expected maxCount to cap the written count at 2, got %d", n)
	}
}
