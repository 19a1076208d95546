// Package proc implements the process table: a fixed set of slots, each
// holding a process's scheduling record plus the bookkeeping the scheduler
// itself doesn't need to know about (its allocated stack, wait/exit
// status). It is the layer kernel/syscall calls into.
package proc

import (
	"github.com/go-tinyos/kernel/kernel/arch"
	"github.com/go-tinyos/kernel/kernel/errors"
	"github.com/go-tinyos/kernel/kernel/mem"
	"github.com/go-tinyos/kernel/kernel/mem/pmm"
	"github.com/go-tinyos/kernel/kernel/sched"
)

// MaxProcesses bounds the process table, matching the fixed-size PCB array
// the scheduler this kernel is modeled on uses instead of a dynamic list.
const MaxProcesses = 16

// DefaultStackSize is used when CreateProcess's caller does not request a
// specific stack size.
const DefaultStackSize = 16 * int(mem.Kb)

// ExitStatus records how a process left the table.
type ExitStatus struct {
	Exited bool
	Code   int
}

// slot is one process table entry. inUse decides occupancy; a free slot is
// zeroed, so its pid is 0 as well, and pids are never 0 for a live process.
type slot struct {
	pcr        sched.PCR
	stackAddr  uintptr
	stackSize  mem.Size
	exitStatus ExitStatus
	inUse      bool
}

// basePointer is reported as 0 for every snapshot: the cooperative
// architecture shim has no saved x86_64 frame to read an rbp out of, so
// there is nothing honest to put here beyond the sentinel "not available"
// value. A real architecture shim would read it out of the context ctx
// points at, per spec.md's "basePointer is the rbp field read from the
// saved frame at ctx".
const basePointerUnavailable uintptr = 0

// Table is the process table plus the scheduler and architecture shim it
// drives. One Table owns one scheduler; there is no SMP support, so there
// is never more than one Table running at a time.
type Table struct {
	slots [MaxProcesses]slot
	sched *sched.Scheduler
	pages pmm.PageAllocator
	shim  arch.Shim

	nextPid int32

	// lastExit remembers the exit status of recently-terminated pids
	// past the point their slot is freed and reused, so a waiter woken
	// after the fact (WaitProcess/sysExec) can still retrieve it.
	lastExit map[int32]ExitStatus
}

// NewTable builds a process table wired to the given page allocator and
// architecture shim.
func NewTable(pages pmm.PageAllocator, shim arch.Shim) *Table {
	return &Table{
		sched:    sched.New(),
		pages:    pages,
		shim:     shim,
		nextPid:  1,
		lastExit: make(map[int32]ExitStatus),
	}
}

// Scheduler exposes the underlying scheduler for callers (e.g.
// kernel/syscall) that need to drive picks and switches directly.
func (t *Table) Scheduler() *sched.Scheduler {
	return t.sched
}

func (t *Table) findFreeSlot() (int, bool) {
	for i := range t.slots {
		if !t.slots[i].inUse {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) findByPid(pid int32) (int, bool) {
	if pid <= 0 {
		return 0, false
	}
	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].pcr.Pid == pid {
			return i, true
		}
	}
	return 0, false
}

// CreateProcess allocates a stack, a PCR, and a process table slot for
// entry, enqueues it on the scheduler at priority, and returns its pid.
func (t *Table) CreateProcess(name string, entry func(argv []string), argv []string, priority int, foreground bool, parentPid int32, stackSize int) (int32, error) {
	idx, ok := t.findFreeSlot()
	if !ok {
		return 0, errors.ErrSlotExhausted
	}
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}

	stackAddr, ok := t.pages.AllocMemory(mem.Size(stackSize))
	if !ok {
		return 0, errors.ErrOutOfMemory
	}

	ctx := t.shim.NewContext(entry, argv, stackSize)

	pid := t.nextPid
	t.nextPid++

	t.slots[idx] = slot{
		pcr: sched.PCR{
			Pid:        pid,
			Name:       name,
			Priority:   priority,
			Foreground: foreground,
			ParentPid:  parentPid,
			Ctx:        ctx,
		},
		stackAddr: stackAddr,
		stackSize: mem.Size(stackSize),
		inUse:     true,
	}

	t.sched.AddProcess(&t.slots[idx].pcr)
	return pid, nil
}

// ExitCurrentProcess tears down the currently running process, records its
// exit status, wakes its waiter (if any), and frees its stack. It does not
// itself pick the next process; callers schedule separately.
func (t *Table) ExitCurrentProcess(code int) error {
	cur := t.sched.Current()
	if cur == nil {
		return errors.New("proc", "no process is currently running")
	}
	return t.terminate(cur.Pid, ExitStatus{Exited: true, Code: code})
}

// KillProcess forcibly terminates the process identified by pid, wherever
// it sits (running, ready, or blocked).
func (t *Table) KillProcess(pid int32) error {
	idx, ok := t.findByPid(pid)
	if !ok {
		return errors.ErrUnknownProcess
	}
	if t.sched.Current() != &t.slots[idx].pcr {
		t.sched.Remove(&t.slots[idx].pcr)
	}
	return t.terminate(pid, ExitStatus{Exited: true, Code: -1})
}

// terminate is the shared teardown path for both a clean exit and a kill:
// free the stack, destroy the context, wake a waiter, scrub any stale
// waiterPid elsewhere in the table pointing at this pid, and release the
// slot. Pids come from an increasing counter and are not reused when a
// slot is freed; the scrub clears the reference so the process this one
// was waiting on can accept a new waiter.
func (t *Table) terminate(pid int32, status ExitStatus) error {
	idx, ok := t.findByPid(pid)
	if !ok {
		return errors.ErrUnknownProcess
	}
	s := &t.slots[idx]

	if t.sched.Current() == &s.pcr {
		t.sched.Unschedule()
	}

	t.shim.Destroy(s.pcr.Ctx)
	t.pages.FreeMemory(s.stackAddr)
	s.exitStatus = status
	t.lastExit[pid] = status

	if waiter := s.pcr.WaiterPid; waiter != 0 {
		if widx, ok := t.findByPid(waiter); ok {
			t.unblock(widx)
		}
	}

	for i := range t.slots {
		if t.slots[i].inUse && t.slots[i].pcr.WaiterPid == pid {
			t.slots[i].pcr.WaiterPid = 0
		}
	}

	t.slots[idx] = slot{}
	return nil
}

// ToggleProcessBlock moves pid between the blocked and ready states. A
// process already in the requested state is left untouched.
func (t *Table) ToggleProcessBlock(pid int32, block bool) error {
	idx, ok := t.findByPid(pid)
	if !ok {
		return errors.ErrUnknownProcess
	}
	if block {
		t.block(idx)
	} else {
		t.unblock(idx)
	}
	return nil
}

// block marks the slot blocked and, if it is the currently running
// process blocking itself (the normal case: a syscall handler calling
// ToggleProcessBlock/WaitProcess from inside the process's own entry
// function), actually parks its goroutine via the architecture shim so
// control returns to whoever is driving the scheduler. A process blocked
// from outside (not currently running) is just unlinked from its ready
// queue; there is no goroutine of its own to pause.
func (t *Table) block(idx int) {
	s := &t.slots[idx]
	if s.pcr.State == sched.StateBlocked {
		return
	}
	selfBlock := t.sched.Current() == &s.pcr
	if selfBlock {
		t.sched.Unschedule()
	} else {
		t.sched.Remove(&s.pcr)
	}
	s.pcr.State = sched.StateBlocked

	if selfBlock {
		t.shim.Yield(s.pcr.Ctx)
		// Resumed: unblock() has already re-added this PCR to a ready
		// queue and a later Schedule()/SwitchTo() picked it up again.
	}
}

func (t *Table) unblock(idx int) {
	s := &t.slots[idx]
	if s.pcr.State != sched.StateBlocked {
		return
	}
	t.sched.AddProcess(&s.pcr)
}

// SetProcessPriority re-enqueues pid, if ready, onto its new priority's
// queue. A running or blocked process just has its priority field updated
// for the next time it becomes ready.
func (t *Table) SetProcessPriority(pid int32, priority int) error {
	idx, ok := t.findByPid(pid)
	if !ok {
		return errors.ErrUnknownProcess
	}
	s := &t.slots[idx]
	if s.pcr.State == sched.StateReady {
		t.sched.Remove(&s.pcr)
		s.pcr.Priority = priority
		t.sched.AddProcess(&s.pcr)
		return nil
	}
	s.pcr.Priority = priority
	return nil
}

// WaitProcess blocks the calling process (callerPid) until target exits,
// recording callerPid as target's single waiter. It fails if target
// already has a waiter, matching the spec's single-waiter discipline.
func (t *Table) WaitProcess(callerPid, targetPid int32) error {
	tidx, ok := t.findByPid(targetPid)
	if !ok {
		return errors.ErrUnknownProcess
	}
	if t.slots[tidx].pcr.WaiterPid != 0 {
		return errors.New("proc", "target process already has a waiter")
	}
	if _, ok := t.findByPid(callerPid); !ok {
		return errors.ErrUnknownProcess
	}
	t.slots[tidx].pcr.WaiterPid = callerPid
	return t.ToggleProcessBlock(callerPid, true)
}

// LastExitStatus returns the exit status of pid, including for a pid whose
// slot has since been freed (and possibly reused). Entries are never
// evicted from the backing map. Used by a waiter (WaitProcess/sys_exec) that resumes after
// the target's slot is already gone.
func (t *Table) LastExitStatus(pid int32) (ExitStatus, bool) {
	status, ok := t.lastExit[pid]
	return status, ok
}

// Snapshot is a read-only view of one process table slot, safe to copy and
// hand to callers (e.g. a "ps" syscall) without exposing the live PCR.
type Snapshot struct {
	Pid          int32
	Name         string
	Priority     int
	State        sched.State
	Foreground   bool
	ParentPid    int32
	ExitStatus   ExitStatus
	StackPointer uintptr
	BasePointer  uintptr
}

func (t *Table) snapshotOf(idx int) Snapshot {
	s := &t.slots[idx]
	return Snapshot{
		Pid:          s.pcr.Pid,
		Name:         s.pcr.Name,
		Priority:     s.pcr.Priority,
		State:        s.pcr.State,
		Foreground:   s.pcr.Foreground,
		ParentPid:    s.pcr.ParentPid,
		ExitStatus:   s.exitStatus,
		StackPointer: s.stackAddr,
		BasePointer:  basePointerUnavailable,
	}
}

// GetProcessSnapshotByPid returns a point-in-time copy of pid's table
// entry.
func (t *Table) GetProcessSnapshotByPid(pid int32) (Snapshot, error) {
	idx, ok := t.findByPid(pid)
	if !ok {
		return Snapshot{}, errors.ErrUnknownProcess
	}
	return t.snapshotOf(idx), nil
}

// GetProcessSnapshot writes up to maxCount snapshots of occupied process
// table slots into buf (which must have length >= maxCount) and returns
// the count written, mirroring original_source's sys_get_processes's
// (ProcessInfo*, count) contract.
func (t *Table) GetProcessSnapshot(buf []Snapshot, maxCount int) int {
	n := 0
	for i := range t.slots {
		if n >= maxCount || n >= len(buf) {
			break
		}
		if !t.slots[i].inUse {
			continue
		}
		buf[n] = t.snapshotOf(i)
		n++
	}
	return n
}

// Run drives the scheduler to pick the next ready process and switches to
// it, blocking until that process yields, blocks, or exits. A process
// whose entry function returned without an explicit exit syscall is
// terminated here as if it had called exit(0); one that merely yielded
// (state still running, context not finished) is re-enqueued as ready;
// one that blocked or explicitly exited already updated its own state via
// ToggleProcessBlock or terminate.
func (t *Table) Run() error {
	p, err := t.sched.Schedule()
	if err != nil {
		return err
	}
	t.shim.SwitchTo(p.Ctx)

	if t.sched.Current() == p {
		if t.shim.Finished(p.Ctx) {
			return t.terminate(p.Pid, ExitStatus{Exited: true, Code: 0})
		}
		t.sched.Unschedule()
		t.sched.AddProcess(p)
	}
	return nil
}
