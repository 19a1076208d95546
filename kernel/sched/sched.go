// Package sched implements the multilevel priority scheduler: a fixed
// number of FIFO ready queues, one per priority level, scanned from the
// highest level down on every reschedule.
package sched

import (
	"github.com/go-tinyos/kernel/kernel/arch"
	"github.com/go-tinyos/kernel/kernel/errors"
)

// MaxPriorities is the number of ready-queue levels. Priority 0 is the
// lowest, MaxPriorities-1 the highest.
const MaxPriorities = 4

// State is a process's scheduling state.
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// PCR is the scheduler's view of a process: enough to enqueue it, run it,
// and route wait/kill notifications. kernel/proc embeds a PCR per process
// table slot and adds everything the table itself needs to own.
type PCR struct {
	Pid        int32
	Name       string
	Priority   int
	State      State
	Foreground bool

	Ctx arch.Context

	// WaiterPid is the pid of the single process blocked waiting on this
	// one to exit, or 0 if none. Spec supports only one waiter per
	// process.
	WaiterPid int32

	// ParentPid records the creator for inspection only: this kernel has
	// no IPC beyond wait-on-exit, so it is never used to route signals.
	ParentPid int32

	// next chains PCRs together on a ready queue. It is scheduler-owned
	// and must not be read outside this package.
	next *PCR
}

// readyQueue is a singly-linked FIFO of PCRs at one priority level.
type readyQueue struct {
	head, tail *PCR
	count      int
}

func (q *readyQueue) enqueue(p *PCR) {
	p.next = nil
	if q.tail == nil {
		q.head, q.tail = p, p
	} else {
		q.tail.next = p
		q.tail = p
	}
	q.count++
}

func (q *readyQueue) dequeue() *PCR {
	p := q.head
	if p == nil {
		return nil
	}
	q.head = p.next
	if q.head == nil {
		q.tail = nil
	}
	p.next = nil
	q.count--
	return p
}

// remove splices p out of the queue wherever it sits, used when a running
// or blocked process must be taken out of ready-queue bookkeeping (e.g. a
// kill racing with a still-queued entry). Reports whether p was found.
func (q *readyQueue) remove(p *PCR) bool {
	var prev *PCR
	cur := q.head
	for cur != nil {
		if cur == p {
			if prev == nil {
				q.head = cur.next
			} else {
				prev.next = cur.next
			}
			if cur == q.tail {
				q.tail = prev
			}
			cur.next = nil
			q.count--
			return true
		}
		prev, cur = cur, cur.next
	}
	return false
}

// Scheduler owns the ready queues and the currently-running PCR. It knows
// nothing about pid allocation or process table slots; that is kernel/proc's
// job.
type Scheduler struct {
	initialized bool
	queues      [MaxPriorities]readyQueue
	current     *PCR

	agingEnabled      bool
	ticksPerPromotion int
	ticksAtLevel      map[*PCR]int
}

// New returns an initialized, empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		initialized:  true,
		ticksAtLevel: make(map[*PCR]int),
	}
}

// EnableAging turns on the optional priority-aging knob: a ready process
// that has waited ticksPerPromotion scheduling ticks without running is
// promoted one priority level, to bound starvation of low-priority work.
// Disabled by default, matching spec behavior; original_source's constant
// AGING=20 is a reasonable default for ticksPerPromotion when enabling it.
func (s *Scheduler) EnableAging(ticksPerPromotion int) {
	s.agingEnabled = ticksPerPromotion > 0
	s.ticksPerPromotion = ticksPerPromotion
}

func normalizePriority(p int) int {
	if p < 0 {
		return 0
	}
	if p >= MaxPriorities {
		return MaxPriorities - 1
	}
	return p
}

// AddProcess places p on its priority's ready queue. Priority is clamped
// into [0, MaxPriorities).
func (s *Scheduler) AddProcess(p *PCR) {
	p.Priority = normalizePriority(p.Priority)
	p.State = StateReady
	s.queues[p.Priority].enqueue(p)
}

// Unschedule removes the currently running process from the "running"
// slot without touching any ready queue, used when it blocks, exits, or is
// killed while running.
func (s *Scheduler) Unschedule() *PCR {
	p := s.current
	s.current = nil
	delete(s.ticksAtLevel, p)
	return p
}

// Remove takes p out of whichever ready queue holds it, used by kill and
// priority-change paths acting on a process that is not currently running.
func (s *Scheduler) Remove(p *PCR) bool {
	return s.queues[p.Priority].remove(p)
}

// PickNext scans ready queues from the highest priority down and dequeues
// the first runnable process, or nil if every queue is empty.
func (s *Scheduler) PickNext() *PCR {
	if s.agingEnabled {
		s.promoteAged()
	}
	for level := MaxPriorities - 1; level >= 0; level-- {
		if p := s.queues[level].dequeue(); p != nil {
			return p
		}
	}
	return nil
}

// promoteAged walks every ready queue below the top level and promotes any
// process that has sat for ticksPerPromotion picks without running.
func (s *Scheduler) promoteAged() {
	for level := MaxPriorities - 2; level >= 0; level-- {
		q := &s.queues[level]
		var stillHere []*PCR
		for p := q.dequeue(); p != nil; p = q.dequeue() {
			s.ticksAtLevel[p]++
			if s.ticksAtLevel[p] >= s.ticksPerPromotion {
				delete(s.ticksAtLevel, p)
				p.Priority = level + 1
				s.queues[p.Priority].enqueue(p)
				continue
			}
			stillHere = append(stillHere, p)
		}
		for _, p := range stillHere {
			q.enqueue(p)
		}
	}
}

// Schedule picks the next ready process, makes it current and running, and
// returns it. It does not itself perform the context switch; callers drive
// arch.Shim.SwitchTo with the returned PCR's Ctx.
func (s *Scheduler) Schedule() (*PCR, error) {
	p := s.PickNext()
	if p == nil {
		return nil, errors.New("sched", "no runnable process")
	}
	p.State = StateRunning
	s.current = p
	return p, nil
}

// Current returns the currently running PCR, or nil if none.
func (s *Scheduler) Current() *PCR {
	return s.current
}

// ReadyCount reports how many processes are queued at the given priority
// level, used by tests and diagnostics.
func (s *Scheduler) ReadyCount(priority int) int {
	return s.queues[normalizePriority(priority)].count
}
