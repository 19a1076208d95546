// Package syscall implements the thin selector dispatch between a trapped
// syscall's register snapshot and the process/memory subsystems, modeled
// on original_source's syscallDispatcher switch over registers->rax. Only
// the selectors that name process and memory operations are handled here;
// everything else (sound, fonts, keyboard, graphics, clock) is out of
// scope and falls through to the default case like an unrecognized
// selector would.
package syscall

import (
	"github.com/go-tinyos/kernel/kernel/mem/pmm"
	"github.com/go-tinyos/kernel/kernel/proc"
	"github.com/go-tinyos/kernel/kernel/sched"
)

// Selector values, named for the operation they trigger. Values match
// original_source's syscallDispatcher.c exactly for the subset this kernel
// implements.
const (
	SelRead  = 3
	SelWrite = 4

	SelExec = 0x800000A0
	SelExit = 0x800000A1

	SelGetProcesses    = 0x800000F1
	SelKillProcess     = 0x800000F2
	SelToggleBlockProc = 0x800000F3
	SelGetMemoryState  = 0x800000F4
	SelSetProcessPrio  = 0x800000F5
	SelCreateProcess   = 0x800000F6
	SelWaitProcess     = 0x800000F7
)

// Registers mirrors the trapped general-purpose register snapshot a
// syscall dispatcher receives. Only the fields this kernel's selectors use
// are present; rax carries the selector on entry and the return value on
// exit, matching the original convention.
type Registers struct {
	Rax uint64
	Rdi uint64
	Rsi uint64
	Rdx uint64
	Rcx uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
}

// ReaderWriter is the console/stream collaborator sys_read/sys_write
// forward to. A real kernel would wire this to its console driver, which
// is out of scope here; cmd/kernelsim leaves it unset, so read and write
// return -1 there.
type ReaderWriter interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// ProcessEntry is the function signature new processes are created with.
// argv is passed straight from CreateProcess's caller.
type ProcessEntry func(argv []string)

// Dispatcher routes syscall selectors to a process table and an optional
// console. Beyond its collaborators it holds only the exec entry-point
// registry and the get-processes scratch buffer.
type Dispatcher struct {
	Table   *proc.Table
	Pages   pmm.PageAllocator
	Console ReaderWriter

	// EntryPoints resolves the opaque "function pointer" value a trapped
	// exec syscall carries in rdi into an actual Go entry function. A
	// real kernel would jump straight to the raw address in rdi; this
	// hosted simulation has no executable memory to jump into, so
	// callers (cmd/kernelsim, tests) register named entry points ahead
	// of time and pass their keys as the "function pointer" value.
	EntryPoints map[uint64]ProcessEntry

	// ProcessSnapshots is scratch storage sys_get_processes writes into,
	// standing in for the caller-supplied (ProcessInfo*, count) buffer a
	// real trap would receive by address in rdi; the hosted simulation
	// has no raw memory to write through a register-encoded pointer, so
	// the Dispatcher owns the buffer directly instead.
	ProcessSnapshots []proc.Snapshot
}

// Dispatch evaluates one trapped syscall and returns the value that would
// be placed back into rax. Unknown selectors return 0, matching the
// original's `default: return 0`.
func (d *Dispatcher) Dispatch(callerPid int32, regs *Registers) int64 {
	switch regs.Rax {
	case SelRead:
		return d.sysRead(regs)
	case SelWrite:
		return d.sysWrite(regs)
	case SelExec:
		return d.sysExec(callerPid, regs)
	case SelExit:
		return d.sysExit(regs)
	case SelGetProcesses:
		return d.sysGetProcesses(regs)
	case SelKillProcess:
		return d.sysKillProcess(regs)
	case SelToggleBlockProc:
		return d.sysToggleBlockProcess(regs)
	case SelGetMemoryState:
		return d.sysGetMemoryState(regs)
	case SelSetProcessPrio:
		return d.sysSetProcessPriority(regs)
	case SelWaitProcess:
		return d.sysWaitProcess(callerPid, regs)
	default:
		return 0
	}
}

func (d *Dispatcher) sysExec(callerPid int32, regs *Registers) int64 {
	entry, ok := d.EntryPoints[regs.Rdi]
	if !ok {
		return -1
	}
	childPid, err := d.Table.CreateProcess("exec", entry, nil, 0, false, callerPid, 0)
	if err != nil {
		return -1
	}
	if err := d.Table.WaitProcess(callerPid, childPid); err != nil {
		return -1
	}
	status, ok := d.Table.LastExitStatus(childPid)
	if !ok {
		return -1
	}
	return int64(status.Code)
}

func (d *Dispatcher) sysGetProcesses(regs *Registers) int64 {
	maxCount := int(regs.Rsi)
	if maxCount <= 0 {
		return 0
	}
	if len(d.ProcessSnapshots) < maxCount {
		d.ProcessSnapshots = make([]proc.Snapshot, maxCount)
	}
	return int64(d.Table.GetProcessSnapshot(d.ProcessSnapshots, maxCount))
}

func (d *Dispatcher) sysRead(regs *Registers) int64 {
	if d.Console == nil {
		return -1
	}
	buf := make([]byte, regs.Rdx)
	n, err := d.Console.Read(buf)
	if err != nil {
		return -1
	}
	return int64(n)
}

func (d *Dispatcher) sysWrite(regs *Registers) int64 {
	if d.Console == nil {
		return -1
	}
	buf := make([]byte, regs.Rdx)
	n, err := d.Console.Write(buf)
	if err != nil {
		return -1
	}
	return int64(n)
}

func (d *Dispatcher) sysExit(regs *Registers) int64 {
	if err := d.Table.ExitCurrentProcess(int(int32(regs.Rdi))); err != nil {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysKillProcess(regs *Registers) int64 {
	if err := d.Table.KillProcess(int32(regs.Rdi)); err != nil {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysToggleBlockProcess(regs *Registers) int64 {
	snap, err := d.Table.GetProcessSnapshotByPid(int32(regs.Rdi))
	if err != nil {
		return -1
	}
	block := snap.State != sched.StateBlocked
	if err := d.Table.ToggleProcessBlock(int32(regs.Rdi), block); err != nil {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysGetMemoryState(regs *Registers) int64 {
	if d.Pages == nil {
		return -1
	}
	status := d.Pages.ConsultMemory()
	// Intentionally not copied out to a caller buffer at regs.Rdi/Rsi: as
	// with sysGetProcesses, there is no raw memory behind that register
	// value to write through in the hosted simulation. Callers that need
	// the text itself call ConsultMemory directly; the syscall surface
	// only reports its length.
	return int64(len(status))
}

func (d *Dispatcher) sysSetProcessPriority(regs *Registers) int64 {
	if err := d.Table.SetProcessPriority(int32(regs.Rdi), int(int32(regs.Rsi))); err != nil {
		return -1
	}
	return 0
}

func (d *Dispatcher) sysWaitProcess(callerPid int32, regs *Registers) int64 {
	if err := d.Table.WaitProcess(callerPid, int32(regs.Rdi)); err != nil {
		return -1
	}
	return 0
}

// CreateProcess is a typed helper (sys_create_process takes more arguments
// than fit cleanly into a Registers struct cast) for spawning a new
// process, mirroring selector 0x800000F6.
func (d *Dispatcher) CreateProcess(name string, entry ProcessEntry, argv []string, priority int, foreground bool, parentPid int32, stackSize int) (int32, error) {
	return d.Table.CreateProcess(name, entry, argv, priority, foreground, parentPid, stackSize)
}
