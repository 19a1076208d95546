// Package arch defines the boundary between the scheduler and the
// machine-specific mechanics of starting and switching between process
// contexts. The spec this kernel implements leaves stack layout and the
// actual context-switch sequence as a hardware concern; Shim is where a
// real target would plug in inline assembly, and kernel/arch/coop is the
// only implementation shipped here, built on goroutines so the scheduler
// and process table can be exercised on any host.
package arch

// Context is an opaque handle to a suspended or running process context.
// Shim implementations are the only code entitled to look inside one.
type Context interface{}

// Shim is the architecture-specific half of a context switch. A kernel
// built for real hardware would implement this with a stack frame matching
// its ABI and an assembly trampoline; kernel/arch/coop implements it with
// parked goroutines for testing off real hardware.
type Shim interface {
	// NewContext prepares a fresh context that, when switched to for the
	// first time, begins executing entry with argv passed through.
	NewContext(entry func(argv []string), argv []string, stackSize int) Context

	// SwitchTo transfers control to ctx and blocks the calling goroutine
	// until ctx yields or its entry function returns.
	SwitchTo(ctx Context)

	// Yield hands control back to whichever caller last called SwitchTo,
	// called from inside the currently running context's own entry
	// function. It returns once that context is switched to again.
	Yield(ctx Context)

	// Destroy releases any resources associated with ctx. Called once a
	// process has exited or been killed and its context is never coming
	// back.
	Destroy(ctx Context)

	// Finished reports whether ctx will never run again: its entry
	// function has returned, or Destroy has been called on it. Callers
	// use this after SwitchTo returns to distinguish a cooperative yield
	// (still runnable) from a process that simply fell off the end of main.
	Finished(ctx Context) bool
}
