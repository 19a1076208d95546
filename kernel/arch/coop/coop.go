// Package coop implements kernel/arch.Shim as a cooperative simulator: each
// process context is a parked goroutine, and "context switch" is really a
// pair of unbuffered handshake channels. It exists so the scheduler and
// process table can be built and tested without a real interrupt-driven
// machine underneath them.
package coop

import "github.com/go-tinyos/kernel/kernel/arch"

// goContext is the coop Shim's concrete Context: a goroutine parked on
// resume/yielded, standing in for a saved register set and stack pointer.
type goContext struct {
	entry   func(argv []string)
	argv    []string
	started bool
	done    bool

	resume  chan struct{} // sent to let the goroutine run
	yielded chan struct{} // sent when the goroutine yields or returns
}

// Shim is the coop package's kernel/arch.Shim implementation.
type Shim struct{}

// New returns a ready-to-use cooperative shim.
func New() *Shim {
	return &Shim{}
}

// NewContext implements arch.Shim.
func (s *Shim) NewContext(entry func(argv []string), argv []string, stackSize int) arch.Context {
	// stackSize is accepted for interface compatibility with a real
	// architecture shim, which would use it to size an actual stack; the
	// coop simulator runs on the host goroutine stack instead.
	return &goContext{
		entry:   entry,
		argv:    argv,
		resume:  make(chan struct{}),
		yielded: make(chan struct{}),
	}
}

// SwitchTo implements arch.Shim.
func (s *Shim) SwitchTo(ctx arch.Context) {
	c := ctx.(*goContext)
	if c.done {
		return
	}
	if !c.started {
		c.started = true
		go func() {
			c.entry(c.argv)
			c.done = true
			c.yielded <- struct{}{}
		}()
	} else {
		c.resume <- struct{}{}
	}
	<-c.yielded
}

// Yield implements arch.Shim. It must be called from inside the goroutine
// that is currently executing ctx's entry function.
func (s *Shim) Yield(ctx arch.Context) {
	c := ctx.(*goContext)
	c.yielded <- struct{}{}
	<-c.resume
}

// Destroy implements arch.Shim. If ctx is parked mid-Yield (blocked or
// killed-while-blocked), its goroutine is sitting on <-c.resume and setting
// done here does not release it; nothing ever sends on resume again, so
// that goroutine leaks for the life of the process. A real architecture
// shim just frees the stack and has no such goroutine to worry about. The
// simulator tolerates the leak since kernelsim processes are few and
// short-lived.
func (s *Shim) Destroy(ctx arch.Context) {
	c := ctx.(*goContext)
	c.done = true
}

// Finished implements arch.Shim.
func (s *Shim) Finished(ctx arch.Context) bool {
	return ctx.(*goContext).done
}
