// Package errors defines the lightweight error type used throughout the
// kernel packages, mirroring a single kernelError{Module, Message} struct
// instead of wrapping/annotating errors at every call site.
package errors

// KernelError is a minimal error carrying the module that raised it and a
// short human-readable message. Kernel-level code never wraps or annotates
// errors further up the stack; it is expected to be logged or converted
// directly into a syscall status code.
type KernelError struct {
	Module  string
	Message string
}

func (e *KernelError) Error() string {
	return "[" + e.Module + "] " + e.Message
}

// New constructs a KernelError for the given module.
func New(module, message string) *KernelError {
	return &KernelError{Module: module, Message: message}
}

var (
	// ErrOutOfMemory is returned by a page allocator when no block large
	// enough to satisfy a request is available.
	ErrOutOfMemory = New("mem", "out of memory")

	// ErrUninitialized is returned when an operation is attempted against
	// a page allocator that has not had CreateMemory called on it, or for
	// which CreateMemory failed to find a usable region.
	ErrUninitialized = New("mem", "allocator uninitialized")

	// ErrInvalidParam flags an invalid argument (e.g. a negative size, an
	// out-of-range priority) that a caller should treat as a no-op/-1
	// result rather than a panic.
	ErrInvalidParam = New("kernel", "invalid parameter")

	// ErrSlotExhausted is returned by the process table when no free PCR
	// slot is available.
	ErrSlotExhausted = New("proc", "process table full")

	// ErrUnknownProcess is returned when a PID does not name a live
	// process.
	ErrUnknownProcess = New("proc", "unknown or terminated process")
)
