// Package pmm implements the physical page allocator described by the core
// memory-manager contract: a single managed byte range is page-aligned
// inward and handed out in whole-page blocks by one of two interchangeable
// strategies (see list_allocator.go and buddy_allocator.go). The list
// strategy carves the front of the range off for its per-page metadata;
// the buddy strategy keeps a one-byte header inside each block instead.
//
// Both strategies keep their bookkeeping inside the managed region itself,
// the same way gopher-os's BitmapAllocator overlays its free bitmaps onto
// memory reserved from the region it manages, rather than modelling the
// metadata as ordinary Go-owned slices/structs.
package pmm

import (
	"fmt"

	"github.com/go-tinyos/kernel/kernel/mem"
)

// PageAllocator is the contract every allocator strategy satisfies. The
// package-level Default variable (see select_listalloc.go /
// select_buddyalloc.go) picks one at build time, mirroring gopher-os's
// single `var PageAllocator buddyAllocator` package-level instance.
type PageAllocator interface {
	// CreateMemory (re)initializes the allocator over [start, start+size).
	// A second call fully discards prior state.
	CreateMemory(start uintptr, size mem.Size)

	// AllocMemory returns the address of a contiguous run of whole pages
	// covering size bytes, or ok=false if none is available, the
	// allocator is uninitialized, or size==0. The list strategy returns
	// the page-aligned run base; the buddy strategy returns the address
	// one header byte past the page-aligned block base.
	AllocMemory(size mem.Size) (addr uintptr, ok bool)

	// FreeMemory releases the block whose head is addr. It is a silent
	// no-op for null, unaligned, out-of-range, non-head or already-free
	// addresses.
	FreeMemory(addr uintptr)

	// ConsultMemory reports a short status string.
	ConsultMemory() string
}

// NewListAllocator returns a fresh strategy-A (sorted-PFN-list) allocator,
// independent of the build-tag-selected Default. Callers that need a
// specific strategy regardless of build tags (tests, strategy comparisons)
// use this instead of Default.
func NewListAllocator() PageAllocator {
	return &listAllocator{}
}

// NewBuddyAllocator returns a fresh strategy-B (buddy-system) allocator,
// independent of the build-tag-selected Default.
func NewBuddyAllocator() PageAllocator {
	return &buddyAllocator{}
}

// Stats is the snapshot backing ConsultMemory's human-readable rendering.
type Stats struct {
	TotalPages uint32
	FreePages  uint32
	Base       uintptr
	End        uintptr
}

// String renders Stats as "total=<N> free=<N> base=<hex> end=<hex>". An
// uninitialized allocator's ConsultMemory returns uninitializedStatus
// instead.
func (s Stats) String() string {
	return fmt.Sprintf("total=%d free=%d base=0x%x end=0x%x", s.TotalPages, s.FreePages, s.Base, s.End)
}

// uninitializedStatus is returned verbatim by ConsultMemory when
// CreateMemory has not successfully run.
const uninitializedStatus = "manager=uninitialized"

// nilPFN is the sentinel for "no page frame" in the list strategy's free
// list (the buddy strategy uses its own noBlock offset sentinel). PFNs are
// a signed type precisely so this sentinel never collides with a real
// index the way the unsigned NIL=0xFFFFFFFF draft in the original C source
// could.
const nilPFN int32 = -1
