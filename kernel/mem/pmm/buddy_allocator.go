package pmm

import (
	"unsafe"

	"github.com/go-tinyos/kernel/kernel/mem"
)

// MinOrder and MaxOrder bound the buddy allocator's block orders. Order k
// corresponds to a block of 2^k * PageSize bytes, so MinOrder=4 gives a
// smallest block of 64KiB and MaxOrder=20 a largest block of 4GiB.
const (
	MinOrder = 4
	MaxOrder = 20
)

// blockHeaderSize is the one in-band byte preceding every allocated block
// that records its order, so FreeMemory can recover it without the caller
// passing a size back.
const blockHeaderSize = unsafe.Sizeof(uint8(0))

// noBlock is the "empty list" sentinel for a free-list head/next offset.
// Offsets are always < len(buf), so the maximum uintptr value can never
// collide with a real one.
const noBlock = ^uintptr(0)

// buddyAllocator implements the buddy-system strategy (spec strategy B).
// Free lists and block headers live entirely inside the managed region:
// a free block's first machine word is an intrusive "next free block"
// link, and an allocated block's first byte is its order. No separate
// metadata carve-out is needed, unlike listAllocator.
type buddyAllocator struct {
	initialized bool
	base        uintptr
	end         uintptr
	buf         []byte

	freeLists [MaxOrder + 1]uintptr // head offset (relative to base) per order, or noBlock

	// allocated tracks live allocations by header offset so FreeMemory can
	// reject double-frees and bogus addresses without trusting a header
	// byte that might be stale or forged.
	allocated map[uintptr]struct{}
}

func blockSizeForOrder(order int) uintptr {
	return uintptr(mem.PageSize) << uint(order)
}

// calculateOrder returns the smallest order whose block can hold size bytes
// plus the one-byte header, clamped to at least MinOrder. ok is false for
// size==0 or when no order up to MaxOrder is large enough.
func calculateOrder(size mem.Size) (order int, ok bool) {
	if size == 0 {
		return 0, false
	}
	needed := uintptr(size) + blockHeaderSize
	blockSize := uintptr(mem.PageSize)
	for blockSize < needed {
		order++
		blockSize <<= 1
		if order > MaxOrder {
			return 0, false
		}
	}
	if order < MinOrder {
		order = MinOrder
	}
	return order, true
}

// CreateMemory implements PageAllocator.
func (a *buddyAllocator) CreateMemory(start uintptr, size mem.Size) {
	*a = buddyAllocator{}
	for i := range a.freeLists {
		a.freeLists[i] = noBlock
	}
	a.allocated = make(map[uintptr]struct{})

	base := mem.PageAlignUp(start)
	end := mem.PageAlignDown(start + uintptr(size))
	if end <= base || end-base < blockSizeForOrder(MinOrder) {
		return
	}

	a.base, a.end = base, end
	a.buf = make([]byte, end-base)

	remaining := end - base
	offset := uintptr(0)
	for order := MaxOrder; order >= MinOrder; order-- {
		bs := blockSizeForOrder(order)
		for remaining >= bs {
			a.pushFree(order, offset)
			offset += bs
			remaining -= bs
		}
	}
	a.initialized = true
}

// AllocMemory implements PageAllocator.
func (a *buddyAllocator) AllocMemory(size mem.Size) (uintptr, bool) {
	if !a.initialized {
		return 0, false
	}
	order, ok := calculateOrder(size)
	if !ok {
		return 0, false
	}

	offset, foundOrder, ok := a.findBlock(order)
	if !ok {
		return 0, false
	}
	if foundOrder > order {
		a.split(offset, foundOrder, order)
	}

	a.setHeader(offset, uint8(order))
	a.allocated[offset] = struct{}{}
	return a.base + offset + blockHeaderSize, true
}

// FreeMemory implements PageAllocator.
func (a *buddyAllocator) FreeMemory(addr uintptr) {
	if !a.initialized || addr < a.base+blockHeaderSize || addr >= a.end {
		return
	}
	offset := addr - a.base - blockHeaderSize
	if _, ok := a.allocated[offset]; !ok {
		return // null, unaligned, out-of-range or already-free: no-op
	}
	delete(a.allocated, offset)

	order := int(a.getHeader(offset))
	current := offset
	for order < MaxOrder {
		bs := blockSizeForOrder(order)
		buddyOffset := current ^ bs
		if !a.removeFree(order, buddyOffset) {
			break
		}
		if buddyOffset < current {
			current = buddyOffset
		}
		order++
	}
	a.pushFree(order, current)
}

// ConsultMemory implements PageAllocator.
func (a *buddyAllocator) ConsultMemory() string {
	if !a.initialized {
		return uninitializedStatus
	}
	total := uint64(a.end - a.base)
	return Stats{
		TotalPages: uint32(total >> mem.PageShift),
		FreePages:  uint32(a.freeByteCount() >> mem.PageShift),
		Base:       a.base,
		End:        a.end,
	}.String()
}

// findBlock scans free-lists upward from order looking for the first
// available block, detaching and returning it along with the order it was
// found at.
func (a *buddyAllocator) findBlock(order int) (uintptr, int, bool) {
	for o := order; o <= MaxOrder; o++ {
		if off, ok := a.popFree(o); ok {
			return off, o, true
		}
	}
	return 0, 0, false
}

// split repeatedly halves a block found at currentOrder down to
// targetOrder, pushing each freed upper half onto the free-list one order
// below.
func (a *buddyAllocator) split(offset uintptr, currentOrder, targetOrder int) {
	for currentOrder > targetOrder {
		currentOrder--
		buddyOffset := offset + blockSizeForOrder(currentOrder)
		a.pushFree(currentOrder, buddyOffset)
	}
}

func (a *buddyAllocator) pushFree(order int, offset uintptr) {
	a.setNext(offset, a.freeLists[order])
	a.freeLists[order] = offset
}

func (a *buddyAllocator) popFree(order int) (uintptr, bool) {
	off := a.freeLists[order]
	if off == noBlock {
		return 0, false
	}
	a.freeLists[order] = a.getNext(off)
	return off, true
}

// removeFree unlinks the block at target from order's free-list if present,
// reporting whether it was found (i.e. whether the buddy was actually
// free).
func (a *buddyAllocator) removeFree(order int, target uintptr) bool {
	prev := noBlock
	off := a.freeLists[order]
	for off != noBlock {
		if off == target {
			next := a.getNext(off)
			if prev == noBlock {
				a.freeLists[order] = next
			} else {
				a.setNext(prev, next)
			}
			return true
		}
		prev = off
		off = a.getNext(off)
	}
	return false
}

func (a *buddyAllocator) freeByteCount() uint64 {
	var total uint64
	for order := MinOrder; order <= MaxOrder; order++ {
		bs := uint64(blockSizeForOrder(order))
		for off := a.freeLists[order]; off != noBlock; off = a.getNext(off) {
			total += bs
		}
	}
	return total
}

func (a *buddyAllocator) getNext(offset uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(&a.buf[offset]))
}

func (a *buddyAllocator) setNext(offset uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(&a.buf[offset])) = v
}

func (a *buddyAllocator) getHeader(offset uintptr) uint8 {
	return a.buf[offset]
}

func (a *buddyAllocator) setHeader(offset uintptr, order uint8) {
	a.buf[offset] = order
}
