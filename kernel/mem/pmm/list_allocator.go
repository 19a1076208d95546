package pmm

import (
	"unsafe"

	"github.com/go-tinyos/kernel/kernel/mem"
)

// Page flags for the listAllocator's in-band metadata records.
const (
	flagUsed uint16 = 1 << iota
	flagReserved
	flagHead
)

// pageRecord is the per-PFN metadata entry for the sorted-free-list
// strategy (spec strategy A). The link field is reused: while the page is
// FREE it holds the next free PFN in ascending order (or nilPFN); while the
// page is the head of an allocated run it holds the run length in pages.
type pageRecord struct {
	flags uint16
	_     uint16
	link  int32
}

const pageRecordSize = unsafe.Sizeof(pageRecord{})

// listAllocator implements the "simple PFN list" strategy: metadata is an
// array indexed by PFN, free pages are kept on a singly-linked list sorted
// by ascending PFN, and allocation walks that list for the first run of
// n consecutive PFNs.
type listAllocator struct {
	initialized bool
	base        uintptr // address of PFN 0 (start of metadata area)
	usableBase  uintptr // address of the first usable (non-metadata) page
	end         uintptr // end of the managed range (exclusive)

	totalPages uint32 // pages in the whole aligned range, metadata included
	metaPages  uint32
	freePages  uint32
	freeHead   int32

	records []pageRecord
}

// CreateMemory implements PageAllocator.
func (a *listAllocator) CreateMemory(start uintptr, size mem.Size) {
	*a = listAllocator{}

	base := mem.PageAlignUp(start)
	end := mem.PageAlignDown(start + uintptr(size))
	if end <= base {
		return
	}

	totalPages := uint32((end - base) >> mem.PageShift)
	metaBytes := uintptr(totalPages) * pageRecordSize
	metaPages := uint32(mem.PageAlignUp(metaBytes) >> mem.PageShift)
	if metaPages >= totalPages {
		return
	}

	buf := make([]byte, uintptr(totalPages)*pageRecordSize)
	records := unsafe.Slice((*pageRecord)(unsafe.Pointer(&buf[0])), totalPages)

	for pfn := uint32(0); pfn < metaPages; pfn++ {
		records[pfn] = pageRecord{flags: flagReserved, link: nilPFN}
	}

	a.freeHead = nilPFN
	for pfn := int32(totalPages) - 1; pfn >= int32(metaPages); pfn-- {
		records[pfn] = pageRecord{flags: 0, link: a.freeHead}
		a.freeHead = pfn
	}

	a.initialized = true
	a.base = base
	a.usableBase = base + uintptr(metaPages)<<mem.PageShift
	a.end = end
	a.totalPages = totalPages
	a.metaPages = metaPages
	a.freePages = totalPages - metaPages
	a.records = records
}

// AllocMemory implements PageAllocator.
func (a *listAllocator) AllocMemory(size mem.Size) (uintptr, bool) {
	if !a.initialized || size == 0 {
		return 0, false
	}
	need := size.Pages()

	var prev int32 = nilPFN
	pfn := a.freeHead
	for pfn != nilPFN {
		if a.runLength(pfn) >= need {
			a.detachRun(prev, pfn, need)
			a.records[pfn].flags = flagUsed | flagHead
			a.records[pfn].link = int32(need)
			for p := pfn + 1; p < pfn+int32(need); p++ {
				a.records[p].flags = flagUsed
			}
			a.freePages -= need
			return a.addr(pfn), true
		}
		prev = pfn
		pfn = a.records[pfn].link
	}
	return 0, false
}

// FreeMemory implements PageAllocator.
func (a *listAllocator) FreeMemory(addr uintptr) {
	if !a.initialized {
		return
	}
	pfn, ok := a.pfn(addr)
	if !ok {
		return
	}
	rec := a.records[pfn]
	if rec.flags&(flagUsed|flagHead) != (flagUsed | flagHead) {
		return // not a block head: null/unaligned/out-of-range/already-free
	}

	runLen := rec.link
	for i := int32(0); i < runLen; i++ {
		p := pfn + i
		a.records[p] = pageRecord{flags: 0}
		a.insertSorted(p)
	}
	a.freePages += uint32(runLen)
}

// ConsultMemory implements PageAllocator.
func (a *listAllocator) ConsultMemory() string {
	if !a.initialized {
		return uninitializedStatus
	}
	return Stats{
		TotalPages: a.totalPages - a.metaPages,
		FreePages:  a.freePages,
		Base:       a.usableBase,
		End:        a.end,
	}.String()
}

// runLength reports how many consecutive free PFNs begin at pfn, following
// the sorted free-list links as long as each successor is exactly
// predecessor+1 (i.e. curr.next == curr+1, as spec.md requires).
func (a *listAllocator) runLength(pfn int32) uint32 {
	count := uint32(1)
	cur := pfn
	for {
		next := a.records[cur].link
		if next != cur+1 {
			return count
		}
		count++
		cur = next
	}
}

// detachRun removes the n-page run starting at pfn from the free list,
// given prev is its immediate predecessor in the list (or nilPFN if pfn was
// the head).
func (a *listAllocator) detachRun(prev, pfn int32, n uint32) {
	last := pfn
	for i := uint32(1); i < n; i++ {
		last = a.records[last].link
	}
	after := a.records[last].link
	if prev == nilPFN {
		a.freeHead = after
	} else {
		a.records[prev].link = after
	}
}

// insertSorted re-links a newly-freed page into the free list keeping
// ascending PFN order, so that adjacent frees naturally sit next to
// adjacent free neighbors.
func (a *listAllocator) insertSorted(pfn int32) {
	if a.freeHead == nilPFN || pfn < a.freeHead {
		a.records[pfn].link = a.freeHead
		a.freeHead = pfn
		return
	}
	cur := a.freeHead
	for a.records[cur].link != nilPFN && a.records[cur].link < pfn {
		cur = a.records[cur].link
	}
	a.records[pfn].link = a.records[cur].link
	a.records[cur].link = pfn
}

// pfn validates addr and converts it to a page frame number. It rejects
// null, misaligned, out-of-managed-range addresses and reserved/free pages
// are further screened by the caller via the page's flags.
func (a *listAllocator) pfn(addr uintptr) (int32, bool) {
	if addr == 0 || addr%uintptr(mem.PageSize) != 0 {
		return 0, false
	}
	if addr < a.base || addr >= a.end {
		return 0, false
	}
	return int32((addr - a.base) >> mem.PageShift), true
}

func (a *listAllocator) addr(pfn int32) uintptr {
	return a.base + uintptr(pfn)<<mem.PageShift
}
