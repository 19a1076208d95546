//go:build buddy

package pmm

// Default is the package-level page allocator instance. Build with
// `-tags buddy` to get the buddy-system strategy (spec strategy B) instead
// of the sorted-PFN-list default.
var Default PageAllocator = &buddyAllocator{}
