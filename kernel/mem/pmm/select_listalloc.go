//go:build !buddy

package pmm

// Default is the package-level page allocator instance, the same role
// gopher-os's package-level `PageAllocator buddyAllocator` plays: a single
// shared allocator selected at build time. Build without the "buddy" tag to
// get the sorted-PFN-list strategy (spec strategy A).
var Default PageAllocator = &listAllocator{}
