//go:build !unix

package arena

// DefaultPageAllocator selects the portable heap-backed allocator on build
// targets without an mmap primitive.
func DefaultPageAllocator() PageAllocator {
	return NewHeapPageAllocator(4096)
}
