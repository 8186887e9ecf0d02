package arena

import "unsafe"

// HeapPageAllocator backs chambers with GC-owned byte slices, kept alive for
// the arena's lifetime by the chamber struct holding a reference. It is the
// portable PageAllocator, available on every build target regardless of
// which one DefaultPageAllocator picks.
type HeapPageAllocator struct {
	pageSize int
}

// NewHeapPageAllocator constructs a portable PageAllocator with the given
// page granularity.
func NewHeapPageAllocator(pageSize int) *HeapPageAllocator {
	if pageSize <= 0 {
		pageSize = 4096
	}
	return &HeapPageAllocator{pageSize: pageSize}
}

func (h *HeapPageAllocator) PageSize() int { return h.pageSize }

func (h *HeapPageAllocator) Allocate(size int, _ Flags) (unsafe.Pointer, int, error) {
	rounded := roundUpInt(size, h.pageSize)
	b := make([]byte, rounded)
	return unsafe.Pointer(unsafe.SliceData(b)), rounded, nil
}

// Release is a no-op: the backing slice is reclaimed by the garbage
// collector once the arena drops its last reference to the chamber.
func (h *HeapPageAllocator) Release(unsafe.Pointer, int) error { return nil }

func roundUpInt(v, step int) int {
	if step <= 0 {
		return v
	}
	if r := v % step; r != 0 {
		v += step - r
	}
	return v
}
