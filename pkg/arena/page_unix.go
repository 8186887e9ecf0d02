//go:build unix

package arena

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultPageAllocator selects the mmap-backed allocator on unix build
// targets.
func DefaultPageAllocator() PageAllocator {
	return NewUnixPageAllocator()
}

// UnixPageAllocator backs chambers with anonymous mmap regions.
type UnixPageAllocator struct {
	pageSize int
}

// NewUnixPageAllocator constructs a PageAllocator backed by mmap/munmap.
func NewUnixPageAllocator() *UnixPageAllocator {
	return &UnixPageAllocator{pageSize: unix.Getpagesize()}
}

func (u *UnixPageAllocator) PageSize() int { return u.pageSize }

func (u *UnixPageAllocator) Allocate(size int, _ Flags) (unsafe.Pointer, int, error) {
	rounded := roundUpInt(size, u.pageSize)
	b, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, 0, fmt.Errorf("arena: mmap %d bytes: %w", rounded, err)
	}
	return unsafe.Pointer(unsafe.SliceData(b)), rounded, nil
}

func (u *UnixPageAllocator) Release(addr unsafe.Pointer, size int) error {
	b := unsafe.Slice((*byte)(addr), size)
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("arena: munmap %d bytes: %w", size, err)
	}
	return nil
}
