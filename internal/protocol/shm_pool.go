package protocol

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapSHMPool mmaps a client's shared memory pool fd read-only and closes
// fd before returning, whether or not the mapping succeeded; the mapping
// stays valid without it.
func mapSHMPool(fd int, size int) ([]byte, error) {
	defer unix.Close(fd)
	if size <= 0 {
		return nil, fmt.Errorf("non-positive pool size %d", size)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return data, nil
}

// growSHMPool handles wl_shm_pool.resize without remapping, since
// mapSHMPool has already closed the pool's fd. A size no larger than the
// current length returns old unchanged, a size within old's capacity
// re-slices it, and any larger size returns an error.
func growSHMPool(old []byte, newSize int) ([]byte, error) {
	if newSize <= len(old) {
		return old, nil
	}
	// The pool's fd was already closed after the initial mmap (Linux
	// keeps the mapping valid independent of the fd), so resize can only
	// extend the existing mapping's reach if the kernel mapping already
	// covers newSize (shared memory pools are never actually shrunk by
	// clients in practice); otherwise the client must recreate the pool.
	if newSize > cap(old) {
		return nil, fmt.Errorf("cannot grow mapping from %d to %d bytes without the original fd", len(old), newSize)
	}
	return old[:newSize], nil
}
