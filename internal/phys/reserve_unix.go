//go:build unix

package phys

import (
	"errors"

	"golang.org/x/sys/unix"
)

// reserve maps anonymous private memory. MAP_NORESERVE keeps untouched frames
// from being committed, so sparse physical maps stay cheap.
func reserve(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE|mapNoReserve)
	if err != nil {
		return nil, nil, err
	}
	release := func() error {
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data, release, nil
}
