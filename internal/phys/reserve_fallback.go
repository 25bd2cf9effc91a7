//go:build !unix

package phys

// reserve allocates the arena on the Go heap when mmap is not available.
func reserve(size int) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
