//go:build unix && !linux

package phys

// Only Linux honours MAP_NORESERVE for anonymous mappings.
const mapNoReserve = 0
