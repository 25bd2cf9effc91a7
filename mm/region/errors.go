package region

import "errors"

var (
	// ErrUnaligned indicates a boundary that is not 4 KiB aligned.
	ErrUnaligned = errors.New("region: unaligned boundary")

	// ErrBadRange indicates start > end or an end beyond the physical address space.
	ErrBadRange = errors.New("region: bad range")

	// ErrMapFull indicates the map would exceed MaxEntries regions.
	ErrMapFull = errors.New("region: map full")

	// ErrTooFewEntries indicates a firmware map with a single entry.
	ErrTooFewEntries = errors.New("region: need at least two entries")

	// ErrNotDecreasing indicates region starts that are not strictly decreasing.
	ErrNotDecreasing = errors.New("region: starts not strictly decreasing")

	// ErrNoTerminator indicates a map whose last region does not start at 0.
	ErrNoTerminator = errors.New("region: missing terminator")

	// ErrAdjacentSameType indicates two neighbouring regions with the same type.
	ErrAdjacentSameType = errors.New("region: adjacent regions share a type")
)
