//go:build linux

package phys

import "golang.org/x/sys/unix"

const mapNoReserve = unix.MAP_NORESERVE
