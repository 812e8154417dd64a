//go:build linux

package affinity

import (
	"golang.org/x/sys/unix"
)

// PinToCore restricts the calling process to a single CPU core. The
// scheduler applies it to every thread created afterwards; call it before
// the worker pool spins up.
func PinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
