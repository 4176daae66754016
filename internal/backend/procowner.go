// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package backend

import "syscall"

// processAlive reports whether pid still refers to a live process, via the
// conventional signal-0 liveness probe: sending signal 0 performs all error
// checking without actually delivering a signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
