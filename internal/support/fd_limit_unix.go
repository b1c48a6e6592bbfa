//go:build unix

package support

import "golang.org/x/sys/unix"

// FileDescriptorLimit reports the soft RLIMIT_NOFILE of the process, or 0 when
// it cannot be determined.
func FileDescriptorLimit() uint64 {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err == nil && lim.Cur > 0 {
		return uint64(lim.Cur)
	}
	return 0
}
