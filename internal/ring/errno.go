package ring

import "golang.org/x/sys/unix"

// errnoOf converts a positive errno magnitude (as carried in a negative CQE
// res) back into a syscall.Errno-compatible value.
func errnoOf(magnitude int32) error {
	if magnitude == 0 {
		return nil
	}
	return unix.Errno(magnitude)
}
