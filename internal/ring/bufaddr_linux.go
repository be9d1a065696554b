//go:build linux

package ring

import "unsafe"

// bufAddr returns buf's backing address for handing to a Prepare* call
// that takes a raw pointer/uintptr. buf must stay alive and unmoved until
// the operation completes, which holds here: callers keep the slice live
// on their own goroutine's stack/heap across the blocking Submit call.
func bufAddr(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(&buf[0])
}
