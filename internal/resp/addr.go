package resp

import "unsafe"

// sliceAddr returns the address of a byte slice's first element, used only
// to compute an offset between two slices known to alias the same backing
// array (see Rebase). It never dereferences beyond the slice's own bounds.
func sliceAddr(b []byte) int {
	return int(uintptr(unsafe.Pointer(&b[0])))
}
