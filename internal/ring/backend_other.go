//go:build !linux

package ring

// newRealBackend is available only under GOOS=linux; io_uring is a Linux
// kernel interface. Mirrors the teacher's iouring_stub.go, which returns an
// equivalent error when built without the giouring tag.
func newRealBackend(cfg Config) (backend, error) {
	return nil, ErrUnsupported
}
