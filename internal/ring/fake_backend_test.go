package ring

import "sync"

// fakeBackend is an in-memory stand-in for a real io_uring ring: every
// entry prepared since the last SubmitAndWaitTimeout call completes
// immediately with res=0, flags=0. It exercises Worker's submission/
// completion plumbing, RunOn, and Transfer without depending on Linux or a
// real kernel ring.
type fakeBackend struct {
	mu      sync.Mutex
	pending []uint64
	cqes    []fakeCQE
	fd      int32
	closed  bool
}

type fakeCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

func newFakeBackend(fd int32) *fakeBackend {
	return &fakeBackend{fd: fd}
}

func (b *fakeBackend) FD() int32 { return b.fd }

func (b *fakeBackend) GetSQE() (sqe, error) {
	return &fakeSQE{backend: b}, nil
}

func (b *fakeBackend) SubmitAndWaitTimeout(waitNr int, timeoutNanos int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.pending)
	for _, ud := range b.pending {
		b.cqes = append(b.cqes, fakeCQE{userData: ud, res: 0, flags: 0})
	}
	b.pending = b.pending[:0]
	return n, nil
}

func (b *fakeBackend) PeekCQE() (userData uint64, res int32, flags uint32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.cqes) == 0 {
		return 0, 0, 0, false
	}
	c := b.cqes[0]
	b.cqes = b.cqes[1:]
	return c.userData, c.res, c.flags, true
}

func (b *fakeBackend) CQESeen() {}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

// fakeSQE records the userData its owning Worker assigns; Prepare* calls
// are no-ops since fakeBackend completes everything successfully
// regardless of opcode.
type fakeSQE struct {
	backend *fakeBackend
	userData uint64
}

func (s *fakeSQE) SetUserData(ud uint64) {
	s.userData = ud
	s.backend.mu.Lock()
	s.backend.pending = append(s.backend.pending, ud)
	s.backend.mu.Unlock()
}

func (s *fakeSQE) PrepareNop()                                                {}
func (s *fakeSQE) PrepareAccept(fd int32, flags int32)                        {}
func (s *fakeSQE) PrepareRecv(fd int32, buf []byte, flags int32)              {}
func (s *fakeSQE) PrepareSend(fd int32, buf []byte, flags int32)              {}
func (s *fakeSQE) PrepareWritev(fd int32, iovecsPtr uintptr, count int, offset uint64) {}
func (s *fakeSQE) PrepareTimeoutMillis(ms int64)                              {}
func (s *fakeSQE) PrepareMsgRing(targetFD int32, res int32, userData uint64)  {}
