package ring

// Kind identifies which submission-queue opcode an operation fills in.
// Grounded on the teacher's uring.Ring split of command kinds (there,
// SubmitCtrlCmd/SubmitIOCmd for URING_CMD; here, the generic socket/timeout
// opcodes the client pipeline and cron loop need).
type Kind int

const (
	KindNop Kind = iota
	KindAccept
	KindRecv
	KindSend
	KindWritev
	KindTimeout
	KindMsgRing
)

// Completion is the result of one submitted operation: Res mirrors a CQE's
// res field (negative means -errno; for Accept/Recv/Send it's a byte count
// or new fd), Flags mirrors cqe.flags. Provisioned buffer-ring recv
// (IORING_CQE_F_BUFFER) is deferred — see DESIGN.md — so no Kind currently
// produces a Completion with that flag set; Flags exists for when it is.
type Completion struct {
	Res   int32
	Flags uint32
}

// Err reports the errno a negative Res encodes, or nil.
func (c Completion) Err() error {
	if c.Res >= 0 {
		return nil
	}
	return errnoOf(-c.Res)
}
