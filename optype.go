package dblk

// OpType identifies the logical request kind carried by a Completion.
// It drives latency-bucket selection and read-result assembly.
type OpType int

const (
	OpGeneric OpType = iota
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpDiscard
	OpFlush
	OpWriteSame
	OpCompareAndWrite
)

// String returns the lowercase operation name used in logs and metrics
func (t OpType) String() string {
	switch t {
	case OpGeneric:
		return "generic"
	case OpOpen:
		return "open"
	case OpClose:
		return "close"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpDiscard:
		return "discard"
	case OpFlush:
		return "flush"
	case OpWriteSame:
		return "writesame"
	case OpCompareAndWrite:
		return "compare_and_write"
	default:
		return "unknown"
	}
}

// tracked reports whether requests of this kind participate in the
// image's in-flight accounting. Open and close run outside the drain
// window; tracking them would deadlock quiesce against image teardown.
func (t OpType) tracked() bool {
	return t != OpOpen && t != OpClose
}
