package dblk

// SubOp is one constituent backend operation of a logical request.
// Exactly one result is reported per SubOp, via the completion it was
// dispatched with.
type SubOp struct {
	Op     OpType
	Object uint64 // backing object number
	Offset int64  // byte offset within the object
	Length int64  // byte length

	// Data is the write payload, or the staging buffer a read fills.
	// Read staging buffers are scattered back into the caller's buffer
	// during result assembly.
	Data []byte

	// Compare holds the expected bytes for compare-and-write
	Compare []byte

	// Pattern and PatternOff describe the repeating fill for write-same.
	// PatternOff is the phase of the pattern at this sub-op's first byte,
	// needed when an extent boundary splits the pattern.
	Pattern    []byte
	PatternOff int64
}

// Transport performs sub-operations against the backend. Dispatch must
// not block on I/O: it queues the sub-operation and returns, and the
// backend later reports the signed result exactly once via
// comp.CompleteRequest from one of its own goroutines. A positive result
// is the byte count moved, zero is success without payload, and a
// negative result is -errno. Retry policy, if any, belongs below this
// interface; dblk aggregates whatever is reported.
type Transport interface {
	Dispatch(sub *SubOp, comp *Completion)
}
