package constants

// Default configuration constants
const (
	// DefaultObjectSize is the default backing object size in bytes (4MB).
	// Requests are striped into sub-operations at object boundaries.
	DefaultObjectSize = 4 << 20

	// DefaultMaxIOSize is the default maximum size of a single request (64MB)
	DefaultMaxIOSize = 64 << 20

	// DefaultWorkQueueWorkers is the default number of deferred-work goroutines
	DefaultWorkQueueWorkers = 4

	// DefaultWorkQueueBacklog is the default buffered backlog of the work queue
	DefaultWorkQueueBacklog = 1024

	// DefaultEventBacklog is the buffered depth of the event wake channel.
	// Wakes beyond this are coalesced; consumers drain the completed list
	// until empty, so coalescing loses nothing.
	DefaultEventBacklog = 1
)
