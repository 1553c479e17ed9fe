package dblk

import "github.com/behrlich/go-dblk/internal/constants"

// Re-export constants for public API
const (
	DefaultObjectSize       = constants.DefaultObjectSize
	DefaultMaxIOSize        = constants.DefaultMaxIOSize
	DefaultWorkQueueWorkers = constants.DefaultWorkQueueWorkers
	DefaultWorkQueueBacklog = constants.DefaultWorkQueueBacklog
	DefaultEventBacklog     = constants.DefaultEventBacklog
)
