package dblk

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/behrlich/go-dblk/internal/constants"
	"github.com/behrlich/go-dblk/internal/logging"
	"github.com/behrlich/go-dblk/internal/workqueue"
)

// ImageConfig describes an image session to open
type ImageConfig struct {
	// Name is the image name, used in logs and metrics
	Name string

	// Size is the image size in bytes
	Size int64

	// ObjectSize is the stripe unit; requests split into sub-operations
	// at object boundaries (default: DefaultObjectSize)
	ObjectSize int64

	// MaxIOSize caps a single request (default: DefaultMaxIOSize)
	MaxIOSize int64

	// Transport performs the actual sub-operations
	Transport Transport

	// Workers sizes the deferred-work queue (default: DefaultWorkQueueWorkers)
	Workers int

	// Perf receives latency counters; created internally if nil
	Perf *PerfCounters

	// Clock supplies issue/completion timestamps; real clock if nil.
	// Tests inject a mock to make latency assertions deterministic.
	Clock clock.Clock

	// Logger for image-scoped logging (default: logging.Default)
	Logger *logging.Logger
}

// ImageContext is the owning context of a block-storage image session.
// It supplies the collaborators every Completion relies on: the deferred
// work queue, the perf-counter sink, the event side channel, and the
// in-flight registry used for drain.
type ImageContext struct {
	// Name is the image name from the config
	Name string

	// ID is a unique session identifier
	ID string

	size       int64
	objectSize int64
	maxIOSize  int64

	transport Transport
	workQueue *workqueue.Queue
	perf      *PerfCounters
	clock     clock.Clock
	events    *EventChannel
	inflight  *InFlightRegistry
	logger    *logging.Logger

	// completed holds settled event-notify completions until a consumer
	// drains them via PollCompletions
	completedMu sync.Mutex
	completed   []*Completion

	destroyed atomic.Bool
}

func newImageContext(cfg ImageConfig) *ImageContext {
	if cfg.ObjectSize <= 0 {
		cfg.ObjectSize = constants.DefaultObjectSize
	}
	if cfg.MaxIOSize <= 0 {
		cfg.MaxIOSize = constants.DefaultMaxIOSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Perf == nil {
		cfg.Perf = NewPerfCounters()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	id := uuid.NewString()
	logger := cfg.Logger.WithImage(cfg.Name).WithSession(id)

	return &ImageContext{
		Name:       cfg.Name,
		ID:         id,
		size:       cfg.Size,
		objectSize: cfg.ObjectSize,
		maxIOSize:  cfg.MaxIOSize,
		transport:  cfg.Transport,
		workQueue:  workqueue.New(workqueue.Config{Workers: cfg.Workers, Logger: logger}),
		perf:       cfg.Perf,
		clock:      cfg.Clock,
		events:     newEventChannel(),
		inflight:   newInFlightRegistry(),
		logger:     logger,
	}
}

// AioOpen opens an image session asynchronously. The returned context is
// usable only after comp settles with a non-negative result; on failure
// the context is destroyed before the callback observes the completion.
func AioOpen(cfg ImageConfig, comp *Completion) *ImageContext {
	img := newImageContext(cfg)
	comp.Bind(img, OpOpen)
	comp.SetRequestCount(1)
	img.queueWork(func() {
		comp.CompleteRequest(img.validateOpen(cfg))
	})
	return img
}

// OpenImage opens an image session and blocks until the open settles
func OpenImage(cfg ImageConfig) (*ImageContext, error) {
	comp := NewCompletion(nil, nil)
	img := AioOpen(cfg, comp)
	comp.WaitForComplete()
	if r := comp.ReturnValue(); r < 0 {
		return nil, ResultToErr("open", r)
	}
	return img, nil
}

func (img *ImageContext) validateOpen(cfg ImageConfig) int64 {
	if cfg.Transport == nil {
		img.logger.Error("open rejected: no transport")
		return ErrnoResult(unix.EINVAL)
	}
	if cfg.Size <= 0 {
		img.logger.Error("open rejected: non-positive size", "size", cfg.Size)
		return ErrnoResult(unix.EINVAL)
	}
	img.logger.Info("image opened", "size", img.size, "object_size", img.objectSize)
	return 0
}

// AioClose closes the session asynchronously: tracked requests drain
// first, then the context is destroyed before comp's callback runs. The
// drain runs on its own goroutine rather than the work queue so that
// deferred completions queued behind it can still make progress.
func (img *ImageContext) AioClose(comp *Completion) {
	comp.Bind(img, OpClose)
	comp.SetRequestCount(1)
	go func() {
		img.inflight.Drain()
		comp.CompleteRequest(0)
	}()
}

// Close closes the session and blocks until teardown finishes
func (img *ImageContext) Close() error {
	comp := NewCompletion(nil, nil)
	img.AioClose(comp)
	comp.WaitForComplete()
	return ResultToErr("close", comp.ReturnValue())
}

// destroy tears the context down. Called exactly once, from the
// completion of a close request or a failed open, always before that
// completion's user callback. May run on a work-queue goroutine, so the
// queue drains on a separate goroutine.
func (img *ImageContext) destroy() {
	if !img.destroyed.CompareAndSwap(false, true) {
		return
	}
	img.events.Deactivate()
	go img.workQueue.Shutdown()
	img.logger.Info("image context destroyed")
}

// Destroyed reports whether teardown has run
func (img *ImageContext) Destroyed() bool {
	return img.destroyed.Load()
}

// queueWork defers fn to the work queue. During teardown the queue may
// already be closed; the run-off-the-caller's-stack guarantee is kept by
// falling back to a fresh goroutine.
func (img *ImageContext) queueWork(fn func()) {
	if err := img.workQueue.Submit(fn); err != nil {
		go fn()
	}
}

// Size returns the image size in bytes
func (img *ImageContext) Size() int64 {
	return img.size
}

// ObjectSize returns the stripe unit in bytes
func (img *ImageContext) ObjectSize() int64 {
	return img.objectSize
}

// Events returns the completion side channel
func (img *ImageContext) Events() *EventChannel {
	return img.events
}

// Perf returns the image's perf-counter sink
func (img *ImageContext) Perf() *PerfCounters {
	return img.perf
}

// InFlight returns the number of tracked requests outstanding
func (img *ImageContext) InFlight() int64 {
	return img.inflight.InFlight()
}

// Drain blocks until all tracked requests have settled
func (img *ImageContext) Drain() {
	img.inflight.Drain()
}

func (img *ImageContext) enqueueCompleted(c *Completion) {
	img.completedMu.Lock()
	img.completed = append(img.completed, c)
	img.completedMu.Unlock()
}

// PollCompletions removes and returns up to max settled event-notify
// completions, in settlement order. max <= 0 drains everything.
func (img *ImageContext) PollCompletions(max int) []*Completion {
	img.completedMu.Lock()
	defer img.completedMu.Unlock()

	n := len(img.completed)
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]*Completion, n)
	copy(out, img.completed)
	img.completed = append(img.completed[:0], img.completed[n:]...)
	return out
}

// validExtent checks a request range, returning 0 or a negative errno
func (img *ImageContext) validExtent(off, length int64) int64 {
	if img.destroyed.Load() {
		return ErrnoResult(unix.ESHUTDOWN)
	}
	if off < 0 || length < 0 {
		return ErrnoResult(unix.EINVAL)
	}
	if length > img.maxIOSize {
		return ErrnoResult(unix.E2BIG)
	}
	if off+length > img.size {
		return ErrnoResult(unix.ERANGE)
	}
	return 0
}
