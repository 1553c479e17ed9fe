package dblk

import (
	"sync"
	"sync/atomic"
	"time"
)

// CompleteFunc is the caller-supplied notification sink for a Completion.
// It is invoked exactly once, outside any dblk lock, on a work-queue or
// backend goroutine (never on the issuing goroutine's stack). handle is
// the opaque value set via SetHandle, or the *Completion itself if none
// was set. Panics escape to the runtime; dblk does not recover them.
type CompleteFunc func(handle any, arg any)

// completionState tracks settlement progress. Transitions are monotonic:
// Pending -> Callback -> Complete, never skipping Callback.
type completionState int32

const (
	statePending completionState = iota
	stateCallback
	stateComplete
)

// Completion tracks one logical I/O request that fans out into any number
// of concurrent sub-operations against the backend. Sub-operation results
// are aggregated order-independently: positive byte counts sum, the first
// negative result wins. The caller is notified exactly once, after every
// sub-operation has reported.
//
// All methods except the constructor are safe to call from goroutines
// other than the issuer's. Protocol violations (declaring the count
// twice, reporting more results than declared, operating on an unbound
// completion) panic rather than corrupting shared state.
type Completion struct {
	// image holds the owning context, or nil either before Bind or
	// after close/open-failure teardown. Every access loads and checks.
	image atomic.Pointer[ImageContext]

	op        OpType    // set once by Bind
	issueTime time.Time // set once by Bind, from the image clock

	pendingCount atomic.Int32 // sub-operations not yet reported
	rval         atomic.Int64 // accumulated byte count, or final error
	errRval      atomic.Int64 // first-error latch; 0 = no error

	state atomic.Int32
	mu    sync.Mutex
	cond  *sync.Cond

	callback    CompleteFunc
	callbackArg any
	handle      any

	eventNotify atomic.Bool

	// assemble scatters read sub-operation payloads back into the
	// caller's buffer. Run from finalize only when every sub-operation
	// of a read succeeded.
	assemble func()

	asyncOp AsyncOp
}

// NewCompletion creates a completion in the Pending state. cb and arg may
// be nil for callers that only use WaitForComplete.
func NewCompletion(cb CompleteFunc, arg any) *Completion {
	c := &Completion{
		callback:    cb,
		callbackArg: arg,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SetHandle sets the opaque handle passed to the callback in place of the
// *Completion. Must be set before any sub-operation can finish.
func (c *Completion) SetHandle(h any) {
	c.handle = h
}

// SetEventNotify controls whether this completion is published on the
// image's event channel when it settles. Off by default.
func (c *Completion) SetEventNotify(enabled bool) {
	c.eventNotify.Store(enabled)
}

// Bind associates the completion with its owning image context and
// operation kind, and captures the issue timestamp. Only the first call
// has effect; repeated binding by nested helpers is a silent no-op.
// Bind must precede every other lifecycle method.
func (c *Completion) Bind(img *ImageContext, op OpType) {
	if img == nil {
		panic("dblk: Bind with nil image context")
	}
	if !c.image.CompareAndSwap(nil, img) {
		return
	}
	c.op = op
	c.issueTime = img.clock.Now()
}

// StartOp registers the request with the image's in-flight registry so
// that Drain can account for it. Open and close requests are not
// tracked. Calling StartOp twice without an intervening completion is a
// protocol violation and panics.
func (c *Completion) StartOp() {
	img := c.image.Load()
	if img == nil {
		panic("dblk: StartOp on unbound completion")
	}
	if !c.op.tracked() {
		return
	}
	c.asyncOp.Start(img)
}

// SetRequestCount declares how many sub-operations will report in. It
// must be called exactly once per completion, after Bind. A count of
// zero is accounted as one and the finishing sequence is deferred to the
// image work queue, so the callback never runs synchronously inside the
// issuer's call stack. Never blocks.
func (c *Completion) SetRequestCount(count uint32) {
	img := c.image.Load()
	if img == nil {
		panic("dblk: SetRequestCount on unbound completion")
	}

	n := int32(count)
	if count == 0 {
		n = 1
	}
	if prev := c.pendingCount.Swap(n); prev != 0 {
		panic("dblk: request count already set")
	}

	img.logger.Debug("request count set", "op", c.op.String(), "pending", count)
	if count == 0 {
		// ensure completion fires in a clean lock context
		img.queueWork(func() { c.CompleteRequest(0) })
	}
}

// CompleteRequest reports one sub-operation result. Callable concurrently
// from any number of backend goroutines, once per declared sub-operation.
// A positive r adds to the byte count; a negative r other than
// ResultExists latches as the request error if none is latched yet. The
// decrement that observes zero outstanding sub-operations, and only that
// one, runs the finishing sequence.
func (c *Completion) CompleteRequest(r int64) {
	prev := c.pendingCount.Add(-1) + 1
	if prev <= 0 {
		panic("dblk: more sub-operation results reported than declared")
	}

	if r > 0 {
		c.rval.Add(r)
	} else if r != ResultExists {
		// might race w/ another goroutine setting an error code but
		// first one wins
		c.errRval.CompareAndSwap(0, r)
	}

	if prev == 1 {
		c.finalize()
		c.complete()
	}
}

// Fail settles a request that could not issue any sub-operation. The
// sub-operation accounting must be untouched (pending count zero).
// finalize is skipped; there is nothing to aggregate.
func (c *Completion) Fail(r int64) {
	img := c.image.Load()
	if img == nil {
		panic("dblk: Fail on unbound completion")
	}
	if r >= 0 {
		panic("dblk: Fail requires a negative result")
	}
	if c.pendingCount.Load() != 0 {
		panic("dblk: Fail with sub-operations outstanding")
	}

	img.logger.WithError(ResultToErr(c.op.String(), r)).Error("request failed before dispatch")
	c.rval.Store(r)
	c.complete()
}

// finalize resolves the aggregate outcome. Runs exactly once, on the
// goroutine that observed the last sub-operation, immediately before
// complete. A latched error overrides any byte count accumulated from
// the sub-operations that did succeed.
func (c *Completion) finalize() {
	if err := c.errRval.Load(); err < 0 {
		c.rval.Store(err)
	}
	if c.rval.Load() >= 0 && c.op == OpRead && c.assemble != nil {
		c.assemble()
	}
}

// complete runs the settlement sequence. The step order is load-bearing:
// latency is recorded against the still-live image; close (and failed
// open) tears the image down before the callback so user code never sees
// a half-destroyed context; waiters are released only after the terminal
// state is visible; the in-flight registry is notified last because its
// bookkeeping lives in the token and survives the image.
func (c *Completion) complete() {
	img := c.image.Load()
	if img == nil {
		panic("dblk: complete on unbound completion")
	}

	r := c.rval.Load()
	if img.perf != nil {
		img.perf.Record(c.op, r, img.clock.Since(c.issueTime))
	}

	if c.op == OpClose || (c.op == OpOpen && r < 0) {
		// must destroy the image context prior to invoking the callback
		img.destroy()
		c.image.Store(nil)
	}

	c.state.Store(int32(stateCallback))
	if c.callback != nil {
		handle := c.handle
		if handle == nil {
			handle = c
		}
		c.callback(handle, c.callbackArg)
	}

	if img := c.image.Load(); img != nil && c.eventNotify.Load() && img.events.Active() {
		img.enqueueCompleted(c)
		img.events.Notify()
	}

	c.mu.Lock()
	c.state.Store(int32(stateComplete))
	c.cond.Broadcast()
	c.mu.Unlock()

	// note: possible for the image to be closed after the op is marked
	// finished
	if c.asyncOp.Started() {
		c.asyncOp.Finish()
	}
}

// WaitForComplete blocks until the completion reaches its terminal state.
// Any number of goroutines may wait; all are released together. Waiting
// signals settlement only, not success: read ReturnValue afterwards for
// the outcome. There is no timeout; callers needing a bounded wait must
// layer their own.
func (c *Completion) WaitForComplete() {
	c.mu.Lock()
	for completionState(c.state.Load()) != stateComplete {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// IsComplete reports whether settlement has begun. It turns true on entry
// to the callback phase, before the callback has necessarily returned;
// only WaitForComplete orders against the terminal state.
func (c *Completion) IsComplete() bool {
	return completionState(c.state.Load()) != statePending
}

// ReturnValue returns the current aggregated result: the summed byte
// count on success or the negative first error. Meaningful only after
// completion has been observed; a concurrent read during aggregation
// yields an unspecified intermediate value.
func (c *Completion) ReturnValue() int64 {
	return c.rval.Load()
}

// Err maps the final result to an error, nil on success. Subject to the
// same ordering caveat as ReturnValue.
func (c *Completion) Err() error {
	return ResultToErr(c.op.String(), c.rval.Load())
}
