package dblk

import "sync"

// InFlightRegistry counts requests between StartOp and settlement so an
// image can quiesce before closing. Tokens hold the registry directly;
// a token's Finish stays valid even after the image context is gone.
type InFlightRegistry struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int64
}

func newInFlightRegistry() *InFlightRegistry {
	r := &InFlightRegistry{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *InFlightRegistry) begin() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

func (r *InFlightRegistry) finish() {
	r.mu.Lock()
	r.count--
	if r.count < 0 {
		r.mu.Unlock()
		panic("dblk: in-flight registry underflow")
	}
	if r.count == 0 {
		r.cond.Broadcast()
	}
	r.mu.Unlock()
}

// InFlight returns the number of tracked requests currently outstanding
func (r *InFlightRegistry) InFlight() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Drain blocks until no tracked requests remain outstanding
func (r *InFlightRegistry) Drain() {
	r.mu.Lock()
	for r.count > 0 {
		r.cond.Wait()
	}
	r.mu.Unlock()
}

// AsyncOp is the per-request tracking token. Its zero value is an
// unstarted op. Start and Finish are called at most once each, Start by
// the issuer and Finish by whichever goroutine settles the completion;
// the completion's own ordering serializes them.
type AsyncOp struct {
	registry *InFlightRegistry
	finished bool
}

// Start registers the op with the image's registry. Starting twice is a
// protocol violation and panics.
func (a *AsyncOp) Start(img *ImageContext) {
	if a.registry != nil {
		panic("dblk: async op already started")
	}
	a.registry = img.inflight
	a.registry.begin()
}

// Started reports whether Start has run
func (a *AsyncOp) Started() bool {
	return a.registry != nil
}

// Finish marks the op done. Safe to call after the image context has
// been destroyed; the registry is owned by this token, not the image.
func (a *AsyncOp) Finish() {
	if a.registry == nil {
		panic("dblk: finishing an async op that never started")
	}
	if a.finished {
		panic("dblk: async op finished twice")
	}
	a.finished = true
	a.registry.finish()
}
