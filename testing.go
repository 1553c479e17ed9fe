package dblk

import "sync"

// MockTransport provides a mock implementation of Transport for testing.
// By default every sub-operation completes asynchronously with its byte
// length; Result overrides that per sub-op, and Manual mode hands
// completion control to the test entirely.
type MockTransport struct {
	// Result computes the reported result for a sub-op. Nil means
	// success with sub.Length.
	Result func(sub *SubOp) int64

	// Manual suppresses automatic completion; the test calls
	// comp.CompleteRequest itself for each dispatched sub-op.
	Manual bool

	mu         sync.Mutex
	dispatched []Dispatched
	wg         sync.WaitGroup
}

// Dispatched records one Dispatch call
type Dispatched struct {
	Sub  *SubOp
	Comp *Completion
}

// Dispatch implements the Transport interface
func (m *MockTransport) Dispatch(sub *SubOp, comp *Completion) {
	m.mu.Lock()
	m.dispatched = append(m.dispatched, Dispatched{Sub: sub, Comp: comp})
	m.mu.Unlock()

	if m.Manual {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r := sub.Length
		if m.Result != nil {
			r = m.Result(sub)
		}
		comp.CompleteRequest(r)
	}()
}

// DispatchCount returns the number of Dispatch calls so far
func (m *MockTransport) DispatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dispatched)
}

// DispatchedSubOps returns a copy of everything dispatched so far
func (m *MockTransport) DispatchedSubOps() []Dispatched {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Dispatched, len(m.dispatched))
	copy(out, m.dispatched)
	return out
}

// Wait blocks until all automatic completions have reported
func (m *MockTransport) Wait() {
	m.wg.Wait()
}
