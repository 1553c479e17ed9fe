// Package backend provides standard dblk transport implementations
package backend

import (
	"bytes"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	dblk "github.com/behrlich/go-dblk"
)

// Memory is a RAM-backed object store implementing dblk.Transport. Each
// sub-operation executes on its own goroutine, so completions for a
// fanned-out request arrive concurrently, the way a real distributed
// backend delivers them. Objects are allocated lazily; unwritten ranges
// read as zeros.
type Memory struct {
	objectSize int64

	mu      sync.RWMutex
	objects map[uint64][]byte

	// fault injection for tests
	faultMu sync.Mutex
	faults  map[dblk.OpType]syscall.Errno
	delay   time.Duration

	inflight sync.WaitGroup
}

// NewMemory creates a memory transport with the given object size
func NewMemory(objectSize int64) *Memory {
	return &Memory{
		objectSize: objectSize,
		objects:    make(map[uint64][]byte),
		faults:     make(map[dblk.OpType]syscall.Errno),
	}
}

// Dispatch implements the dblk.Transport interface
func (m *Memory) Dispatch(sub *dblk.SubOp, comp *dblk.Completion) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		comp.CompleteRequest(m.exec(sub))
	}()
}

// SetFault makes every subsequent sub-operation of the given kind fail
// with -errno. A zero errno clears the fault.
func (m *Memory) SetFault(op dblk.OpType, errno syscall.Errno) {
	m.faultMu.Lock()
	if errno == 0 {
		delete(m.faults, op)
	} else {
		m.faults[op] = errno
	}
	m.faultMu.Unlock()
}

// SetDelay inserts an artificial latency before each sub-operation
func (m *Memory) SetDelay(d time.Duration) {
	m.faultMu.Lock()
	m.delay = d
	m.faultMu.Unlock()
}

// Wait blocks until all dispatched sub-operations have reported
func (m *Memory) Wait() {
	m.inflight.Wait()
}

func (m *Memory) exec(sub *dblk.SubOp) int64 {
	m.faultMu.Lock()
	errno, faulted := m.faults[sub.Op]
	delay := m.delay
	m.faultMu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if faulted {
		return dblk.ErrnoResult(errno)
	}

	switch sub.Op {
	case dblk.OpRead:
		return m.execRead(sub)
	case dblk.OpWrite:
		return m.execWrite(sub)
	case dblk.OpDiscard:
		return m.execDiscard(sub)
	case dblk.OpFlush:
		// RAM is as stable as this store gets
		return 0
	case dblk.OpWriteSame:
		return m.execWriteSame(sub)
	case dblk.OpCompareAndWrite:
		return m.execCompareAndWrite(sub)
	default:
		return dblk.ErrnoResult(unix.EOPNOTSUPP)
	}
}

func (m *Memory) execRead(sub *dblk.SubOp) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[sub.Object]
	if !ok {
		// unallocated object reads as zeros
		for i := range sub.Data {
			sub.Data[i] = 0
		}
		return sub.Length
	}
	copy(sub.Data, obj[sub.Offset:sub.Offset+sub.Length])
	return sub.Length
}

func (m *Memory) execWrite(sub *dblk.SubOp) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(sub.Object)
	copy(obj[sub.Offset:], sub.Data)
	return sub.Length
}

func (m *Memory) execDiscard(sub *dblk.SubOp) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub.Offset == 0 && sub.Length == m.objectSize {
		delete(m.objects, sub.Object)
		return sub.Length
	}
	if obj, ok := m.objects[sub.Object]; ok {
		zero := obj[sub.Offset : sub.Offset+sub.Length]
		for i := range zero {
			zero[i] = 0
		}
	}
	return sub.Length
}

func (m *Memory) execWriteSame(sub *dblk.SubOp) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(sub.Object)
	phase := sub.PatternOff
	n := int64(len(sub.Pattern))
	for i := int64(0); i < sub.Length; i++ {
		obj[sub.Offset+i] = sub.Pattern[(phase+i)%n]
	}
	return sub.Length
}

func (m *Memory) execCompareAndWrite(sub *dblk.SubOp) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(sub.Object)
	if !bytes.Equal(obj[sub.Offset:sub.Offset+sub.Length], sub.Compare) {
		return dblk.ErrnoResult(unix.EILSEQ)
	}
	copy(obj[sub.Offset:], sub.Data)
	return sub.Length
}

// object returns the backing slice for an object, allocating it if
// needed. Caller holds mu.
func (m *Memory) object(num uint64) []byte {
	obj, ok := m.objects[num]
	if !ok {
		obj = make([]byte, m.objectSize)
		m.objects[num] = obj
	}
	return obj
}
