package dblk

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// opCounters accumulates per-operation-kind statistics
type opCounters struct {
	Ops            atomic.Uint64 // Completed requests
	Errors         atomic.Uint64 // Requests that settled with an error
	Bytes          atomic.Uint64 // Bytes moved by successful requests
	TotalLatencyNs atomic.Uint64 // Cumulative issue-to-completion latency

	// Latency histogram buckets (cumulative counts)
	// Each bucket[i] contains the count of requests with latency <= LatencyBuckets[i]
	Buckets [numLatencyBuckets]atomic.Uint64
}

func (c *opCounters) record(r int64, elapsed time.Duration) {
	c.Ops.Add(1)
	if r < 0 {
		c.Errors.Add(1)
	} else {
		c.Bytes.Add(uint64(r))
	}

	latencyNs := uint64(elapsed.Nanoseconds())
	c.TotalLatencyNs.Add(latencyNs)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			c.Buckets[i].Add(1)
		}
	}
}

// PerfCounters tracks per-image request latency and throughput, bucketed
// by operation kind. All counters are atomics; Record is safe to call
// from any completion thread.
type PerfCounters struct {
	read      opCounters
	write     opCounters
	discard   opCounters
	flush     opCounters
	writeSame opCounters
	compare   opCounters

	StartTime atomic.Int64 // Counter creation timestamp (UnixNano)
}

// NewPerfCounters creates a new perf-counter sink
func NewPerfCounters() *PerfCounters {
	p := &PerfCounters{}
	p.StartTime.Store(time.Now().UnixNano())
	return p
}

// Record accumulates one settled request into the bucket selected by its
// operation kind. Generic, open and close requests record nothing.
func (p *PerfCounters) Record(op OpType, r int64, elapsed time.Duration) {
	switch op {
	case OpGeneric, OpOpen, OpClose:
		// no latency bucket for lifecycle requests
	case OpRead:
		p.read.record(r, elapsed)
	case OpWrite:
		p.write.record(r, elapsed)
	case OpDiscard:
		p.discard.record(r, elapsed)
	case OpFlush:
		p.flush.record(r, elapsed)
	case OpWriteSame:
		p.writeSame.record(r, elapsed)
	case OpCompareAndWrite:
		p.compare.record(r, elapsed)
	}
}

// OpSnapshot is a point-in-time copy of one operation kind's counters
type OpSnapshot struct {
	Ops            uint64
	Errors         uint64
	Bytes          uint64
	TotalLatencyNs uint64
	AvgLatencyNs   uint64
	LatencyP50Ns   uint64
	LatencyP99Ns   uint64

	// Histogram bucket counts (cumulative)
	Histogram [numLatencyBuckets]uint64
}

// PerfSnapshot is a point-in-time copy of all counters
type PerfSnapshot struct {
	Read            OpSnapshot
	Write           OpSnapshot
	Discard         OpSnapshot
	Flush           OpSnapshot
	WriteSame       OpSnapshot
	CompareAndWrite OpSnapshot

	UptimeNs   uint64
	TotalOps   uint64
	TotalBytes uint64
	ErrorRate  float64 // Percentage of failed requests
}

func (c *opCounters) snapshot() OpSnapshot {
	snap := OpSnapshot{
		Ops:            c.Ops.Load(),
		Errors:         c.Errors.Load(),
		Bytes:          c.Bytes.Load(),
		TotalLatencyNs: c.TotalLatencyNs.Load(),
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.Histogram[i] = c.Buckets[i].Load()
	}
	if snap.Ops > 0 {
		snap.AvgLatencyNs = snap.TotalLatencyNs / snap.Ops
		snap.LatencyP50Ns = c.calculatePercentile(0.50)
		snap.LatencyP99Ns = c.calculatePercentile(0.99)
	}
	return snap
}

// Snapshot creates a point-in-time snapshot of all counters
func (p *PerfCounters) Snapshot() PerfSnapshot {
	snap := PerfSnapshot{
		Read:            p.read.snapshot(),
		Write:           p.write.snapshot(),
		Discard:         p.discard.snapshot(),
		Flush:           p.flush.snapshot(),
		WriteSame:       p.writeSame.snapshot(),
		CompareAndWrite: p.compare.snapshot(),
	}

	snap.UptimeNs = uint64(time.Now().UnixNano() - p.StartTime.Load())

	var totalErrors uint64
	for _, s := range []OpSnapshot{
		snap.Read, snap.Write, snap.Discard,
		snap.Flush, snap.WriteSame, snap.CompareAndWrite,
	} {
		snap.TotalOps += s.Ops
		snap.TotalBytes += s.Bytes
		totalErrors += s.Errors
	}
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (c *opCounters) calculatePercentile(percentile float64) uint64 {
	totalOps := c.Ops.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)
	if targetCount == 0 {
		targetCount = 1
	}

	// Find the bucket containing the target percentile
	for i, upper := range LatencyBuckets {
		bucketCount := c.Buckets[i].Load()
		if bucketCount >= targetCount {
			// Linear interpolation within bucket
			var prevCount, lower uint64
			if i > 0 {
				prevCount = c.Buckets[i-1].Load()
				lower = LatencyBuckets[i-1]
			}
			inBucket := bucketCount - prevCount
			if inBucket == 0 {
				return upper
			}
			frac := float64(targetCount-prevCount) / float64(inBucket)
			if frac > 1 {
				frac = 1
			}
			return lower + uint64(frac*float64(upper-lower))
		}
	}

	// Beyond the last bucket boundary
	return LatencyBuckets[numLatencyBuckets-1]
}
