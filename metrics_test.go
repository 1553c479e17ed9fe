package dblk

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestPerfCounters(t *testing.T) {
	p := NewPerfCounters()

	snap := p.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 initial ops, got %d", snap.TotalOps)
	}

	p.Record(OpRead, 1024, time.Millisecond)
	p.Record(OpWrite, 2048, 2*time.Millisecond)
	p.Record(OpRead, ErrnoResult(unix.EIO), 500*time.Microsecond)

	snap = p.Snapshot()

	if snap.Read.Ops != 2 {
		t.Errorf("Expected 2 read ops, got %d", snap.Read.Ops)
	}
	if snap.Write.Ops != 1 {
		t.Errorf("Expected 1 write op, got %d", snap.Write.Ops)
	}

	// Only successful requests count bytes
	if snap.Read.Bytes != 1024 {
		t.Errorf("Expected 1024 read bytes, got %d", snap.Read.Bytes)
	}
	if snap.Write.Bytes != 2048 {
		t.Errorf("Expected 2048 write bytes, got %d", snap.Write.Bytes)
	}

	if snap.Read.Errors != 1 {
		t.Errorf("Expected 1 read error, got %d", snap.Read.Errors)
	}
	if snap.Write.Errors != 0 {
		t.Errorf("Expected 0 write errors, got %d", snap.Write.Errors)
	}

	expectedErrorRate := float64(1) / float64(3) * 100.0
	if snap.ErrorRate < expectedErrorRate-0.1 || snap.ErrorRate > expectedErrorRate+0.1 {
		t.Errorf("Expected error rate ~%.1f%%, got %.1f%%", expectedErrorRate, snap.ErrorRate)
	}
}

func TestPerfCountersLifecycleOpsRecordNothing(t *testing.T) {
	p := NewPerfCounters()

	p.Record(OpGeneric, 100, time.Millisecond)
	p.Record(OpOpen, 0, time.Millisecond)
	p.Record(OpClose, 0, time.Millisecond)
	p.Record(OpOpen, ErrnoResult(unix.EINVAL), time.Millisecond)

	snap := p.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected lifecycle requests to record nothing, got %d ops", snap.TotalOps)
	}
}

func TestPerfCountersAllDataBuckets(t *testing.T) {
	p := NewPerfCounters()

	p.Record(OpRead, 1, time.Microsecond)
	p.Record(OpWrite, 1, time.Microsecond)
	p.Record(OpDiscard, 1, time.Microsecond)
	p.Record(OpFlush, 0, time.Microsecond)
	p.Record(OpWriteSame, 1, time.Microsecond)
	p.Record(OpCompareAndWrite, 1, time.Microsecond)

	snap := p.Snapshot()
	for name, s := range map[string]OpSnapshot{
		"read":              snap.Read,
		"write":             snap.Write,
		"discard":           snap.Discard,
		"flush":             snap.Flush,
		"writesame":         snap.WriteSame,
		"compare_and_write": snap.CompareAndWrite,
	} {
		if s.Ops != 1 {
			t.Errorf("Expected 1 op in %s bucket, got %d", name, s.Ops)
		}
	}
	if snap.TotalOps != 6 {
		t.Errorf("Expected 6 total ops, got %d", snap.TotalOps)
	}
}

func TestPerfCountersLatencyHistogram(t *testing.T) {
	p := NewPerfCounters()

	// 100 requests at 0.5ms, 100 at 5ms
	for i := 0; i < 100; i++ {
		p.Record(OpWrite, 4096, 500*time.Microsecond)
	}
	for i := 0; i < 100; i++ {
		p.Record(OpWrite, 4096, 5*time.Millisecond)
	}

	snap := p.Snapshot()
	if snap.Write.Ops != 200 {
		t.Fatalf("Expected 200 ops, got %d", snap.Write.Ops)
	}

	expectedAvg := uint64((500*time.Microsecond + 5*time.Millisecond) / 2)
	if snap.Write.AvgLatencyNs != expectedAvg {
		t.Errorf("Expected avg latency %d ns, got %d", expectedAvg, snap.Write.AvgLatencyNs)
	}

	// Cumulative buckets: <=1ms holds 100, <=10ms holds all 200
	if got := snap.Write.Histogram[3]; got != 100 {
		t.Errorf("Expected 100 ops in <=1ms bucket, got %d", got)
	}
	if got := snap.Write.Histogram[4]; got != 200 {
		t.Errorf("Expected 200 ops in <=10ms bucket, got %d", got)
	}

	// P50 lands in the <=1ms bucket, P99 in the <=10ms bucket
	if snap.Write.LatencyP50Ns > LatencyBuckets[3] {
		t.Errorf("P50 %d ns above 1ms bucket", snap.Write.LatencyP50Ns)
	}
	if snap.Write.LatencyP99Ns <= LatencyBuckets[3] || snap.Write.LatencyP99Ns > LatencyBuckets[4] {
		t.Errorf("P99 %d ns outside (1ms, 10ms]", snap.Write.LatencyP99Ns)
	}
}

func TestPerfCountersConcurrentRecord(t *testing.T) {
	p := NewPerfCounters()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 1000; i++ {
				p.Record(OpRead, 512, time.Microsecond)
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	snap := p.Snapshot()
	if snap.Read.Ops != 8000 {
		t.Errorf("Expected 8000 ops, got %d", snap.Read.Ops)
	}
	if snap.Read.Bytes != 8000*512 {
		t.Errorf("Expected %d bytes, got %d", 8000*512, snap.Read.Bytes)
	}
}
