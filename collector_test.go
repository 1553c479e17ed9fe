package dblk

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sys/unix"
)

func gatherFamilies(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func findMetric(family *dto.MetricFamily, op string) *dto.Metric {
	for _, m := range family.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "op" && l.GetValue() == op {
				return m
			}
		}
	}
	return nil
}

func TestCollectorCounters(t *testing.T) {
	perf := NewPerfCounters()
	perf.Record(OpRead, 4096, time.Millisecond)
	perf.Record(OpRead, 4096, time.Millisecond)
	perf.Record(OpWrite, ErrnoResult(unix.EIO), time.Millisecond)

	families := gatherFamilies(t, NewCollector("img0", perf))

	ops := families["dblk_requests_total"]
	if ops == nil {
		t.Fatal("dblk_requests_total not gathered")
	}
	if m := findMetric(ops, "read"); m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("Expected 2 read requests, got %v", m.GetCounter().GetValue())
	}
	if m := findMetric(ops, "write"); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("Expected 1 write request, got %v", m.GetCounter().GetValue())
	}

	bytes := families["dblk_request_bytes_total"]
	if m := findMetric(bytes, "read"); m == nil || m.GetCounter().GetValue() != 8192 {
		t.Errorf("Expected 8192 read bytes, got %v", m.GetCounter().GetValue())
	}
	if m := findMetric(bytes, "write"); m == nil || m.GetCounter().GetValue() != 0 {
		t.Errorf("Expected 0 write bytes, got %v", m.GetCounter().GetValue())
	}

	errs := families["dblk_request_errors_total"]
	if m := findMetric(errs, "write"); m == nil || m.GetCounter().GetValue() != 1 {
		t.Errorf("Expected 1 write error, got %v", m.GetCounter().GetValue())
	}
}

func TestCollectorHistogram(t *testing.T) {
	perf := NewPerfCounters()
	perf.Record(OpWrite, 512, 500*time.Microsecond)
	perf.Record(OpWrite, 512, 5*time.Millisecond)

	families := gatherFamilies(t, NewCollector("img0", perf))

	latency := families["dblk_request_latency_seconds"]
	if latency == nil {
		t.Fatal("dblk_request_latency_seconds not gathered")
	}
	m := findMetric(latency, "write")
	if m == nil {
		t.Fatal("No write latency histogram")
	}
	h := m.GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("Expected sample count 2, got %d", h.GetSampleCount())
	}
	wantSum := 0.0005 + 0.005
	if got := h.GetSampleSum(); got < wantSum-1e-9 || got > wantSum+1e-9 {
		t.Errorf("Expected sample sum %v, got %v", wantSum, got)
	}

	// Cumulative buckets: the 1ms bound holds one sample, 10ms holds both
	counts := make(map[float64]uint64)
	for _, b := range h.GetBucket() {
		counts[b.GetUpperBound()] = b.GetCumulativeCount()
	}
	if counts[0.001] != 1 {
		t.Errorf("Expected 1 sample under 1ms, got %d", counts[0.001])
	}
	if counts[0.01] != 2 {
		t.Errorf("Expected 2 samples under 10ms, got %d", counts[0.01])
	}
}

func TestCollectorImageLabel(t *testing.T) {
	perf := NewPerfCounters()
	perf.Record(OpRead, 1, time.Microsecond)

	families := gatherFamilies(t, NewCollector("vol-a", perf))

	m := findMetric(families["dblk_requests_total"], "read")
	if m == nil {
		t.Fatal("No read counter")
	}
	var image string
	for _, l := range m.GetLabel() {
		if l.GetName() == "image" {
			image = l.GetValue()
		}
	}
	if image != "vol-a" {
		t.Errorf("Expected image label vol-a, got %q", image)
	}
}

func TestCollectorTwoImagesOneRegistry(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	perfA := NewPerfCounters()
	perfB := NewPerfCounters()
	if err := reg.Register(NewCollector("vol-a", perfA)); err != nil {
		t.Fatalf("Register vol-a failed: %v", err)
	}
	if err := reg.Register(NewCollector("vol-b", perfB)); err != nil {
		t.Fatalf("Register vol-b failed: %v", err)
	}

	perfA.Record(OpRead, 100, time.Microsecond)
	perfB.Record(OpRead, 200, time.Microsecond)

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
}
