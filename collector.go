package dblk

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes an image's PerfCounters as Prometheus metrics. The
// cumulative bucket layout of PerfCounters matches Prometheus histogram
// semantics directly, so collection is a lock-free snapshot with no
// double counting.
type Collector struct {
	perf *PerfCounters

	latencyDesc *prometheus.Desc
	opsDesc     *prometheus.Desc
	bytesDesc   *prometheus.Desc
	errorsDesc  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for one image's perf counters
func NewCollector(image string, perf *PerfCounters) *Collector {
	labels := prometheus.Labels{"image": image}
	return &Collector{
		perf: perf,
		latencyDesc: prometheus.NewDesc(
			"dblk_request_latency_seconds",
			"Issue-to-completion latency of settled requests.",
			[]string{"op"}, labels),
		opsDesc: prometheus.NewDesc(
			"dblk_requests_total",
			"Settled requests.",
			[]string{"op"}, labels),
		bytesDesc: prometheus.NewDesc(
			"dblk_request_bytes_total",
			"Bytes moved by successful requests.",
			[]string{"op"}, labels),
		errorsDesc: prometheus.NewDesc(
			"dblk_request_errors_total",
			"Requests settled with an error.",
			[]string{"op"}, labels),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.latencyDesc
	ch <- c.opsDesc
	ch <- c.bytesDesc
	ch <- c.errorsDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.perf.Snapshot()
	kinds := []struct {
		op OpType
		s  OpSnapshot
	}{
		{OpRead, snap.Read},
		{OpWrite, snap.Write},
		{OpDiscard, snap.Discard},
		{OpFlush, snap.Flush},
		{OpWriteSame, snap.WriteSame},
		{OpCompareAndWrite, snap.CompareAndWrite},
	}

	for _, k := range kinds {
		op := k.op.String()
		ch <- prometheus.MustNewConstMetric(c.opsDesc, prometheus.CounterValue, float64(k.s.Ops), op)
		ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.CounterValue, float64(k.s.Bytes), op)
		ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(k.s.Errors), op)

		buckets := make(map[float64]uint64, numLatencyBuckets)
		for i, upper := range LatencyBuckets {
			buckets[float64(upper)/1e9] = k.s.Histogram[i]
		}
		ch <- prometheus.MustNewConstHistogram(
			c.latencyDesc, k.s.Ops, float64(k.s.TotalLatencyNs)/1e9, buckets, op)
	}
}
