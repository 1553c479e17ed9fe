package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dblk "github.com/behrlich/go-dblk"
	"github.com/behrlich/go-dblk/backend"
	"github.com/behrlich/go-dblk/internal/logging"
)

func main() {
	var (
		sizeStr    = flag.String("size", "256M", "Image size (e.g., 64M, 1G)")
		objSizeStr = flag.String("object-size", "4M", "Object size (stripe unit)")
		blockStr   = flag.String("block", "64K", "Request size per I/O")
		depth      = flag.Int("depth", 16, "Concurrent requests in flight")
		duration   = flag.Duration("duration", 10*time.Second, "How long to run")
		readPct    = flag.Int("read", 70, "Percentage of reads in the mix (0-100)")
		delay      = flag.Duration("delay", 0, "Artificial per-sub-operation backend latency")
		metricsOn  = flag.String("metrics", "", "Serve Prometheus metrics on this address (e.g., :9090)")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	size, err := parseSize(*sizeStr)
	if err != nil {
		log.Fatalf("Invalid size '%s': %v", *sizeStr, err)
	}
	objSize, err := parseSize(*objSizeStr)
	if err != nil {
		log.Fatalf("Invalid object size '%s': %v", *objSizeStr, err)
	}
	block, err := parseSize(*blockStr)
	if err != nil {
		log.Fatalf("Invalid block size '%s': %v", *blockStr, err)
	}
	if block > size {
		log.Fatalf("Block size %s exceeds image size %s", *blockStr, *sizeStr)
	}
	if *readPct < 0 || *readPct > 100 {
		log.Fatalf("Read percentage must be 0-100, got %d", *readPct)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	mem := backend.NewMemory(objSize)
	if *delay > 0 {
		mem.SetDelay(*delay)
	}

	logger.Info("opening image",
		"size", formatSize(size),
		"object_size", formatSize(objSize),
		"block", formatSize(block),
		"depth", *depth)

	img, err := dblk.OpenImage(dblk.ImageConfig{
		Name:       "bench",
		Size:       size,
		ObjectSize: objSize,
		Transport:  mem,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to open image", "error", err)
		os.Exit(1)
	}

	if *metricsOn != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(dblk.NewCollector(img.Name, img.Perf()))
		go func() {
			logger.Info("serving metrics", "addr", *metricsOn)
			if err := http.ListenAndServe(*metricsOn, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	fmt.Printf("Image: %s (%s objects), %d writers, %s requests, %d%% reads\n",
		formatSize(size), formatSize(objSize), *depth, formatSize(block), *readPct)
	fmt.Printf("Running for %v (Ctrl+C to stop early)...\n\n", *duration)

	stop := make(chan struct{})
	var stopOnce sync.Once
	halt := func() { stopOnce.Do(func() { close(stop) }) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		halt()
	}()
	go func() {
		time.Sleep(*duration)
		halt()
	}()

	var issued atomic.Uint64
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < *depth; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			buf := make([]byte, block)
			rng.Read(buf)

			for {
				select {
				case <-stop:
					return
				default:
				}

				off := rng.Int63n(size-block+1) &^ 511
				comp := dblk.NewCompletion(nil, nil)
				if rng.Intn(100) < *readPct {
					img.AioRead(buf, off, comp)
				} else {
					img.AioWrite(buf, off, comp)
				}
				comp.WaitForComplete()
				if r := comp.ReturnValue(); r < 0 {
					logger.Error("request failed", "error", comp.Err())
					halt()
					return
				}
				issued.Add(1)
			}
		}(int64(w) + 1)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// One flush so the counters cover every kind the backend supports
	fc := dblk.NewCompletion(nil, nil)
	img.AioFlush(fc)
	fc.WaitForComplete()

	snap := img.Perf().Snapshot()
	if err := img.Close(); err != nil {
		logger.Error("close failed", "error", err)
	}

	fmt.Printf("Completed %d requests in %v (%.0f IOPS, %s/s)\n\n",
		issued.Load(), elapsed.Round(time.Millisecond),
		float64(issued.Load())/elapsed.Seconds(),
		formatSize(int64(float64(snap.TotalBytes)/elapsed.Seconds())))

	printOp("read", snap.Read)
	printOp("write", snap.Write)
	printOp("flush", snap.Flush)
	if snap.ErrorRate > 0 {
		fmt.Printf("Error rate: %.2f%%\n", snap.ErrorRate)
	}
}

func printOp(name string, s dblk.OpSnapshot) {
	if s.Ops == 0 {
		return
	}
	fmt.Printf("%-6s %8d ops  %10s  avg %8v  p50 %8v  p99 %8v\n",
		name, s.Ops, formatSize(int64(s.Bytes)),
		time.Duration(s.AvgLatencyNs).Round(time.Microsecond),
		time.Duration(s.LatencyP50Ns).Round(time.Microsecond),
		time.Duration(s.LatencyP99Ns).Round(time.Microsecond))
}

// parseSize parses a size string like "64M", "1G", "512K"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	if strings.HasSuffix(s, "K") {
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	} else if strings.HasSuffix(s, "M") {
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	} else if strings.HasSuffix(s, "G") {
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	} else {
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}

// formatSize formats a byte count as a human-readable string
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
