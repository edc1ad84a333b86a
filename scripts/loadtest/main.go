// Loadtest sends a concurrent burst of proxy requests and summarizes how they
// were answered: fresh, from cache, or not ready. A healthy proxy makes at most
// one upstream call per method per window, however large the burst.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:8080/proxy-api -method user.getrecenttracks -concurrency 50 -requests 1000
//	go run ./scripts/loadtest -requests 500 -stats http://localhost:8080/stats -out summary.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type tierStats struct {
	Count     int32           `json:"count"`
	Latencies []time.Duration `json:"-"`
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

func main() {
	var (
		target      = flag.String("url", "http://localhost:8080/proxy-api", "Proxy endpoint")
		method      = flag.String("method", "user.getinfo", "Upstream method to request")
		origin      = flag.String("origin", "", "Origin header to send (optional)")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		timeoutSec  = flag.Int("timeout", 30, "Per-request timeout in seconds")
		statsURL    = flag.String("stats", "", "Stats endpoint to print after the run (optional)")
		outJSON     = flag.String("out", "", "Write JSON summary to this file (optional)")
		verbose     = flag.Bool("v", false, "Verbose per-request logging to stdout")
	)
	flag.Parse()

	u, err := url.Parse(*target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid url: %v\n", err)
		os.Exit(1)
	}
	q := u.Query()
	q.Set("method", *method)
	u.RawQuery = q.Encode()

	client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var total, failure int32

	tiers := make(map[string]*tierStats)
	statusCodes := make(map[int]int32)
	corsGranted := int32(0)
	var mu sync.Mutex

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				atomic.AddInt32(&total, 1)
				start := time.Now()

				req, err := http.NewRequest(http.MethodGet, u.String(), nil)
				if err != nil {
					atomic.AddInt32(&failure, 1)
					continue
				}
				if *origin != "" {
					req.Header.Set("Origin", *origin)
				}

				resp, err := client.Do(req)
				dur := time.Since(start)
				if err != nil {
					atomic.AddInt32(&failure, 1)
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}

				tier := resp.Header.Get("X-Proxy-Status")
				if tier == "" {
					tier = "(none)"
				}

				mu.Lock()
				statusCodes[resp.StatusCode]++
				ts, ok := tiers[tier]
				if !ok {
					ts = &tierStats{}
					tiers[tier] = ts
				}
				ts.Count++
				ts.Latencies = append(ts.Latencies, dur)
				if resp.Header.Get("Access-Control-Allow-Origin") != "" {
					corsGranted++
				}
				mu.Unlock()

				if resp.StatusCode >= 500 {
					atomic.AddInt32(&failure, 1)
				}

				if *verbose {
					fmt.Printf("[%d] idx=%d status=%d tier=%q dur=%v\n", workerID, idx, resp.StatusCode, tier, dur)
				}

				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)
	throughput := float64(total) / totalDuration.Seconds()

	fmt.Println("--- Proxy Burst Summary ---")
	fmt.Printf("Target: %s\n", u.String())
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Total sent: %d  Failure: %d  CORS granted: %d\n", total, failure, corsGranted)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", totalDuration, throughput)

	fmt.Println("\nStatus codes:")
	var codes []int
	for k := range statusCodes {
		codes = append(codes, k)
	}
	sort.Ints(codes)
	for _, k := range codes {
		fmt.Printf("  %d -> %d\n", k, statusCodes[k])
	}

	type tierSummary struct {
		Count int32   `json:"count"`
		P50   float64 `json:"p50_ms"`
		P99   float64 `json:"p99_ms"`
	}
	summaries := map[string]tierSummary{}

	fmt.Println("\nResponse tiers:")
	var names []string
	for k := range tiers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		ts := tiers[k]
		sorted := append([]time.Duration(nil), ts.Latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p50, p99 := percentile(sorted, 0.50), percentile(sorted, 0.99)
		fmt.Printf("  %q -> %d  p50=%v p99=%v\n", k, ts.Count, p50, p99)
		summaries[k] = tierSummary{
			Count: ts.Count,
			P50:   float64(p50.Microseconds()) / 1000.0,
			P99:   float64(p99.Microseconds()) / 1000.0,
		}
	}

	if *statsURL != "" {
		resp, err := client.Get(*statsURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read stats: %v\n", err)
		} else {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			fmt.Printf("\nProxy stats:\n%s\n", body)
		}
	}

	if *outJSON != "" {
		report := map[string]interface{}{
			"target":         u.String(),
			"requests":       *requests,
			"concurrency":    *concurrency,
			"total_sent":     total,
			"failure":        failure,
			"duration_ms":    totalDuration.Milliseconds(),
			"throughput_rps": throughput,
			"status_codes":   statusCodes,
			"tiers":          summaries,
		}

		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failure > 0 {
		os.Exit(2)
	}
}
