package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

type loadConfig struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Limit       int
	Queries     []string
}

type loadStats struct {
	total     atomic.Int64
	success   atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 4096),
		codes:     make(map[int]int64),
	}
}

func (s *loadStats) record(took time.Duration, status int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failures.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, took)
	s.codes[status]++
	s.mu.Unlock()
}

func newLoadTestCmd() *cobra.Command {
	cfg := loadConfig{}
	cmd := &cobra.Command{
		Use:   "loadtest <query...>",
		Short: "Fire concurrent searches at a running server and report latency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Queries = args
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Target:      %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "Concurrency: %d\n", cfg.Concurrency)
			fmt.Fprintf(out, "Duration:    %s\n", cfg.Duration)
			fmt.Fprintf(out, "Queries:     %d unique\n\n", len(cfg.Queries))

			stats := runLoad(cmd.Context(), cfg)
			printLoadReport(out, stats, cfg.Duration)
			if stats.total.Load() == 0 {
				return fmt.Errorf("no requests completed; is the server running at %s?", cfg.BaseURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://127.0.0.1:8000", "base URL of the search server")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 8, "number of concurrent workers")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "test duration")
	cmd.Flags().IntVar(&cfg.Limit, "limit", 10, "limit parameter sent with every query")
	return cmd
}

func runLoad(ctx context.Context, cfg loadConfig) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				query := cfg.Queries[next%len(cfg.Queries)]
				next++
				target := cfg.BaseURL + "/api/v1/search?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(cfg.Limit)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					stats.record(0, 0, false, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				took := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.record(took, 0, false, err)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(took, resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", nil)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func printLoadReport(w io.Writer, stats *loadStats, duration time.Duration) {
	total := stats.total.Load()
	fmt.Fprintf(w, "Requests:    %d\n", total)
	fmt.Fprintf(w, "Successful:  %d\n", stats.success.Load())
	fmt.Fprintf(w, "Failed:      %d\n", stats.failures.Load())
	if total > 0 {
		fmt.Fprintf(w, "Cache hits:  %.1f%%\n", float64(stats.cacheHits.Load())/float64(total)*100)
		fmt.Fprintf(w, "Req/sec:     %.1f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	counts := make([]int64, len(codes))
	for i, code := range codes {
		counts[i] = stats.codes[code]
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Latency min %s  avg %s  p50 %s  p95 %s  p99 %s  max %s\n",
			latencies[0],
			sum/time.Duration(len(latencies)),
			latencyPercentile(latencies, 50),
			latencyPercentile(latencies, 95),
			latencyPercentile(latencies, 99),
			latencies[len(latencies)-1],
		)
	}
	if len(codes) > 0 {
		fmt.Fprintln(w)
		for i, code := range codes {
			fmt.Fprintf(w, "  HTTP %d: %d\n", code, counts[i])
		}
	}
}

func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
