// Package stats provides a goroutine-safe collector that aggregates
// matchmaking load test results from many simulated players and prints a
// summary with percentile distributions.
package stats

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"
)

// Collector aggregates results from many load test players. All methods are
// safe for concurrent use.
type Collector struct {
	mu            sync.Mutex
	joinLatencies []time.Duration
	matchWaits    []time.Duration
	joined        int
	matched       int
	started       int
	penalized     int
	errors        int
	startTime     time.Time
	scraper       *Scraper
}

// NewCollector creates a Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetScraper attaches a metrics scraper whose results Report also prints.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddJoin records a successful join with its request round-trip latency.
func (c *Collector) AddJoin(d time.Duration) {
	c.mu.Lock()
	c.joinLatencies = append(c.joinLatencies, d)
	c.joined++
	c.mu.Unlock()
}

// AddMatch records a match.found event received wait after joining.
func (c *Collector) AddMatch(wait time.Duration) {
	c.mu.Lock()
	c.matchWaits = append(c.matchWaits, wait)
	c.matched++
	c.mu.Unlock()
}

// AddStarted counts a player whose match reached in-progress.
func (c *Collector) AddStarted() {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

// AddPenalty counts a penalty event.
func (c *Collector) AddPenalty() {
	c.mu.Lock()
	c.penalized++
	c.mu.Unlock()
}

// AddError increments the error counter.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// Counts returns joined, matched and error totals.
func (c *Collector) Counts() (joined, matched, errors int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined, c.matched, c.errors
}

// Report prints a summary of the collected results to stdout.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Printf("Joined:       %d\n", c.joined)
	fmt.Printf("Matched:      %d\n", c.matched)
	fmt.Printf("Started:      %d\n", c.started)
	fmt.Printf("Penalized:    %d\n", c.penalized)
	fmt.Printf("Errors:       %d\n", c.errors)

	if c.joined > 0 {
		fmt.Printf("Match rate:   %.2f%%\n", float64(c.matched)/float64(c.joined)*100)
	}

	if len(c.joinLatencies) > 0 {
		fmt.Println("\n--- Join Latency ---")
		printPercentiles(c.joinLatencies)
	}

	if len(c.matchWaits) > 0 {
		fmt.Println("\n--- Time to Match ---")
		printPercentiles(c.matchWaits)
	}

	if c.scraper != nil {
		c.scraper.Report()
	}

	fmt.Println()
}

// Summary holds percentile figures for a set of durations.
type Summary struct {
	Avg, P50, P95, P99, Max time.Duration
	N                       int
}

// Summarize sorts durations in place and computes its percentiles.
func Summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	slices.Sort(durations)

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Summary{
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
		N:   n,
	}
}

func printPercentiles(durations []time.Duration) {
	s := Summarize(durations)
	fmt.Printf("  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		s.Avg.Round(time.Microsecond),
		s.P50.Round(time.Microsecond),
		s.P95.Round(time.Microsecond),
		s.P99.Round(time.Microsecond),
		s.Max.Round(time.Microsecond),
		s.N,
	)
}
