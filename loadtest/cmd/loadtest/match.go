package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/playforge/matchmaker/internal/messaging"
	"github.com/playforge/matchmaker/internal/protocol"
	"github.com/playforge/matchmaker/loadtest/client"
	"github.com/playforge/matchmaker/loadtest/stats"
)

// player is the load test's view of one simulated player.
type player struct {
	c        *client.Client
	noShow   bool
	joinedAt atomic.Int64 // unix nanos
	done     chan struct{}
	once     sync.Once
}

func (p *player) finish() {
	p.once.Do(func() { close(p.done) })
}

// runMatch queues seeded players for one mode, confirms every match.found
// (except for the configured share of no-shows) and waits until each player's
// match starts, the player is penalized, or the timeout passes.
func runMatch(args []string) {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	natsURL := fs.String("nats", nats.DefaultURL, "NATS URL")
	players := fs.Int("players", 500, "Number of seeded players to queue")
	prefix := fs.String("prefix", "lt-", "Player id prefix used by seed")
	mode := fs.String("mode", "casual", "Game mode to queue for")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration for joins")
	matchTimeout := fs.Duration("match-timeout", 2*time.Minute, "Per-player timeout waiting for a started match")
	noShowRate := fs.Float64("no-show", 0, "Fraction of players that never confirm")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous join requests during ramp-up")
	metricsURL := fs.String("metrics-url", "http://localhost:9102/metrics", "Matchmaker Prometheus endpoint")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	fs.Parse(args)

	fmt.Printf("Match test: %d players for %q via %s (ramp=%s, match-timeout=%s, no-show=%.2f, concurrency=%d)\n",
		*players, *mode, *natsURL, *rampUp, *matchTimeout, *noShowRate, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(*natsURL, nats.Name("loadtest-match"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "match: failed to connect to NATS: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(*metricsURL, *scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	roster := make(map[string]*player, *players)
	list := make([]*player, 0, *players)
	for i := 0; i < *players; i++ {
		p := &player{
			c:      client.New(nc, playerID(*prefix, i)),
			noShow: rng.Float64() < *noShowRate,
			done:   make(chan struct{}),
		}
		roster[p.c.PlayerID] = p
		list = append(list, p)
	}

	// -----------------------------------------------------------------------
	// Phase 1: Subscribe to events
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 1: Subscribe ---")

	var startedCount, penaltyCount atomic.Int64
	startedSub, err := nc.Subscribe(messaging.SubjectMatchStarted, func(msg *nats.Msg) {
		var ev protocol.MatchStartedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		for _, team := range ev.Teams {
			for _, pv := range team.Players {
				if p, ok := roster[pv.ID]; ok {
					collector.AddStarted()
					startedCount.Add(1)
					p.finish()
				}
			}
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "match: failed to subscribe: %v\n", err)
		os.Exit(1)
	}
	defer startedSub.Unsubscribe() //nolint:errcheck

	for _, p := range list {
		err := p.c.On(messaging.SubjectMatchFound, func(raw json.RawMessage) {
			var ev protocol.MatchFoundEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				collector.AddError()
				return
			}
			collector.AddMatch(time.Since(time.Unix(0, p.joinedAt.Load())))
			if p.noShow {
				return
			}
			// Confirm off the delivery goroutine; the reply arrives on it.
			go func() {
				confirmCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				if _, err := p.c.Confirm(confirmCtx, ev.MatchID); err != nil {
					collector.AddError()
				}
			}()
		})
		if err == nil {
			err = p.c.On(messaging.SubjectPenalty, func(json.RawMessage) {
				collector.AddPenalty()
				penaltyCount.Add(1)
				p.finish()
			})
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "match: %v\n", err)
			os.Exit(1)
		}
	}

	// -----------------------------------------------------------------------
	// Phase 2: Join with ramp-up
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Phase 2: Join queue ---")

	interval := *rampUp / time.Duration(max(1, *players))
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup
	rampTicker := time.NewTicker(interval)
	joinStart := time.Now()

	interrupted := false
	for i := 0; i < len(list) && !interrupted; i++ {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during join phase.")
			interrupted = true
			continue
		case <-rampTicker.C:
		}

		p := list[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			p.joinedAt.Store(time.Now().UnixNano())
			if err := p.c.Join(joinCtx, *mode); err != nil {
				collector.AddError()
				p.finish()
				return
			}
			collector.AddJoin(p.c.GetMetrics().JoinLatency)
		}()
	}
	rampTicker.Stop()
	wg.Wait()

	joined, _, errs := collector.Counts()
	fmt.Printf("\nPhase 2 complete: %d/%d joined in %s (%d errors)\n",
		joined, len(list), time.Since(joinStart).Round(time.Millisecond), errs)

	// -----------------------------------------------------------------------
	// Phase 3: Wait for matches to start
	// -----------------------------------------------------------------------
	if !interrupted {
		fmt.Println("\n--- Phase 3: Waiting for matches ---")

		progressStop := make(chan struct{})
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					_, matched, errs := collector.Counts()
					fmt.Printf("  [match] found: %d  started: %d  penalized: %d  errors: %d\n",
						matched, startedCount.Load(), penaltyCount.Load(), errs)
				case <-progressStop:
					return
				}
			}
		}()

		var waitWg sync.WaitGroup
		for _, p := range list {
			waitWg.Add(1)
			go func() {
				defer waitWg.Done()
				timer := time.NewTimer(*matchTimeout)
				defer timer.Stop()
				select {
				case <-p.done:
				case <-timer.C:
					collector.AddError()
				case <-ctx.Done():
				}
			}()
		}
		waitWg.Wait()
		close(progressStop)
	}

	// -----------------------------------------------------------------------
	// Cleanup
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Cleanup ---")
	leaveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, p := range list {
		_ = p.c.Leave(leaveCtx)
		p.c.Close()
	}
	cancel()

	scraper.Stop()
	collector.Report()
}
