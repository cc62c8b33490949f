package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/playforge/matchmaker/internal/fleet"
	"github.com/playforge/matchmaker/internal/messaging"
	"github.com/playforge/matchmaker/internal/protocol"
)

// runHosts plays the game-hosting side: it keeps a set of servers registered
// in the fleet registry, accepts match.ready sessions and reports each one
// ended after the play time.
func runHosts(args []string) {
	fs := flag.NewFlagSet("hosts", flag.ExitOnError)
	redisAddr := fs.String("redis", "localhost:6379", "Redis address")
	natsURL := fs.String("nats", nats.DefaultURL, "NATS URL")
	perRegion := fs.Int("servers", 2, "Servers per region")
	regions := fs.String("regions", "eu,na", "Comma-separated regions")
	capacity := fs.Int("capacity", 200, "Player capacity per server")
	play := fs.Duration("play", 20*time.Second, "Simulated session length")
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "hosts: failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	registry := fleet.NewRegistry(rdb)

	nc, err := nats.Connect(*natsURL, nats.Name("loadtest-hosts"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hosts: failed to connect to NATS: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	var records []fleet.Record
	for _, region := range strings.Split(*regions, ",") {
		region = strings.TrimSpace(region)
		for i := 1; i <= *perRegion; i++ {
			id := fmt.Sprintf("lt-%s-%d", region, i)
			records = append(records, fleet.Record{
				ID:         id,
				Name:       id,
				Region:     region,
				Address:    fmt.Sprintf("%s.loadtest.invalid:7777", id),
				MaxPlayers: *capacity,
			})
		}
	}

	register := func() {
		for _, rec := range records {
			if err := registry.Register(ctx, rec); err != nil {
				fmt.Fprintf(os.Stderr, "  [hosts] %v\n", err)
			}
		}
	}
	register()

	var launched, ended atomic.Int64
	_, err = nc.Subscribe(messaging.SubjectMatchReady, func(msg *nats.Msg) {
		var view protocol.MatchView
		if err := json.Unmarshal(msg.Data, &view); err != nil {
			return
		}
		launched.Add(1)
		time.AfterFunc(*play, func() {
			data, err := protocol.NewMessage(protocol.TypeSessionEnded, protocol.SessionEndedMsg{MatchID: view.ID})
			if err != nil {
				return
			}
			if err := nc.Publish(messaging.SubjectSessionEnded, data); err == nil {
				ended.Add(1)
			}
		})
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hosts: failed to subscribe: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Hosting %d servers (capacity %d, play %s); Ctrl-C to stop\n", len(records), *capacity, *play)

	heartbeat := time.NewTicker(fleet.ServerTTL / 3)
	defer heartbeat.Stop()
	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()

	for {
		select {
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for _, rec := range records {
				_ = registry.Deregister(cleanupCtx, rec.ID)
			}
			cancel()
			fmt.Printf("\nSessions launched: %d  ended: %d\n", launched.Load(), ended.Load())
			return
		case <-heartbeat.C:
			register()
		case <-progress.C:
			fmt.Printf("  [hosts] sessions launched: %d  ended: %d\n", launched.Load(), ended.Load())
		}
	}
}
