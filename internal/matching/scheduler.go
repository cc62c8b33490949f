package matching

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/metrics"
)

// Tick runs one matchmaking pass at now. Every mode queue is processed on its
// own goroutine: search windows are widened, then matches are carved out until
// the queue runs dry or no server is free. Confirmation deadlines are checked
// once all queues are done. A panic in one mode is logged and does not stop
// the others.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	s := e.Settings()

	var wg sync.WaitGroup
	for _, id := range e.modeIDs {
		q := e.queues[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runQueue(ctx, q, now, s)
		}()
	}
	wg.Wait()

	e.expireConfirmations(ctx, now)
	e.pruneMatches(now, s.MatchRetention)

	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (e *Engine) runQueue(ctx context.Context, q *Queue, now time.Time, s Settings) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("queue tick panicked",
				zap.String("mode", q.mode.ID),
				zap.Any("panic", r))
		}
	}()

	built, size := e.formMatches(q, now, s)
	metrics.QueuePlayers.WithLabelValues(q.mode.ID).Set(float64(size))
	for _, m := range built {
		e.announce(ctx, m)
	}
}

// formMatches is the critical section of a queue tick. Joins and leaves for
// this queue wait until it returns.
func (e *Engine) formMatches(q *Queue, now time.Time, s Settings) ([]*Match, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, qp := range q.players {
		expandSearch(qp, now, s)
	}

	var built []*Match
	for q.len() >= q.mode.MaxPlayers {
		groups := propose(q, s)
		if groups == nil {
			break
		}

		var players []Player
		for _, members := range groups {
			for _, qp := range members {
				players = append(players, qp.Player)
			}
		}
		srv, ok := e.servers.reserve(players, s)
		if !ok {
			e.logger.Debug("match deferred",
				zap.String("mode", q.mode.ID),
				zap.Error(ErrNoServerAvailable))
			break
		}
		built = append(built, e.buildMatch(q, groups, srv, now, s))
	}
	return built, q.len()
}

// propose asks the mode's matcher for one match worth of players, grouped by
// team. Solo players each form their own team.
func propose(q *Queue, s Settings) [][]*QueuedPlayer {
	pool := q.pool()
	if !q.mode.IsSolo() {
		return MatchTeams(pool, q.mode, s)
	}
	set := MatchSolo(pool, q.mode, s)
	if set == nil {
		return nil
	}
	groups := make([][]*QueuedPlayer, len(set))
	for i, qp := range set {
		groups[i] = []*QueuedPlayer{qp}
	}
	return groups
}

// Run ticks the engine every TickInterval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.Settings().TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("matchmaking loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("matchmaking loop stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx, e.clock())
		}
	}
}
