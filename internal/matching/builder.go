package matching

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/metrics"
)

func sideLabel(i, numTeams int) string {
	if numTeams == 2 {
		if i == 0 {
			return "blue"
		}
		return "red"
	}
	return fmt.Sprintf("team-%d", i+1)
}

// buildMatch turns groups into a pending Match on srv and takes every
// participant out of q and the queue index. It returns a copy of the match for
// announcing. Caller holds q.mu.
func (e *Engine) buildMatch(q *Queue, groups [][]*QueuedPlayer, srv GameServer, now time.Time, s Settings) *Match {
	m := &Match{
		ID:              e.newID(),
		ModeID:          q.mode.ID,
		Status:          StatusPending,
		MapID:           q.pickMap(),
		Server:          srv,
		CreatedAt:       now,
		ConfirmDeadline: now.Add(s.ConfirmTimeout),
		confirmed:       make(map[string]bool),
	}

	var (
		total  int
		count  int
		lo, hi int
		waits  = make([]time.Duration, 0, q.mode.MaxPlayers)
	)
	for i, members := range groups {
		team := Team{ID: e.newID(), Side: sideLabel(i, len(groups))}
		for _, qp := range members {
			team.Players = append(team.Players, qp.Player)
			team.TotalRating += qp.Rating
			if count == 0 || qp.Rating < lo {
				lo = qp.Rating
			}
			if count == 0 || qp.Rating > hi {
				hi = qp.Rating
			}
			count++
			m.confirmed[qp.ID] = false
			m.participants = append(m.participants, qp)
			waits = append(waits, qp.WaitTime(now))
		}
		if len(team.Players) > 0 {
			team.AverageRating = float64(team.TotalRating) / float64(len(team.Players))
		}
		total += team.TotalRating
		m.Teams = append(m.Teams, team)
	}
	if count > 0 {
		m.AverageRating = float64(total) / float64(count)
	}
	m.RatingSpread = hi - lo
	if q.mode.IsSolo() {
		m.Fairness = 1
	} else {
		m.Fairness = TeamFairness(m.Teams, s.BalanceThreshold)
	}

	e.indexMu.Lock()
	for _, qp := range m.participants {
		q.remove(qp.ID)
		delete(e.index, qp.ID)
		e.engaged[qp.ID] = m.ID
	}
	e.indexMu.Unlock()

	q.recordWaits(waits)
	for _, w := range waits {
		metrics.MatchWait.WithLabelValues(q.mode.ID).Observe(w.Seconds())
	}
	metrics.MatchesCreated.WithLabelValues(q.mode.ID).Inc()

	snapshot := m.clone()
	e.matchesMu.Lock()
	e.matches[m.ID] = m
	e.matchesMu.Unlock()

	e.logger.Info("match built",
		zap.String("match", m.ID),
		zap.String("mode", m.ModeID),
		zap.String("map", m.MapID),
		zap.String("server", srv.ID),
		zap.Int("players", count),
		zap.Float64("avg_rating", m.AverageRating),
		zap.Float64("fairness", m.Fairness))
	return snapshot
}

// announce emits match.found for every participant and one match.created.
func (e *Engine) announce(ctx context.Context, m *Match) {
	for _, id := range m.PlayerIDs() {
		e.sink.MatchFound(ctx, MatchFoundEvent{
			PlayerID:   id,
			MatchID:    m.ID,
			ModeID:     m.ModeID,
			Map:        m.MapID,
			ServerName: m.Server.Name,
		})
	}
	e.sink.MatchCreated(ctx, MatchCreatedEvent{Match: m})
}
