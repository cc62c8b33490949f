package matching

import (
	"cmp"
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/metrics"
)

// ConfirmResult is returned by ConfirmMatch.
type ConfirmResult struct {
	Accepted bool
}

// ConfirmMatch records playerID's acceptance of a pending match. Unknown
// matches, non-participants, matches past their deadline and matches no longer
// pending all yield Accepted=false.
func (e *Engine) ConfirmMatch(matchID, playerID string) ConfirmResult {
	now := e.clock()

	e.matchesMu.Lock()
	defer e.matchesMu.Unlock()

	m, ok := e.matches[matchID]
	if !ok || m.Status != StatusPending || !now.Before(m.ConfirmDeadline) {
		return ConfirmResult{}
	}
	if _, participant := m.confirmed[playerID]; !participant {
		return ConfirmResult{}
	}
	m.confirmed[playerID] = true
	e.logger.Debug("match confirmed", zap.String("match", matchID), zap.String("player", playerID))
	return ConfirmResult{Accepted: true}
}

// MatchDetails returns a copy of the match, or nil when unknown.
func (e *Engine) MatchDetails(matchID string) *Match {
	e.matchesMu.Lock()
	defer e.matchesMu.Unlock()
	m, ok := e.matches[matchID]
	if !ok {
		return nil
	}
	return m.clone()
}

// EndMatch marks an in-progress match completed and frees its server slots.
func (e *Engine) EndMatch(matchID string) error {
	e.matchesMu.Lock()
	m, ok := e.matches[matchID]
	if !ok {
		e.matchesMu.Unlock()
		return ErrNotFound
	}
	if m.Status != StatusInProgress {
		e.matchesMu.Unlock()
		return ErrMatchNotRunning
	}
	m.Status = StatusCompleted
	m.EndedAt = e.clock()
	serverID, n := m.Server.ID, len(m.confirmed)
	e.matchesMu.Unlock()

	e.servers.release(serverID, n)
	metrics.MatchOutcomes.WithLabelValues(string(StatusCompleted)).Inc()
	e.logger.Info("match completed", zap.String("match", matchID), zap.String("server", serverID))
	return nil
}

// resolution is a confirmation outcome decided under matchesMu and acted on
// after it is released.
type resolution struct {
	match       *Match
	confirmed   []*QueuedPlayer
	unconfirmed []*QueuedPlayer
}

// expireConfirmations resolves every pending match whose deadline passed.
// Fully confirmed matches move to ready, are handed to the session launcher
// and then go in-progress; the rest are cancelled.
func (e *Engine) expireConfirmations(ctx context.Context, now time.Time) {
	var started, cancelled []resolution

	e.matchesMu.Lock()
	for _, m := range e.matches {
		if m.Status != StatusPending || now.Before(m.ConfirmDeadline) {
			continue
		}
		r := resolution{}
		for _, qp := range m.participants {
			if m.confirmed[qp.ID] {
				r.confirmed = append(r.confirmed, qp)
			} else {
				r.unconfirmed = append(r.unconfirmed, qp)
			}
		}
		if len(r.unconfirmed) == 0 {
			m.Status = StatusReady
			r.match = m.clone()
			started = append(started, r)
			continue
		}
		m.Status = StatusCancelled
		m.EndedAt = now
		r.match = m.clone()
		cancelled = append(cancelled, r)
	}
	e.matchesMu.Unlock()

	// Deterministic event order for callers driving Tick by hand.
	byCreation := func(a, b resolution) int {
		if c := a.match.CreatedAt.Compare(b.match.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.match.ID, b.match.ID)
	}
	slices.SortFunc(started, byCreation)
	slices.SortFunc(cancelled, byCreation)

	for _, r := range started {
		e.startMatch(ctx, r, now)
	}
	for _, r := range cancelled {
		e.cancelMatch(ctx, r)
	}
}

func (e *Engine) release(participants []*QueuedPlayer) {
	e.indexMu.Lock()
	defer e.indexMu.Unlock()
	for _, qp := range participants {
		delete(e.engaged, qp.ID)
	}
}

func (e *Engine) startMatch(ctx context.Context, r resolution, now time.Time) {
	m := r.match
	e.release(r.confirmed)

	// The launcher may keep its match; it never sees later transitions.
	if e.launcher != nil {
		if err := e.launcher.Launch(ctx, m.clone()); err != nil {
			e.logger.Error("session launch failed", zap.String("match", m.ID), zap.Error(err))
		}
	}

	e.matchesMu.Lock()
	if live, ok := e.matches[m.ID]; ok {
		live.Status = StatusInProgress
		live.StartedAt = now
	}
	e.matchesMu.Unlock()
	m.Status = StatusInProgress
	m.StartedAt = now

	metrics.MatchOutcomes.WithLabelValues("started").Inc()
	e.sink.MatchStarted(ctx, MatchStartedEvent{
		MatchID: m.ID,
		ModeID:  m.ModeID,
		Teams:   m.Teams,
		Map:     m.MapID,
		Server:  m.Server,
	})
	e.logger.Info("match started",
		zap.String("match", m.ID),
		zap.String("mode", m.ModeID),
		zap.String("server", m.Server.ID))
}

// cancelMatch penalizes the players who did not confirm and puts the ones who
// did back in the queue as new arrivals. The re-queued players remember the
// no-shows so they are not grouped with them again.
func (e *Engine) cancelMatch(ctx context.Context, r resolution) {
	m := r.match
	s := e.Settings()

	e.servers.release(m.Server.ID, len(r.confirmed)+len(r.unconfirmed))
	e.release(r.confirmed)
	e.release(r.unconfirmed)

	ev := MatchCancelledEvent{MatchID: m.ID, ModeID: m.ModeID}
	for _, qp := range r.unconfirmed {
		ev.Unconfirmed = append(ev.Unconfirmed, qp.ID)
		metrics.PenaltiesTotal.Inc()
		e.sink.PlayerPenalized(ctx, PenaltyEvent{
			PlayerID: qp.ID,
			MatchID:  m.ID,
			Reason:   PenaltyReasonNoConfirm,
			Duration: s.PenaltyDuration,
		})
	}
	for _, qp := range r.confirmed {
		ev.Confirmed = append(ev.Confirmed, qp.ID)
	}

	metrics.MatchOutcomes.WithLabelValues("cancelled").Inc()
	e.sink.MatchCancelled(ctx, ev)
	e.logger.Info("match cancelled",
		zap.String("match", m.ID),
		zap.String("mode", m.ModeID),
		zap.Strings("unconfirmed", ev.Unconfirmed))

	for _, qp := range r.confirmed {
		carried := &QueuedPlayer{
			AttemptedMatches: make(map[string]struct{}, len(qp.AttemptedMatches)+len(r.unconfirmed)),
			Declined:         qp.Declined + 1,
		}
		for id := range qp.AttemptedMatches {
			carried.AttemptedMatches[id] = struct{}{}
		}
		for _, no := range r.unconfirmed {
			carried.AttemptedMatches[no.ID] = struct{}{}
		}
		if _, err := e.join(ctx, qp.Player, m.ModeID, carried); err != nil {
			e.logger.Warn("re-queue after cancelled match failed",
				zap.String("player", qp.ID),
				zap.String("match", m.ID),
				zap.Error(err))
		}
	}
}

// pruneMatches forgets cancelled and completed matches that ended more than
// retention ago. A zero retention keeps them forever.
func (e *Engine) pruneMatches(now time.Time, retention time.Duration) {
	if retention <= 0 {
		return
	}
	e.matchesMu.Lock()
	defer e.matchesMu.Unlock()
	for id, m := range e.matches {
		if m.Status != StatusCancelled && m.Status != StatusCompleted {
			continue
		}
		if now.Sub(m.EndedAt) > retention {
			delete(e.matches, id)
		}
	}
}
