// Package matching is the matchmaking engine. It owns one queue per game
// mode, widens each waiting player's rating window over time, carves matches
// out of the queues on every tick, assigns them a server and map, and runs the
// confirmation handshake that decides whether a match starts.
//
// The engine is driven by Tick; Run calls it on a fixed interval. Joins,
// leaves and confirmations may arrive concurrently from any goroutine.
package matching

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/catalog"
	"github.com/playforge/matchmaker/internal/metrics"
)

// JoinResult is returned by a successful JoinQueue.
type JoinResult struct {
	EstimatedWait time.Duration
}

// LeaveResult is returned by LeaveQueue.
type LeaveResult struct {
	Removed bool
}

// QueueStatus describes a queued player's place in line.
type QueueStatus struct {
	ModeID             string
	PlayersInQueue     int
	WaitTime           time.Duration
	EstimatedRemaining time.Duration
	Position           int
}

// Engine is the single owner of all matchmaking state.
//
// Lock order: a queue's mu before indexMu. The server pool and match registry
// locks are leaves and are never held while taking a queue lock.
type Engine struct {
	catalog *catalog.Catalog
	modeIDs []string
	queues  map[string]*Queue // fixed after NewEngine

	settings atomic.Pointer[Settings]

	indexMu sync.Mutex
	index   map[string]string // player id -> mode id, for queued players
	engaged map[string]string // player id -> match id, for pending matches

	servers *ServerPool

	matchesMu sync.Mutex
	matches   map[string]*Match

	sink      EventSink
	penalties PenaltyChecker
	launcher  SessionLauncher
	clock     func() time.Time
	newID     func() string
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings.Store(&s) }
}

// WithEventSink sets where events are delivered.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithPenaltyChecker rejects joins from penalized players.
func WithPenaltyChecker(pc PenaltyChecker) Option {
	return func(e *Engine) { e.penalties = pc }
}

// WithSessionLauncher sets the hand-off for started matches.
func WithSessionLauncher(l SessionLauncher) Option {
	return func(e *Engine) { e.launcher = l }
}

// WithServers seeds the server pool.
func WithServers(servers []GameServer) Option {
	return func(e *Engine) { e.servers = NewServerPool(servers) }
}

// WithClock overrides time.Now for join timestamps and confirmations.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator overrides uuid-based match and team ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine with one queue per catalog mode.
func NewEngine(cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog: cat,
		modeIDs: cat.IDs(),
		queues:  make(map[string]*Queue),
		index:   make(map[string]string),
		engaged: make(map[string]string),
		servers: NewServerPool(nil),
		matches: make(map[string]*Match),
		sink:    NopSink{},
		clock:   time.Now,
		newID:   func() string { return uuid.New().String() },
		logger:  zap.NewNop(),
	}
	defaults := DefaultSettings()
	e.settings.Store(&defaults)

	for _, opt := range opts {
		opt(e)
	}
	for _, mode := range cat.Modes() {
		e.queues[mode.ID] = newQueue(mode)
	}
	return e
}

// Settings returns the settings currently in effect.
func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// UpdateSettings swaps the settings used from the next operation on.
// Matches already built keep their deadlines.
func (e *Engine) UpdateSettings(s Settings) {
	e.settings.Store(&s)
	e.logger.Info("matchmaking settings updated",
		zap.Duration("confirm_timeout", s.ConfirmTimeout),
		zap.Int("expansion_rate", s.ExpansionRate),
		zap.Float64("balance_threshold", s.BalanceThreshold))
}

// Catalog returns the mode catalog the engine serves.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// JoinQueue places player in the queue for modeID and returns its estimated
// wait.
func (e *Engine) JoinQueue(ctx context.Context, player Player, modeID string) (JoinResult, error) {
	res, err := e.join(ctx, player, modeID, nil)
	if err != nil {
		metrics.JoinRejections.WithLabelValues(rejectionReason(err)).Inc()
		e.logger.Debug("join rejected",
			zap.String("player", player.ID),
			zap.String("mode", modeID),
			zap.Error(err))
	}
	return res, err
}

// join is the shared join path. carried, when set, is a previous queue entry
// whose rejection memory survives the re-join.
func (e *Engine) join(ctx context.Context, player Player, modeID string, carried *QueuedPlayer) (JoinResult, error) {
	q, ok := e.queues[modeID]
	if !ok {
		return JoinResult{}, ErrInvalidMode
	}
	if err := checkRequirements(q.mode, player); err != nil {
		return JoinResult{}, err
	}

	if e.penalties != nil {
		penalty, err := e.penalties.ActivePenalty(ctx, player.ID)
		if err != nil {
			// Fail open: a penalty store outage must not stop matchmaking.
			e.logger.Warn("penalty check failed", zap.String("player", player.ID), zap.Error(err))
		} else if penalty != nil {
			e.logger.Debug("penalized player tried to queue",
				zap.String("player", player.ID),
				zap.String("reason", penalty.Reason),
				zap.Duration("remaining", penalty.Remaining))
			return JoinResult{}, &PenaltyError{Reason: penalty.Reason, Remaining: penalty.Remaining}
		}
	}

	s := e.Settings()
	now := e.clock()
	qp := newQueuedPlayer(player, now, s)
	if carried != nil {
		for id := range carried.AttemptedMatches {
			qp.AttemptedMatches[id] = struct{}{}
		}
		qp.Declined = carried.Declined
	}

	q.mu.Lock()
	e.indexMu.Lock()
	_, queued := e.index[player.ID]
	_, inMatch := e.engaged[player.ID]
	if queued || inMatch {
		e.indexMu.Unlock()
		q.mu.Unlock()
		return JoinResult{}, ErrAlreadyQueued
	}
	e.index[player.ID] = modeID
	e.indexMu.Unlock()

	estimate := estimateWait(q, qp, s)
	q.add(qp, estimate)
	size := q.len()
	q.mu.Unlock()

	metrics.QueuePlayers.WithLabelValues(modeID).Set(float64(size))
	e.sink.QueueJoined(ctx, JoinedEvent{PlayerID: player.ID, ModeID: modeID, EstimatedWait: estimate})
	e.logger.Info("player joined queue",
		zap.String("player", player.ID),
		zap.String("mode", modeID),
		zap.Float64("priority", qp.Priority),
		zap.Duration("estimated_wait", estimate),
		zap.Int("queue_size", size))

	return JoinResult{EstimatedWait: estimate}, nil
}

func checkRequirements(mode catalog.GameMode, p Player) error {
	if p.Level < mode.MinLevel {
		return &RequirementError{ModeID: mode.ID, Requirement: "level", Required: mode.MinLevel, Actual: p.Level}
	}
	if mode.MinRating != nil && p.Rating < *mode.MinRating {
		return &RequirementError{ModeID: mode.ID, Requirement: "min_rating", Required: *mode.MinRating, Actual: p.Rating}
	}
	if mode.MaxRating != nil && p.Rating > *mode.MaxRating {
		return &RequirementError{ModeID: mode.ID, Requirement: "max_rating", Required: *mode.MaxRating, Actual: p.Rating}
	}
	return nil
}

func newQueuedPlayer(p Player, now time.Time, s Settings) *QueuedPlayer {
	qp := &QueuedPlayer{
		Player:           p,
		QueueTime:        now,
		Priority:         computePriority(p, s),
		ExpansionRate:    s.ExpansionRate,
		AttemptedMatches: make(map[string]struct{}),
	}
	qp.Range = ratingWindow(p.Rating, 0, qp.ExpansionRate, s)
	return qp
}

// computePriority is 1 plus the premium, guild and party bonuses.
func computePriority(p Player, s Settings) float64 {
	priority := 1 + float64(p.PremiumTier)*s.PremiumMultiplier
	if p.GuildID != "" {
		priority += s.GuildBonus
	}
	if p.PartyID != "" {
		priority += s.PartyBonus
	}
	return priority
}

// estimateWait derives a wait estimate for qp joining q. The queue's average
// wait grows with qp's rating distance from the queue mean, shrinks with
// priority, doubles while the queue is too sparse to fill a match and halves
// once it holds two matches' worth. Caller holds q.mu.
func estimateWait(q *Queue, qp *QueuedPlayer, s Settings) time.Duration {
	base := float64(q.baseWait(s.DefaultAverageWait))
	distance := math.Abs(float64(qp.Rating) - q.averageRating(s.DefaultRating))
	estimate := base * (1 + distance/1000)
	if qp.Priority > 0 {
		estimate /= qp.Priority
	}

	count := q.len() + 1
	switch {
	case count < q.mode.MinPlayers:
		estimate *= 2
	case count >= 2*q.mode.MaxPlayers:
		estimate *= 0.5
	}

	wait := time.Duration(estimate)
	return min(max(wait, s.MinWaitEstimate), s.MaxWaitTime)
}

// LeaveQueue removes playerID from whichever queue holds it. Leaving when not
// queued is a no-op reporting Removed=false. A leave that arrives during a
// tick waits for that queue's pass to finish.
func (e *Engine) LeaveQueue(ctx context.Context, playerID string) LeaveResult {
	for {
		e.indexMu.Lock()
		modeID, ok := e.index[playerID]
		e.indexMu.Unlock()
		if !ok {
			return LeaveResult{}
		}

		q := e.queues[modeID]
		q.mu.Lock()
		e.indexMu.Lock()
		current, stillQueued := e.index[playerID]
		if !stillQueued {
			e.indexMu.Unlock()
			q.mu.Unlock()
			return LeaveResult{}
		}
		if current != modeID {
			// Left and re-joined elsewhere in between; retry against the new queue.
			e.indexMu.Unlock()
			q.mu.Unlock()
			continue
		}
		delete(e.index, playerID)
		e.indexMu.Unlock()
		q.remove(playerID)
		size := q.len()
		q.mu.Unlock()

		metrics.QueuePlayers.WithLabelValues(modeID).Set(float64(size))
		e.sink.QueueLeft(ctx, LeftEvent{PlayerID: playerID, ModeID: modeID})
		e.logger.Info("player left queue", zap.String("player", playerID), zap.String("mode", modeID))
		return LeaveResult{Removed: true}
	}
}

// QueueStatus returns playerID's queue status, or nil when not queued.
func (e *Engine) QueueStatus(playerID string) *QueueStatus {
	e.indexMu.Lock()
	modeID, ok := e.index[playerID]
	e.indexMu.Unlock()
	if !ok {
		return nil
	}

	q := e.queues[modeID]
	q.mu.Lock()
	defer q.mu.Unlock()

	qp := q.find(playerID)
	if qp == nil {
		return nil
	}
	wait := qp.WaitTime(e.clock())
	return &QueueStatus{
		ModeID:             modeID,
		PlayersInQueue:     q.len(),
		WaitTime:           wait,
		EstimatedRemaining: max(0, q.estimates[playerID]-wait),
		Position:           q.position(playerID),
	}
}

// QueuedPlayers returns a copy of the entries waiting in modeID in join order.
func (e *Engine) QueuedPlayers(modeID string) []QueuedPlayer {
	q, ok := e.queues[modeID]
	if !ok {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedPlayer, len(q.players))
	for i, qp := range q.players {
		out[i] = *qp
	}
	return out
}

// SyncServers refreshes the server pool from a registry listing.
func (e *Engine) SyncServers(servers []GameServer) {
	e.servers.Sync(servers)
}

// Servers returns a snapshot of the server pool.
func (e *Engine) Servers() []GameServer {
	return e.servers.Snapshot()
}
