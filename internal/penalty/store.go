// Package penalty keeps matchmaking penalties in Redis. A penalty is a simple
// key-value pair with TTL-based expiry:
//
//	Key:   penalty:<player_id>
//	Value: <reason>
//	TTL:   penalty duration
//
// An offense counter per player lives alongside; Penalize reports it so
// repeat offenders show up in the logs.
package penalty

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/matching"
)

const (
	// PenaltyPrefix is the Redis key prefix for active penalties.
	PenaltyPrefix = "penalty:"

	// OffensesPrefix is the Redis key prefix for offense counters.
	OffensesPrefix = "penalty_offenses:"

	// OffensesTTL is how long the offense counter lives. After 24h without
	// new offenses it resets to zero.
	OffensesTTL = 24 * time.Hour
)

// Store manages penalty records in Redis.
type Store struct {
	client *redis.Client
}

var _ matching.PenaltyChecker = (*Store)(nil)

// NewStore creates a new penalty store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// ActivePenalty returns playerID's penalty with its reason and remaining
// time, or nil when none is active. Redis errors are returned so the caller
// can fail open.
func (s *Store) ActivePenalty(ctx context.Context, playerID string) (*matching.Penalty, error) {
	key := PenaltyPrefix + playerID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to check penalty for %s", playerID)
	}

	p := &matching.Penalty{Reason: reason}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err == nil && ttl > 0 {
		p.Remaining = ttl
	}
	// An unreadable TTL still leaves the penalty in force.
	return p, nil
}

// Penalize bars playerID from queueing for duration and counts the offense.
// It returns the offense count within OffensesTTL.
func (s *Store) Penalize(ctx context.Context, playerID string, duration time.Duration, reason string) (int, error) {
	if err := s.client.Set(ctx, PenaltyPrefix+playerID, reason, duration).Err(); err != nil {
		return 0, eris.Wrapf(err, "failed to penalize %s", playerID)
	}

	key := OffensesPrefix + playerID
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, eris.Wrapf(err, "failed to count offense for %s", playerID)
	}
	// TTL only on first increment so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffensesTTL).Err(); err != nil {
			return 0, eris.Wrapf(err, "failed to expire offenses for %s", playerID)
		}
	}
	return int(count), nil
}

// Recorder is an event sink that persists penalty events to a Store.
type Recorder struct {
	matching.NopSink

	store  *Store
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(store *Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// PlayerPenalized stores the penalty.
func (r *Recorder) PlayerPenalized(ctx context.Context, ev matching.PenaltyEvent) {
	offenses, err := r.store.Penalize(ctx, ev.PlayerID, ev.Duration, ev.Reason)
	if err != nil {
		r.logger.Error("failed to record penalty",
			zap.String("player", ev.PlayerID),
			zap.String("match", ev.MatchID),
			zap.Error(err))
		return
	}
	r.logger.Info("player penalized",
		zap.String("player", ev.PlayerID),
		zap.String("match", ev.MatchID),
		zap.String("reason", ev.Reason),
		zap.Duration("duration", ev.Duration),
		zap.Int("offenses", offenses))
}
