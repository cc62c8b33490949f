package matching

import (
	"context"
	"time"
)

// JoinedEvent is emitted when a player enters a queue.
type JoinedEvent struct {
	PlayerID      string
	ModeID        string
	EstimatedWait time.Duration
}

// LeftEvent is emitted when a player leaves a queue voluntarily.
type LeftEvent struct {
	PlayerID string
	ModeID   string
}

// MatchFoundEvent is emitted once per participant of a freshly built match.
type MatchFoundEvent struct {
	PlayerID   string
	MatchID    string
	ModeID     string
	Map        string
	ServerName string
}

// MatchCreatedEvent summarises a freshly built match.
type MatchCreatedEvent struct {
	Match *Match
}

// MatchStartedEvent is emitted when every participant confirmed in time.
type MatchStartedEvent struct {
	MatchID string
	ModeID  string
	Teams   []Team
	Map     string
	Server  GameServer
}

// MatchCancelledEvent is emitted when the confirmation window closed with at
// least one participant unconfirmed.
type MatchCancelledEvent struct {
	MatchID     string
	ModeID      string
	Confirmed   []string
	Unconfirmed []string
}

// PenaltyEvent is emitted for each participant that failed to confirm.
type PenaltyEvent struct {
	PlayerID string
	MatchID  string
	Reason   string
	Duration time.Duration
}

// PenaltyReasonNoConfirm is the reason attached to confirmation penalties.
const PenaltyReasonNoConfirm = "match_not_confirmed"

// EventSink receives engine events. Implementations own delivery and must not
// block for long; errors are theirs to log.
type EventSink interface {
	QueueJoined(ctx context.Context, ev JoinedEvent)
	QueueLeft(ctx context.Context, ev LeftEvent)
	MatchFound(ctx context.Context, ev MatchFoundEvent)
	MatchCreated(ctx context.Context, ev MatchCreatedEvent)
	MatchStarted(ctx context.Context, ev MatchStartedEvent)
	MatchCancelled(ctx context.Context, ev MatchCancelledEvent)
	PlayerPenalized(ctx context.Context, ev PenaltyEvent)
}

// NopSink discards every event. Embed it to implement only the methods a sink
// cares about.
type NopSink struct{}

func (NopSink) QueueJoined(context.Context, JoinedEvent) {}
func (NopSink) QueueLeft(context.Context, LeftEvent) {}
func (NopSink) MatchFound(context.Context, MatchFoundEvent) {}
func (NopSink) MatchCreated(context.Context, MatchCreatedEvent) {}
func (NopSink) MatchStarted(context.Context, MatchStartedEvent) {}
func (NopSink) MatchCancelled(context.Context, MatchCancelledEvent) {}
func (NopSink) PlayerPenalized(context.Context, PenaltyEvent) {}

// Sinks fans every event out to each sink in order.
type Sinks []EventSink

func (s Sinks) QueueJoined(ctx context.Context, ev JoinedEvent) {
	for _, sink := range s {
		sink.QueueJoined(ctx, ev)
	}
}

func (s Sinks) QueueLeft(ctx context.Context, ev LeftEvent) {
	for _, sink := range s {
		sink.QueueLeft(ctx, ev)
	}
}

func (s Sinks) MatchFound(ctx context.Context, ev MatchFoundEvent) {
	for _, sink := range s {
		sink.MatchFound(ctx, ev)
	}
}

func (s Sinks) MatchCreated(ctx context.Context, ev MatchCreatedEvent) {
	for _, sink := range s {
		sink.MatchCreated(ctx, ev)
	}
}

func (s Sinks) MatchStarted(ctx context.Context, ev MatchStartedEvent) {
	for _, sink := range s {
		sink.MatchStarted(ctx, ev)
	}
}

func (s Sinks) MatchCancelled(ctx context.Context, ev MatchCancelledEvent) {
	for _, sink := range s {
		sink.MatchCancelled(ctx, ev)
	}
}

func (s Sinks) PlayerPenalized(ctx context.Context, ev PenaltyEvent) {
	for _, sink := range s {
		sink.PlayerPenalized(ctx, ev)
	}
}

// Penalty is a player's active matchmaking ban.
type Penalty struct {
	Reason    string
	Remaining time.Duration
}

// PenaltyChecker returns a player's active penalty, or nil when the player is
// free to queue.
type PenaltyChecker interface {
	ActivePenalty(ctx context.Context, playerID string) (*Penalty, error)
}

// SessionLauncher hands a started match to the game-hosting side.
type SessionLauncher interface {
	Launch(ctx context.Context, m *Match) error
}
