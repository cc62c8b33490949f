package messaging

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/matching"
	"github.com/playforge/matchmaker/internal/protocol"
)

// Conn is the publishing side of a NATS connection.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher delivers engine events over NATS. Per-player events go to
// <subject>.<player_id>; match-wide events go to a fixed subject.
type Publisher struct {
	conn   Conn
	logger *zap.Logger
}

var (
	_ matching.EventSink       = (*Publisher)(nil)
	_ matching.SessionLauncher = (*Publisher)(nil)
)

// NewPublisher creates a Publisher.
func NewPublisher(conn Conn, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, logger: logger}
}

func (p *Publisher) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func (p *Publisher) QueueJoined(_ context.Context, ev matching.JoinedEvent) {
	p.publish(SubjectJoined+"."+ev.PlayerID, protocol.JoinedEvent{
		PlayerID:            ev.PlayerID,
		ModeID:              ev.ModeID,
		EstimatedWaitMillis: ev.EstimatedWait.Milliseconds(),
	})
}

func (p *Publisher) QueueLeft(_ context.Context, ev matching.LeftEvent) {
	p.publish(SubjectLeft+"."+ev.PlayerID, protocol.LeftEvent{
		PlayerID: ev.PlayerID,
		ModeID:   ev.ModeID,
	})
}

func (p *Publisher) MatchFound(_ context.Context, ev matching.MatchFoundEvent) {
	p.publish(SubjectMatchFound+"."+ev.PlayerID, protocol.MatchFoundEvent{
		PlayerID:   ev.PlayerID,
		MatchID:    ev.MatchID,
		ModeID:     ev.ModeID,
		Map:        ev.Map,
		ServerName: ev.ServerName,
	})
}

func (p *Publisher) MatchCreated(_ context.Context, ev matching.MatchCreatedEvent) {
	p.publish(SubjectMatchCreated, protocol.NewMatchView(ev.Match))
}

func (p *Publisher) MatchStarted(_ context.Context, ev matching.MatchStartedEvent) {
	p.publish(SubjectMatchStarted, protocol.MatchStartedEvent{
		MatchID: ev.MatchID,
		ModeID:  ev.ModeID,
		Teams:   protocol.NewTeamViews(ev.Teams),
		Map:     ev.Map,
		Server:  protocol.NewServerView(ev.Server),
	})
}

func (p *Publisher) MatchCancelled(_ context.Context, ev matching.MatchCancelledEvent) {
	p.publish(SubjectMatchCancelled, protocol.MatchCancelledEvent{
		MatchID:     ev.MatchID,
		ModeID:      ev.ModeID,
		Confirmed:   ev.Confirmed,
		Unconfirmed: ev.Unconfirmed,
	})
}

func (p *Publisher) PlayerPenalized(_ context.Context, ev matching.PenaltyEvent) {
	p.publish(SubjectPenalty+"."+ev.PlayerID, protocol.PenaltyEvent{
		PlayerID:       ev.PlayerID,
		MatchID:        ev.MatchID,
		Reason:         ev.Reason,
		DurationMillis: ev.Duration.Milliseconds(),
	})
}

// Launch hands a fully confirmed match to the game hosts on match.ready.
func (p *Publisher) Launch(_ context.Context, m *matching.Match) error {
	data, err := json.Marshal(protocol.NewMatchView(m))
	if err != nil {
		return eris.Wrap(err, "failed to marshal match")
	}
	if err := p.conn.Publish(SubjectMatchReady, data); err != nil {
		return eris.Wrapf(err, "failed to publish match %s", m.ID)
	}
	return nil
}
