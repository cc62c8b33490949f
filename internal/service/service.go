// Package service exposes the matchmaking engine over NATS. Requests arrive
// on matchmaking.request and are answered on the reply subject; session end
// notifications from game hosts release match capacity.
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/matching"
	"github.com/playforge/matchmaker/internal/metrics"
	"github.com/playforge/matchmaker/internal/playerstore"
	"github.com/playforge/matchmaker/internal/protocol"
	"github.com/playforge/matchmaker/internal/ratelimit"
)

const requestTimeout = 5 * time.Second

// Matchmaker is the engine surface the service drives.
type Matchmaker interface {
	JoinQueue(ctx context.Context, player matching.Player, modeID string) (matching.JoinResult, error)
	LeaveQueue(ctx context.Context, playerID string) matching.LeaveResult
	ConfirmMatch(matchID, playerID string) matching.ConfirmResult
	QueueStatus(playerID string) *matching.QueueStatus
	MatchDetails(matchID string) *matching.Match
	EndMatch(matchID string) error
}

// PlayerSource resolves player snapshots by id.
type PlayerSource interface {
	Get(ctx context.Context, id string) (matching.Player, error)
}

// Limiter throttles requests per player.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// Transport is the NATS side of the service.
type Transport interface {
	SubscribeRequests(handler func(data []byte) []byte) error
	SubscribeSessionEnded(handler func(data []byte)) error
}

// Service answers matchmaking requests.
type Service struct {
	engine  Matchmaker
	players PlayerSource
	limiter Limiter
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a service. limiter may be nil to disable rate limiting.
func New(engine Matchmaker, players PlayerSource, limiter Limiter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engine:  engine,
		players: players,
		limiter: limiter,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the request and session-end subjects.
func (s *Service) Start(t Transport) error {
	if err := t.SubscribeRequests(s.Handle); err != nil {
		return err
	}
	if err := t.SubscribeSessionEnded(s.HandleSessionEnded); err != nil {
		return err
	}
	s.logger.Info("matchmaking service started")
	return nil
}

// Stop cancels in-flight request contexts.
func (s *Service) Stop() {
	s.cancel()
	s.logger.Info("matchmaking service stopped")
}

// Handle processes one encoded request and returns the encoded reply.
func (s *Service) Handle(data []byte) []byte {
	ctx, cancel := context.WithTimeout(s.ctx, requestTimeout)
	defer cancel()

	msgType, msg, err := protocol.ParseRequest(data)
	if err != nil {
		s.logger.Debug("invalid request", zap.String("type", msgType), zap.Error(err))
		return s.reply(protocol.TypeError, protocol.ErrorMsg{Code: protocol.CodeBadRequest, Message: err.Error()})
	}

	switch req := msg.(type) {
	case protocol.JoinRequest:
		return s.handleJoin(ctx, req)
	case protocol.LeaveRequest:
		res := s.engine.LeaveQueue(ctx, req.PlayerID)
		return s.reply(protocol.TypeLeft, protocol.LeftMsg{Removed: res.Removed})
	case protocol.ConfirmRequest:
		return s.handleConfirm(ctx, req)
	case protocol.StatusRequest:
		if limited := s.throttle(ctx, req.PlayerID, ratelimit.RuleStatus); limited != nil {
			return limited
		}
		return s.reply(protocol.TypeQueueStatus, protocol.NewQueueStatus(s.engine.QueueStatus(req.PlayerID)))
	case protocol.MatchDetailsRequest:
		caller := req.PlayerID
		if caller == "" {
			caller = "match:" + req.MatchID
		}
		if limited := s.throttle(ctx, caller, ratelimit.RuleStatus); limited != nil {
			return limited
		}
		m := s.engine.MatchDetails(req.MatchID)
		if m == nil {
			return s.reply(protocol.TypeMatch, protocol.MatchMsg{})
		}
		view := protocol.NewMatchView(m)
		return s.reply(protocol.TypeMatch, protocol.MatchMsg{Found: true, Match: &view})
	case protocol.SessionEndedMsg:
		if err := s.engine.EndMatch(req.MatchID); err != nil {
			return s.errorReply(err)
		}
		return s.reply(protocol.TypeEnded, protocol.EndedMsg{MatchID: req.MatchID})
	default:
		return s.reply(protocol.TypeError, protocol.ErrorMsg{Code: protocol.CodeBadRequest, Message: "unsupported request"})
	}
}

func (s *Service) handleJoin(ctx context.Context, req protocol.JoinRequest) []byte {
	if req.PlayerID == "" || req.ModeID == "" {
		return s.reply(protocol.TypeError, protocol.ErrorMsg{Code: protocol.CodeBadRequest, Message: "player_id and mode_id are required"})
	}
	if limited := s.throttle(ctx, req.PlayerID, ratelimit.RuleJoin); limited != nil {
		metrics.JoinRejections.WithLabelValues("rate_limited").Inc()
		return limited
	}

	player, err := s.players.Get(ctx, req.PlayerID)
	if err != nil {
		return s.errorReply(err)
	}

	res, err := s.engine.JoinQueue(ctx, player, req.ModeID)
	if err != nil {
		return s.errorReply(err)
	}
	return s.reply(protocol.TypeJoined, protocol.JoinedMsg{
		ModeID:              req.ModeID,
		EstimatedWaitMillis: res.EstimatedWait.Milliseconds(),
	})
}

func (s *Service) handleConfirm(ctx context.Context, req protocol.ConfirmRequest) []byte {
	if limited := s.throttle(ctx, req.PlayerID, ratelimit.RuleConfirm); limited != nil {
		return limited
	}
	res := s.engine.ConfirmMatch(req.MatchID, req.PlayerID)
	return s.reply(protocol.TypeConfirmed, protocol.ConfirmedMsg{Accepted: res.Accepted})
}

// HandleSessionEnded releases a finished match announced by a game host.
func (s *Service) HandleSessionEnded(data []byte) {
	_, msg, err := protocol.ParseRequest(data)
	if err != nil {
		s.logger.Warn("invalid session end notification", zap.Error(err))
		return
	}
	req, ok := msg.(protocol.SessionEndedMsg)
	if !ok {
		s.logger.Warn("unexpected message on session end subject")
		return
	}
	if err := s.engine.EndMatch(req.MatchID); err != nil {
		s.logger.Warn("failed to end match", zap.String("match", req.MatchID), zap.Error(err))
	}
}

// throttle returns a rate_limited reply when playerID exceeded rule, nil
// otherwise. Limiter errors let the request through.
func (s *Service) throttle(ctx context.Context, playerID string, rule ratelimit.Rule) []byte {
	if s.limiter == nil {
		return nil
	}
	allowed, _ := s.limiter.Allow(ctx, playerID, rule)
	if allowed {
		return nil
	}
	retry := s.limiter.RetryAfter(ctx, playerID, rule)
	return s.reply(protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: int(retry.Seconds())})
}

func (s *Service) errorReply(err error) []byte {
	msg := protocol.ErrorMsg{Message: err.Error()}

	var (
		reqErr     *matching.RequirementError
		penaltyErr *matching.PenaltyError
	)
	switch {
	case errors.As(err, &reqErr):
		msg.Code = protocol.CodeRequirement
		msg.Requirement = reqErr.Requirement
		msg.Required = reqErr.Required
	case errors.Is(err, matching.ErrInvalidMode):
		msg.Code = protocol.CodeInvalidMode
	case errors.Is(err, matching.ErrAlreadyQueued):
		msg.Code = protocol.CodeAlreadyQueued
	case errors.As(err, &penaltyErr):
		msg.Code = protocol.CodePenalized
		msg.Reason = penaltyErr.Reason
		msg.RetryAfter = int(math.Ceil(penaltyErr.Remaining.Seconds()))
	case errors.Is(err, matching.ErrPenalized):
		msg.Code = protocol.CodePenalized
	case errors.Is(err, matching.ErrNotFound):
		msg.Code = protocol.CodeNotFound
	case errors.Is(err, matching.ErrMatchNotRunning):
		msg.Code = protocol.CodeMatchNotActive
	case errors.Is(err, playerstore.ErrPlayerNotFound):
		msg.Code = protocol.CodeUnknownPlayer
	default:
		s.logger.Error("request failed", zap.Error(err))
		msg.Code = protocol.CodeInternal
		msg.Message = "internal error"
	}
	return s.reply(protocol.TypeError, msg)
}

func (s *Service) reply(msgType string, payload any) []byte {
	data, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		s.logger.Error("failed to encode reply", zap.String("type", msgType), zap.Error(err))
		return nil
	}
	return data
}
