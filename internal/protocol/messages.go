// Package protocol defines the JSON messages exchanged with the matchmaking
// service over NATS. Requests and replies follow an envelope format with a
// type discriminator; engine events are published as flat JSON objects.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/playforge/matchmaker/internal/matching"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Request types.
const (
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeConfirm      = "confirm"
	TypeStatus       = "status"
	TypeMatchDetails = "match_details"
	TypeSessionEnded = "session_ended"
)

// Reply types.
const (
	TypeJoined      = "joined"
	TypeLeft        = "left"
	TypeConfirmed   = "confirmed"
	TypeQueueStatus = "queue_status"
	TypeMatch       = "match"
	TypeEnded       = "ended"
	TypeRateLimited = "rate_limited"
	TypeError       = "error"
)

// Error codes carried by ErrorMsg.
const (
	CodeBadRequest     = "bad_request"
	CodeInvalidMode    = "invalid_mode"
	CodeRequirement    = "requirement_not_met"
	CodeAlreadyQueued  = "already_queued"
	CodePenalized      = "penalized"
	CodeNotFound       = "not_found"
	CodeUnknownPlayer  = "unknown_player"
	CodeMatchNotActive = "match_not_active"
	CodeInternal       = "internal"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest can be decoded into the concrete request later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// JoinRequest asks for a player to be queued for a mode.
type JoinRequest struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	ModeID   string `json:"mode_id"`
}

// LeaveRequest removes a player from whichever queue holds it.
type LeaveRequest struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

// ConfirmRequest accepts a pending match on behalf of a player.
type ConfirmRequest struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	MatchID  string `json:"match_id"`
}

// StatusRequest asks for a player's queue status.
type StatusRequest struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

// MatchDetailsRequest asks for a match record. Lookups are throttled per
// PlayerID, or per match when the caller is not a player.
type MatchDetailsRequest struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id,omitempty"`
	MatchID  string `json:"match_id"`
}

// SessionEndedMsg is published by the game-hosting side when a session ends.
type SessionEndedMsg struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id"`
}

// ParseRequest decodes raw request bytes into a typed request. It returns the
// request type, the decoded struct and any error. Unknown types are an error.
func ParseRequest(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse request: %w", err)
	}

	var (
		msg any
		err error
	)
	switch env.Type {
	case TypeJoin:
		var m JoinRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeave:
		var m LeaveRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeConfirm:
		var m ConfirmRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeStatus:
		var m StatusRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMatchDetails:
		var m MatchDetailsRequest
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSessionEnded:
		var m SessionEndedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown request type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// ---------------------------------------------------------------------------
// Replies
// ---------------------------------------------------------------------------

// JoinedMsg acknowledges a successful join.
type JoinedMsg struct {
	ModeID              string `json:"mode_id"`
	EstimatedWaitMillis int64  `json:"estimated_wait_ms"`
}

// LeftMsg answers a leave request.
type LeftMsg struct {
	Removed bool `json:"removed"`
}

// ConfirmedMsg answers a confirm request.
type ConfirmedMsg struct {
	Accepted bool `json:"accepted"`
}

// QueueStatusMsg answers a status request. Queued is false when the player is
// not waiting anywhere; the other fields are then zero.
type QueueStatusMsg struct {
	Queued                   bool   `json:"queued"`
	ModeID                   string `json:"mode_id,omitempty"`
	PlayersInQueue           int    `json:"players_in_queue,omitempty"`
	WaitTimeMillis           int64  `json:"wait_time_ms,omitempty"`
	EstimatedRemainingMillis int64  `json:"estimated_remaining_ms,omitempty"`
	Position                 int    `json:"position,omitempty"`
}

// MatchMsg answers a match_details request.
type MatchMsg struct {
	Found bool       `json:"found"`
	Match *MatchView `json:"match,omitempty"`
}

// RateLimitedMsg is returned when a player exceeds a request limit.
type RateLimitedMsg struct {
	RetryAfter int `json:"retry_after"`
}

// EndedMsg acknowledges a session_ended request.
type EndedMsg struct {
	MatchID string `json:"match_id"`
}

// ErrorMsg reports a failed request. Requirement and Required are set for
// requirement_not_met so the caller can show the threshold. Reason and
// RetryAfter (seconds) are set for penalized.
type ErrorMsg struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Requirement string `json:"requirement,omitempty"`
	Required    int    `json:"required,omitempty"`
	Reason      string `json:"reason,omitempty"`
	RetryAfter  int    `json:"retry_after,omitempty"`
}

// NewMessage creates a JSON-encoded message. msgType is injected into the
// payload under the "type" key.
func NewMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal message: %w", err)
	}
	return out, nil
}

// NewQueueStatus converts an engine queue status. A nil status means the
// player is not queued.
func NewQueueStatus(st *matching.QueueStatus) QueueStatusMsg {
	if st == nil {
		return QueueStatusMsg{}
	}
	return QueueStatusMsg{
		Queued:                   true,
		ModeID:                   st.ModeID,
		PlayersInQueue:           st.PlayersInQueue,
		WaitTimeMillis:           st.WaitTime.Milliseconds(),
		EstimatedRemainingMillis: st.EstimatedRemaining.Milliseconds(),
		Position:                 st.Position,
	}
}

// ---------------------------------------------------------------------------
// Match views and events
// ---------------------------------------------------------------------------

// PlayerView is the public part of a player inside a match. Confirmed is
// only filled in by NewMatchView.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
	Region    string `json:"region"`
	Confirmed bool   `json:"confirmed"`
}

// TeamView is one side of a match.
type TeamView struct {
	ID            string       `json:"id"`
	Side          string       `json:"side"`
	Players       []PlayerView `json:"players"`
	AverageRating float64      `json:"average_rating"`
	TotalRating   int          `json:"total_rating"`
}

// ServerView identifies the host of a match.
type ServerView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Region  string `json:"region"`
	Address string `json:"address"`
}

// MatchView is the wire form of a match.
type MatchView struct {
	ID              string     `json:"match_id"`
	ModeID          string     `json:"mode_id"`
	Status          string     `json:"status"`
	Map             string     `json:"map"`
	Server          ServerView `json:"server"`
	Teams           []TeamView `json:"teams"`
	AverageRating   float64    `json:"average_rating"`
	RatingSpread    int        `json:"rating_spread"`
	Fairness        float64    `json:"fairness"`
	CreatedAt       time.Time  `json:"created_at"`
	ConfirmDeadline time.Time  `json:"confirm_deadline"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// NewServerView converts a game server.
func NewServerView(srv matching.GameServer) ServerView {
	return ServerView{ID: srv.ID, Name: srv.Name, Region: srv.Region, Address: srv.Address}
}

// NewTeamViews converts match teams.
func NewTeamViews(teams []matching.Team) []TeamView {
	out := make([]TeamView, len(teams))
	for i, t := range teams {
		players := make([]PlayerView, len(t.Players))
		for j, p := range t.Players {
			players[j] = PlayerView{ID: p.ID, Name: p.Name, Rating: p.Rating, Region: p.Region}
		}
		out[i] = TeamView{
			ID:            t.ID,
			Side:          t.Side,
			Players:       players,
			AverageRating: t.AverageRating,
			TotalRating:   t.TotalRating,
		}
	}
	return out
}

// NewMatchView converts an engine match.
func NewMatchView(m *matching.Match) MatchView {
	v := MatchView{
		ID:              m.ID,
		ModeID:          m.ModeID,
		Status:          string(m.Status),
		Map:             m.MapID,
		Server:          NewServerView(m.Server),
		Teams:           NewTeamViews(m.Teams),
		AverageRating:   m.AverageRating,
		RatingSpread:    m.RatingSpread,
		Fairness:        m.Fairness,
		CreatedAt:       m.CreatedAt,
		ConfirmDeadline: m.ConfirmDeadline,
	}
	for i := range v.Teams {
		for j := range v.Teams[i].Players {
			p := &v.Teams[i].Players[j]
			p.Confirmed = m.Confirmed(p.ID)
		}
	}
	if !m.StartedAt.IsZero() {
		started := m.StartedAt
		v.StartedAt = &started
	}
	if !m.EndedAt.IsZero() {
		ended := m.EndedAt
		v.EndedAt = &ended
	}
	return v
}

// JoinedEvent is published on matchmaking.joined.<player_id>.
type JoinedEvent struct {
	PlayerID            string `json:"player_id"`
	ModeID              string `json:"mode_id"`
	EstimatedWaitMillis int64  `json:"estimated_wait_ms"`
}

// LeftEvent is published on matchmaking.left.<player_id>.
type LeftEvent struct {
	PlayerID string `json:"player_id"`
	ModeID   string `json:"mode_id"`
}

// MatchFoundEvent is published on matchmaking.match.found.<player_id>.
type MatchFoundEvent struct {
	PlayerID   string `json:"player_id"`
	MatchID    string `json:"match_id"`
	ModeID     string `json:"mode_id"`
	Map        string `json:"map"`
	ServerName string `json:"server_name"`
}

// MatchStartedEvent is published on match.started.
type MatchStartedEvent struct {
	MatchID string     `json:"match_id"`
	ModeID  string     `json:"mode_id"`
	Teams   []TeamView `json:"teams"`
	Map     string     `json:"map"`
	Server  ServerView `json:"server"`
}

// MatchCancelledEvent is published on match.cancelled.
type MatchCancelledEvent struct {
	MatchID     string   `json:"match_id"`
	ModeID      string   `json:"mode_id"`
	Confirmed   []string `json:"confirmed"`
	Unconfirmed []string `json:"unconfirmed"`
}

// PenaltyEvent is published on matchmaking.penalty.<player_id>.
type PenaltyEvent struct {
	PlayerID       string `json:"player_id"`
	MatchID        string `json:"match_id"`
	Reason         string `json:"reason"`
	DurationMillis int64  `json:"duration_ms"`
}
