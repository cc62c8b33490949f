package matching

import (
	"maps"
	"slices"
	"time"
)

// Player is a read-only snapshot of a player record taken when a request
// enters the engine.
type Player struct {
	ID            string
	Name          string
	Rating        int
	Level         int
	Wins          int
	Losses        int
	PreferredMode string
	Region        string
	Latency       time.Duration
	PartyID       string // empty when not partied
	GuildID       string // empty when not in a guild
	PremiumTier   int
}

// RatingRange is an inclusive window of acceptable opponent ratings.
type RatingRange struct {
	Min int
	Max int
}

// Contains reports whether rating lies within the window.
func (r RatingRange) Contains(rating int) bool {
	return rating >= r.Min && rating <= r.Max
}

// Width returns Max - Min.
func (r RatingRange) Width() int {
	return r.Max - r.Min
}

// QueuedPlayer is a Player plus the state it accumulates while waiting.
type QueuedPlayer struct {
	Player

	QueueTime     time.Time
	Priority      float64
	Range         RatingRange
	ExpansionRate int

	// AttemptedMatches holds ids of players this one must not be paired with
	// again (they failed to confirm a match both were placed in).
	AttemptedMatches map[string]struct{}
	Declined         int
}

// WaitTime returns how long the player has been queued at now.
func (qp *QueuedPlayer) WaitTime(now time.Time) time.Duration {
	if now.Before(qp.QueueTime) {
		return 0
	}
	return now.Sub(qp.QueueTime)
}

func (qp *QueuedPlayer) hasRejected(playerID string) bool {
	_, ok := qp.AttemptedMatches[playerID]
	return ok
}

// MatchStatus is the lifecycle state of a Match.
type MatchStatus string

const (
	StatusPending    MatchStatus = "pending"
	StatusReady      MatchStatus = "ready"
	StatusInProgress MatchStatus = "in-progress"
	StatusCancelled  MatchStatus = "cancelled"
	StatusCompleted  MatchStatus = "completed"
)

// Team is one side of a match.
type Team struct {
	ID            string
	Side          string
	Players       []Player
	AverageRating float64
	TotalRating   int
}

// ServerStatus is the availability of a game server.
type ServerStatus string

const (
	ServerOnline      ServerStatus = "online"
	ServerOffline     ServerStatus = "offline"
	ServerMaintenance ServerStatus = "maintenance"
)

// GameServer is a host that can run a match session.
type GameServer struct {
	ID             string
	Name           string
	Region         string
	Address        string
	CurrentPlayers int
	MaxPlayers     int
	Status         ServerStatus
	RegionLatency  map[string]time.Duration
	Load           float64
}

func (s GameServer) clone() GameServer {
	s.RegionLatency = maps.Clone(s.RegionLatency)
	return s
}

func (s *GameServer) recomputeLoad() {
	if s.MaxPlayers <= 0 {
		s.Load = 1
		return
	}
	s.Load = float64(s.CurrentPlayers) / float64(s.MaxPlayers)
}

// Match is a formed group of players assigned to a server and map.
type Match struct {
	ID              string
	ModeID          string
	Status          MatchStatus
	Teams           []Team
	MapID           string
	Server          GameServer
	CreatedAt       time.Time
	ConfirmDeadline time.Time
	StartedAt       time.Time
	EndedAt         time.Time
	AverageRating   float64
	RatingSpread    int
	Fairness        float64

	confirmed    map[string]bool
	participants []*QueuedPlayer
}

// PlayerIDs returns every participant id in team order.
func (m *Match) PlayerIDs() []string {
	var ids []string
	for _, t := range m.Teams {
		for _, p := range t.Players {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Confirmed reports whether playerID accepted the match.
func (m *Match) Confirmed(playerID string) bool {
	return m.confirmed[playerID]
}

// clone returns a copy safe to hand outside the engine.
func (m *Match) clone() *Match {
	c := *m
	c.Teams = make([]Team, len(m.Teams))
	for i, t := range m.Teams {
		t.Players = slices.Clone(t.Players)
		c.Teams[i] = t
	}
	c.Server = m.Server.clone()
	c.confirmed = maps.Clone(m.confirmed)
	c.participants = nil
	return &c
}
