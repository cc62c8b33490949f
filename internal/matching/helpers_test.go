package matching

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playforge/matchmaker/internal/catalog"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// recordingSink keeps every event it receives.
type recordingSink struct {
	mu        sync.Mutex
	joined    []JoinedEvent
	left      []LeftEvent
	found     []MatchFoundEvent
	created   []MatchCreatedEvent
	started   []MatchStartedEvent
	cancelled []MatchCancelledEvent
	penalties []PenaltyEvent
}

func (s *recordingSink) QueueJoined(_ context.Context, ev JoinedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, ev)
}

func (s *recordingSink) QueueLeft(_ context.Context, ev LeftEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, ev)
}

func (s *recordingSink) MatchFound(_ context.Context, ev MatchFoundEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.found = append(s.found, ev)
}

func (s *recordingSink) MatchCreated(_ context.Context, ev MatchCreatedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, ev)
}

func (s *recordingSink) MatchStarted(_ context.Context, ev MatchStartedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, ev)
}

func (s *recordingSink) MatchCancelled(_ context.Context, ev MatchCancelledEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, ev)
}

func (s *recordingSink) PlayerPenalized(_ context.Context, ev PenaltyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.penalties = append(s.penalties, ev)
}

func (s *recordingSink) createdMatches() []*Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Match, len(s.created))
	for i, ev := range s.created {
		out[i] = ev.Match
	}
	return out
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	sink   *recordingSink
}

func testServers() []GameServer {
	return []GameServer{
		{ID: "eu-1", Name: "Frankfurt 1", Region: "eu", Address: "10.0.0.1:7777", MaxPlayers: 100, Status: ServerOnline},
		{ID: "na-1", Name: "Virginia 1", Region: "na", Address: "10.0.1.1:7777", MaxPlayers: 100, Status: ServerOnline},
	}
}

// ffa4 is a four-player free-for-all used by the confirmation tests.
func ffa4() catalog.GameMode {
	return catalog.GameMode{
		ID:         "ffa4",
		Name:       "Free For All",
		TeamSize:   1,
		MaxPlayers: 4,
		MinPlayers: 2,
		MinLevel:   1,
		Maps:       []string{"arena"},
	}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	return newHarnessWithCatalog(t, cat, opts...)
}

func newHarnessWithCatalog(t *testing.T, cat *catalog.Catalog, opts ...Option) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock(), sink: &recordingSink{}}

	var seq atomic.Int64
	base := []Option{
		WithClock(h.clock.Now),
		WithEventSink(h.sink),
		WithServers(testServers()),
		WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	}
	h.engine = NewEngine(cat, append(base, opts...)...)
	return h
}

func (h *harness) tick() {
	h.engine.Tick(context.Background(), h.clock.Now())
}

func (h *harness) join(t *testing.T, p Player, modeID string) JoinResult {
	t.Helper()
	res, err := h.engine.JoinQueue(context.Background(), p, modeID)
	require.NoError(t, err)
	return res
}

func player(id string, rating int) Player {
	return Player{
		ID:      id,
		Name:    "Player " + id,
		Rating:  rating,
		Level:   25,
		Region:  "eu",
		Latency: 30 * time.Millisecond,
	}
}

func queued(id string, rating int) *QueuedPlayer {
	s := DefaultSettings()
	return newQueuedPlayer(player(id, rating), epoch, s)
}
