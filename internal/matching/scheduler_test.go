package matching

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playforge/matchmaker/internal/catalog"
)

func TestTick_RankedSoloScenario(t *testing.T) {
	h := newHarness(t)

	for i := range 9 {
		h.join(t, player(fmt.Sprintf("p%d", i), 1480+i*4), "ranked-solo")
	}
	h.tick()
	assert.Empty(t, h.sink.created, "nine players cannot fill a ten-player match")
	assert.Len(t, h.engine.QueuedPlayers("ranked-solo"), 9)

	h.join(t, player("p9", 1520), "ranked-solo")
	h.tick()

	require.Len(t, h.sink.created, 1)
	m := h.sink.created[0].Match
	assert.Equal(t, "ranked-solo", m.ModeID)
	assert.Equal(t, StatusPending, m.Status)
	assert.Len(t, m.PlayerIDs(), 10)
	assert.Len(t, m.Teams, 10)
	for _, team := range m.Teams {
		assert.Len(t, team.Players, 1)
	}
	assert.Equal(t, 1.0, m.Fairness)
	assert.Equal(t, 40, m.RatingSpread)
	assert.Equal(t, "eu-1", m.Server.ID)
	assert.Equal(t, "dust-bowl", m.MapID)
	assert.Equal(t, epoch.Add(30*time.Second), m.ConfirmDeadline)

	assert.Empty(t, h.engine.QueuedPlayers("ranked-solo"))
	assert.Len(t, h.sink.found, 10)
	for _, id := range m.PlayerIDs() {
		assert.Nil(t, h.engine.QueueStatus(id))
	}

	servers := h.engine.Servers()
	assert.Equal(t, 10, servers[0].CurrentPlayers)
	assert.InDelta(t, 0.1, servers[0].Load, 1e-9)

	details := h.engine.MatchDetails(m.ID)
	require.NotNil(t, details)
	assert.Equal(t, m.ID, details.ID)
	assert.Nil(t, h.engine.MatchDetails("missing"))
}

func TestTick_CasualScenario(t *testing.T) {
	s := DefaultSettings()
	s.BalanceThreshold = 5000
	h := newHarness(t, WithSettings(s))

	ratings := []int{1000, 1000, 1000, 1000, 1000, 5000}
	for i, r := range ratings {
		h.join(t, player(fmt.Sprintf("c%d", i), r), "casual")
	}
	h.tick()
	assert.Empty(t, h.sink.created)

	for i := 6; i < 10; i++ {
		h.join(t, player(fmt.Sprintf("c%d", i), 1000), "casual")
	}
	h.tick()

	require.Len(t, h.sink.created, 1)
	m := h.sink.created[0].Match
	require.Len(t, m.Teams, 2)
	assert.Equal(t, "blue", m.Teams[0].Side)
	assert.Equal(t, "red", m.Teams[1].Side)
	for _, team := range m.Teams {
		assert.Len(t, team.Players, 5)
	}

	// The 5000 player is drafted first and opens the first team.
	assert.Equal(t, "c5", m.Teams[0].Players[0].ID)
	assert.InDelta(t, 1800, m.Teams[0].AverageRating, 1e-9)
	assert.InDelta(t, 1000, m.Teams[1].AverageRating, 1e-9)
	assert.InDelta(t, 1-800.0/5000, m.Fairness, 1e-9)
	assert.GreaterOrEqual(t, m.Fairness, 0.7)
}

func TestTick_UnfairTeamsWait(t *testing.T) {
	h := newHarness(t)

	ratings := []int{1000, 1000, 1000, 1000, 1000, 5000, 1000, 1000, 1000, 1000}
	for i, r := range ratings {
		h.join(t, player(fmt.Sprintf("c%d", i), r), "casual")
	}
	h.tick()

	assert.Empty(t, h.sink.created)
	assert.Len(t, h.engine.QueuedPlayers("casual"), 10)
}

func TestTick_PartyStaysTogether(t *testing.T) {
	h := newHarness(t)

	for i := range 3 {
		p := player(fmt.Sprintf("party-%d", i), 1500)
		p.PartyID = "squad"
		h.join(t, p, "casual")
	}
	for i := range 7 {
		h.join(t, player(fmt.Sprintf("solo-%d", i), 1490+i*5), "casual")
	}
	h.tick()

	require.Len(t, h.sink.created, 1)
	m := h.sink.created[0].Match

	teamOf := make(map[string]int)
	for i, team := range m.Teams {
		for _, p := range team.Players {
			teamOf[p.ID] = i
		}
	}
	assert.Equal(t, teamOf["party-0"], teamOf["party-1"])
	assert.Equal(t, teamOf["party-0"], teamOf["party-2"])
}

func TestTick_SearchExpansion(t *testing.T) {
	h := newHarness(t)

	h.join(t, player("low", 1500), "duel")
	h.join(t, player("high", 1800), "duel")

	h.tick()
	assert.Empty(t, h.sink.created)

	// 30s: three steps, spread 250.
	h.clock.Advance(30 * time.Second)
	h.tick()
	assert.Empty(t, h.sink.created)
	for _, qp := range h.engine.QueuedPlayers("duel") {
		assert.Equal(t, 500, qp.Range.Width())
	}

	// 40s: spread 300 puts each in the other's window.
	h.clock.Advance(10 * time.Second)
	h.tick()
	require.Len(t, h.sink.created, 1)
	assert.Equal(t, 300, h.sink.created[0].Match.RatingSpread)
}

func TestTick_RangeNeverShrinks(t *testing.T) {
	h := newHarness(t)
	h.join(t, player("p1", 1500), "ranked-solo")

	var last int
	for range 6 {
		h.clock.Advance(7 * time.Second)
		h.tick()
		width := h.engine.QueuedPlayers("ranked-solo")[0].Range.Width()
		assert.GreaterOrEqual(t, width, last)
		last = width
	}

	narrow := DefaultSettings()
	narrow.BaseRatingRange = 0
	h.engine.UpdateSettings(narrow)
	h.clock.Advance(time.Second)
	h.tick()
	assert.Equal(t, last, h.engine.QueuedPlayers("ranked-solo")[0].Range.Width())
}

func TestTick_RegionAndLatency(t *testing.T) {
	h := newHarness(t)

	eu := player("eu", 1500)
	na := player("na", 1500)
	na.Region = "na"
	h.join(t, eu, "duel")
	h.join(t, na, "duel")

	h.tick()
	assert.Empty(t, h.sink.created, "regions differ without cross-play")

	s := DefaultSettings()
	s.CrossPlay = true
	h.engine.UpdateSettings(s)
	h.tick()
	require.Len(t, h.sink.created, 1)

	slow := player("slow", 1500)
	slow.Latency = 200 * time.Millisecond
	h.join(t, player("fast", 1500), "duel")
	h.join(t, slow, "duel")
	h.tick()
	assert.Len(t, h.sink.created, 1, "latency gap above 100ms")
}

func TestTick_NoServerAvailable(t *testing.T) {
	h := newHarness(t, WithServers([]GameServer{
		{ID: "full", Region: "eu", MaxPlayers: 10, CurrentPlayers: 9, Status: ServerOnline},
		{ID: "down", Region: "eu", MaxPlayers: 100, Status: ServerMaintenance},
	}))

	h.join(t, player("a", 1500), "duel")
	h.join(t, player("b", 1500), "duel")
	h.tick()

	assert.Empty(t, h.sink.created)
	assert.Len(t, h.engine.QueuedPlayers("duel"), 2)

	h.engine.SyncServers([]GameServer{
		{ID: "fresh", Region: "eu", MaxPlayers: 100, Status: ServerOnline},
	})
	h.tick()
	require.Len(t, h.sink.created, 1)
	assert.Equal(t, "fresh", h.sink.created[0].Match.Server.ID)
}

func TestTick_FormsSeveralMatches(t *testing.T) {
	h := newHarness(t)
	for i := range 5 {
		h.join(t, player(fmt.Sprintf("p%d", i), 1500), "duel")
	}
	h.tick()

	assert.Len(t, h.sink.created, 2)
	assert.Len(t, h.engine.QueuedPlayers("duel"), 1)
}

func TestTick_MapRotation(t *testing.T) {
	h := newHarness(t)
	mode, ok := h.engine.Catalog().Get("duel")
	require.True(t, ok)

	for i := range 2 * len(mode.Maps) {
		h.join(t, player(fmt.Sprintf("p%d", i), 1500), "duel")
	}
	h.tick()

	require.Len(t, h.sink.created, len(mode.Maps))
	for i, ev := range h.sink.created {
		assert.Equal(t, mode.Maps[i], ev.Match.MapID)
	}
}

type panickySink struct {
	*recordingSink
	mode string
}

func (s panickySink) MatchCreated(ctx context.Context, ev MatchCreatedEvent) {
	if ev.Match.ModeID == s.mode {
		panic("sink exploded")
	}
	s.recordingSink.MatchCreated(ctx, ev)
}

func TestTick_PanicInOneModeIsIsolated(t *testing.T) {
	rec := &recordingSink{}
	h := newHarness(t, WithEventSink(panickySink{recordingSink: rec, mode: "duel"}))

	h.join(t, player("d1", 1500), "duel")
	h.join(t, player("d2", 1500), "duel")
	for i := range 10 {
		h.join(t, player(fmt.Sprintf("r%d", i), 1500), "ranked-solo")
	}

	assert.NotPanics(t, h.tick)
	require.Len(t, rec.created, 1)
	assert.Equal(t, "ranked-solo", rec.created[0].Match.ModeID)
	assert.Empty(t, h.engine.QueuedPlayers("duel"))
}

func TestTick_ConcurrentJoinsAndLeaves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.tick()
			}
		}
	}()

	modes := []string{"duel", "ranked-solo", "casual"}
	var joiners sync.WaitGroup
	for w := range 8 {
		joiners.Add(1)
		go func() {
			defer joiners.Done()
			for i := range 40 {
				id := fmt.Sprintf("w%d-%d", w, i)
				_, _ = h.engine.JoinQueue(ctx, player(id, 1450+i), modes[(w+i)%len(modes)])
				if i%3 == 0 {
					h.engine.LeaveQueue(ctx, id)
				}
			}
		}()
	}
	joiners.Wait()
	close(stop)
	wg.Wait()
	h.tick()

	seen := make(map[string]string)
	for _, m := range h.sink.createdMatches() {
		for _, id := range m.PlayerIDs() {
			prev, dup := seen[id]
			assert.False(t, dup, "player %s in matches %s and %s", id, prev, m.ID)
			seen[id] = m.ID
			assert.Nil(t, h.engine.QueueStatus(id), "matched player %s still queued", id)
		}
	}

	inQueue := make(map[string]string)
	for _, mode := range modes {
		for _, qp := range h.engine.QueuedPlayers(mode) {
			prev, dup := inQueue[qp.ID]
			assert.False(t, dup, "player %s queued in %s and %s", qp.ID, prev, mode)
			inQueue[qp.ID] = mode
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)

	s := DefaultSettings()
	s.TickInterval = 5 * time.Millisecond
	e := NewEngine(cat, WithSettings(s))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Run(ctx), context.DeadlineExceeded)
}
