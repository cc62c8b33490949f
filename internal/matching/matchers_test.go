package matching

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playforge/matchmaker/internal/catalog"
)

func casualMode(t *testing.T) catalog.GameMode {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	mode, ok := cat.Get("casual")
	require.True(t, ok)
	return mode
}

func TestFairness(t *testing.T) {
	tests := []struct {
		name      string
		averages  []float64
		threshold float64
		want      float64
	}{
		{"single team", []float64{1500}, 500, 1},
		{"equal", []float64{1500, 1500}, 500, 1},
		{"close", []float64{1500, 1400}, 500, 0.8},
		{"at threshold", []float64{1000, 1500}, 500, 0},
		{"beyond threshold", []float64{1000, 5000}, 500, 0},
		{"three teams", []float64{1500, 1450, 1550}, 500, 0.8},
		{"zero threshold unequal", []float64{1500, 1501}, 0, 0},
		{"zero threshold equal", []float64{1500, 1500}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Fairness(tt.averages, tt.threshold), 1e-9)
		})
	}
}

func TestDraftTeams_GreedyInsertion(t *testing.T) {
	mode := casualMode(t)

	pool := []*QueuedPlayer{
		queued("a", 1000), queued("b", 1000), queued("c", 1000),
		queued("d", 1000), queued("e", 1000), queued("star", 5000),
	}
	assert.Nil(t, MatchTeams(pool, mode, DefaultSettings()), "six players cannot fill two teams")

	teams := DraftTeams(pool, mode)
	require.Len(t, teams, 2)
	assert.Equal(t, "star", teams[0][0].ID)
	assert.Len(t, teams[0], 5)
	assert.Len(t, teams[1], 1)
}

func TestDraftTeams_LowestAverageWins(t *testing.T) {
	mode := casualMode(t)

	p1 := queued("p1", 2000)
	p1.PartyID = "x"
	p2 := queued("p2", 1000)
	p2.PartyID = "y"

	teams := DraftTeams([]*QueuedPlayer{p1, p2, queued("solo", 1500)}, mode)
	require.Len(t, teams, 2)
	assert.Equal(t, []string{"p2", "solo"}, ids(teams[1]))
	assert.Equal(t, []string{"p1"}, ids(teams[0]))
}

func TestDraftTeams_OversizedPartySkipped(t *testing.T) {
	mode := casualMode(t)

	var pool []*QueuedPlayer
	for i := range 6 {
		qp := queued(fmt.Sprintf("big-%d", i), 1500)
		qp.PartyID = "stack"
		pool = append(pool, qp)
	}
	for i := range 10 {
		pool = append(pool, queued(fmt.Sprintf("solo-%d", i), 1500))
	}

	teams := MatchTeams(pool, mode, DefaultSettings())
	require.Len(t, teams, 2)
	for _, team := range teams {
		for _, qp := range team {
			assert.Empty(t, qp.PartyID)
		}
	}
}

func TestDraftTeams_SkipsFailedPairings(t *testing.T) {
	mode := casualMode(t)

	var pool []*QueuedPlayer
	for i := range 10 {
		qp := queued(fmt.Sprintf("c%d", i), 1500)
		if i < 9 {
			qp.AttemptedMatches["c9"] = struct{}{}
		}
		pool = append(pool, qp)
	}
	assert.Nil(t, MatchTeams(pool, mode, DefaultSettings()))

	pool = append(pool, queued("c10", 1500))
	teams := MatchTeams(pool, mode, DefaultSettings())
	require.Len(t, teams, 2)
	var drafted []string
	for _, team := range teams {
		drafted = append(drafted, ids(team)...)
	}
	assert.NotContains(t, drafted, "c9")
	assert.Contains(t, drafted, "c10")
}

func TestDraftTeams_PartyWithFailedPairingSkipped(t *testing.T) {
	mode := casualMode(t)

	first := queued("p1", 1500)
	first.PartyID = "x"
	first.AttemptedMatches["q2"] = struct{}{}
	q1, q2 := queued("q1", 1500), queued("q2", 1500)
	q1.PartyID, q2.PartyID = "y", "y"

	teams := DraftTeams([]*QueuedPlayer{first, q1, q2}, mode)
	require.Len(t, teams, 1)
	assert.Equal(t, []string{"p1"}, ids(teams[0]))
}

func TestMatchTeams_Properties(t *testing.T) {
	mode := casualMode(t)
	s := DefaultSettings()
	rng := rand.New(rand.NewPCG(7, 11))

	for round := range 200 {
		var pool []*QueuedPlayer
		for i := range 10 + rng.IntN(6) {
			qp := queued(fmt.Sprintf("r%d-%d", round, i), 1200+rng.IntN(600))
			if rng.IntN(4) == 0 {
				qp.PartyID = fmt.Sprintf("party-%d", rng.IntN(3))
			}
			pool = append(pool, qp)
		}

		teams := MatchTeams(pool, mode, s)
		if teams == nil {
			continue
		}
		require.Len(t, teams, mode.NumTeams())
		averages := make([]float64, len(teams))
		for i, team := range teams {
			require.Len(t, team, mode.TeamSize)
			averages[i] = newDraftTeam(team).average()
		}
		assert.GreaterOrEqual(t, Fairness(averages, s.BalanceThreshold), 0.7)
	}
}

func TestCompatible(t *testing.T) {
	s := DefaultSettings()

	a, b := queued("a", 1500), queued("b", 1500)
	assert.True(t, Compatible(a, b, s))

	b.Region = "na"
	assert.False(t, Compatible(a, b, s))
	s.CrossPlay = true
	assert.True(t, Compatible(a, b, s))

	b.Latency = a.Latency + 101*time.Millisecond
	assert.False(t, Compatible(a, b, s))
	b.Latency = a.Latency + 100*time.Millisecond
	assert.True(t, Compatible(a, b, s))

	a.AttemptedMatches["b"] = struct{}{}
	assert.False(t, Compatible(a, b, s))
	assert.False(t, Compatible(b, a, s))
}

func TestMatchSolo_Properties(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	mode, _ := cat.Get("ranked-solo")
	s := DefaultSettings()
	rng := rand.New(rand.NewPCG(1, 2))
	regions := []string{"eu", "na"}

	formed := 0
	for round := range 200 {
		var pool []*QueuedPlayer
		for i := range 10 + rng.IntN(30) {
			qp := queued(fmt.Sprintf("r%d-%d", round, i), 1400+rng.IntN(200))
			qp.Region = regions[rng.IntN(len(regions))]
			qp.Latency = time.Duration(10+rng.IntN(120)) * time.Millisecond
			expandSearch(qp, epoch.Add(time.Duration(rng.IntN(120))*time.Second), s)
			pool = append(pool, qp)
		}

		set := MatchSolo(pool, mode, s)
		if set == nil {
			continue
		}
		formed++
		require.Len(t, set, mode.MaxPlayers)
		for i, a := range set {
			for _, b := range set[i+1:] {
				assert.True(t, Compatible(a, b, s), "%s and %s incompatible", a.ID, b.ID)
				assert.True(t, a.Range.Contains(b.Rating), "%s outside %s range", b.ID, a.ID)
				assert.True(t, b.Range.Contains(a.Rating), "%s outside %s range", a.ID, b.ID)
			}
		}
	}
	assert.Positive(t, formed)
}

func TestMatchSolo_InsufficientPlayers(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	mode, _ := cat.Get("ranked-solo")

	var pool []*QueuedPlayer
	for i := range 9 {
		pool = append(pool, queued(fmt.Sprintf("p%d", i), 1500))
	}
	assert.Nil(t, MatchSolo(pool, mode, DefaultSettings()))
}

func TestRatingWindow(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, RatingRange{Min: 1400, Max: 1600}, ratingWindow(1500, 0, 50, s))
	assert.Equal(t, RatingRange{Min: 1400, Max: 1600}, ratingWindow(1500, 9999*time.Millisecond, 50, s))
	assert.Equal(t, RatingRange{Min: 1350, Max: 1650}, ratingWindow(1500, 10*time.Second, 50, s))
	assert.Equal(t, RatingRange{Min: 1100, Max: 1900}, ratingWindow(1500, 65*time.Second, 50, s))
}

func TestSelectServer(t *testing.T) {
	s := DefaultSettings()
	players := []Player{player("a", 1500), player("b", 1500)}

	servers := []GameServer{
		{ID: "na", Region: "na", MaxPlayers: 100, Status: ServerOnline},
		{ID: "eu-busy", Region: "eu", MaxPlayers: 100, CurrentPlayers: 80, Load: 0.8, Status: ServerOnline},
		{ID: "eu-idle", Region: "eu", MaxPlayers: 100, CurrentPlayers: 10, Load: 0.1, Status: ServerOnline},
	}
	srv, ok := SelectServer(servers, players, s)
	require.True(t, ok)
	assert.Equal(t, "eu-idle", srv.ID)

	// Same region at 0.8 load (130) still beats an idle cross-region host (150).
	srv, ok = SelectServer(servers[:2], players, s)
	require.True(t, ok)
	assert.Equal(t, "eu-busy", srv.ID)

	unavailable := []GameServer{
		{ID: "off", Region: "eu", MaxPlayers: 100, Status: ServerOffline},
		{ID: "maint", Region: "eu", MaxPlayers: 100, Status: ServerMaintenance},
		{ID: "hot", Region: "eu", MaxPlayers: 100, CurrentPlayers: 90, Load: 0.9, Status: ServerOnline},
		{ID: "tight", Region: "eu", MaxPlayers: 20, CurrentPlayers: 19, Load: 0.85, Status: ServerOnline},
	}
	_, ok = SelectServer(unavailable, players, s)
	assert.False(t, ok)
}

func TestServerPool_ReserveRelease(t *testing.T) {
	s := DefaultSettings()
	pool := NewServerPool([]GameServer{
		{ID: "eu-1", Region: "eu", MaxPlayers: 10, Status: ServerOnline},
	})
	players := []Player{player("a", 1500), player("b", 1500)}

	srv, ok := pool.reserve(players, s)
	require.True(t, ok)
	assert.Equal(t, 2, srv.CurrentPlayers)
	assert.InDelta(t, 0.2, srv.Load, 1e-9)

	// A registry refresh keeps the locally tracked count.
	pool.Sync([]GameServer{{ID: "eu-1", Name: "renamed", Region: "eu", MaxPlayers: 10, Status: ServerOnline}})
	snap := pool.Snapshot()
	assert.Equal(t, "renamed", snap[0].Name)
	assert.Equal(t, 2, snap[0].CurrentPlayers)

	pool.release("eu-1", 2)
	pool.release("eu-1", 5)
	assert.Equal(t, 0, pool.Snapshot()[0].CurrentPlayers)

	pool.Sync(nil)
	assert.Equal(t, ServerOffline, pool.Snapshot()[0].Status)
	_, ok = pool.reserve(players, s)
	assert.False(t, ok)
}

func ids(team []*QueuedPlayer) []string {
	out := make([]string, len(team))
	for i, qp := range team {
		out[i] = qp.ID
	}
	return out
}
