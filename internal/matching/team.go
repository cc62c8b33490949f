package matching

import (
	"cmp"
	"slices"

	"github.com/playforge/matchmaker/internal/catalog"
)

type draftTeam struct {
	members []*QueuedPlayer
	total   int
}

func newDraftTeam(members []*QueuedPlayer) *draftTeam {
	t := &draftTeam{}
	for _, qp := range members {
		t.add(qp)
	}
	return t
}

func (t *draftTeam) add(qp *QueuedPlayer) {
	t.members = append(t.members, qp)
	t.total += qp.Rating
}

func (t *draftTeam) average() float64 {
	if len(t.members) == 0 {
		return 0
	}
	return float64(t.total) / float64(len(t.members))
}

// DraftTeams runs the greedy draft over pool and returns the teams it formed,
// full or not.
//
// Parties (players sharing a PartyID, in order of first appearance in pool)
// no larger than TeamSize seed teams until NumTeams exist. Solo players are
// then taken by descending rating and each joins the open team with the lowest
// average rating; a new team is opened only when every existing team is full
// and fewer than NumTeams exist. Solos that fit nowhere are left out.
//
// A player or party is also left out when it would share the match with
// someone either side lists in AttemptedMatches.
func DraftTeams(pool []*QueuedPlayer, mode catalog.GameMode) [][]*QueuedPlayer {
	numTeams := mode.NumTeams()

	var (
		partyOrder []string
		parties    = make(map[string][]*QueuedPlayer)
		solos      []*QueuedPlayer
	)
	for _, qp := range pool {
		if qp.PartyID == "" {
			solos = append(solos, qp)
			continue
		}
		if _, seen := parties[qp.PartyID]; !seen {
			partyOrder = append(partyOrder, qp.PartyID)
		}
		parties[qp.PartyID] = append(parties[qp.PartyID], qp)
	}

	var (
		teams  []*draftTeam
		picked []*QueuedPlayer
	)
	for _, id := range partyOrder {
		members := parties[id]
		if len(members) > mode.TeamSize || len(teams) >= numTeams {
			continue
		}
		if slices.ContainsFunc(members, func(qp *QueuedPlayer) bool { return clashes(picked, qp) }) {
			continue
		}
		teams = append(teams, newDraftTeam(members))
		picked = append(picked, members...)
	}

	slices.SortStableFunc(solos, func(a, b *QueuedPlayer) int {
		return cmp.Compare(b.Rating, a.Rating)
	})

	for _, qp := range solos {
		if clashes(picked, qp) {
			continue
		}
		var best *draftTeam
		for _, t := range teams {
			if len(t.members) >= mode.TeamSize {
				continue
			}
			if best == nil || t.average() < best.average() {
				best = t
			}
		}
		switch {
		case best != nil:
			best.add(qp)
		case len(teams) < numTeams:
			teams = append(teams, newDraftTeam([]*QueuedPlayer{qp}))
		default:
			continue
		}
		picked = append(picked, qp)
	}

	out := make([][]*QueuedPlayer, len(teams))
	for i, t := range teams {
		out[i] = t.members
	}
	return out
}

// clashes reports whether qp and anyone in picked list each other as a
// failed pairing.
func clashes(picked []*QueuedPlayer, qp *QueuedPlayer) bool {
	for _, other := range picked {
		if other.hasRejected(qp.ID) || qp.hasRejected(other.ID) {
			return true
		}
	}
	return false
}

// MatchTeams drafts teams from pool and returns them only when exactly
// NumTeams full teams formed and their fairness reaches the threshold.
func MatchTeams(pool []*QueuedPlayer, mode catalog.GameMode, s Settings) [][]*QueuedPlayer {
	if mode.IsSolo() || len(pool) < mode.MaxPlayers {
		return nil
	}

	teams := DraftTeams(pool, mode)
	if len(teams) != mode.NumTeams() {
		return nil
	}

	averages := make([]float64, len(teams))
	for i, members := range teams {
		if len(members) != mode.TeamSize {
			return nil
		}
		averages[i] = newDraftTeam(members).average()
	}

	if Fairness(averages, s.BalanceThreshold) < s.fairnessThreshold() {
		return nil
	}
	return teams
}
