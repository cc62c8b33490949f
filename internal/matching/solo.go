package matching

import (
	"cmp"
	"slices"

	"github.com/playforge/matchmaker/internal/catalog"
)

// Compatible reports whether a and b may share a match: same region (unless
// cross-play is on), no prior rejection in either direction, and latencies
// within MaxLatencyDiff of each other.
func Compatible(a, b *QueuedPlayer, s Settings) bool {
	if a.Region != b.Region && !s.CrossPlay {
		return false
	}
	if a.hasRejected(b.ID) || b.hasRejected(a.ID) {
		return false
	}
	diff := a.Latency - b.Latency
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.MaxLatencyDiff
}

// mutuallyInRange reports whether each player's rating lies within the
// other's current window.
func mutuallyInRange(a, b *QueuedPlayer) bool {
	return a.Range.Contains(b.Rating) && b.Range.Contains(a.Rating)
}

// MatchSolo carves one full solo match out of pool. Players are walked in
// ascending rating order; for each seed the next MaxPlayers-1 players that are
// in range and compatible with the seed and with everyone already picked
// complete the set. It returns nil when no full set can be formed.
func MatchSolo(pool []*QueuedPlayer, mode catalog.GameMode, s Settings) []*QueuedPlayer {
	if !mode.IsSolo() || mode.MaxPlayers < 1 || len(pool) < mode.MaxPlayers {
		return nil
	}

	sorted := slices.Clone(pool)
	slices.SortStableFunc(sorted, func(a, b *QueuedPlayer) int {
		return cmp.Compare(a.Rating, b.Rating)
	})

	need := mode.MaxPlayers - 1
	for i, seed := range sorted {
		picked := make([]*QueuedPlayer, 0, need)
		for j, candidate := range sorted {
			if len(picked) == need {
				break
			}
			if j == i {
				continue
			}
			if !mutuallyInRange(seed, candidate) || !Compatible(seed, candidate, s) {
				continue
			}
			if !fitsGroup(picked, candidate, s) {
				continue
			}
			picked = append(picked, candidate)
		}
		if len(picked) == need {
			return append([]*QueuedPlayer{seed}, picked...)
		}
	}
	return nil
}

func fitsGroup(group []*QueuedPlayer, candidate *QueuedPlayer, s Settings) bool {
	for _, member := range group {
		if !mutuallyInRange(member, candidate) || !Compatible(member, candidate, s) {
			return false
		}
	}
	return true
}
