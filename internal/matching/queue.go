package matching

import (
	"slices"
	"sync"
	"time"

	"github.com/playforge/matchmaker/internal/catalog"
)

// Queue holds the players waiting for one game mode. Players with a priority
// above 1 wait in the priority list, everyone else in the normal list; players
// keeps the combined join order.
//
// All methods expect the caller to hold mu.
type Queue struct {
	mu sync.Mutex

	mode     catalog.GameMode
	players  []*QueuedPlayer
	priority []*QueuedPlayer
	normal   []*QueuedPlayer

	averageWait time.Duration
	estimates   map[string]time.Duration
	nextMap     int
}

func newQueue(mode catalog.GameMode) *Queue {
	return &Queue{
		mode:      mode,
		estimates: make(map[string]time.Duration),
	}
}

// Mode returns the mode this queue serves.
func (q *Queue) Mode() catalog.GameMode {
	return q.mode
}

func (q *Queue) len() int {
	return len(q.players)
}

func (q *Queue) add(qp *QueuedPlayer, estimate time.Duration) {
	q.players = append(q.players, qp)
	if qp.Priority > 1 {
		q.priority = append(q.priority, qp)
	} else {
		q.normal = append(q.normal, qp)
	}
	q.estimates[qp.ID] = estimate
}

// remove drops playerID from every list and returns its entry, or nil.
func (q *Queue) remove(playerID string) *QueuedPlayer {
	var removed *QueuedPlayer
	match := func(qp *QueuedPlayer) bool {
		if qp.ID == playerID {
			removed = qp
			return true
		}
		return false
	}
	q.players = slices.DeleteFunc(q.players, match)
	q.priority = slices.DeleteFunc(q.priority, match)
	q.normal = slices.DeleteFunc(q.normal, match)
	delete(q.estimates, playerID)
	return removed
}

func (q *Queue) find(playerID string) *QueuedPlayer {
	for _, qp := range q.players {
		if qp.ID == playerID {
			return qp
		}
	}
	return nil
}

// position is 1-based: the priority list is served ahead of the normal list.
func (q *Queue) position(playerID string) int {
	for i, qp := range q.priority {
		if qp.ID == playerID {
			return i + 1
		}
	}
	for i, qp := range q.normal {
		if qp.ID == playerID {
			return len(q.priority) + i + 1
		}
	}
	return 0
}

func (q *Queue) averageRating(fallback int) float64 {
	if len(q.players) == 0 {
		return float64(fallback)
	}
	total := 0
	for _, qp := range q.players {
		total += qp.Rating
	}
	return float64(total) / float64(len(q.players))
}

func (q *Queue) baseWait(fallback time.Duration) time.Duration {
	if q.averageWait <= 0 {
		return fallback
	}
	return q.averageWait
}

// recordWaits sets the average wait to the mean wait of a just-matched group.
func (q *Queue) recordWaits(waits []time.Duration) {
	if len(waits) == 0 {
		return
	}
	var total time.Duration
	for _, w := range waits {
		total += w
	}
	q.averageWait = total / time.Duration(len(waits))
}

// pool returns the queued players in join order.
func (q *Queue) pool() []*QueuedPlayer {
	return slices.Clone(q.players)
}

// pickMap rotates through the mode's map pool.
func (q *Queue) pickMap() string {
	if len(q.mode.Maps) == 0 {
		return ""
	}
	m := q.mode.Maps[q.nextMap%len(q.mode.Maps)]
	q.nextMap++
	return m
}
