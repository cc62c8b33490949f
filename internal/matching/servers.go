package matching

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// ServerPool tracks the game servers matches can be assigned to. Player
// counts change only through reserve and release.
type ServerPool struct {
	mu      sync.Mutex
	servers []*GameServer // sorted by ID
}

// NewServerPool builds a pool from servers.
func NewServerPool(servers []GameServer) *ServerPool {
	p := &ServerPool{}
	for _, srv := range servers {
		p.upsertLocked(srv, false)
	}
	return p
}

// Sync upserts every server in list and marks servers missing from it
// offline. Offline entries stay in the pool so running matches can release
// their capacity.
func (p *ServerPool) Sync(list []GameServer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]bool, len(list))
	for _, srv := range list {
		seen[srv.ID] = true
		p.upsertLocked(srv, true)
	}
	for _, srv := range p.servers {
		if !seen[srv.ID] {
			srv.Status = ServerOffline
		}
	}
}

func (p *ServerPool) upsertLocked(srv GameServer, keepCount bool) {
	srv = srv.clone()
	i, found := slices.BinarySearchFunc(p.servers, srv.ID, func(s *GameServer, id string) int {
		return cmp.Compare(s.ID, id)
	})
	if found {
		if keepCount {
			srv.CurrentPlayers = p.servers[i].CurrentPlayers
		}
		srv.recomputeLoad()
		p.servers[i] = &srv
		return
	}
	srv.recomputeLoad()
	p.servers = slices.Insert(p.servers, i, &srv)
}

// Snapshot returns copies of every server in ID order.
func (p *ServerPool) Snapshot() []GameServer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GameServer, len(p.servers))
	for i, srv := range p.servers {
		out[i] = srv.clone()
	}
	return out
}

// reserve selects a server for players and adds them to its player count in
// one step, so concurrent mode ticks cannot oversubscribe a host.
func (p *ServerPool) reserve(players []Player, s Settings) (GameServer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := make([]GameServer, len(p.servers))
	for i, srv := range p.servers {
		candidates[i] = *srv
	}
	chosen, ok := SelectServer(candidates, players, s)
	if !ok {
		return GameServer{}, false
	}
	for _, srv := range p.servers {
		if srv.ID == chosen.ID {
			srv.CurrentPlayers += len(players)
			srv.recomputeLoad()
			return srv.clone(), true
		}
	}
	return GameServer{}, false
}

// release returns n player slots to serverID.
func (p *ServerPool) release(serverID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, srv := range p.servers {
		if srv.ID == serverID {
			srv.CurrentPlayers = max(0, srv.CurrentPlayers-n)
			srv.recomputeLoad()
			return
		}
	}
}

// EstimateLatency is the latency assumed for player on srv: BaseLatency, plus
// CrossRegionPenalty when the regions differ.
func EstimateLatency(player Player, srv GameServer, s Settings) time.Duration {
	latency := s.BaseLatency
	if player.Region != srv.Region {
		latency += s.CrossRegionPenalty
	}
	return latency
}

// SelectServer picks the online server under MaxServerLoad with room for
// every player and the lowest score, where score is the mean estimated
// latency in milliseconds plus load*100. Ties go to the earlier server.
func SelectServer(servers []GameServer, players []Player, s Settings) (GameServer, bool) {
	var (
		best      GameServer
		bestScore float64
		found     bool
	)
	for _, srv := range servers {
		if srv.Status != ServerOnline || srv.Load >= s.MaxServerLoad {
			continue
		}
		if srv.MaxPlayers > 0 && srv.CurrentPlayers+len(players) > srv.MaxPlayers {
			continue
		}
		score := averageLatencyMillis(players, srv, s) + srv.Load*100
		if !found || score < bestScore {
			best, bestScore, found = srv, score, true
		}
	}
	if !found {
		return GameServer{}, false
	}
	return best.clone(), true
}

func averageLatencyMillis(players []Player, srv GameServer, s Settings) float64 {
	if len(players) == 0 {
		return 0
	}
	var total time.Duration
	for _, p := range players {
		total += EstimateLatency(p, srv, s)
	}
	return float64(total) / float64(time.Millisecond) / float64(len(players))
}
