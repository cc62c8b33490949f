// Package fleet is the registry of game servers that can host matches. Game
// hosts register themselves as Redis hashes and heartbeat them; the
// matchmaker lists the registry and feeds it to the engine's server pool.
package fleet

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/playforge/matchmaker/internal/matching"
)

const (
	// ServerPrefix is the Redis key prefix for server hashes.
	ServerPrefix = "server:"

	// ServersKey is the set of registered server ids.
	ServersKey = "servers"

	// ServerTTL is how long a registration lives without a heartbeat.
	ServerTTL = 30 * time.Second
)

// Record is a game server as stored in Redis.
type Record struct {
	ID         string `redis:"id"`
	Name       string `redis:"name"`
	Region     string `redis:"region"`
	Address    string `redis:"address"`
	MaxPlayers int    `redis:"max_players"`
	Status     string `redis:"status"`    // online | offline | maintenance
	Heartbeat  int64  `redis:"heartbeat"` // unix timestamp
}

// GameServer converts the record for the engine's server pool.
func (r Record) GameServer() matching.GameServer {
	return matching.GameServer{
		ID:         r.ID,
		Name:       r.Name,
		Region:     r.Region,
		Address:    r.Address,
		MaxPlayers: r.MaxPlayers,
		Status:     matching.ServerStatus(r.Status),
	}
}

// Registry reads and writes server records.
type Registry struct {
	client *redis.Client
}

// NewRegistry creates a registry on client.
func NewRegistry(client *redis.Client) *Registry {
	return &Registry{client: client}
}

// Register stores or refreshes rec and restarts its TTL.
func (r *Registry) Register(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return eris.New("server id is empty")
	}
	if rec.Status == "" {
		rec.Status = string(matching.ServerOnline)
	}
	rec.Heartbeat = time.Now().Unix()

	key := ServerPrefix + rec.ID
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, rec)
	pipe.Expire(ctx, key, ServerTTL)
	pipe.SAdd(ctx, ServersKey, rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to register server %s", rec.ID)
	}
	return nil
}

// Deregister removes a server immediately.
func (r *Registry) Deregister(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, ServerPrefix+id)
	pipe.SRem(ctx, ServersKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to deregister server %s", id)
	}
	return nil
}

// List returns every live registration. Ids whose hash expired are pruned
// from the set.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	ids, err := r.client.SMembers(ctx, ServersKey).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to list servers")
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, ServerPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, eris.Wrap(err, "failed to read servers")
	}

	var (
		out   []Record
		stale []any
	)
	for i, cmd := range cmds {
		var rec Record
		if err := cmd.Scan(&rec); err != nil {
			return nil, eris.Wrapf(err, "failed to decode server %s", ids[i])
		}
		if rec.ID == "" {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		r.client.SRem(ctx, ServersKey, stale...)
	}
	return out, nil
}

// PoolSyncer receives registry listings.
type PoolSyncer interface {
	SyncServers(servers []matching.GameServer)
}

// SyncOnce lists the registry and hands the result to target.
func (r *Registry) SyncOnce(ctx context.Context, target PoolSyncer) (int, error) {
	records, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	servers := make([]matching.GameServer, len(records))
	for i, rec := range records {
		servers[i] = rec.GameServer()
	}
	target.SyncServers(servers)
	return len(servers), nil
}

// RunSync calls SyncOnce every interval until ctx is done. A failed listing
// leaves the pool as it was.
func (r *Registry) RunSync(ctx context.Context, target PoolSyncer, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := r.SyncOnce(ctx, target); err != nil {
			logger.Warn("fleet sync failed", zap.Error(err))
		} else {
			logger.Debug("fleet synced", zap.Int("servers", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
