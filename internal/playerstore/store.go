// Package playerstore reads player records from PostgreSQL. The matchmaker
// takes a snapshot of the record whenever a request enters the engine; it
// never writes ratings back.
package playerstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"

	"github.com/playforge/matchmaker/internal/matching"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrPlayerNotFound is returned by Get for unknown ids.
var ErrPlayerNotFound = errors.New("player not found")

// Store manages player records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new player store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the postgres driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to reach postgres")
	}
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return eris.Wrap(err, "failed to load migrations")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return eris.Wrap(err, "failed to create migrate driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return eris.Wrap(err, "failed to create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return eris.Wrap(err, "failed to apply migrations")
	}
	return nil
}

// Get returns the player snapshot for id.
func (s *Store) Get(ctx context.Context, id string) (matching.Player, error) {
	const query = `
		SELECT id, display_name, rating, level, wins, losses, preferred_mode,
		       region, latency_ms, COALESCE(party_id, ''), COALESCE(guild_id, ''), premium_tier
		FROM players
		WHERE id = $1`

	var (
		p         matching.Player
		latencyMs int
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Rating, &p.Level, &p.Wins, &p.Losses, &p.PreferredMode,
		&p.Region, &latencyMs, &p.PartyID, &p.GuildID, &p.PremiumTier,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return matching.Player{}, ErrPlayerNotFound
	}
	if err != nil {
		return matching.Player{}, eris.Wrapf(err, "failed to load player %s", id)
	}
	p.Latency = time.Duration(latencyMs) * time.Millisecond
	return p, nil
}

// Upsert inserts or replaces a player record.
func (s *Store) Upsert(ctx context.Context, p matching.Player) error {
	const query = `
		INSERT INTO players (id, display_name, rating, level, wins, losses, preferred_mode,
		                     region, latency_ms, party_id, guild_id, premium_tier)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12)
		ON CONFLICT (id) DO UPDATE SET
			display_name   = EXCLUDED.display_name,
			rating         = EXCLUDED.rating,
			level          = EXCLUDED.level,
			wins           = EXCLUDED.wins,
			losses         = EXCLUDED.losses,
			preferred_mode = EXCLUDED.preferred_mode,
			region         = EXCLUDED.region,
			latency_ms     = EXCLUDED.latency_ms,
			party_id       = EXCLUDED.party_id,
			guild_id       = EXCLUDED.guild_id,
			premium_tier   = EXCLUDED.premium_tier,
			updated_at     = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Rating, p.Level, p.Wins, p.Losses, p.PreferredMode,
		p.Region, p.Latency.Milliseconds(), p.PartyID, p.GuildID, p.PremiumTier,
	)
	if err != nil {
		return eris.Wrapf(err, "failed to upsert player %s", p.ID)
	}
	return nil
}
