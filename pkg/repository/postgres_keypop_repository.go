package repository

import (
	"context"
	"database/sql"

	"github.com/sjkd23/raidquota/pkg/errors"
)

// PostgresKeyPopRepository implements KeyPopRepository using PostgreSQL.
type PostgresKeyPopRepository struct {
	db *sql.DB
}

// NewPostgresKeyPopRepository creates a new PostgreSQL-backed key-pop
// counter store.
func NewPostgresKeyPopRepository(db *sql.DB) *PostgresKeyPopRepository {
	return &PostgresKeyPopRepository{
		db: db,
	}
}

// Increment adds one popped key for the user and dungeon. The upsert is
// atomic, so concurrent pops never lose counts.
func (r *PostgresKeyPopRepository) Increment(ctx context.Context, guildID, userID, dungeonKey string) error {
	query := `
		INSERT INTO key_pop_counts (guild_id, user_id, dungeon_key, count, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (guild_id, user_id, dungeon_key) DO UPDATE SET
			count = key_pop_counts.count + 1,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, guildID, userID, dungeonKey)
	if err != nil {
		return errors.ErrDatabaseError("increment key pops", err)
	}

	return nil
}
