package repository

import (
	"context"
	"database/sql"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/errors"
)

// PostgresEventRepository implements EventRepository using PostgreSQL.
//
// Deduplication relies on a partial unique index over
// (guild_id, subject_id) WHERE action_type = 'run_completed' AND
// subject_id IS NOT NULL. The insert uses ON CONFLICT DO NOTHING against
// that index, so concurrent duplicate inserts resolve to exactly one
// winner and the losers see zero rows affected rather than a constraint
// violation.
type PostgresEventRepository struct {
	db *sql.DB
}

// NewPostgresEventRepository creates a new PostgreSQL-backed event ledger.
func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{
		db: db,
	}
}

// Insert appends one event to the ledger. Returns (false, nil) when the
// conditional insert found an existing run_completed row with the same
// (guild_id, subject_id).
func (r *PostgresEventRepository) Insert(ctx context.Context, event *domain.QuotaEvent) (bool, error) {
	query := `
		INSERT INTO quota_events (
			id, guild_id, actor_user_id, action_type,
			subject_id, dungeon_key, points, quota_points, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (guild_id, subject_id)
			WHERE action_type = 'run_completed' AND subject_id IS NOT NULL
			DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.GuildID,
		event.ActorUserID,
		event.ActionType,
		event.SubjectID,
		event.DungeonKey,
		event.Points,
		event.QuotaPoints,
		event.CreatedAt,
	)
	if err != nil {
		return false, errors.ErrDatabaseError("insert event", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.ErrDatabaseError("check rows affected", err)
	}

	return rowsAffected > 0, nil
}

// Exists reports whether any run_completed row with the given subject ID
// exists for the guild.
func (r *PostgresEventRepository) Exists(ctx context.Context, guildID, subjectID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM quota_events
			WHERE guild_id = $1 AND subject_id = $2 AND action_type = 'run_completed'
		)
	`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, guildID, subjectID).Scan(&exists)
	if err != nil {
		return false, errors.ErrDatabaseError("check event exists", err)
	}

	return exists, nil
}
