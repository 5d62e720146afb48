package repository

import (
	"context"
	"database/sql"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/errors"

	"github.com/lib/pq" // PostgreSQL driver and array support
)

// PostgresConfigRepository implements ConfigRepository using PostgreSQL.
type PostgresConfigRepository struct {
	db *sql.DB
}

// NewPostgresConfigRepository creates a new PostgreSQL-backed config
// repository.
func NewPostgresConfigRepository(db *sql.DB) *PostgresConfigRepository {
	return &PostgresConfigRepository{
		db: db,
	}
}

const roleConfigColumns = `
	guild_id, role_id, required_points, reset_at, created_at,
	base_exalt_points, base_non_exalt_points,
	verify_points, warn_points, suspend_points,
	modmail_reply_points, edit_name_points, add_note_points,
	panel_message_id, updated_at
`

// GetRoleConfig returns the quota config for one guild role.
// Returns nil if no config row exists.
func (r *PostgresConfigRepository) GetRoleConfig(ctx context.Context, guildID, roleID string) (*domain.QuotaRoleConfig, error) {
	query := `
		SELECT ` + roleConfigColumns + `
		FROM quota_role_configs
		WHERE guild_id = $1 AND role_id = $2
	`

	cfg, err := scanRoleConfig(r.db.QueryRowContext(ctx, query, guildID, roleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("get role config", err)
	}

	return cfg, nil
}

// ListRoleConfigs returns the quota configs for the given roles, or for
// every configured role of the guild when roleIDs is empty.
func (r *PostgresConfigRepository) ListRoleConfigs(ctx context.Context, guildID string, roleIDs []string) ([]*domain.QuotaRoleConfig, error) {
	query := `
		SELECT ` + roleConfigColumns + `
		FROM quota_role_configs
		WHERE guild_id = $1
	`
	args := []interface{}{guildID}

	if len(roleIDs) > 0 {
		query += " AND role_id = ANY($2)"
		args = append(args, pq.Array(roleIDs))
	}

	query += " ORDER BY role_id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ErrDatabaseError("list role configs", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*domain.QuotaRoleConfig
	for rows.Next() {
		cfg, err := scanRoleConfig(rows)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan role config row", err)
		}
		results = append(results, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate role config rows", err)
	}

	return results, nil
}

// UpsertRoleConfig writes the full config row, creating it if absent.
// The row is written exactly as supplied, including created_at; the
// role-config service decides whether created_at moves.
func (r *PostgresConfigRepository) UpsertRoleConfig(ctx context.Context, cfg *domain.QuotaRoleConfig) error {
	query := `
		INSERT INTO quota_role_configs (
			guild_id, role_id, required_points, reset_at, created_at,
			base_exalt_points, base_non_exalt_points,
			verify_points, warn_points, suspend_points,
			modmail_reply_points, edit_name_points, add_note_points,
			panel_message_id, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW()
		)
		ON CONFLICT (guild_id, role_id) DO UPDATE SET
			required_points = EXCLUDED.required_points,
			reset_at = EXCLUDED.reset_at,
			created_at = EXCLUDED.created_at,
			base_exalt_points = EXCLUDED.base_exalt_points,
			base_non_exalt_points = EXCLUDED.base_non_exalt_points,
			verify_points = EXCLUDED.verify_points,
			warn_points = EXCLUDED.warn_points,
			suspend_points = EXCLUDED.suspend_points,
			modmail_reply_points = EXCLUDED.modmail_reply_points,
			edit_name_points = EXCLUDED.edit_name_points,
			add_note_points = EXCLUDED.add_note_points,
			panel_message_id = EXCLUDED.panel_message_id,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query,
		cfg.GuildID,
		cfg.RoleID,
		cfg.RequiredPoints,
		cfg.ResetAt,
		cfg.CreatedAt,
		cfg.BaseExaltPoints,
		cfg.BaseNonExaltPoints,
		cfg.VerifyPoints,
		cfg.WarnPoints,
		cfg.SuspendPoints,
		cfg.ModmailReplyPoints,
		cfg.EditNamePoints,
		cfg.AddNotePoints,
		cfg.PanelMessageID,
	)
	if err != nil {
		return errors.ErrDatabaseError("upsert role config", err)
	}

	return nil
}

// GetOverrides returns the dungeon overrides for the given roles and
// dungeon, or across every configured role when roleIDs is empty.
func (r *PostgresConfigRepository) GetOverrides(ctx context.Context, guildID, dungeonKey string, roleIDs []string) ([]*domain.DungeonOverride, error) {
	query := `
		SELECT guild_id, role_id, dungeon_key, points
		FROM quota_dungeon_overrides
		WHERE guild_id = $1 AND dungeon_key = $2
	`
	args := []interface{}{guildID, dungeonKey}

	if len(roleIDs) > 0 {
		query += " AND role_id = ANY($3)"
		args = append(args, pq.Array(roleIDs))
	}

	query += " ORDER BY role_id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ErrDatabaseError("get overrides", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*domain.DungeonOverride
	for rows.Next() {
		var override domain.DungeonOverride
		err := rows.Scan(
			&override.GuildID,
			&override.RoleID,
			&override.DungeonKey,
			&override.Points,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan override row", err)
		}
		results = append(results, &override)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate override rows", err)
	}

	return results, nil
}

// UpsertOverride writes one dungeon override.
func (r *PostgresConfigRepository) UpsertOverride(ctx context.Context, override *domain.DungeonOverride) error {
	query := `
		INSERT INTO quota_dungeon_overrides (guild_id, role_id, dungeon_key, points)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, role_id, dungeon_key) DO UPDATE SET
			points = EXCLUDED.points
	`

	_, err := r.db.ExecContext(ctx, query,
		override.GuildID,
		override.RoleID,
		override.DungeonKey,
		override.Points,
	)
	if err != nil {
		return errors.ErrDatabaseError("upsert override", err)
	}

	return nil
}

// GetRaiderPoints returns the guild-wide raider point value for a
// dungeon, or nil when none is configured.
func (r *PostgresConfigRepository) GetRaiderPoints(ctx context.Context, guildID, dungeonKey string) (*int, error) {
	return r.getPointsConfig(ctx, "raider_points_configs", guildID, dungeonKey)
}

// UpsertRaiderPoints writes the guild-wide raider point value.
func (r *PostgresConfigRepository) UpsertRaiderPoints(ctx context.Context, guildID, dungeonKey string, points int) error {
	return r.upsertPointsConfig(ctx, "raider_points_configs", guildID, dungeonKey, points)
}

// GetKeyPopPoints returns the guild-wide key-pop point value for a
// dungeon, or nil when none is configured.
func (r *PostgresConfigRepository) GetKeyPopPoints(ctx context.Context, guildID, dungeonKey string) (*int, error) {
	return r.getPointsConfig(ctx, "key_pop_points_configs", guildID, dungeonKey)
}

// UpsertKeyPopPoints writes the guild-wide key-pop point value.
func (r *PostgresConfigRepository) UpsertKeyPopPoints(ctx context.Context, guildID, dungeonKey string, points int) error {
	return r.upsertPointsConfig(ctx, "key_pop_points_configs", guildID, dungeonKey, points)
}

// getPointsConfig reads one guild-wide per-dungeon point value. The table
// name is one of two compile-time constants, never user input.
func (r *PostgresConfigRepository) getPointsConfig(ctx context.Context, table, guildID, dungeonKey string) (*int, error) {
	// #nosec G201
	query := `SELECT points FROM ` + table + ` WHERE guild_id = $1 AND dungeon_key = $2`

	var points int
	err := r.db.QueryRowContext(ctx, query, guildID, dungeonKey).Scan(&points)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrDatabaseError("get points config", err)
	}

	return &points, nil
}

func (r *PostgresConfigRepository) upsertPointsConfig(ctx context.Context, table, guildID, dungeonKey string, points int) error {
	// #nosec G201
	query := `
		INSERT INTO ` + table + ` (guild_id, dungeon_key, points)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, dungeon_key) DO UPDATE SET
			points = EXCLUDED.points
	`

	_, err := r.db.ExecContext(ctx, query, guildID, dungeonKey, points)
	if err != nil {
		return errors.ErrDatabaseError("upsert points config", err)
	}

	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoleConfig(row rowScanner) (*domain.QuotaRoleConfig, error) {
	var cfg domain.QuotaRoleConfig
	err := row.Scan(
		&cfg.GuildID,
		&cfg.RoleID,
		&cfg.RequiredPoints,
		&cfg.ResetAt,
		&cfg.CreatedAt,
		&cfg.BaseExaltPoints,
		&cfg.BaseNonExaltPoints,
		&cfg.VerifyPoints,
		&cfg.WarnPoints,
		&cfg.SuspendPoints,
		&cfg.ModmailReplyPoints,
		&cfg.EditNamePoints,
		&cfg.AddNotePoints,
		&cfg.PanelMessageID,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
