package db

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the tables owned by the quota engine and the
// configuration tables it reads. The partial unique index on quota_events
// is the ledger's sole deduplication mechanism: it constrains only
// run_completed rows with a subject ID, leaving all other inserts
// unconditional.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS quota_events (
		id UUID PRIMARY KEY,
		guild_id VARCHAR(32) NOT NULL,
		actor_user_id VARCHAR(32) NOT NULL,
		action_type VARCHAR(20) NOT NULL,
		subject_id TEXT NULL,
		dungeon_key VARCHAR(64) NULL,
		points INT NOT NULL DEFAULT 0,
		quota_points INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		CONSTRAINT check_action_type CHECK (action_type IN ('run_completed', 'verify_member'))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_quota_events_run_subject
		ON quota_events (guild_id, subject_id)
		WHERE action_type = 'run_completed' AND subject_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_quota_events_guild_actor
		ON quota_events (guild_id, actor_user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS key_pop_snapshots (
		run_id VARCHAR(64) NOT NULL,
		key_pop INT NOT NULL,
		user_id VARCHAR(32) NOT NULL,
		class VARCHAR(32) NOT NULL DEFAULT '',
		awarded_completion BOOLEAN NOT NULL DEFAULT false,
		awarded_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, key_pop, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS key_pop_counts (
		guild_id VARCHAR(32) NOT NULL,
		user_id VARCHAR(32) NOT NULL,
		dungeon_key VARCHAR(64) NOT NULL,
		count BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (guild_id, user_id, dungeon_key)
	)`,
	`CREATE TABLE IF NOT EXISTS quota_role_configs (
		guild_id VARCHAR(32) NOT NULL,
		role_id VARCHAR(32) NOT NULL,
		required_points INT NOT NULL DEFAULT 0,
		reset_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		base_exalt_points INT NOT NULL DEFAULT 0,
		base_non_exalt_points INT NOT NULL DEFAULT 0,
		verify_points INT NOT NULL DEFAULT 0,
		warn_points INT NOT NULL DEFAULT 0,
		suspend_points INT NOT NULL DEFAULT 0,
		modmail_reply_points INT NOT NULL DEFAULT 0,
		edit_name_points INT NOT NULL DEFAULT 0,
		add_note_points INT NOT NULL DEFAULT 0,
		panel_message_id VARCHAR(32) NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (guild_id, role_id)
	)`,
	`CREATE TABLE IF NOT EXISTS quota_dungeon_overrides (
		guild_id VARCHAR(32) NOT NULL,
		role_id VARCHAR(32) NOT NULL,
		dungeon_key VARCHAR(64) NOT NULL,
		points INT NOT NULL DEFAULT 0,
		PRIMARY KEY (guild_id, role_id, dungeon_key)
	)`,
	`CREATE TABLE IF NOT EXISTS raider_points_configs (
		guild_id VARCHAR(32) NOT NULL,
		dungeon_key VARCHAR(64) NOT NULL,
		points INT NOT NULL DEFAULT 0,
		PRIMARY KEY (guild_id, dungeon_key)
	)`,
	`CREATE TABLE IF NOT EXISTS key_pop_points_configs (
		guild_id VARCHAR(32) NOT NULL,
		dungeon_key VARCHAR(64) NOT NULL,
		points INT NOT NULL DEFAULT 0,
		PRIMARY KEY (guild_id, dungeon_key)
	)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
