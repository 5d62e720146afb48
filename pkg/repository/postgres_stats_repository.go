package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/errors"

	"github.com/lib/pq" // PostgreSQL driver and array support
)

// PostgresStatsRepository implements StatsRepository using PostgreSQL.
type PostgresStatsRepository struct {
	db *sql.DB
}

// NewPostgresStatsRepository creates a new PostgreSQL-backed stats reader.
func NewPostgresStatsRepository(db *sql.DB) *PostgresStatsRepository {
	return &PostgresStatsRepository{
		db: db,
	}
}

// runCountExpr expands batch-correction rows to their embedded run count.
// A manual_log_run subject encodes "manual_log_run:<ts>:<user>:<count>";
// organic rows contribute exactly 1. A malformed count here fails the
// cast and surfaces as a query error, which is the intended treatment of
// a data-integrity bug.
const runCountExpr = `CASE
	WHEN subject_id LIKE 'manual_log_run:%'
		THEN split_part(subject_id, ':', 4)::BIGINT
	ELSE 1
END`

// Leaderboard ranks users for one category. The keys_popped category
// reads the counter store; all others reduce the ledger.
func (r *PostgresStatsRepository) Leaderboard(ctx context.Context, filter LeaderboardFilter) ([]domain.LeaderboardEntry, error) {
	if filter.Category == domain.CategoryKeysPopped {
		return r.keysPoppedLeaderboard(ctx, filter)
	}

	var valueExpr string
	var valueFilter string
	switch filter.Category {
	case domain.CategoryRunsOrganized:
		valueExpr = "SUM(" + runCountExpr + ")"
		valueFilter = " AND action_type = 'run_completed' AND quota_points > 0"
	case domain.CategoryDungeonCompletions:
		valueExpr = "SUM(" + runCountExpr + ")"
		valueFilter = " AND action_type = 'run_completed' AND points > 0"
	case domain.CategoryPoints:
		valueExpr = "SUM(points)"
		valueFilter = " AND points > 0"
	case domain.CategoryQuotaPoints:
		valueExpr = "SUM(quota_points)"
		valueFilter = " AND quota_points > 0"
	default:
		return nil, errors.ErrValidationFailed("category", fmt.Sprintf("unknown leaderboard category '%s'", filter.Category))
	}

	query := `
		SELECT actor_user_id, ` + valueExpr + ` AS value
		FROM quota_events
		WHERE guild_id = $1` + valueFilter
	args := []interface{}{filter.GuildID}

	if filter.DungeonKey != nil {
		args = append(args, *filter.DungeonKey)
		query += fmt.Sprintf(" AND dungeon_key = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	query += `
		GROUP BY actor_user_id
		HAVING ` + valueExpr + ` > 0
		ORDER BY value DESC, actor_user_id ASC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ErrDatabaseError("leaderboard query", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLeaderboardRows(rows)
}

// keysPoppedLeaderboard ranks users by the counter store. The store has
// no timestamps; date bounds in the filter are ignored here and the
// aggregator warns the caller.
func (r *PostgresStatsRepository) keysPoppedLeaderboard(ctx context.Context, filter LeaderboardFilter) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT user_id, SUM(count) AS value
		FROM key_pop_counts
		WHERE guild_id = $1`
	args := []interface{}{filter.GuildID}

	if filter.DungeonKey != nil {
		args = append(args, *filter.DungeonKey)
		query += fmt.Sprintf(" AND dungeon_key = $%d", len(args))
	}

	query += `
		GROUP BY user_id
		HAVING SUM(count) > 0
		ORDER BY value DESC, user_id ASC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.ErrDatabaseError("keys popped leaderboard query", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLeaderboardRows(rows)
}

// QuotaPointsByMember sums quota points per member over [start, end).
// Members with no ledger activity in the window still appear with a zero
// value: the role panel's purpose is to show who has not yet met quota.
func (r *PostgresStatsRepository) QuotaPointsByMember(ctx context.Context, guildID string, memberIDs []string, start, end time.Time) ([]domain.LeaderboardEntry, error) {
	if len(memberIDs) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	query := `
		SELECT m.user_id, COALESCE(SUM(e.quota_points), 0) AS value
		FROM UNNEST($2::VARCHAR(32)[]) AS m(user_id)
		LEFT JOIN quota_events e
			ON e.guild_id = $1
			AND e.actor_user_id = m.user_id
			AND e.quota_points > 0
			AND e.created_at >= $3
			AND e.created_at < $4
		GROUP BY m.user_id
		ORDER BY value DESC, m.user_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, guildID, pq.Array(memberIDs), start, end)
	if err != nil {
		return nil, errors.ErrDatabaseError("role quota query", err)
	}
	defer func() { _ = rows.Close() }()

	return scanLeaderboardRows(rows)
}

// UserTotals returns the ledger-derived aggregate counters for one user.
func (r *PostgresStatsRepository) UserTotals(ctx context.Context, guildID, userID string) (*UserTotals, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN points > 0 THEN points ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN quota_points > 0 THEN quota_points ELSE 0 END), 0),
			COALESCE(SUM(CASE
				WHEN action_type = 'run_completed' AND quota_points > 0
					THEN ` + runCountExpr + `
				ELSE 0
			END), 0),
			COALESCE(SUM(CASE WHEN action_type = 'verify_member' THEN 1 ELSE 0 END), 0)
		FROM quota_events
		WHERE guild_id = $1 AND actor_user_id = $2
	`

	var totals UserTotals
	err := r.db.QueryRowContext(ctx, query, guildID, userID).Scan(
		&totals.Points,
		&totals.QuotaPoints,
		&totals.RunsOrganized,
		&totals.Verifications,
	)
	if err != nil {
		return nil, errors.ErrDatabaseError("user totals query", err)
	}

	return &totals, nil
}

// KeysPopped returns the user's total popped keys from the counter store.
func (r *PostgresStatsRepository) KeysPopped(ctx context.Context, guildID, userID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(count), 0)
		FROM key_pop_counts
		WHERE guild_id = $1 AND user_id = $2
	`

	var total int64
	err := r.db.QueryRowContext(ctx, query, guildID, userID).Scan(&total)
	if err != nil {
		return 0, errors.ErrDatabaseError("keys popped query", err)
	}

	return total, nil
}

// DungeonBreakdown reconciles the user's per-dungeon ledger activity with
// the key-pop counter store via a full outer join: a dungeon may appear
// in one source and not the other.
func (r *PostgresStatsRepository) DungeonBreakdown(ctx context.Context, guildID, userID string) ([]*DungeonStats, error) {
	query := `
		SELECT
			COALESCE(l.dungeon_key, k.dungeon_key) AS dungeon_key,
			COALESCE(l.completions, 0),
			COALESCE(l.organized, 0),
			COALESCE(k.keys_popped, 0)
		FROM (
			SELECT dungeon_key,
				SUM(CASE WHEN points > 0 THEN ` + runCountExpr + ` ELSE 0 END) AS completions,
				SUM(CASE WHEN quota_points > 0 THEN ` + runCountExpr + ` ELSE 0 END) AS organized
			FROM quota_events
			WHERE guild_id = $1 AND actor_user_id = $2
				AND action_type = 'run_completed'
				AND dungeon_key IS NOT NULL
			GROUP BY dungeon_key
		) l
		FULL OUTER JOIN (
			SELECT dungeon_key, SUM(count) AS keys_popped
			FROM key_pop_counts
			WHERE guild_id = $1 AND user_id = $2
			GROUP BY dungeon_key
		) k ON l.dungeon_key = k.dungeon_key
		ORDER BY dungeon_key ASC
	`

	rows, err := r.db.QueryContext(ctx, query, guildID, userID)
	if err != nil {
		return nil, errors.ErrDatabaseError("dungeon breakdown query", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*DungeonStats
	for rows.Next() {
		var stats DungeonStats
		err := rows.Scan(
			&stats.DungeonKey,
			&stats.Completions,
			&stats.Organized,
			&stats.KeysPopped,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan dungeon breakdown row", err)
		}
		results = append(results, &stats)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate dungeon breakdown rows", err)
	}

	return results, nil
}

func scanLeaderboardRows(rows *sql.Rows) ([]domain.LeaderboardEntry, error) {
	var results []domain.LeaderboardEntry

	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.Value); err != nil {
			return nil, errors.ErrDatabaseError("scan leaderboard row", err)
		}
		results = append(results, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate leaderboard rows", err)
	}

	return results, nil
}
