package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/errors"
)

// PostgresSnapshotRepository implements SnapshotRepository using
// PostgreSQL.
type PostgresSnapshotRepository struct {
	db *sql.DB
}

// NewPostgresSnapshotRepository creates a new PostgreSQL-backed snapshot
// store.
func NewPostgresSnapshotRepository(db *sql.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{
		db: db,
	}
}

// InsertSnapshots records the roster present at a checkpoint in a single
// query. Rows that already exist for (run_id, key_pop, user_id) are left
// untouched, so re-snapshotting is idempotent.
func (r *PostgresSnapshotRepository) InsertSnapshots(ctx context.Context, runID string, keyPop int, roster []domain.RosterMember) error {
	if len(roster) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(roster))
	valueArgs := make([]interface{}, 0, len(roster)*4)

	for i, member := range roster {
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, false, NOW())",
			i*4+1, i*4+2, i*4+3, i*4+4,
		))
		valueArgs = append(valueArgs,
			runID,
			keyPop,
			member.UserID,
			member.Class,
		)
	}

	// Safe: valueStrings contains only parameterized placeholders, not
	// user input.
	// #nosec G201
	query := fmt.Sprintf(`
		INSERT INTO key_pop_snapshots (
			run_id, key_pop, user_id, class, awarded_completion, created_at
		) VALUES %s
		ON CONFLICT (run_id, key_pop, user_id) DO NOTHING
	`, strings.Join(valueStrings, ","))

	_, err := r.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		return errors.ErrDatabaseError("insert snapshots", err)
	}

	return nil
}

// ListUnawarded returns the snapshot rows at (run_id, key_pop) whose
// completion credit has not been awarded yet, ordered by user ID.
func (r *PostgresSnapshotRepository) ListUnawarded(ctx context.Context, runID string, keyPop int) ([]*domain.KeyPopSnapshot, error) {
	query := `
		SELECT run_id, key_pop, user_id, class, awarded_completion, awarded_at, created_at
		FROM key_pop_snapshots
		WHERE run_id = $1 AND key_pop = $2 AND awarded_completion = false
		ORDER BY user_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID, keyPop)
	if err != nil {
		return nil, errors.ErrDatabaseError("list unawarded snapshots", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*domain.KeyPopSnapshot
	for rows.Next() {
		var snapshot domain.KeyPopSnapshot
		err := rows.Scan(
			&snapshot.RunID,
			&snapshot.KeyPop,
			&snapshot.UserID,
			&snapshot.Class,
			&snapshot.AwardedCompletion,
			&snapshot.AwardedAt,
			&snapshot.CreatedAt,
		)
		if err != nil {
			return nil, errors.ErrDatabaseError("scan snapshot row", err)
		}
		results = append(results, &snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.ErrDatabaseError("iterate snapshot rows", err)
	}

	return results, nil
}

// MarkAwarded flips awarded_completion for one snapshot row. A second
// flip of the same row is a no-op with the same end value.
func (r *PostgresSnapshotRepository) MarkAwarded(ctx context.Context, runID string, keyPop int, userID string) error {
	query := `
		UPDATE key_pop_snapshots
		SET awarded_completion = true,
			awarded_at = NOW()
		WHERE run_id = $1 AND key_pop = $2 AND user_id = $3
		AND awarded_completion = false
	`

	_, err := r.db.ExecContext(ctx, query, runID, keyPop, userID)
	if err != nil {
		return errors.ErrDatabaseError("mark snapshot awarded", err)
	}

	return nil
}
