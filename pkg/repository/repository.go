package repository

import (
	"context"
	"time"

	"github.com/sjkd23/raidquota/pkg/domain"
)

// EventRepository is the write side of the event ledger. The ledger is
// append-only: no method mutates or deletes existing rows.
type EventRepository interface {
	// Insert appends one event to the ledger. For run_completed events
	// with a non-nil subject ID the insert is conditional: if a row with
	// the same (guild_id, subject_id) already exists the insert is a
	// silent no-op and Insert returns (false, nil). All other inserts are
	// unconditional and return (true, nil) on success.
	//
	// Concurrent duplicate inserts must resolve to exactly one winner;
	// the losers observe (false, nil), never a constraint error. This is
	// the ledger's sole deduplication mechanism and makes every write
	// safe to retry blindly.
	Insert(ctx context.Context, event *domain.QuotaEvent) (inserted bool, err error)

	// Exists reports whether any run_completed row with the given subject
	// ID exists for the guild.
	Exists(ctx context.Context, guildID, subjectID string) (bool, error)
}

// SnapshotRepository stores key-pop presence snapshots. Rows are created
// unawarded, flipped to awarded exactly once, and never deleted.
type SnapshotRepository interface {
	// InsertSnapshots records the roster present at a checkpoint. Rows
	// that already exist for (run_id, key_pop, user_id) are ignored, so
	// re-snapshotting the same checkpoint is idempotent.
	InsertSnapshots(ctx context.Context, runID string, keyPop int, roster []domain.RosterMember) error

	// ListUnawarded returns the snapshot rows at (run_id, key_pop) whose
	// completion credit has not been awarded yet, ordered by user ID.
	ListUnawarded(ctx context.Context, runID string, keyPop int) ([]*domain.KeyPopSnapshot, error)

	// MarkAwarded flips awarded_completion for one snapshot row. Flipping
	// an already-awarded row is a harmless no-op (same end value).
	MarkAwarded(ctx context.Context, runID string, keyPop int, userID string) error
}

// KeyPopRepository is the write side of the key-pop counter store. The
// store is tracked separately from the ledger and carries no timestamps.
type KeyPopRepository interface {
	// Increment adds one popped key for the user and dungeon.
	Increment(ctx context.Context, guildID, userID, dungeonKey string) error
}

// ConfigRepository reads and writes the quota configuration tables. The
// tables are owned by the configuration subsystem; the engine reads them
// through this interface and the HTTP boundary writes them.
type ConfigRepository interface {
	// GetRoleConfig returns the quota config for one guild role, or nil
	// if none has been created.
	GetRoleConfig(ctx context.Context, guildID, roleID string) (*domain.QuotaRoleConfig, error)

	// ListRoleConfigs returns the quota configs for the given roles, or
	// for every configured role of the guild when roleIDs is empty.
	ListRoleConfigs(ctx context.Context, guildID string, roleIDs []string) ([]*domain.QuotaRoleConfig, error)

	// UpsertRoleConfig writes the full config row, creating it if absent.
	// CreatedAt preservation across partial updates is the caller's
	// responsibility, not the storage layer's.
	UpsertRoleConfig(ctx context.Context, cfg *domain.QuotaRoleConfig) error

	// GetOverrides returns the dungeon overrides for the given roles and
	// dungeon, or across every configured role when roleIDs is empty.
	GetOverrides(ctx context.Context, guildID, dungeonKey string, roleIDs []string) ([]*domain.DungeonOverride, error)

	// UpsertOverride writes one dungeon override.
	UpsertOverride(ctx context.Context, override *domain.DungeonOverride) error

	// GetRaiderPoints returns the guild-wide raider point value for a
	// dungeon, or nil when none is configured.
	GetRaiderPoints(ctx context.Context, guildID, dungeonKey string) (*int, error)

	// UpsertRaiderPoints writes the guild-wide raider point value.
	UpsertRaiderPoints(ctx context.Context, guildID, dungeonKey string, points int) error

	// GetKeyPopPoints returns the guild-wide key-pop point value for a
	// dungeon, or nil when none is configured.
	GetKeyPopPoints(ctx context.Context, guildID, dungeonKey string) (*int, error)

	// UpsertKeyPopPoints writes the guild-wide key-pop point value.
	UpsertKeyPopPoints(ctx context.Context, guildID, dungeonKey string, points int) error
}

// LeaderboardFilter narrows a ledger leaderboard query. Since/Until bound
// created_at as [Since, Until); either may be nil. DungeonKey filters to
// one dungeon. Limit <= 0 means no limit.
type LeaderboardFilter struct {
	GuildID    string
	Category   domain.LeaderboardCategory
	DungeonKey *string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// UserTotals are the per-user aggregate counters for the stats view.
type UserTotals struct {
	Points        int64
	QuotaPoints   int64
	RunsOrganized int64
	Verifications int64
}

// DungeonStats reconciles per-dungeon facts from the ledger and the
// key-pop counter store. A dungeon may appear in one source and not the
// other.
type DungeonStats struct {
	DungeonKey  string `json:"dungeon_key"`
	Completions int64  `json:"completions"`
	Organized   int64  `json:"organized"`
	KeysPopped  int64  `json:"keys_popped"`
}

// StatsRepository is the read side: reductions over the ledger and the
// key-pop counter store. All rankings exclude zero-total users and order
// by value descending with a deterministic tie-break on user ID
// ascending, so repeated queries over unchanged data are stable.
type StatsRepository interface {
	// Leaderboard ranks users for one category. Date bounds never apply
	// to the keys_popped category (the counter store has no timestamps);
	// validating and warning about that is the aggregator's job.
	Leaderboard(ctx context.Context, filter LeaderboardFilter) ([]domain.LeaderboardEntry, error)

	// QuotaPointsByMember sums quota points per member over [start, end),
	// including members with zero activity. Used by role-quota panels,
	// whose purpose is to show who has not yet met quota.
	QuotaPointsByMember(ctx context.Context, guildID string, memberIDs []string, start, end time.Time) ([]domain.LeaderboardEntry, error)

	// UserTotals returns the ledger-derived aggregate counters for one
	// user.
	UserTotals(ctx context.Context, guildID, userID string) (*UserTotals, error)

	// KeysPopped returns the user's total popped keys from the counter
	// store.
	KeysPopped(ctx context.Context, guildID, userID string) (int64, error)

	// DungeonBreakdown outer-joins the user's ledger activity and key-pop
	// counts per dungeon, ordered by dungeon key.
	DungeonBreakdown(ctx context.Context, guildID, userID string) ([]*DungeonStats, error)
}
