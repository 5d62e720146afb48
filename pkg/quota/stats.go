package quota

import (
	"context"
	"time"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/errors"
	"github.com/sjkd23/raidquota/pkg/repository"
)

// Aggregator is the read-side service over the ledger and the key-pop
// counter store.
type Aggregator struct {
	stats repository.StatsRepository
}

// NewAggregator creates a stats aggregator.
func NewAggregator(stats repository.StatsRepository) *Aggregator {
	return &Aggregator{
		stats: stats,
	}
}

// LeaderboardQuery selects a ranking. Since/Until bound created_at as
// [Since, Until); either may be nil.
type LeaderboardQuery struct {
	GuildID    string
	Category   domain.LeaderboardCategory
	DungeonKey *string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// LeaderboardResult carries the ranked entries. DateFilterIgnored is set
// when the caller supplied a date range for the keys_popped category: the
// counter store has no timestamps, so the range cannot be applied and the
// caller must be told rather than silently served unfiltered data.
type LeaderboardResult struct {
	Entries           []domain.LeaderboardEntry `json:"entries"`
	DateFilterIgnored bool                      `json:"date_filter_ignored,omitempty"`
}

// Leaderboard ranks users for one of the five categories. All rankings
// exclude zero-total users and break ties on user ID ascending, so
// repeated queries over unchanged data paginate stably.
func (a *Aggregator) Leaderboard(ctx context.Context, q LeaderboardQuery) (*LeaderboardResult, error) {
	if q.GuildID == "" {
		return nil, errors.ErrValidationFailed("guild_id", "cannot be empty")
	}
	if !q.Category.IsValid() {
		return nil, errors.ErrValidationFailed("category", "unknown leaderboard category '"+string(q.Category)+"'")
	}

	entries, err := a.stats.Leaderboard(ctx, repository.LeaderboardFilter{
		GuildID:    q.GuildID,
		Category:   q.Category,
		DungeonKey: q.DungeonKey,
		Since:      q.Since,
		Until:      q.Until,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	result := &LeaderboardResult{Entries: entries}
	if q.Category == domain.CategoryKeysPopped && (q.Since != nil || q.Until != nil) {
		result.DateFilterIgnored = true
	}

	return result, nil
}

// LeaderboardForRole ranks the supplied role members by quota points over
// [periodStart, periodEnd), including members with zero activity. The
// role panel's purpose is to show who has not yet met quota, not just who
// has points.
func (a *Aggregator) LeaderboardForRole(ctx context.Context, guildID string, memberIDs []string, periodStart, periodEnd time.Time) ([]domain.LeaderboardEntry, error) {
	if guildID == "" {
		return nil, errors.ErrValidationFailed("guild_id", "cannot be empty")
	}

	entries, err := a.stats.QuotaPointsByMember(ctx, guildID, memberIDs, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	return entries, nil
}

// UserStats is the per-user stats view: ledger-derived totals, the
// key-pop counter total, and a per-dungeon breakdown reconciling both
// sources.
type UserStats struct {
	Points        int64                      `json:"points"`
	QuotaPoints   int64                      `json:"quota_points"`
	RunsOrganized int64                      `json:"runs_organized"`
	Verifications int64                      `json:"verifications"`
	KeysPopped    int64                      `json:"keys_popped"`
	Dungeons      []*repository.DungeonStats `json:"dungeons"`
}

// UserStats builds the stats view for one user.
func (a *Aggregator) UserStats(ctx context.Context, guildID, userID string) (*UserStats, error) {
	if guildID == "" {
		return nil, errors.ErrValidationFailed("guild_id", "cannot be empty")
	}
	if userID == "" {
		return nil, errors.ErrValidationFailed("user_id", "cannot be empty")
	}

	totals, err := a.stats.UserTotals(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	keysPopped, err := a.stats.KeysPopped(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}

	dungeons, err := a.stats.DungeonBreakdown(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	if dungeons == nil {
		dungeons = []*repository.DungeonStats{}
	}

	return &UserStats{
		Points:        totals.Points,
		QuotaPoints:   totals.QuotaPoints,
		RunsOrganized: totals.RunsOrganized,
		Verifications: totals.Verifications,
		KeysPopped:    keysPopped,
		Dungeons:      dungeons,
	}, nil
}
