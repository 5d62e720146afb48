package quota

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEventRepository mimics the ledger's conditional-insert semantics in
// memory: run_completed rows with a subject ID are unique per guild.
type fakeEventRepository struct {
	events      []*domain.QuotaEvent
	seen        map[string]bool
	failForUser map[string]error
}

func newFakeEventRepository() *fakeEventRepository {
	return &fakeEventRepository{
		seen:        make(map[string]bool),
		failForUser: make(map[string]error),
	}
}

func (f *fakeEventRepository) Insert(_ context.Context, event *domain.QuotaEvent) (bool, error) {
	if err := f.failForUser[event.ActorUserID]; err != nil {
		return false, err
	}

	if event.ActionType == domain.ActionRunCompleted && event.SubjectID != nil {
		key := event.GuildID + "|" + *event.SubjectID
		if f.seen[key] {
			return false, nil
		}
		f.seen[key] = true
	}

	f.events = append(f.events, event)
	return true, nil
}

func (f *fakeEventRepository) Exists(_ context.Context, guildID, subjectID string) (bool, error) {
	return f.seen[guildID+"|"+subjectID], nil
}

type fakeSnapshotRepository struct {
	rows map[string]*domain.KeyPopSnapshot
}

func newFakeSnapshotRepository() *fakeSnapshotRepository {
	return &fakeSnapshotRepository{rows: make(map[string]*domain.KeyPopSnapshot)}
}

func snapshotKey(runID string, keyPop int, userID string) string {
	return fmt.Sprintf("%s|%d|%s", runID, keyPop, userID)
}

func (f *fakeSnapshotRepository) InsertSnapshots(_ context.Context, runID string, keyPop int, roster []domain.RosterMember) error {
	for _, member := range roster {
		key := snapshotKey(runID, keyPop, member.UserID)
		if _, ok := f.rows[key]; ok {
			continue
		}
		f.rows[key] = &domain.KeyPopSnapshot{
			RunID:     runID,
			KeyPop:    keyPop,
			UserID:    member.UserID,
			Class:     member.Class,
			CreatedAt: time.Now().UTC(),
		}
	}
	return nil
}

func (f *fakeSnapshotRepository) ListUnawarded(_ context.Context, runID string, keyPop int) ([]*domain.KeyPopSnapshot, error) {
	var out []*domain.KeyPopSnapshot
	for _, row := range f.rows {
		if row.RunID == runID && row.KeyPop == keyPop && !row.AwardedCompletion {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeSnapshotRepository) MarkAwarded(_ context.Context, runID string, keyPop int, userID string) error {
	if row, ok := f.rows[snapshotKey(runID, keyPop, userID)]; ok {
		now := time.Now().UTC()
		row.AwardedCompletion = true
		row.AwardedAt = &now
	}
	return nil
}

type fakeKeyPopRepository struct {
	counts map[string]int64
}

func newFakeKeyPopRepository() *fakeKeyPopRepository {
	return &fakeKeyPopRepository{counts: make(map[string]int64)}
}

func (f *fakeKeyPopRepository) Increment(_ context.Context, guildID, userID, dungeonKey string) error {
	f.counts[guildID+"|"+userID+"|"+dungeonKey]++
	return nil
}

type fakeConfigRepository struct {
	roleConfigs  map[string]*domain.QuotaRoleConfig
	overrides    map[string]*domain.DungeonOverride
	raiderPoints map[string]int
	keyPopPoints map[string]int
}

func newFakeConfigRepository() *fakeConfigRepository {
	return &fakeConfigRepository{
		roleConfigs:  make(map[string]*domain.QuotaRoleConfig),
		overrides:    make(map[string]*domain.DungeonOverride),
		raiderPoints: make(map[string]int),
		keyPopPoints: make(map[string]int),
	}
}

func (f *fakeConfigRepository) GetRoleConfig(_ context.Context, guildID, roleID string) (*domain.QuotaRoleConfig, error) {
	cfg, ok := f.roleConfigs[guildID+"|"+roleID]
	if !ok {
		return nil, nil
	}
	copied := *cfg
	return &copied, nil
}

func (f *fakeConfigRepository) ListRoleConfigs(_ context.Context, guildID string, roleIDs []string) ([]*domain.QuotaRoleConfig, error) {
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = true
	}

	var out []*domain.QuotaRoleConfig
	for _, cfg := range f.roleConfigs {
		if cfg.GuildID != guildID {
			continue
		}
		if len(roleIDs) > 0 && !wanted[cfg.RoleID] {
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

func (f *fakeConfigRepository) UpsertRoleConfig(_ context.Context, cfg *domain.QuotaRoleConfig) error {
	copied := *cfg
	f.roleConfigs[cfg.GuildID+"|"+cfg.RoleID] = &copied
	return nil
}

func (f *fakeConfigRepository) GetOverrides(_ context.Context, guildID, dungeonKey string, roleIDs []string) ([]*domain.DungeonOverride, error) {
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = true
	}

	var out []*domain.DungeonOverride
	for _, override := range f.overrides {
		if override.GuildID != guildID || override.DungeonKey != dungeonKey {
			continue
		}
		if len(roleIDs) > 0 && !wanted[override.RoleID] {
			continue
		}
		out = append(out, override)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleID < out[j].RoleID })
	return out, nil
}

func (f *fakeConfigRepository) UpsertOverride(_ context.Context, override *domain.DungeonOverride) error {
	copied := *override
	f.overrides[override.GuildID+"|"+override.RoleID+"|"+override.DungeonKey] = &copied
	return nil
}

func (f *fakeConfigRepository) GetRaiderPoints(_ context.Context, guildID, dungeonKey string) (*int, error) {
	points, ok := f.raiderPoints[guildID+"|"+dungeonKey]
	if !ok {
		return nil, nil
	}
	return &points, nil
}

func (f *fakeConfigRepository) UpsertRaiderPoints(_ context.Context, guildID, dungeonKey string, points int) error {
	f.raiderPoints[guildID+"|"+dungeonKey] = points
	return nil
}

func (f *fakeConfigRepository) GetKeyPopPoints(_ context.Context, guildID, dungeonKey string) (*int, error) {
	points, ok := f.keyPopPoints[guildID+"|"+dungeonKey]
	if !ok {
		return nil, nil
	}
	return &points, nil
}

func (f *fakeConfigRepository) UpsertKeyPopPoints(_ context.Context, guildID, dungeonKey string, points int) error {
	f.keyPopPoints[guildID+"|"+dungeonKey] = points
	return nil
}

type fakeDungeonCache struct {
	exaltations map[string]bool
}

func (f *fakeDungeonCache) GetDungeonByKey(dungeonKey string) *domain.Dungeon {
	if _, ok := f.exaltations[dungeonKey]; !ok {
		return nil
	}
	return &domain.Dungeon{Key: dungeonKey, Name: dungeonKey, Exaltation: f.exaltations[dungeonKey]}
}

func (f *fakeDungeonCache) IsExaltation(dungeonKey string) bool {
	return f.exaltations[dungeonKey]
}

func (f *fakeDungeonCache) GetAllDungeons() []*domain.Dungeon {
	var out []*domain.Dungeon
	for key := range f.exaltations {
		out = append(out, f.GetDungeonByKey(key))
	}
	return out
}

func (f *fakeDungeonCache) Reload() error {
	return nil
}

type fakeStatsRepository struct {
	leaderboard   []domain.LeaderboardEntry
	lastFilter    *repository.LeaderboardFilter
	memberEntries []domain.LeaderboardEntry
	totals        repository.UserTotals
	keysPopped    int64
	dungeonStats  []*repository.DungeonStats
}

func (f *fakeStatsRepository) Leaderboard(_ context.Context, filter repository.LeaderboardFilter) ([]domain.LeaderboardEntry, error) {
	f.lastFilter = &filter
	return f.leaderboard, nil
}

func (f *fakeStatsRepository) QuotaPointsByMember(_ context.Context, _ string, _ []string, _, _ time.Time) ([]domain.LeaderboardEntry, error) {
	return f.memberEntries, nil
}

func (f *fakeStatsRepository) UserTotals(_ context.Context, _, _ string) (*repository.UserTotals, error) {
	totals := f.totals
	return &totals, nil
}

func (f *fakeStatsRepository) KeysPopped(_ context.Context, _, _ string) (int64, error) {
	return f.keysPopped, nil
}

func (f *fakeStatsRepository) DungeonBreakdown(_ context.Context, _, _ string) ([]*repository.DungeonStats, error) {
	return f.dungeonStats, nil
}
