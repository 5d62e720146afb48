package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/quota"
	"github.com/sjkd23/raidquota/pkg/repository"
)

// In-memory repositories backing a full service stack for handler tests.

type memEventRepo struct {
	events []*domain.QuotaEvent
	seen   map[string]bool
}

func (m *memEventRepo) Insert(_ context.Context, event *domain.QuotaEvent) (bool, error) {
	if event.ActionType == domain.ActionRunCompleted && event.SubjectID != nil {
		key := event.GuildID + "|" + *event.SubjectID
		if m.seen[key] {
			return false, nil
		}
		m.seen[key] = true
	}
	m.events = append(m.events, event)
	return true, nil
}

func (m *memEventRepo) Exists(_ context.Context, guildID, subjectID string) (bool, error) {
	return m.seen[guildID+"|"+subjectID], nil
}

type memSnapshotRepo struct {
	rows map[string]*domain.KeyPopSnapshot
}

func snapKey(runID string, keyPop int, userID string) string {
	return fmt.Sprintf("%s|%d|%s", runID, keyPop, userID)
}

func (m *memSnapshotRepo) InsertSnapshots(_ context.Context, runID string, keyPop int, roster []domain.RosterMember) error {
	for _, member := range roster {
		key := snapKey(runID, keyPop, member.UserID)
		if _, ok := m.rows[key]; ok {
			continue
		}
		m.rows[key] = &domain.KeyPopSnapshot{
			RunID:  runID,
			KeyPop: keyPop,
			UserID: member.UserID,
			Class:  member.Class,
		}
	}
	return nil
}

func (m *memSnapshotRepo) ListUnawarded(_ context.Context, runID string, keyPop int) ([]*domain.KeyPopSnapshot, error) {
	var out []*domain.KeyPopSnapshot
	for _, row := range m.rows {
		if row.RunID == runID && row.KeyPop == keyPop && !row.AwardedCompletion {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memSnapshotRepo) MarkAwarded(_ context.Context, runID string, keyPop int, userID string) error {
	if row, ok := m.rows[snapKey(runID, keyPop, userID)]; ok {
		row.AwardedCompletion = true
	}
	return nil
}

type memKeyPopRepo struct {
	counts map[string]int64
}

func (m *memKeyPopRepo) Increment(_ context.Context, guildID, userID, dungeonKey string) error {
	m.counts[guildID+"|"+userID+"|"+dungeonKey]++
	return nil
}

type memConfigRepo struct {
	roleConfigs  map[string]*domain.QuotaRoleConfig
	overrides    map[string]*domain.DungeonOverride
	raiderPoints map[string]int
	keyPopPoints map[string]int
}

func (m *memConfigRepo) GetRoleConfig(_ context.Context, guildID, roleID string) (*domain.QuotaRoleConfig, error) {
	cfg, ok := m.roleConfigs[guildID+"|"+roleID]
	if !ok {
		return nil, nil
	}
	copied := *cfg
	return &copied, nil
}

func (m *memConfigRepo) ListRoleConfigs(_ context.Context, guildID string, roleIDs []string) ([]*domain.QuotaRoleConfig, error) {
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = true
	}
	var out []*domain.QuotaRoleConfig
	for _, cfg := range m.roleConfigs {
		if cfg.GuildID != guildID {
			continue
		}
		if len(roleIDs) > 0 && !wanted[cfg.RoleID] {
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (m *memConfigRepo) UpsertRoleConfig(_ context.Context, cfg *domain.QuotaRoleConfig) error {
	copied := *cfg
	m.roleConfigs[cfg.GuildID+"|"+cfg.RoleID] = &copied
	return nil
}

func (m *memConfigRepo) GetOverrides(_ context.Context, guildID, dungeonKey string, roleIDs []string) ([]*domain.DungeonOverride, error) {
	wanted := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = true
	}
	var out []*domain.DungeonOverride
	for _, override := range m.overrides {
		if override.GuildID != guildID || override.DungeonKey != dungeonKey {
			continue
		}
		if len(roleIDs) > 0 && !wanted[override.RoleID] {
			continue
		}
		out = append(out, override)
	}
	return out, nil
}

func (m *memConfigRepo) UpsertOverride(_ context.Context, override *domain.DungeonOverride) error {
	copied := *override
	m.overrides[override.GuildID+"|"+override.RoleID+"|"+override.DungeonKey] = &copied
	return nil
}

func (m *memConfigRepo) GetRaiderPoints(_ context.Context, guildID, dungeonKey string) (*int, error) {
	points, ok := m.raiderPoints[guildID+"|"+dungeonKey]
	if !ok {
		return nil, nil
	}
	return &points, nil
}

func (m *memConfigRepo) UpsertRaiderPoints(_ context.Context, guildID, dungeonKey string, points int) error {
	m.raiderPoints[guildID+"|"+dungeonKey] = points
	return nil
}

func (m *memConfigRepo) GetKeyPopPoints(_ context.Context, guildID, dungeonKey string) (*int, error) {
	points, ok := m.keyPopPoints[guildID+"|"+dungeonKey]
	if !ok {
		return nil, nil
	}
	return &points, nil
}

func (m *memConfigRepo) UpsertKeyPopPoints(_ context.Context, guildID, dungeonKey string, points int) error {
	m.keyPopPoints[guildID+"|"+dungeonKey] = points
	return nil
}

type memStatsRepo struct {
	entries []domain.LeaderboardEntry
}

func (m *memStatsRepo) Leaderboard(_ context.Context, _ repository.LeaderboardFilter) ([]domain.LeaderboardEntry, error) {
	return m.entries, nil
}

func (m *memStatsRepo) QuotaPointsByMember(_ context.Context, _ string, memberIDs []string, _, _ time.Time) ([]domain.LeaderboardEntry, error) {
	out := make([]domain.LeaderboardEntry, 0, len(memberIDs))
	for _, id := range memberIDs {
		out = append(out, domain.LeaderboardEntry{UserID: id})
	}
	return out, nil
}

func (m *memStatsRepo) UserTotals(_ context.Context, _, _ string) (*repository.UserTotals, error) {
	return &repository.UserTotals{Points: 5, QuotaPoints: 3, RunsOrganized: 2, Verifications: 1}, nil
}

func (m *memStatsRepo) KeysPopped(_ context.Context, _, _ string) (int64, error) {
	return 4, nil
}

func (m *memStatsRepo) DungeonBreakdown(_ context.Context, _, _ string) ([]*repository.DungeonStats, error) {
	return []*repository.DungeonStats{{DungeonKey: "fungal", Completions: 2}}, nil
}

type memDungeonCache struct{}

func (memDungeonCache) GetDungeonByKey(key string) *domain.Dungeon {
	return &domain.Dungeon{Key: key, Name: key}
}
func (memDungeonCache) IsExaltation(string) bool { return false }

func (memDungeonCache) GetAllDungeons() []*domain.Dungeon { return nil }

func (memDungeonCache) Reload() error { return nil }

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	events := &memEventRepo{seen: make(map[string]bool)}
	snapshots := &memSnapshotRepo{rows: make(map[string]*domain.KeyPopSnapshot)}
	keyPops := &memKeyPopRepo{counts: make(map[string]int64)}
	configs := &memConfigRepo{
		roleConfigs:  make(map[string]*domain.QuotaRoleConfig),
		overrides:    make(map[string]*domain.DungeonOverride),
		raiderPoints: make(map[string]int),
		keyPopPoints: make(map[string]int),
	}
	stats := &memStatsRepo{
		entries: []domain.LeaderboardEntry{{UserID: "userA", Value: 10}},
	}

	ledger := quota.NewLedger(events, logger)
	resolver := quota.NewResolver(configs, memDungeonCache{})
	roleConfigs := quota.NewRoleConfigService(configs, logger)
	awards := quota.NewAwardEngine(ledger, resolver, snapshots, keyPops, logger)
	aggregator := quota.NewAggregator(stats)

	return New(ledger, resolver, roleConfigs, awards, aggregator, configs, logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLogEvent(t *testing.T) {
	router := newTestServer().Router()

	body := map[string]interface{}{
		"guild_id":      "guild1",
		"actor_user_id": "organizer",
		"action_type":   "run_completed",
		"subject_id":    "run:run-1",
		"dungeon_key":   "fungal",
		"quota_points":  3,
	}

	rec := doJSON(t, router, http.MethodPost, "/v1/events", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Event     *domain.QuotaEvent `json:"event"`
		Duplicate bool               `json:"duplicate"`
	}
	decodeBody(t, rec, &resp)
	if resp.Duplicate {
		t.Error("first insert reported as duplicate")
	}
	if resp.Event == nil || resp.Event.QuotaPoints != 3 {
		t.Errorf("event = %+v, want quota_points 3", resp.Event)
	}

	// Retrying the same subject is a 200 with duplicate set.
	rec = doJSON(t, router, http.MethodPost, "/v1/events", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want 200", rec.Code)
	}
	resp.Event = nil
	resp.Duplicate = false
	decodeBody(t, rec, &resp)
	if !resp.Duplicate {
		t.Error("retry not reported as duplicate")
	}
	if resp.Event != nil {
		t.Errorf("duplicate event = %+v, want nil", resp.Event)
	}
}

func TestLogEvent_Validation(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/events", map[string]interface{}{
		"actor_user_id": "organizer",
		"action_type":   "run_completed",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing guild_id", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/events", map[string]interface{}{
		"guild_id":      "guild1",
		"actor_user_id": "organizer",
		"action_type":   "delete_run",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown action type", rec.Code)
	}
}

func TestIsAlreadyLogged(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/runs/run-1/logged", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]bool
	decodeBody(t, rec, &resp)
	if resp["logged"] {
		t.Error("run reported as logged before any event")
	}

	doJSON(t, router, http.MethodPost, "/v1/events", map[string]interface{}{
		"guild_id":      "guild1",
		"actor_user_id": "organizer",
		"action_type":   "run_completed",
		"subject_id":    "run:run-1",
	})

	rec = doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/runs/run-1/logged", nil)
	decodeBody(t, rec, &resp)
	if !resp["logged"] {
		t.Error("run not reported as logged after event")
	}
}

func TestRoleConfig_PutAndGet(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/roles/role1/quota", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before config exists", rec.Code)
	}

	reset := time.Now().UTC().Add(30 * 24 * time.Hour)
	rec = doJSON(t, router, http.MethodPut, "/v1/guilds/guild1/roles/role1/quota", map[string]interface{}{
		"required_points": 10,
		"reset_at":        reset.Format(time.RFC3339Nano),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Config      *domain.QuotaRoleConfig `json:"config"`
		PeriodStart time.Time               `json:"period_start"`
		PeriodEnd   time.Time               `json:"period_end"`
	}
	decodeBody(t, rec, &resp)
	if resp.Config == nil || resp.Config.RequiredPoints != 10 {
		t.Fatalf("config = %+v, want required_points 10", resp.Config)
	}
	// Reset is pending: the window runs [created_at, reset_at).
	if !resp.PeriodEnd.Equal(reset) {
		t.Errorf("period_end = %v, want reset %v", resp.PeriodEnd, reset)
	}
	if !resp.PeriodStart.Equal(resp.Config.CreatedAt) {
		t.Errorf("period_start = %v, want created_at %v", resp.PeriodStart, resp.Config.CreatedAt)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/roles/role1/quota", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
}

func TestResolvePoints_WithOverride(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodPut, "/v1/guilds/guild1/roles/role1/overrides/shatters", map[string]interface{}{
		"points": 7,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put override status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/dungeons/shatters/points?role_ids=role1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}
	var resp map[string]int
	decodeBody(t, rec, &resp)
	if resp["points"] != 7 {
		t.Errorf("points = %d, want override 7", resp["points"])
	}

	// Unconfigured dungeon falls back to the constant default.
	rec = doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/dungeons/fungal/points", nil)
	decodeBody(t, rec, &resp)
	if resp["points"] != 1 {
		t.Errorf("points = %d, want default 1", resp["points"])
	}
}

func TestRaiderAndKeyPopPoints(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/dungeons/fungal/raider-points", nil)
	var resp map[string]int
	decodeBody(t, rec, &resp)
	if resp["points"] != domain.DefaultRaiderPoints {
		t.Errorf("raider points = %d, want default %d", resp["points"], domain.DefaultRaiderPoints)
	}

	rec = doJSON(t, router, http.MethodPut, "/v1/guilds/guild1/dungeons/fungal/raider-points", map[string]interface{}{"points": 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("put raider points status = %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/dungeons/fungal/raider-points", nil)
	decodeBody(t, rec, &resp)
	if resp["points"] != 4 {
		t.Errorf("raider points = %d, want 4", resp["points"])
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/dungeons/fungal/key-pop-points", nil)
	decodeBody(t, rec, &resp)
	if resp["points"] != domain.DefaultKeyPopPoints {
		t.Errorf("key pop points = %d, want default %d", resp["points"], domain.DefaultKeyPopPoints)
	}
}

func TestLeaderboard(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/leaderboard", map[string]interface{}{
		"guild_id": "guild1",
		"category": "quota_points",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Entries           []domain.LeaderboardEntry `json:"entries"`
		DateFilterIgnored bool                      `json:"date_filter_ignored"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Entries) != 1 || resp.Entries[0].UserID != "userA" {
		t.Errorf("entries = %+v", resp.Entries)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/leaderboard", map[string]interface{}{
		"guild_id": "guild1",
		"category": "keys_popped",
		"since":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	decodeBody(t, rec, &resp)
	if !resp.DateFilterIgnored {
		t.Error("date_filter_ignored not set for keys_popped with a date range")
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/leaderboard", map[string]interface{}{
		"guild_id": "guild1",
		"category": "most_deaths",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown category", rec.Code)
	}
}

func TestCheckpointFlow(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/runs/run-5/keypops/1/snapshot", map[string]interface{}{
		"roster": []map[string]string{
			{"user_id": "userA", "class": "wizard"},
			{"user_id": "userB", "class": "priest"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d, body: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/runs/run-5/keypops/1/close", map[string]interface{}{
		"guild_id":    "guild1",
		"dungeon_key": "shatters",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []struct {
			UserID    string             `json:"user_id"`
			Event     *domain.QuotaEvent `json:"event"`
			Duplicate bool               `json:"duplicate"`
		} `json:"results"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(resp.Results))
	}
	for _, result := range resp.Results {
		if result.Event == nil || result.Duplicate {
			t.Errorf("result = %+v, want clean award", result)
		}
	}

	// Closing again awards nothing.
	rec = doJSON(t, router, http.MethodPost, "/v1/runs/run-5/keypops/1/close", map[string]interface{}{
		"guild_id":    "guild1",
		"dungeon_key": "shatters",
	})
	decodeBody(t, rec, &resp)
	if len(resp.Results) != 0 {
		t.Errorf("second close produced %d results, want 0", len(resp.Results))
	}
}

func TestCompleteRun(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/runs/run-7/complete", map[string]interface{}{
		"guild_id":    "guild1",
		"dungeon_key": "fungal",
		"roster": []map[string]string{
			{"user_id": "userA"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Results []struct {
			UserID string             `json:"user_id"`
			Event  *domain.QuotaEvent `json:"event"`
		} `json:"results"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(resp.Results))
	}
	event := resp.Results[0].Event
	if event == nil || event.SubjectID == nil || *event.SubjectID != "raider:run-7:userA" {
		t.Errorf("event = %+v, want whole-run subject raider:run-7:userA", event)
	}
}

func TestRecordKeyPop(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/keypops", map[string]interface{}{
		"guild_id":    "guild1",
		"user_id":     "userA",
		"dungeon_key": "fungal",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]int
	decodeBody(t, rec, &resp)
	if resp["points"] != domain.DefaultKeyPopPoints {
		t.Errorf("points = %d, want default %d", resp["points"], domain.DefaultKeyPopPoints)
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/keypops", map[string]interface{}{
		"guild_id": "guild1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing fields", rec.Code)
	}
}

func TestUserStats(t *testing.T) {
	router := newTestServer().Router()

	rec := doJSON(t, router, http.MethodGet, "/v1/guilds/guild1/users/userA/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp quota.UserStats
	decodeBody(t, rec, &resp)
	if resp.Points != 5 || resp.QuotaPoints != 3 || resp.KeysPopped != 4 {
		t.Errorf("stats = %+v", resp)
	}
	if len(resp.Dungeons) != 1 || resp.Dungeons[0].DungeonKey != "fungal" {
		t.Errorf("dungeons = %+v", resp.Dungeons)
	}
}

func TestRoleLeaderboard(t *testing.T) {
	router := newTestServer().Router()

	// No stored config and no explicit period: 404.
	rec := doJSON(t, router, http.MethodPost, "/v1/guilds/guild1/roles/role1/leaderboard", map[string]interface{}{
		"member_ids": []string{"userA"},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without config or period", rec.Code)
	}

	start := time.Now().UTC().Add(-time.Hour)
	end := time.Now().UTC()
	rec = doJSON(t, router, http.MethodPost, "/v1/guilds/guild1/roles/role1/leaderboard", map[string]interface{}{
		"member_ids":   []string{"userA", "userB"},
		"period_start": start.Format(time.RFC3339Nano),
		"period_end":   end.Format(time.RFC3339Nano),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Entries []domain.LeaderboardEntry `json:"entries"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Entries) != 2 {
		t.Errorf("len(entries) = %d, want 2 including zero-activity members", len(resp.Entries))
	}
}
