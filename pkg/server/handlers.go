package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/quota"
)

type logEventRequest struct {
	GuildID     string  `json:"guild_id"`
	ActorUserID string  `json:"actor_user_id"`
	ActionType  string  `json:"action_type"`
	SubjectID   *string `json:"subject_id,omitempty"`
	DungeonKey  *string `json:"dungeon_key,omitempty"`
	QuotaPoints *int    `json:"quota_points,omitempty"`
}

type logEventResponse struct {
	Event     *domain.QuotaEvent `json:"event,omitempty"`
	Duplicate bool               `json:"duplicate"`
}

func (s *Server) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	event, duplicate, err := s.ledger.LogEvent(r.Context(), quota.LogEventParams{
		GuildID:     req.GuildID,
		ActorUserID: req.ActorUserID,
		ActionType:  domain.ActionType(req.ActionType),
		SubjectID:   req.SubjectID,
		DungeonKey:  req.DungeonKey,
		QuotaPoints: req.QuotaPoints,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if duplicate {
		status = http.StatusOK
	}
	s.writeJSON(w, status, logEventResponse{Event: event, Duplicate: duplicate})
}

func (s *Server) handleIsAlreadyLogged(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	runID := chi.URLParam(r, "runID")

	logged, err := s.ledger.IsAlreadyLogged(r.Context(), guildID, runID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"logged": logged})
}

// roleConfigResponse pairs the stored config with the current tracking
// window, recomputed at read time.
type roleConfigResponse struct {
	Config      *domain.QuotaRoleConfig `json:"config"`
	PeriodStart time.Time               `json:"period_start"`
	PeriodEnd   time.Time               `json:"period_end"`
}

func (s *Server) handleGetRoleConfig(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	roleID := chi.URLParam(r, "roleID")

	cfg, err := s.configs.GetRoleConfig(r.Context(), guildID, roleID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cfg == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"message": "no quota config for role"})
		return
	}

	now := time.Now().UTC()
	s.writeJSON(w, http.StatusOK, roleConfigResponse{
		Config:      cfg,
		PeriodStart: domain.PeriodStart(cfg, now),
		PeriodEnd:   domain.PeriodEnd(cfg, now),
	})
}

func (s *Server) handlePutRoleConfig(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	roleID := chi.URLParam(r, "roleID")

	var update domain.RoleConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	cfg, err := s.roleConfigs.Upsert(r.Context(), guildID, roleID, update)
	if err != nil {
		s.writeError(w, err)
		return
	}

	now := time.Now().UTC()
	s.writeJSON(w, http.StatusOK, roleConfigResponse{
		Config:      cfg,
		PeriodStart: domain.PeriodStart(cfg, now),
		PeriodEnd:   domain.PeriodEnd(cfg, now),
	})
}

func (s *Server) handlePutOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	override := &domain.DungeonOverride{
		GuildID:    chi.URLParam(r, "guildID"),
		RoleID:     chi.URLParam(r, "roleID"),
		DungeonKey: chi.URLParam(r, "dungeonKey"),
		Points:     req.Points,
	}

	if err := s.configs.UpsertOverride(r.Context(), override); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, override)
}

func (s *Server) handleResolvePoints(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	dungeonKey := chi.URLParam(r, "dungeonKey")

	var roleIDs []string
	if raw := r.URL.Query().Get("role_ids"); raw != "" {
		roleIDs = strings.Split(raw, ",")
	}

	points, err := s.resolver.ResolvePoints(r.Context(), guildID, dungeonKey, roleIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"points": points})
}

func (s *Server) handleGetRaiderPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.resolver.RaiderPoints(r.Context(), chi.URLParam(r, "guildID"), chi.URLParam(r, "dungeonKey"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"points": points})
}

func (s *Server) handlePutRaiderPoints(w http.ResponseWriter, r *http.Request) {
	s.putPointsConfig(w, r, s.configs.UpsertRaiderPoints)
}

func (s *Server) handleGetKeyPopPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.resolver.KeyPopPoints(r.Context(), chi.URLParam(r, "guildID"), chi.URLParam(r, "dungeonKey"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"points": points})
}

func (s *Server) handlePutKeyPopPoints(w http.ResponseWriter, r *http.Request) {
	s.putPointsConfig(w, r, s.configs.UpsertKeyPopPoints)
}

func (s *Server) putPointsConfig(w http.ResponseWriter, r *http.Request, upsert func(ctx context.Context, guildID, dungeonKey string, points int) error) {
	var req struct {
		Points int `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	guildID := chi.URLParam(r, "guildID")
	dungeonKey := chi.URLParam(r, "dungeonKey")

	if err := upsert(r.Context(), guildID, dungeonKey, req.Points); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"points": req.Points})
}

type leaderboardRequest struct {
	GuildID    string     `json:"guild_id"`
	Category   string     `json:"category"`
	DungeonKey *string    `json:"dungeon_key,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req leaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.aggregator.Leaderboard(r.Context(), quota.LeaderboardQuery{
		GuildID:    req.GuildID,
		Category:   domain.LeaderboardCategory(req.Category),
		DungeonKey: req.DungeonKey,
		Since:      req.Since,
		Until:      req.Until,
		Limit:      req.Limit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type roleLeaderboardRequest struct {
	MemberIDs   []string   `json:"member_ids"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
}

// handleRoleLeaderboard ranks the supplied role members over the quota
// period, including zero-activity members. When the caller omits the
// period it is computed from the role's stored config.
func (s *Server) handleRoleLeaderboard(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	roleID := chi.URLParam(r, "roleID")

	var req roleLeaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	var start, end time.Time
	if req.PeriodStart != nil && req.PeriodEnd != nil {
		start, end = *req.PeriodStart, *req.PeriodEnd
	} else {
		cfg, err := s.configs.GetRoleConfig(r.Context(), guildID, roleID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if cfg == nil {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"message": "no quota config for role"})
			return
		}
		now := time.Now().UTC()
		start, end = domain.PeriodStart(cfg, now), domain.PeriodEnd(cfg, now)
	}

	entries, err := s.aggregator.LeaderboardForRole(r.Context(), guildID, req.MemberIDs, start, end)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":      entries,
		"period_start": start,
		"period_end":   end,
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.aggregator.UserStats(r.Context(), chi.URLParam(r, "guildID"), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

type snapshotRequest struct {
	Roster []domain.RosterMember `json:"roster"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	keyPop, err := strconv.Atoi(chi.URLParam(r, "keyPop"))
	if err != nil {
		s.writeBadRequest(w, "invalid key pop number")
		return
	}

	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.awards.Snapshot(r.Context(), runID, keyPop, req.Roster); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"raiders": len(req.Roster)})
}

type closeCheckpointRequest struct {
	GuildID    string `json:"guild_id"`
	DungeonKey string `json:"dungeon_key"`
}

// awardResultResponse is the JSON shape of one per-raider award outcome.
type awardResultResponse struct {
	UserID    string             `json:"user_id"`
	Event     *domain.QuotaEvent `json:"event,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"`
	Error     string             `json:"error,omitempty"`
}

func (s *Server) handleCloseCheckpoint(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	keyPop, err := strconv.Atoi(chi.URLParam(r, "keyPop"))
	if err != nil {
		s.writeBadRequest(w, "invalid key pop number")
		return
	}

	var req closeCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	results, err := s.awards.CloseCheckpoint(r.Context(), req.GuildID, runID, keyPop, req.DungeonKey)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": toAwardResponses(results)})
}

type completeRunRequest struct {
	GuildID    string                `json:"guild_id"`
	DungeonKey string                `json:"dungeon_key"`
	Roster     []domain.RosterMember `json:"roster"`
}

func (s *Server) handleCompleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var req completeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}

	results, err := s.awards.AwardOnCompletion(r.Context(), req.GuildID, runID, req.DungeonKey, req.Roster)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": toAwardResponses(results)})
}

type recordKeyPopRequest struct {
	GuildID    string `json:"guild_id"`
	UserID     string `json:"user_id"`
	DungeonKey string `json:"dungeon_key"`
}

func (s *Server) handleRecordKeyPop(w http.ResponseWriter, r *http.Request) {
	var req recordKeyPopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.GuildID == "" || req.UserID == "" || req.DungeonKey == "" {
		s.writeBadRequest(w, "guild_id, user_id and dungeon_key are required")
		return
	}

	points, err := s.awards.RecordKeyPop(r.Context(), req.GuildID, req.UserID, req.DungeonKey)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"points": points})
}

func toAwardResponses(results []quota.AwardResult) []awardResultResponse {
	out := make([]awardResultResponse, 0, len(results))
	for _, result := range results {
		resp := awardResultResponse{
			UserID:    result.UserID,
			Event:     result.Event,
			Duplicate: result.Duplicate,
		}
		if result.Err != nil {
			resp.Error = result.Err.Error()
		}
		out = append(out, resp)
	}
	return out
}
