package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/errors"
	"github.com/sjkd23/raidquota/pkg/repository"
)

// RoleConfigService applies partial role-config updates. The created_at
// invariant lives here, not in SQL: an update that does not explicitly
// set created_at keeps the existing anchor, so changing an unrelated
// field (e.g. the panel reference) never restarts the quota-tracking
// cycle. Restarting the cycle requires passing created_at explicitly.
type RoleConfigService struct {
	configs repository.ConfigRepository
	logger  *slog.Logger
}

// NewRoleConfigService creates a role-config service.
func NewRoleConfigService(configs repository.ConfigRepository, logger *slog.Logger) *RoleConfigService {
	return &RoleConfigService{
		configs: configs,
		logger:  logger,
	}
}

// Upsert merges a partial update into the existing config (or a fresh row
// on first write) and persists the result.
func (s *RoleConfigService) Upsert(ctx context.Context, guildID, roleID string, update domain.RoleConfigUpdate) (*domain.QuotaRoleConfig, error) {
	if guildID == "" {
		return nil, errors.ErrValidationFailed("guild_id", "cannot be empty")
	}
	if roleID == "" {
		return nil, errors.ErrValidationFailed("role_id", "cannot be empty")
	}

	existing, err := s.configs.GetRoleConfig(ctx, guildID, roleID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg := &domain.QuotaRoleConfig{
		GuildID:   guildID,
		RoleID:    roleID,
		ResetAt:   now,
		CreatedAt: now,
	}
	if existing != nil {
		*cfg = *existing
	}

	applyUpdate(cfg, update)

	if err := s.configs.UpsertRoleConfig(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("role config upserted",
		"guild_id", guildID,
		"role_id", roleID,
		"cycle_restarted", update.CreatedAt != nil,
	)

	return cfg, nil
}

func applyUpdate(cfg *domain.QuotaRoleConfig, update domain.RoleConfigUpdate) {
	if update.RequiredPoints != nil {
		cfg.RequiredPoints = *update.RequiredPoints
	}
	if update.ResetAt != nil {
		cfg.ResetAt = *update.ResetAt
	}
	if update.CreatedAt != nil {
		cfg.CreatedAt = *update.CreatedAt
	}
	if update.BaseExaltPoints != nil {
		cfg.BaseExaltPoints = *update.BaseExaltPoints
	}
	if update.BaseNonExaltPoints != nil {
		cfg.BaseNonExaltPoints = *update.BaseNonExaltPoints
	}
	if update.VerifyPoints != nil {
		cfg.VerifyPoints = *update.VerifyPoints
	}
	if update.WarnPoints != nil {
		cfg.WarnPoints = *update.WarnPoints
	}
	if update.SuspendPoints != nil {
		cfg.SuspendPoints = *update.SuspendPoints
	}
	if update.ModmailReplyPoints != nil {
		cfg.ModmailReplyPoints = *update.ModmailReplyPoints
	}
	if update.EditNamePoints != nil {
		cfg.EditNamePoints = *update.EditNamePoints
	}
	if update.AddNotePoints != nil {
		cfg.AddNotePoints = *update.AddNotePoints
	}
	if update.PanelMessageID != nil {
		cfg.PanelMessageID = *update.PanelMessageID
	}
}
