package quota

import (
	"context"

	"github.com/sjkd23/raidquota/pkg/cache"
	"github.com/sjkd23/raidquota/pkg/domain"
	"github.com/sjkd23/raidquota/pkg/repository"
)

// Resolver turns (guild, dungeon, role set) into a point value using the
// override -> base -> default precedence. Missing configuration is never
// an error here; it resolves to a documented default.
type Resolver struct {
	configs  repository.ConfigRepository
	dungeons cache.DungeonCache
}

// NewResolver creates a point resolver.
func NewResolver(configs repository.ConfigRepository, dungeons cache.DungeonCache) *Resolver {
	return &Resolver{
		configs:  configs,
		dungeons: dungeons,
	}
}

// ResolvePoints resolves the point value for a dungeon. Precedence, first
// match wins:
//
//  1. With roles supplied: the highest dungeon override across the
//     caller's roles.
//  2. Without roles (actor's live role membership unavailable, e.g.
//     automatic activity closure): the highest override across all roles
//     configured in the guild.
//  3. No override: the highest base value across the same role scope,
//     selecting base_exalt_points or base_non_exalt_points by the
//     dungeon's exaltation flag.
//  4. Nothing configured anywhere: 1.
//
// The policy is a max across roles, never a first-match, so a user
// holding several quota-tracked roles is never shortchanged by whichever
// role happens to be queried first. Adding a role can only raise or hold
// the result.
func (r *Resolver) ResolvePoints(ctx context.Context, guildID, dungeonKey string, roleIDs []string) (int, error) {
	overrides, err := r.configs.GetOverrides(ctx, guildID, dungeonKey, roleIDs)
	if err != nil {
		return 0, err
	}
	if len(overrides) > 0 {
		best := overrides[0].Points
		for _, override := range overrides[1:] {
			if override.Points > best {
				best = override.Points
			}
		}
		return best, nil
	}

	configs, err := r.configs.ListRoleConfigs(ctx, guildID, roleIDs)
	if err != nil {
		return 0, err
	}
	if len(configs) == 0 {
		return 1, nil
	}

	exaltation := r.dungeons.IsExaltation(dungeonKey)
	best := basePoints(configs[0], exaltation)
	for _, cfg := range configs[1:] {
		if v := basePoints(cfg, exaltation); v > best {
			best = v
		}
	}
	return best, nil
}

// RaiderPoints returns the guild-wide raider completion value configured
// for a dungeon, defaulting to 1 when absent.
func (r *Resolver) RaiderPoints(ctx context.Context, guildID, dungeonKey string) (int, error) {
	points, err := r.configs.GetRaiderPoints(ctx, guildID, dungeonKey)
	if err != nil {
		return 0, err
	}
	if points == nil {
		return domain.DefaultRaiderPoints, nil
	}
	return *points, nil
}

// KeyPopPoints returns the guild-wide key-pop value configured for a
// dungeon, defaulting to 5 when absent.
func (r *Resolver) KeyPopPoints(ctx context.Context, guildID, dungeonKey string) (int, error) {
	points, err := r.configs.GetKeyPopPoints(ctx, guildID, dungeonKey)
	if err != nil {
		return 0, err
	}
	if points == nil {
		return domain.DefaultKeyPopPoints, nil
	}
	return *points, nil
}

func basePoints(cfg *domain.QuotaRoleConfig, exaltation bool) int {
	if exaltation {
		return cfg.BaseExaltPoints
	}
	return cfg.BaseNonExaltPoints
}
