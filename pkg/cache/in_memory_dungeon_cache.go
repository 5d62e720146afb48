package cache

import (
	"log/slog"
	"sync"

	"github.com/sjkd23/raidquota/pkg/config"
	"github.com/sjkd23/raidquota/pkg/domain"
)

// InMemoryDungeonCache provides O(1) in-memory lookups for the dungeon
// catalog. The index is built at startup and immutable between reloads.
type InMemoryDungeonCache struct {
	dungeonsByKey map[string]*domain.Dungeon
	dungeons      []*domain.Dungeon
	configPath    string
	mu            sync.RWMutex
	logger        *slog.Logger
}

// NewInMemoryDungeonCache creates a new cache from the provided
// configuration. The cache is immediately built and ready for lookups.
func NewInMemoryDungeonCache(cfg *config.Config, configPath string, logger *slog.Logger) *InMemoryDungeonCache {
	cache := &InMemoryDungeonCache{
		dungeonsByKey: make(map[string]*domain.Dungeon),
		dungeons:      make([]*domain.Dungeon, 0, len(cfg.Dungeons)),
		configPath:    configPath,
		logger:        logger,
	}

	cache.buildCache(cfg)

	return cache
}

// buildCache constructs the catalog index, replacing any existing data.
func (c *InMemoryDungeonCache) buildCache(cfg *config.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dungeonsByKey = make(map[string]*domain.Dungeon)
	c.dungeons = make([]*domain.Dungeon, 0, len(cfg.Dungeons))

	for _, dungeon := range cfg.Dungeons {
		c.dungeonsByKey[dungeon.Key] = dungeon
		c.dungeons = append(c.dungeons, dungeon)
	}

	c.logger.Info("Dungeon cache built", "dungeons", len(c.dungeons))
}

// GetDungeonByKey retrieves a dungeon by its catalog key.
// Returns nil if the dungeon does not exist.
func (c *InMemoryDungeonCache) GetDungeonByKey(dungeonKey string) *domain.Dungeon {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.dungeonsByKey[dungeonKey]
}

// IsExaltation reports whether the dungeon is flagged as an exaltation
// dungeon. Unknown dungeons are treated as non-exaltation.
func (c *InMemoryDungeonCache) IsExaltation(dungeonKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dungeon := c.dungeonsByKey[dungeonKey]
	return dungeon != nil && dungeon.Exaltation
}

// GetAllDungeons retrieves all catalog dungeons in config-file order.
// The returned slice is safe to share because Dungeons are immutable.
func (c *InMemoryDungeonCache) GetAllDungeons() []*domain.Dungeon {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.dungeons
}

// Reload reloads the cache from the config file.
func (c *InMemoryDungeonCache) Reload() error {
	loader := config.NewConfigLoader(c.configPath, c.logger)
	newConfig, err := loader.LoadConfig()
	if err != nil {
		return err
	}

	c.buildCache(newConfig)

	c.logger.Info("Dungeon cache reloaded")

	return nil
}
