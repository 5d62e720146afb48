package cache

import "github.com/sjkd23/raidquota/pkg/domain"

// DungeonCache provides O(1) in-memory lookups for the dungeon catalog.
// The cache is built at application startup from the dungeons.json config
// file. All lookups are read-only and thread-safe.
type DungeonCache interface {
	// GetDungeonByKey retrieves a dungeon by its catalog key.
	// Returns nil if the dungeon does not exist.
	GetDungeonByKey(dungeonKey string) *domain.Dungeon

	// IsExaltation reports whether the dungeon is flagged as an
	// exaltation dungeon. Unknown dungeons are treated as non-exaltation.
	IsExaltation(dungeonKey string) bool

	// GetAllDungeons retrieves all catalog dungeons in config-file order.
	GetAllDungeons() []*domain.Dungeon

	// Reload reloads the cache from the config file.
	Reload() error
}
