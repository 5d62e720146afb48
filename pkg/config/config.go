package config

import "github.com/sjkd23/raidquota/pkg/domain"

// Config represents the dungeon catalog loaded from dungeons.json.
// This structure is parsed from JSON and validated during application
// startup.
type Config struct {
	Dungeons []*domain.Dungeon `json:"dungeons"`
}
