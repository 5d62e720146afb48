package config

import (
	"errors"
	"fmt"

	"github.com/sjkd23/raidquota/pkg/domain"
)

// Validator validates dungeon catalog files before the application starts.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs validation of the catalog:
// - At least one dungeon exists
// - All dungeon keys are unique and non-empty
// - All dungeon names are non-empty
//
// Returns an error describing the first validation failure encountered.
func (v *Validator) Validate(config *Config) error {
	if len(config.Dungeons) == 0 {
		return errors.New("config must have at least one dungeon")
	}

	keys := make(map[string]bool)
	for _, dungeon := range config.Dungeons {
		if err := v.validateDungeon(dungeon); err != nil {
			return fmt.Errorf("invalid dungeon '%s': %w", dungeon.Key, err)
		}
		if keys[dungeon.Key] {
			return fmt.Errorf("duplicate dungeon key: %s", dungeon.Key)
		}
		keys[dungeon.Key] = true
	}

	return nil
}

func (v *Validator) validateDungeon(dungeon *domain.Dungeon) error {
	if dungeon.Key == "" {
		return errors.New("dungeon key cannot be empty")
	}
	if dungeon.Name == "" {
		return errors.New("dungeon name cannot be empty")
	}
	return nil
}
