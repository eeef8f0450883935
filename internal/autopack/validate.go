package autopack

import (
	"path/filepath"

	"github.com/pkg/errors"
)

// validate checks a Config for the mistakes a caller can make before any
// file is ever touched: an empty resource_dir, no enabled kind, or a
// match_override with no interpreter or a malformed glob.
// Grounded on unikraft-kraftkit/schema/loader.go's pattern of validating a
// parsed config up front with descriptive errors rather than failing deep
// inside the run.
func (c *Config) validate() error {
	if c.ResourceDir == "" {
		return errors.New("resource_dir is required")
	}

	if c.DynamicBinary == nil && c.SharedLibrary == nil && c.Script == nil && c.Repack == nil {
		return errors.New("at least one of dynamic_binary, shared_library, script, or repack must be configured")
	}

	if c.Script != nil {
		for _, override := range c.Script.MatchOverrides {
			if override.Interpreter == "" {
				return errors.Errorf("match_override for pattern %q has no interpreter", override.Pattern)
			}
			if _, err := filepath.Match(override.Pattern, "probe"); err != nil {
				return errors.Wrapf(err, "match_override pattern %q is not a valid glob", override.Pattern)
			}
		}
	}

	return nil
}
