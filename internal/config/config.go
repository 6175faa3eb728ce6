// Package config holds the daemon's environment-driven settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries every tunable of the daemon. All values have working
// defaults; the environment only overrides.
type Config struct {
	// CacheDir is where generated profiles are written. Empty selects
	// the per-user cache directory.
	CacheDir string `env:"VIBRANCED_CACHE_DIR"`

	// TemplatePaths overrides the base template candidate locations.
	TemplatePaths []string `env:"VIBRANCED_TEMPLATE_PATHS" envSeparator:":"`

	// ToolTimeout bounds every external tool invocation.
	ToolTimeout time.Duration `env:"VIBRANCED_TOOL_TIMEOUT" envDefault:"15s"`

	// KeepProfiles is the generated profile retention count.
	KeepProfiles int `env:"VIBRANCED_KEEP_PROFILES" envDefault:"2"`

	// External tool binary names, overridable for packaging layouts
	// that install them under different names.
	ColormgrBin   string `env:"VIBRANCED_COLORMGR_BIN" envDefault:"colormgr"`
	IccFromXMLBin string `env:"VIBRANCED_ICC_FROM_XML_BIN" envDefault:"iccFromXml"`
	IccToXMLBin   string `env:"VIBRANCED_ICC_TO_XML_BIN" envDefault:"iccToXml"`
}

// Load parses the environment and fills in the cache dir default.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve cache directory: %w", err)
		}
		cfg.CacheDir = filepath.Join(base, "vibranced")
	}

	if cfg.KeepProfiles < 1 {
		cfg.KeepProfiles = 1
	}

	return cfg, nil
}
