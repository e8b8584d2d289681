package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"

	"circman/internal/backup"
	"circman/internal/device"
)

// Config is the resolved tool configuration. It is loaded once at
// startup and passed down explicitly; nothing here is mutated after
// Load returns.
type Config struct {
	// DeviceLabels extends the recognized volume label prefixes.
	DeviceLabels []string `toml:"device_labels"`
	// BackupRoot overrides where snapshots are kept.
	BackupRoot string `toml:"backup_root"`
	// Source is the project directory deployed by default, relative
	// to the working directory unless absolute.
	Source string `toml:"source"`
}

// Path is the config file location.
func Path() string {
	return filepath.Join(xdg.ConfigHome, "circman", "config.toml")
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		DeviceLabels: device.DefaultLabels,
		BackupRoot:   backup.DefaultRoot(),
		Source:       "src",
	}
}

// Load reads the config file, filling any field the file leaves unset
// with its default. A missing file yields the defaults outright.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var fileCfg Config
	if err := toml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", Path(), err)
	}

	if len(fileCfg.DeviceLabels) > 0 {
		cfg.DeviceLabels = fileCfg.DeviceLabels
	}
	if fileCfg.BackupRoot != "" {
		cfg.BackupRoot = fileCfg.BackupRoot
	}
	if fileCfg.Source != "" {
		cfg.Source = fileCfg.Source
	}

	return cfg, nil
}
