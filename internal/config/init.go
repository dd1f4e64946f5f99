package config

import (
	"fmt"
	"os"
)

const (
	configFilePerm = 0600
	storageDirPerm = 0755
)

// EnsureStorageDirectories creates the base, builds and spool directories
// named by the configuration if they do not exist yet.
func EnsureStorageDirectories(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	dirs := []string{cfg.Storage.BasePath, cfg.Storage.BuildsPath}
	if cfg.Spool.Enabled {
		dirs = append(dirs, cfg.Spool.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := validatePathInput(dir); err != nil {
			return fmt.Errorf("invalid storage path %q: %w", dir, err)
		}
		if err := os.MkdirAll(dir, storageDirPerm); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
