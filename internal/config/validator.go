package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidateConfig checks that a loaded configuration is usable.
// All problems are reported together rather than stopping at the first one.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []error

	if cfg.HelperMode() && strings.TrimSpace(cfg.Deploy.HelperScript) == "" {
		errs = append(errs, fmt.Errorf("deploy.helper_script: required when a deploy private key is set"))
	}

	if cfg.Storage.BuildsPath == "" {
		errs = append(errs, fmt.Errorf("storage.builds_path: cannot be empty"))
	}
	if cfg.Storage.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("storage.database_path: cannot be empty"))
	}

	if cfg.Build.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("build.max_parallel: must be at least 1, got %d", cfg.Build.MaxParallel))
	}

	if cfg.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr: cannot be empty"))
	}

	if cfg.Spool.Enabled {
		if cfg.Spool.Path == "" {
			errs = append(errs, fmt.Errorf("spool.path: required when the spool is enabled"))
		} else if err := validatePathInput(cfg.Spool.Path); err != nil {
			errs = append(errs, fmt.Errorf("spool.path: %w", err))
		}
	}

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	return errors.Join(errs...)
}

// ValidatePath validates that a path exists and is a directory.
// It expands home directory paths (~) before validation.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if err := validatePathInput(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	expandedPath := expandHomeDir(path)

	resolvedPath, err := filepath.EvalSymlinks(expandedPath)
	if err != nil {
		resolvedPath = expandedPath
	}

	info, err := os.Stat(resolvedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s", path)
		}
		return fmt.Errorf("failed to check path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// validatePathInput checks for dangerous characters in path input
func validatePathInput(path string) error {
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains null byte")
	}

	for _, r := range path {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return fmt.Errorf("path contains control character")
		}
	}

	return nil
}
