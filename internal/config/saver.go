package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Save writes the configuration to the active config file
// (~/.integrity/config.yaml unless SetConfigPath was called).
// Paths inside the home directory are written in ~ form. The deploy key is
// never persisted; it is expected to come from the environment.
func Save(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := configPathOverride
	if configPath == "" {
		configPath = filepath.Join(homeDir, configDirName, configFileName+"."+configFileType)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), storageDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal renders the configuration as YAML with the same redaction and
// path formatting that Save applies.
func Marshal(cfg *Config) ([]byte, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}

	data, err := yaml.Marshal(convertPathsToTilde(cfg, homeDir))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to YAML: %w", err)
	}
	return data, nil
}

// convertPathsToTilde creates a copy of the config with absolute paths
// converted to ~ format if they're within the user's home directory
func convertPathsToTilde(cfg *Config, homeDir string) *Config {
	result := *cfg
	result.Deploy.PrivateKey = ""
	result.Deploy.HelperScript = convertPathToTilde(cfg.Deploy.HelperScript, homeDir)
	result.Storage = StorageConfig{
		BasePath:     convertPathToTilde(cfg.Storage.BasePath, homeDir),
		BuildsPath:   convertPathToTilde(cfg.Storage.BuildsPath, homeDir),
		DatabasePath: convertPathToTilde(cfg.Storage.DatabasePath, homeDir),
	}
	result.Spool.Path = convertPathToTilde(cfg.Spool.Path, homeDir)
	result.Logging.FilePath = convertPathToTilde(cfg.Logging.FilePath, homeDir)
	return &result
}

// convertPathToTilde converts an absolute path to ~ format if it's within
// the user's home directory, otherwise returns the path as-is.
func convertPathToTilde(path, homeDir string) string {
	if path == "" || homeDir == "" || !filepath.IsAbs(path) {
		return path
	}

	homeDirAbs, err := filepath.Abs(homeDir)
	if err != nil {
		return path
	}

	relPath, err := filepath.Rel(homeDirAbs, path)
	if err != nil {
		return path
	}

	if !strings.HasPrefix(relPath, "..") {
		if relPath == "." {
			return "~"
		}
		return filepath.Join("~", relPath)
	}

	return path
}
