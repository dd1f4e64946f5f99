package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configDirName  = ".integrity"
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "INTEGRITY"

	// deployKeyEnv is the bare environment variable deploy tooling sets
	// when a private deploy key is provisioned on the host.
	deployKeyEnv = "DEPLOY_PRIVATE_KEY"
)

// configPathOverride replaces ~/.integrity/config.yaml when set
var configPathOverride string

// SetConfigPath points Load at an explicit configuration file.
// An empty path restores the default location.
func SetConfigPath(path string) {
	configPathOverride = path
}

// Load loads the configuration from file, environment variables, and defaults.
// It returns a Config struct populated with values from these sources in order of precedence:
// 1. Environment variables (INTEGRITY_ prefix, plus DEPLOY_PRIVATE_KEY)
// 2. Configuration file (~/.integrity/config.yaml)
// 3. Default values
func Load() (*Config, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("failed to initialize viper: %w", err)
	}

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandConfigPaths(&cfg)

	return &cfg, nil
}

// initViper initializes Viper with configuration file path, environment variable prefix, and settings
func initViper() error {
	configPath := configPathOverride
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, configDirName, configFileName+"."+configFileType)
	}

	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// The deploy key is usually exported without our prefix
	if err := viper.BindEnv("deploy.private_key", envPrefix+"_DEPLOY_PRIVATE_KEY", deployKeyEnv); err != nil {
		return fmt.Errorf("failed to bind deploy key environment: %w", err)
	}

	// Try to read the config file (it's okay if it doesn't exist)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use literal ~ which will be expanded later
		homeDir = "~"
	}

	viper.SetDefault("build_all", false)

	viper.SetDefault("deploy.helper_script", "git_ssh")

	viper.SetDefault("storage.base_path", filepath.Join(homeDir, configDirName))
	viper.SetDefault("storage.builds_path", filepath.Join(homeDir, configDirName, "builds"))
	viper.SetDefault("storage.database_path", filepath.Join(homeDir, configDirName, "integrity.db"))

	viper.SetDefault("build.max_parallel", 1)

	viper.SetDefault("server.addr", ":8910")

	viper.SetDefault("spool.enabled", false)
	viper.SetDefault("spool.path", filepath.Join(homeDir, configDirName, "spool"))

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file_path", "")
	viper.SetDefault("logging.console", true)
}

// expandHomeDir expands ~ in a path to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// expandConfigPaths expands all ~ paths in the configuration struct
func expandConfigPaths(cfg *Config) {
	cfg.Deploy.HelperScript = expandHomeDir(cfg.Deploy.HelperScript)

	cfg.Storage.BasePath = expandHomeDir(cfg.Storage.BasePath)
	cfg.Storage.BuildsPath = expandHomeDir(cfg.Storage.BuildsPath)
	cfg.Storage.DatabasePath = expandHomeDir(cfg.Storage.DatabasePath)

	cfg.Spool.Path = expandHomeDir(cfg.Spool.Path)
	cfg.Logging.FilePath = expandHomeDir(cfg.Logging.FilePath)
}
