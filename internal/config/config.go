package config

// Config represents the root configuration structure for integrity
type Config struct {
	BuildAll bool          `mapstructure:"build_all" yaml:"build_all"`
	Deploy   DeployConfig  `mapstructure:"deploy" yaml:"deploy"`
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage"`
	Build    BuildConfig   `mapstructure:"build" yaml:"build"`
	Server   ServerConfig  `mapstructure:"server" yaml:"server"`
	Spool    SpoolConfig   `mapstructure:"spool" yaml:"spool"`
	Logging  LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// DeployConfig controls how repositories are fetched.
// A non-empty PrivateKey switches every git operation to the helper script.
type DeployConfig struct {
	PrivateKey   string `mapstructure:"private_key" yaml:"private_key,omitempty"`
	HelperScript string `mapstructure:"helper_script" yaml:"helper_script"`
}

// StorageConfig contains storage-related configuration
type StorageConfig struct {
	BasePath     string `mapstructure:"base_path" yaml:"base_path"`
	BuildsPath   string `mapstructure:"builds_path" yaml:"builds_path"`
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

// BuildConfig contains build scheduling configuration
type BuildConfig struct {
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel"`
}

// ServerConfig contains webhook receiver configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SpoolConfig contains payload drop-directory configuration
type SpoolConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig contains logger configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	FilePath string `mapstructure:"file_path" yaml:"file_path"`
	Console  bool   `mapstructure:"console" yaml:"console"`
}

// HelperMode reports whether a deploy key is configured, in which case git
// operations go through the helper script instead of the git CLI.
func (c *Config) HelperMode() bool {
	return c.Deploy.PrivateKey != ""
}
