package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/config"
	"github.com/stwalsh4118/integrity/internal/logging"
)

const (
	version = "0.1.0"
)

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd creates and returns the root command for integrity
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "integrity",
		Short: "Check out pushed commits and record their metadata",
		Long: `Integrity is the core of a continuous integration server.

It receives push notifications, checks the pushed commits out into fresh
build directories and records each commit's metadata. Repositories are
fetched with the git CLI, or through a helper script when a deploy key
is configured (DEPLOY_PRIVATE_KEY).`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.integrity/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(newCheckoutCmd(opts))
	rootCmd.AddCommand(newHeadCmd(opts))
	rootCmd.AddCommand(newBuildCmd(opts))
	rootCmd.AddCommand(newBuildsCmd(opts))
	rootCmd.AddCommand(newInspectCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newStartCmd(opts))
	rootCmd.AddCommand(newStopCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

// loadConfig loads and validates the configuration selected by the flags
func (o *rootOptions) loadConfig() (*config.Config, error) {
	config.SetConfigPath(o.configPath)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// load returns the configuration and a logger built from it
func (o *rootOptions) load() (*config.Config, logging.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
