package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/config"
)

// newConfigCmd creates the config command for viewing and modifying configuration
func newConfigCmd(opts *rootOptions) *cobra.Command {
	var showFlag bool
	var setBuildsPath string
	var setHelperScript string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long: `View and modify integrity configuration settings.

Use --show to display the effective configuration (the deploy key is never
printed), --set-builds-path to change where checkouts are placed, or
--set-helper-script to change the script used when a deploy key is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagCount := 0
			for _, set := range []bool{showFlag, setBuildsPath != "", setHelperScript != ""} {
				if set {
					flagCount++
				}
			}

			if flagCount == 0 {
				return cmd.Help()
			}
			if flagCount > 1 {
				return fmt.Errorf("only one flag can be used at a time")
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			switch {
			case showFlag:
				return handleShow(cmd.OutOrStdout(), cfg)
			case setBuildsPath != "":
				return handleSetBuildsPath(cmd.OutOrStdout(), cfg, setBuildsPath)
			default:
				return handleSetHelperScript(cmd.OutOrStdout(), cfg, setHelperScript)
			}
		},
	}

	cmd.Flags().BoolVarP(&showFlag, "show", "s", false, "Display current configuration")
	cmd.Flags().StringVar(&setBuildsPath, "set-builds-path", "", "Set the directory builds are checked out into")
	cmd.Flags().StringVar(&setHelperScript, "set-helper-script", "", "Set the helper script used in deploy key mode")

	return cmd
}

// handleShow displays the current configuration in YAML format
func handleShow(out io.Writer, cfg *config.Config) error {
	data, err := config.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	_, err = out.Write(data)
	return err
}

// handleSetBuildsPath creates the directory if needed and stores it as the builds path
func handleSetBuildsPath(out io.Writer, cfg *config.Config, path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create builds directory: %w", err)
	}
	if err := config.ValidatePath(path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	cfg.Storage.BuildsPath = path
	if err := saveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Set builds path to %s\n", path)
	return nil
}

// handleSetHelperScript stores the helper script name or path
func handleSetHelperScript(out io.Writer, cfg *config.Config, script string) error {
	cfg.Deploy.HelperScript = script
	if err := saveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Set helper script to %s\n", script)
	return nil
}

func saveConfig(cfg *config.Config) error {
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}
