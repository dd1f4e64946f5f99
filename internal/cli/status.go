package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/daemon"
)

// newStatusCmd creates the status command
func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the build service is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleStatus(opts)
		},
	}
}

// handleStatus implements the status command logic
func handleStatus(opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	// PID file lives under the configured base path
	pidPath, err := daemon.PIDFilePath(cfg)
	if err != nil {
		return err
	}

	// Check if the service is running
	running, stale, err := daemon.VerifyRunning(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check service status: %w", err)
	}

	if !running {
		if stale {
			// Stale PID file exists - clean it up and report stopped
			if err := daemon.RemovePIDFile(pidPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: found stale PID file but failed to remove it: %v\n", err)
			}
			fmt.Println("Status: stopped (stale PID file removed)")
			return nil
		}
		fmt.Println("Status: stopped")
		return nil
	}

	// Service is running - get PID for display
	pid, err := daemon.ReadPID(pidPath)
	if err != nil {
		// This shouldn't happen if VerifyRunning returned true
		return fmt.Errorf("service appears to be running but failed to read PID: %w", err)
	}

	fmt.Printf("Status: running (PID: %d, listening on %s)\n", pid, cfg.Server.Addr)
	return nil
}
