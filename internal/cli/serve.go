package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/daemon"
)

// newServeCmd creates the serve command, which runs the service in the foreground
func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the push webhook and payload spool",
		Long: `Run the build service in the foreground: an HTTP receiver for push
notifications (POST /push) and, when enabled, a spool directory watcher for
payload files. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleServe(opts)
		},
	}
}

// handleServe runs the daemon until it is shut down
func handleServe(opts *rootOptions) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	pidPath, err := daemon.PIDFilePath(cfg)
	if err != nil {
		return err
	}
	running, _, err := daemon.VerifyRunning(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check service status: %w", err)
	}
	if running {
		pid, _ := daemon.ReadPID(pidPath)
		return fmt.Errorf("service is already running (PID: %d)", pid)
	}

	d, err := daemon.NewDaemon(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Run(); err != nil {
		return fmt.Errorf("daemon error: %w", err)
	}
	return nil
}
