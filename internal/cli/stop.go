package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/daemon"
)

const (
	stopTimeout = 15 * time.Second
)

// newStopCmd creates the stop command
func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background build service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleStop(opts)
		},
	}
}

// handleStop implements the stop command logic
func handleStop(opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	pidPath, err := daemon.PIDFilePath(cfg)
	if err != nil {
		return err
	}

	// Check if PID file exists
	exists, err := daemon.PIDFileExists(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check PID file: %w", err)
	}
	if !exists {
		return fmt.Errorf("service is not running (PID file not found)")
	}

	// Read PID from file
	pid, err := daemon.ReadPID(pidPath)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	// Verify process exists
	running, err := daemon.IsProcessRunning(pid)
	if err != nil {
		return fmt.Errorf("failed to check if process is running: %w", err)
	}
	if !running {
		// Stale PID file - remove it
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			return fmt.Errorf("service is not running, but failed to remove stale PID file: %w", err)
		}
		return fmt.Errorf("service is not running (stale PID file removed)")
	}

	// Verify it's actually the integrity service
	ours, err := daemon.IsServiceProcess(pid)
	if err != nil {
		// If we can't verify, proceed anyway but warn
		fmt.Fprintf(os.Stderr, "Warning: could not verify process is the integrity service: %v\n", err)
	} else if !ours {
		return fmt.Errorf("process with PID %d is not the integrity service", pid)
	}

	// Send SIGTERM for graceful shutdown
	if err := daemon.SendSignal(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send shutdown signal: %w", err)
	}

	fmt.Printf("Shutdown signal sent to service (PID: %d), waiting for running builds...\n", pid)

	// Wait for process to exit
	if err := daemon.WaitForProcessExit(pid, stopTimeout); err != nil {
		return fmt.Errorf("service did not exit: %w", err)
	}

	// The service removes its PID file itself; this covers a crash during shutdown
	if err := daemon.RemovePIDFile(pidPath); err != nil {
		return fmt.Errorf("service stopped, but failed to remove PID file: %w", err)
	}

	fmt.Println("Service stopped")
	return nil
}
