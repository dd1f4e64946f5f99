package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stwalsh4118/integrity/internal/daemon"
)

const startupWait = 200 * time.Millisecond

// newStartCmd creates the start command
func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the build service in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleStart(opts)
		},
	}
}

// handleStart re-executes this binary as "serve" in a new session
func handleStart(opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	pidPath, err := daemon.PIDFilePath(cfg)
	if err != nil {
		return err
	}

	// Refuse to start a second instance
	running, stale, err := daemon.VerifyRunning(pidPath)
	if err != nil {
		return fmt.Errorf("failed to check service status: %w", err)
	}
	if running {
		pid, _ := daemon.ReadPID(pidPath)
		return fmt.Errorf("service is already running (PID: %d)", pid)
	}
	if stale {
		// Leftover from a crashed run
		if err := daemon.RemovePIDFile(pidPath); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	// Get path to current executable
	exePath, err := daemon.ExecutablePath()
	if err != nil {
		return err
	}

	// Forward the persistent flags to the service
	args := []string{"serve"}
	if opts.configPath != "" {
		args = append(args, "--config", opts.configPath)
	}
	if opts.verbose {
		args = append(args, "--verbose")
	}

	cmd := exec.Command(exePath, args...)
	cmd.Env = serviceEnv(os.Environ())
	// Detach from the controlling terminal
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// Redirect stdio to /dev/null
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// The service writes its own PID file once it is up
	time.Sleep(startupWait)
	pid, err := daemon.ReadPID(pidPath)
	if err != nil {
		pid = cmd.Process.Pid
	}

	fmt.Printf("Service started (PID: %d)\n", pid)
	return nil
}

// serviceEnv keeps only what the service needs from the environment:
// identity, PATH for git and the helper script, and its own settings
func serviceEnv(environ []string) []string {
	var env []string
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		switch {
		case name == "HOME", name == "USER", name == "PATH",
			name == "DEPLOY_PRIVATE_KEY", name == "SSH_AUTH_SOCK",
			strings.HasPrefix(name, "INTEGRITY_"):
			env = append(env, kv)
		}
	}
	return env
}
