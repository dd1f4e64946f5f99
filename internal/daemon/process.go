package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const exitPollInterval = 100 * time.Millisecond

// IsProcessRunning checks if a process with the given PID exists
func IsProcessRunning(pid int) (bool, error) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("failed to find process: %w", err)
	}

	// Signal 0 checks for existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		// Process exists but belongs to another user
		return true, nil
	default:
		return false, fmt.Errorf("failed to check process %d: %w", pid, err)
	}
}

// IsServiceProcess reports whether pid runs the same executable as this
// process. Where /proc is unavailable it falls back to existence only.
func IsServiceProcess(pid int) (bool, error) {
	running, err := IsProcessRunning(pid)
	if err != nil || !running {
		return false, err
	}

	// Compare against our own executable
	current, err := ExecutablePath()
	if err != nil {
		return false, err
	}

	procExe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		// No /proc on this platform, trust the PID file
		return true, nil
	}
	if resolved, err := filepath.EvalSymlinks(procExe); err == nil {
		procExe = resolved
	}

	return procExe == current, nil
}

// SendSignal sends sig to the process with the given PID
func SendSignal(pid int, sig os.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to send signal to process: %w", err)
	}
	return nil
}

// WaitForProcessExit polls until pid is gone or timeout elapses.
// The process need not be a child of this one.
func WaitForProcessExit(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, err := IsProcessRunning(pid)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("process %d did not exit within %v", pid, timeout)
		}
		time.Sleep(exitPollInterval)
	}
}

// ExecutablePath returns the resolved absolute path of the current executable
func ExecutablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks so comparisons with /proc/<pid>/exe match
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return filepath.Abs(exe)
}

// VerifyRunning checks the PID file at pidPath against the process table.
// It returns whether the service is running and whether the PID file is stale.
func VerifyRunning(pidPath string) (running bool, stale bool, err error) {
	exists, err := PIDFileExists(pidPath)
	if err != nil || !exists {
		return false, false, err
	}

	pid, err := ReadPID(pidPath)
	if err != nil {
		// Unreadable PID file counts as stale
		return false, true, nil
	}

	alive, err := IsProcessRunning(pid)
	if err != nil {
		return false, false, err
	}
	if !alive {
		return false, true, nil
	}

	// A recycled PID belonging to another program leaves the file stale
	ours, err := IsServiceProcess(pid)
	if err != nil {
		return true, false, nil
	}
	return ours, !ours, nil
}
