package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stwalsh4118/integrity/internal/config"
)

const pidFileName = "integrity.pid"

// PIDFilePath returns where the running service records its PID
func PIDFilePath(cfg *config.Config) (string, error) {
	if cfg == nil || cfg.Storage.BasePath == "" {
		return "", fmt.Errorf("storage base path not configured")
	}
	return filepath.Abs(filepath.Join(cfg.Storage.BasePath, pidFileName))
}

// WritePID writes pid to path, creating the directory with owner-only permissions
func WritePID(path string, pid int) error {
	// Ensure PID file directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	// Write PID to file with owner-only permissions
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// ReadPID reads the PID recorded at path
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("PID file does not exist")
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	// Parse PID from file content
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	// Validate PID is positive
	if pid <= 0 {
		return 0, fmt.Errorf("invalid PID value: %d", pid)
	}

	return pid, nil
}

// RemovePIDFile removes the PID file; a missing file is not an error
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// PIDFileExists checks if the PID file exists
func PIDFileExists(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check PID file: %w", err)
	}
	return true, nil
}
