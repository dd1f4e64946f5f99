package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Archive subdirectories beneath the spool directory
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Archive moves a handled payload file out of the spool directory into
// processed/ or failed/ and returns its new path. An existing file of the
// same name is not overwritten.
func Archive(spoolDir, path string, succeeded bool) (string, error) {
	sub := FailedDir
	if succeeded {
		sub = ProcessedDir
	}

	// Ensure archive directory exists
	dir := filepath.Join(spoolDir, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", sub, err)
	}

	dest := filepath.Join(dir, filepath.Base(path))
	// Name taken, prefix with a timestamp
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(dir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(path)))
	}

	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s to %s: %w", path, sub, err)
	}
	return dest, nil
}
