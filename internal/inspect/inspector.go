// Package inspect reads a build's working tree with go-git, without the
// git CLI or the helper script, to confirm what was actually checked out.
package inspect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stwalsh4118/integrity/internal/build"
	"github.com/stwalsh4118/integrity/internal/checkout"
	"github.com/stwalsh4118/integrity/internal/logging"
)

// ErrNotCheckedOut is returned for builds that never produced a working tree
var ErrNotCheckedOut = errors.New("build has no checkout")

// FileChange is the line count of one file touched by a commit
type FileChange struct {
	Path      string `yaml:"path"`
	Additions int    `yaml:"additions"`
	Deletions int    `yaml:"deletions"`
}

// Report describes the commit found in a working tree
type Report struct {
	Directory string            `yaml:"directory"`
	Metadata  checkout.Metadata `yaml:"metadata"`
	Parents   []string          `yaml:"parents"`
	IsMerge   bool              `yaml:"is_merge"`
	Files     []FileChange      `yaml:"files"`
	Expected  string            `yaml:"expected,omitempty"`
	Matches   bool              `yaml:"matches"`
}

// Inspector opens working trees and describes their HEAD commit
type Inspector struct {
	logger logging.Logger
}

// NewInspector creates an Inspector
func NewInspector(logger logging.Logger) (*Inspector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Inspector{logger: logger.With("component", "inspector")}, nil
}

// InspectDirectory describes the HEAD commit of the working tree in dir
func (i *Inspector) InspectDirectory(dir string) (*Report, error) {
	// Open the clone
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository in %s: %w", dir, err)
	}

	// Get HEAD reference
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD in %s: %w", dir, err)
	}

	// Get commit object
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", head.Hash(), err)
	}

	report := &Report{
		Directory: dir,
		Metadata:  metadataOf(commit),
		Parents:   make([]string, 0, len(commit.ParentHashes)),
	}
	for _, parent := range commit.ParentHashes {
		report.Parents = append(report.Parents, parent.String())
	}
	// Merge commits have multiple parents
	report.IsMerge = len(report.Parents) > 1

	// File stats are best effort; the report is still useful without them
	stats, err := commit.Stats()
	if err != nil {
		i.logger.Warn("failed to compute file stats", "commit", commit.Hash.String(), "error", err)
	}
	for _, stat := range stats {
		report.Files = append(report.Files, FileChange{Path: stat.Name, Additions: stat.Addition, Deletions: stat.Deletion})
	}

	i.logger.Debug("inspected working tree", "dir", dir, "commit", commit.Hash.String(), "files", len(report.Files))
	return report, nil
}

// InspectBuild inspects the directory of b and compares its HEAD with the
// identifier recorded for the build
func (i *Inspector) InspectBuild(b *build.Build) (*Report, error) {
	if b == nil {
		return nil, fmt.Errorf("build cannot be nil")
	}
	if b.Status != build.StatusCheckedOut || b.Metadata == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCheckedOut, b.ID, b.Status)
	}

	report, err := i.InspectDirectory(b.Directory)
	if err != nil {
		return nil, err
	}

	report.Expected = b.Metadata.Identifier
	report.Matches = report.Metadata.Identifier == b.Metadata.Identifier
	if !report.Matches {
		i.logger.Warn("working tree differs from recorded build", "build_id", b.ID, "expected", report.Expected, "found", report.Metadata.Identifier)
	}
	return report, nil
}

// metadataOf normalizes a go-git commit the way checkouts record commits
func metadataOf(commit *object.Commit) checkout.Metadata {
	// git's %s is the first paragraph joined into one line
	paragraph, body, _ := strings.Cut(strings.TrimSpace(commit.Message), "\n\n")
	subject := strings.ReplaceAll(paragraph, "\n", " ")
	body = strings.TrimLeft(body, "\n")

	return checkout.Metadata{
		Identifier:  commit.Hash.String(),
		Author:      fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email),
		Message:     checkout.TruncateMessage(subject),
		FullMessage: subject + "\n\n" + body,
		CommittedAt: commit.Committer.When,
	}
}
