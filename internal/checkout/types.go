package checkout

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
)

// Head is the commit ref that resolves to the current tip of the branch
const Head CommitRef = "HEAD"

var (
	// ErrInvalidCommitRef is returned for refs that are neither HEAD nor a full sha
	ErrInvalidCommitRef = errors.New("invalid commit ref")
	// ErrMalformedOutput is returned when git or the helper script prints
	// something that cannot be parsed
	ErrMalformedOutput = errors.New("malformed command output")
)

// RepositoryRef identifies the repository and branch to check out
type RepositoryRef struct {
	URI    string `json:"uri" yaml:"uri"`
	Branch string `json:"branch" yaml:"branch"`
}

// Validate checks that both fields are set. Malformed URIs are left to git.
func (r RepositoryRef) Validate() error {
	if r.URI == "" {
		return fmt.Errorf("repository uri cannot be empty")
	}
	if r.Branch == "" {
		return fmt.Errorf("repository branch cannot be empty")
	}
	return nil
}

// CommitRef is either the literal HEAD or a full 40-character sha
type CommitRef string

// IsHead reports whether the ref must be resolved against the remote
func (c CommitRef) IsHead() bool {
	return c == Head
}

// Validate rejects anything but HEAD or a full hex sha
func (c CommitRef) Validate() error {
	if c.IsHead() {
		return nil
	}
	if len(c) != 40 || !plumbing.IsHash(string(c)) {
		return fmt.Errorf("%w: %q", ErrInvalidCommitRef, string(c))
	}
	return nil
}

// Metadata is the normalized description of a checked out commit
type Metadata struct {
	Identifier  string    `json:"identifier" yaml:"identifier"`
	Author      string    `json:"author" yaml:"author"`
	Message     string    `json:"message" yaml:"message"`
	FullMessage string    `json:"full_message" yaml:"full_message"`
	CommittedAt time.Time `json:"committed_at" yaml:"committed_at"`
}

// Mode selects how git operations are executed
type Mode int

const (
	// ModeDirect runs the git CLI directly
	ModeDirect Mode = iota
	// ModeHelper delegates every git operation to the privileged helper script
	ModeHelper
)

// ModeFor returns ModeHelper when a deploy key is present
func ModeFor(privateKeyPresent bool) Mode {
	if privateKeyPresent {
		return ModeHelper
	}
	return ModeDirect
}

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeHelper:
		return "helper"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
