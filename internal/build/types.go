// Package build turns a single commit of a repository into a recorded
// build: a checked-out working tree plus the commit's metadata.
package build

import (
	"errors"
	"time"

	"github.com/stwalsh4118/integrity/internal/checkout"
)

// Status is the lifecycle state of a build
type Status string

const (
	StatusPending    Status = "pending"
	StatusCheckedOut Status = "checked_out"
	StatusFailed     Status = "failed"
)

// ErrBuildNotFound is returned when no build has the requested id
var ErrBuildNotFound = errors.New("build not found")

// Build is one checkout of one commit
type Build struct {
	ID            string
	RepositoryURI string
	Branch        string
	CommitRef     string
	Directory     string
	Status        Status
	Metadata      *checkout.Metadata // nil until checked out
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository returns the repository the build was taken from
func (b *Build) Repository() checkout.RepositoryRef {
	return checkout.RepositoryRef{URI: b.RepositoryURI, Branch: b.Branch}
}
