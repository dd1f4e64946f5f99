// Package checkout materializes a repository at a given commit and
// extracts normalized metadata for that commit.
package checkout

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/integrity/internal/logging"
)

// Options configures a Checkout
type Options struct {
	Strategy Strategy
	Logger   logging.Logger
}

// Checkout ties a repository, a commit ref and a target directory together.
// A Checkout is not safe for concurrent use; separate instances with
// distinct directories may run in parallel.
type Checkout struct {
	repo     RepositoryRef
	commit   CommitRef
	dir      string
	strategy Strategy
	logger   logging.Logger

	sha string // resolved lazily, then fixed for the life of the instance
}

// New creates a Checkout of commit from repo into dir
func New(repo RepositoryRef, commit CommitRef, dir string, opts Options) (*Checkout, error) {
	if err := repo.Validate(); err != nil {
		return nil, err
	}
	if err := commit.Validate(); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, fmt.Errorf("checkout directory cannot be empty")
	}
	if opts.Strategy == nil {
		return nil, fmt.Errorf("strategy cannot be nil")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Checkout{
		repo:     repo,
		commit:   commit,
		dir:      dir,
		strategy: opts.Strategy,
		logger:   opts.Logger.With("component", "checkout", "uri", repo.URI, "branch", repo.Branch),
	}, nil
}

// Repository returns the repository being checked out
func (c *Checkout) Repository() RepositoryRef {
	return c.repo
}

// Directory returns the target directory
func (c *Checkout) Directory() string {
	return c.dir
}

// Run materializes the repository at the resolved sha. Any failing step aborts the run.
func (c *Checkout) Run(ctx context.Context) error {
	sha, err := c.SHA1(ctx)
	if err != nil {
		return err
	}

	c.logger.Info("checking out commit", "sha", sha, "dir", c.dir)
	if err := c.strategy.Clone(ctx, c.repo, c.dir, sha); err != nil {
		c.logger.Error("checkout failed", "sha", sha, "dir", c.dir, "error", err)
		return err
	}

	c.logger.Debug("checked out commit", "sha", sha, "dir", c.dir)
	return nil
}

// Head returns the current tip of the branch on the remote
func (c *Checkout) Head(ctx context.Context) (string, error) {
	sha, err := c.strategy.ResolveHead(ctx, c.repo)
	if err != nil {
		return "", err
	}
	c.logger.Debug("resolved remote head", "sha", sha)
	return sha, nil
}

// SHA1 returns the commit being checked out. HEAD is resolved against the
// remote on first use; the result never changes afterwards.
func (c *Checkout) SHA1(ctx context.Context) (string, error) {
	if c.sha != "" {
		return c.sha, nil
	}

	if !c.commit.IsHead() {
		c.sha = string(c.commit)
		return c.sha, nil
	}

	sha, err := c.Head(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD of %s: %w", c.repo.Branch, err)
	}
	c.sha = sha
	return c.sha, nil
}
