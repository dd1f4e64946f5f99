// Package buildable decides which commits of a push get built.
package buildable

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"github.com/stwalsh4118/integrity/internal/build"
	"github.com/stwalsh4118/integrity/internal/checkout"
	"github.com/stwalsh4118/integrity/internal/logging"
	"github.com/stwalsh4118/integrity/internal/payload"
)

// Builder builds a single commit
type Builder interface {
	Build(ctx context.Context, repo checkout.RepositoryRef, commit checkout.CommitRef) (*build.Build, error)
}

// Policy builds either the head commit or every commit of a payload
type Policy struct {
	builder     Builder
	maxParallel int
	logger      logging.Logger
}

// NewPolicy creates a Policy running at most maxParallel builds at once
func NewPolicy(builder Builder, maxParallel int, logger logging.Logger) (*Policy, error) {
	if builder == nil {
		return nil, fmt.Errorf("builder cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Policy{
		builder:     builder,
		maxParallel: maxParallel,
		logger:      logger.With("component", "build_policy"),
	}, nil
}

// Select returns the commits that would be built
func (p *Policy) Select(pl *payload.Payload, headOnly bool) []payload.Commit {
	if !headOnly {
		return pl.Commits()
	}
	head, ok := pl.Head()
	if !ok {
		return nil
	}
	return []payload.Commit{head}
}

// SelectAndBuild builds the selected commits. A failed build does not stop
// the others; all failures are returned together.
func (p *Policy) SelectAndBuild(ctx context.Context, pl *payload.Payload, headOnly bool) error {
	if pl == nil {
		return fmt.Errorf("payload cannot be nil")
	}

	// Select commits to build
	commits := p.Select(pl, headOnly)
	if len(commits) == 0 {
		p.logger.Info("no commits to build", "head_only", headOnly)
		return nil
	}

	repo, err := pl.Repository()
	if err != nil {
		return err
	}

	p.logger.Info("building commits", "uri", repo.URI, "branch", repo.Branch, "count", len(commits), "head_only", headOnly)

	// Bounded pool; a failed build does not cancel its siblings
	workers := pool.New().WithContext(ctx).WithMaxGoroutines(p.maxParallel)
	for _, commit := range commits {
		ref := checkout.CommitRef(commit.Identifier)
		workers.Go(func(ctx context.Context) error {
			if _, err := p.builder.Build(ctx, repo, ref); err != nil {
				return fmt.Errorf("build of %s failed: %w", ref, err)
			}
			return nil
		})
	}

	return workers.Wait()
}
