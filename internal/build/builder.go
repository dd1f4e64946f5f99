package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/stwalsh4118/integrity/internal/checkout"
	"github.com/stwalsh4118/integrity/internal/logging"
)

// Builder checks out commits into fresh directories and records the result
type Builder struct {
	storage    Storage
	strategy   checkout.Strategy
	buildsPath string
	logger     logging.Logger
	baseLogger logging.Logger // handed to each checkout
}

// NewBuilder creates a Builder that places each build under buildsPath
func NewBuilder(storage Storage, strategy checkout.Strategy, buildsPath string, logger logging.Logger) (*Builder, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if strategy == nil {
		return nil, fmt.Errorf("strategy cannot be nil")
	}
	if buildsPath == "" {
		return nil, fmt.Errorf("builds path cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Builder{
		storage:    storage,
		strategy:   strategy,
		buildsPath: buildsPath,
		logger:     logger.With("component", "builder"),
		baseLogger: logger,
	}, nil
}

// Build checks out commit of repo. The returned build is recorded either as
// checked out or as failed; the error is non-nil in the latter case.
func (b *Builder) Build(ctx context.Context, repo checkout.RepositoryRef, commit checkout.CommitRef) (*Build, error) {
	// Allocate build id and directory
	id := uuid.New().String()
	record := &Build{
		ID:            id,
		RepositoryURI: repo.URI,
		Branch:        repo.Branch,
		CommitRef:     string(commit),
		Directory:     filepath.Join(b.buildsPath, id),
	}

	// Invalid requests are rejected before anything is recorded
	co, err := checkout.New(repo, commit, record.Directory, checkout.Options{
		Strategy: b.strategy,
		Logger:   b.baseLogger.With("build_id", id),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid build request: %w", err)
	}

	// Ensure builds directory exists
	if err := os.MkdirAll(b.buildsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create builds directory: %w", err)
	}

	// Record the pending build
	if err := b.storage.CreateBuild(record); err != nil {
		return nil, err
	}

	b.logger.Info("starting build", "build_id", id, "uri", repo.URI, "branch", repo.Branch, "commit", commit)

	// Check out and extract metadata
	metadata, err := b.checkout(ctx, co)
	if err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()
		b.logger.Error("build failed", "build_id", id, "error", err)
		if markErr := b.storage.MarkFailed(id, err); markErr != nil {
			return record, errors.Join(err, markErr)
		}
		return record, err
	}

	if err := b.storage.MarkCheckedOut(id, metadata); err != nil {
		return record, err
	}
	record.Status = StatusCheckedOut
	record.Metadata = metadata

	b.logger.Info("build checked out", "build_id", id, "identifier", metadata.Identifier)
	return record, nil
}

func (b *Builder) checkout(ctx context.Context, co *checkout.Checkout) (*checkout.Metadata, error) {
	if err := co.Run(ctx); err != nil {
		return nil, err
	}
	return co.Metadata(ctx)
}
