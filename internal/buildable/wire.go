package buildable

import (
	"database/sql"
	"fmt"

	"github.com/stwalsh4118/integrity/internal/build"
	"github.com/stwalsh4118/integrity/internal/checkout"
	"github.com/stwalsh4118/integrity/internal/config"
	"github.com/stwalsh4118/integrity/internal/logging"
)

// NewPolicyFromConfig assembles the storage, checkout strategy and builder
// described by cfg behind a Policy
func NewPolicyFromConfig(cfg *config.Config, database *sql.DB, logger logging.Logger) (*Policy, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	storage, err := build.NewStorage(database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create build storage: %w", err)
	}

	strategy, err := checkout.NewStrategyFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout strategy: %w", err)
	}

	builder, err := build.NewBuilder(storage, strategy, cfg.Storage.BuildsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create builder: %w", err)
	}

	return NewPolicy(builder, cfg.Build.MaxParallel, logger)
}
