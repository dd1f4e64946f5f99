// Package daemon runs the long-lived build service: the push webhook and
// the optional payload spool, until it is told to stop.
package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/stwalsh4118/integrity/internal/buildable"
	"github.com/stwalsh4118/integrity/internal/config"
	"github.com/stwalsh4118/integrity/internal/db"
	"github.com/stwalsh4118/integrity/internal/logging"
	"github.com/stwalsh4118/integrity/internal/payload"
	"github.com/stwalsh4118/integrity/internal/server"
	"github.com/stwalsh4118/integrity/internal/spool"
)

const (
	shutdownTimeout = 10 * time.Second
)

// Daemon owns the database, the webhook server and the spool watcher
type Daemon struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	db      *sql.DB
	config  *config.Config
	logger  logging.Logger
	policy  payload.Policy
	server  *server.Server
	spool   spool.Watcher
	pidPath string
}

// NewDaemon wires the service described by cfg
func NewDaemon(cfg *config.Config, logger logging.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Ensure storage directories exist
	if err := config.EnsureStorageDirectories(cfg); err != nil {
		return nil, err
	}

	pidPath, err := PIDFilePath(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize database
	database, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Storage, checkout strategy and builder behind the build policy
	policy, err := buildable.NewPolicyFromConfig(cfg, database, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	// Create webhook server
	srv, err := server.New(cfg, policy, logger)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	// Spool watcher is optional
	var watcher spool.Watcher
	if cfg.Spool.Enabled {
		watcher, err = spool.NewWatcher(cfg, logger)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to create spool watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		db:      database,
		config:  cfg,
		logger:  logger.With("component", "daemon"),
		policy:  policy,
		server:  srv,
		spool:   watcher,
		pidPath: pidPath,
	}, nil
}

// Run serves until SIGINT, SIGTERM or Shutdown, then stops every component
func (d *Daemon) Run() error {
	defer close(d.done)

	// Set up signal handlers
	stopSignals := SetupSignalHandlers(d.Shutdown)
	defer stopSignals()

	// Write PID file
	pid := os.Getpid()
	if err := WritePID(d.pidPath, pid); err != nil {
		d.db.Close()
		return err
	}
	d.logger.Info("daemon started", "pid", pid, "addr", d.config.Server.Addr, "helper_mode", d.config.HelperMode())

	// Start spool watcher and its consumer
	var workers sync.WaitGroup
	if d.spool != nil {
		if err := d.spool.Start(); err != nil {
			d.cleanup()
			return fmt.Errorf("failed to start spool watcher: %w", err)
		}
		workers.Add(1)
		go func() {
			defer workers.Done()
			d.consumeSpool()
		}()
	}

	// Start server in the background
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- d.server.Listen()
	}()

	// Wait for shutdown signal or server failure
	var runErr error
	select {
	case <-d.ctx.Done():
	case err := <-listenErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
			d.logger.Error("server stopped unexpectedly", "error", err)
		}
		d.cancel()
	}

	d.logger.Info("daemon shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting pushes and wait for running builds
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("failed to shut down server", "error", err)
	}
	// Stop spool watcher
	if d.spool != nil {
		if err := d.spool.Stop(); err != nil {
			d.logger.Error("failed to stop spool watcher", "error", err)
		}
	}
	workers.Wait()

	// Close database and remove PID file
	d.cleanup()
	d.logger.Info("daemon shutdown completed")
	return runErr
}

// Shutdown asks Run to stop
func (d *Daemon) Shutdown() {
	d.cancel()
}

// Wait waits for Run to return
func (d *Daemon) Wait() {
	<-d.done
}

func (d *Daemon) cleanup() {
	if err := d.db.Close(); err != nil {
		d.logger.Error("failed to close database", "error", err)
	}
	if err := RemovePIDFile(d.pidPath); err != nil {
		d.logger.Error("failed to remove PID file", "error", err)
	}
}

// consumeSpool builds payload files already waiting in the spool, then
// every file that arrives until the watcher stops
func (d *Daemon) consumeSpool() {
	pending, err := d.spool.Pending()
	if err != nil {
		d.logger.Error("failed to list pending payloads", "error", err)
	}
	for _, path := range pending {
		d.processPayloadFile(path)
	}

	events, err := d.spool.Watch()
	if err != nil {
		d.logger.Error("failed to watch spool", "error", err)
		return
	}
	for event := range events {
		d.processPayloadFile(event.Path)
	}
}

// processPayloadFile builds one spooled payload and archives it
func (d *Daemon) processPayloadFile(path string) {
	if d.ctx.Err() != nil {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Error("failed to read payload file", "path", path, "error", err)
		}
		return
	}

	buildErr := d.buildPayload(data)
	if errors.Is(buildErr, context.Canceled) {
		// Left in place for the next start
		return
	}
	if buildErr != nil {
		d.logger.Error("spooled payload failed", "path", path, "error", buildErr)
	}

	dest, err := spool.Archive(d.config.Spool.Path, path, buildErr == nil)
	if err != nil {
		d.logger.Error("failed to archive payload file", "path", path, "error", err)
		return
	}
	d.logger.Info("spooled payload handled", "path", path, "archived_to", dest, "ok", buildErr == nil)
}

func (d *Daemon) buildPayload(data []byte) error {
	p, err := payload.Parse(data)
	if err != nil {
		return err
	}
	return p.Build(d.ctx, d.policy, d.config.BuildAll)
}
