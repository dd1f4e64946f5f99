// Package server receives push notifications over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/stwalsh4118/integrity/internal/config"
	"github.com/stwalsh4118/integrity/internal/logging"
	"github.com/stwalsh4118/integrity/internal/payload"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 30 * time.Second

	// payloadField is the form field GitHub-style hooks post the JSON in
	payloadField = "payload"
)

// Server is the webhook receiver. Builds triggered by a push run in the
// background after the request has been answered.
type Server struct {
	app      *fiber.App
	addr     string
	policy   payload.Policy
	buildAll bool
	logger   logging.Logger

	builds sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server that hands every accepted push to policy
func New(cfg *config.Config, policy payload.Policy, logger logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if policy == nil {
		return nil, fmt.Errorf("build policy cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:     cfg.Server.Addr,
		policy:   policy,
		buildAll: cfg.BuildAll,
		logger:   logger.With("component", "server"),
		ctx:      ctx,
		cancel:   cancel,
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "integrity",
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})
	s.app.Use(recover.New())
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/push", s.handlePush)

	return s, nil
}

// App returns the underlying fiber application
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address until Shutdown is called
func (s *Server) Listen() error {
	s.logger.Info("listening for push notifications", "addr", s.addr)
	return s.app.Listen(s.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits for running builds until ctx
// expires, after which they are cancelled
func (s *Server) Shutdown(ctx context.Context) error {
	// Stop accepting requests
	err := s.app.ShutdownWithContext(ctx)

	done := make(chan struct{})
	go func() {
		s.builds.Wait()
		close(done)
	}()

	// Wait for running builds, cancelling them at the deadline
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("cancelling running builds")
		s.cancel()
		<-done
	}
	s.cancel()

	return err
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handlePush(c fiber.Ctx) error {
	// GitHub-style hooks post the JSON in a form field
	body := c.Body()
	if isFormEncoded(c.Get(fiber.HeaderContentType)) {
		body = []byte(c.FormValue(payloadField))
	}

	// Parse payload and resolve the repository up front so bad pushes get a 400
	p, err := payload.Parse(body)
	if err != nil {
		s.logger.Warn("rejected push", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	repo, err := p.Repository()
	if err != nil {
		s.logger.Warn("rejected push", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	commits := len(p.Commits())
	s.logger.Info("accepted push", "uri", repo.URI, "branch", repo.Branch, "commits", commits)

	// Build in the background; the hook only needs to know the push was accepted
	s.builds.Add(1)
	go func() {
		defer s.builds.Done()
		if err := p.Build(s.ctx, s.policy, s.buildAll); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("push build failed", "uri", repo.URI, "branch", repo.Branch, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted", "commits": commits})
}

func isFormEncoded(contentType string) bool {
	return strings.HasPrefix(contentType, fiber.MIMEApplicationForm) ||
		strings.HasPrefix(contentType, fiber.MIMEMultipartForm)
}
