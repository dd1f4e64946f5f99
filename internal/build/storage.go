package build

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/integrity/internal/checkout"
	"github.com/stwalsh4118/integrity/internal/logging"
)

// Storage persists builds and their outcome
type Storage interface {
	CreateBuild(b *Build) error
	MarkCheckedOut(id string, metadata *checkout.Metadata) error
	MarkFailed(id string, cause error) error
	GetBuild(id string) (*Build, error)
	ListBuildsByRepository(uri string, limit int) ([]*Build, error)
	ListRecentBuilds(limit int) ([]*Build, error)
}

const selectBuild = `
	SELECT id, repository_uri, branch, commit_ref, directory, status,
		identifier, author, message, full_message, committed_at, error,
		created_at, updated_at
	FROM builds`

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// buildStorage implements Storage on the builds table
type buildStorage struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStorage creates a build storage backed by db
func NewStorage(db *sql.DB, logger logging.Logger) (Storage, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &buildStorage{
		db:     db,
		logger: logger.With("component", "build_storage"),
	}, nil
}

// CreateBuild inserts b as a pending build. Zero timestamps are set to now.
func (s *buildStorage) CreateBuild(b *Build) error {
	if b == nil {
		return fmt.Errorf("build cannot be nil")
	}
	if b.ID == "" {
		return fmt.Errorf("build ID cannot be empty")
	}

	// Set timestamps if not already set
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = b.CreatedAt
	b.Status = StatusPending

	_, err := s.db.Exec(`
		INSERT INTO builds (
			id, repository_uri, branch, commit_ref, directory, status,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID,
		b.RepositoryURI,
		b.Branch,
		b.CommitRef,
		b.Directory,
		string(b.Status),
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to insert build", "build_id", b.ID, "error", err)
		return fmt.Errorf("failed to insert build: %w", err)
	}

	s.logger.Debug("created build", "build_id", b.ID, "uri", b.RepositoryURI, "commit", b.CommitRef)
	return nil
}

// MarkCheckedOut records the metadata of a successful checkout
func (s *buildStorage) MarkCheckedOut(id string, metadata *checkout.Metadata) error {
	if metadata == nil {
		return fmt.Errorf("metadata cannot be nil")
	}

	result, err := s.db.Exec(`
		UPDATE builds
		SET status = ?, identifier = ?, author = ?, message = ?, full_message = ?,
			committed_at = ?, error = NULL, updated_at = ?
		WHERE id = ?
	`,
		string(StatusCheckedOut),
		metadata.Identifier,
		metadata.Author,
		metadata.Message,
		metadata.FullMessage,
		metadata.CommittedAt,
		time.Now(),
		id,
	)
	if err != nil {
		s.logger.Error("failed to mark build checked out", "build_id", id, "error", err)
		return fmt.Errorf("failed to update build: %w", err)
	}

	return s.requireUpdated(result, id)
}

// MarkFailed records why a build failed
func (s *buildStorage) MarkFailed(id string, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}

	result, err := s.db.Exec(`
		UPDATE builds SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, string(StatusFailed), message, time.Now(), id)
	if err != nil {
		s.logger.Error("failed to mark build failed", "build_id", id, "error", err)
		return fmt.Errorf("failed to update build: %w", err)
	}

	return s.requireUpdated(result, id)
}

func (s *buildStorage) requireUpdated(result sql.Result, id string) error {
	// Check if build was found
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	return nil
}

// GetBuild retrieves a build by id
func (s *buildStorage) GetBuild(id string) (*Build, error) {
	if id == "" {
		return nil, fmt.Errorf("build ID cannot be empty")
	}

	b, err := scanBuild(s.db.QueryRow(selectBuild+" WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
		}
		s.logger.Error("failed to query build", "build_id", id, "error", err)
		return nil, fmt.Errorf("failed to query build: %w", err)
	}
	return b, nil
}

// ListBuildsByRepository returns the newest builds of uri, at most limit (all when limit <= 0)
func (s *buildStorage) ListBuildsByRepository(uri string, limit int) ([]*Build, error) {
	if uri == "" {
		return nil, fmt.Errorf("repository URI cannot be empty")
	}
	return s.list(selectBuild+" WHERE repository_uri = ?", limit, uri)
}

// ListRecentBuilds returns the newest builds across all repositories
func (s *buildStorage) ListRecentBuilds(limit int) ([]*Build, error) {
	return s.list(selectBuild, limit)
}

func (s *buildStorage) list(query string, limit int, args ...any) ([]*Build, error) {
	// Newest first; rowid breaks ties within the same timestamp
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.logger.Error("failed to query builds", "error", err)
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			// Log error but continue processing other rows
			s.logger.Warn("failed to scan build row, skipping", "error", err)
			continue
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}

	s.logger.Debug("listed builds", "count", len(builds))
	return builds, nil
}

func scanBuild(row scanner) (*Build, error) {
	var b Build
	var status string
	var identifier, author, message, fullMessage, errorText sql.NullString
	var committedAt sql.NullTime

	err := row.Scan(
		&b.ID,
		&b.RepositoryURI,
		&b.Branch,
		&b.CommitRef,
		&b.Directory,
		&status,
		&identifier,
		&author,
		&message,
		&fullMessage,
		&committedAt,
		&errorText,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Metadata is only present once the build was checked out
	b.Status = Status(status)
	b.Error = errorText.String
	if identifier.Valid {
		b.Metadata = &checkout.Metadata{
			Identifier:  identifier.String,
			Author:      author.String,
			Message:     message.String,
			FullMessage: fullMessage.String,
			CommittedAt: committedAt.Time,
		}
	}
	return &b, nil
}
