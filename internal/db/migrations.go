package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrationName = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// migration is one numbered schema change
type migration struct {
	version int
	name    string
	upSQL   string
	downSQL string
}

// RunMigrations applies every embedded migration newer than the recorded version.
// Each migration runs in its own transaction.
func RunMigrations(db *sql.DB) error {
	currentVersion, dirty, err := MigrationVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty migration state (version %d), manual intervention required", currentVersion)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.upSQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
		}

		if _, err := tx.Exec("INSERT OR REPLACE INTO schema_migrations (version, dirty) VALUES (?, ?)", m.version, false); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

// RollbackMigrations reverts the newest count migrations (at least one)
// and returns the resulting version.
func RollbackMigrations(db *sql.DB, count int) (int, error) {
	if count <= 0 {
		count = 1
	}

	currentVersion, dirty, err := MigrationVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database is in a dirty migration state (version %d), manual intervention required", currentVersion)
	}
	if currentVersion == 0 {
		return 0, fmt.Errorf("no migrations to rollback")
	}

	migrations, err := loadMigrations()
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	rolledBack := 0
	for i := len(migrations) - 1; i >= 0 && rolledBack < count; i-- {
		m := migrations[i]
		if m.version > currentVersion || m.downSQL == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return currentVersion, fmt.Errorf("failed to begin transaction for rollback %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.downSQL); err != nil {
			tx.Rollback()
			return currentVersion, fmt.Errorf("failed to execute rollback %d (%s): %w", m.version, m.name, err)
		}

		if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", m.version); err != nil {
			tx.Rollback()
			return currentVersion, fmt.Errorf("failed to remove migration version %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return currentVersion, fmt.Errorf("failed to commit rollback %d: %w", m.version, err)
		}

		currentVersion = m.version - 1
		rolledBack++
	}

	if rolledBack == 0 {
		return currentVersion, fmt.Errorf("no migrations found to rollback")
	}

	return currentVersion, nil
}

// MigrationVersion returns the newest applied migration, creating the
// bookkeeping table on first use
func MigrationVersion(db *sql.DB) (version int, dirty bool, err error) {
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL PRIMARY KEY,
			dirty BOOLEAN NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var v sql.NullInt64
	var d sql.NullBool
	err = db.QueryRow("SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&v, &d)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query migration version: %w", err)
	}

	return int(v.Int64), d.Valid && d.Bool, nil
}

// loadMigrations reads the embedded up/down pairs sorted by version
func loadMigrations() ([]migration, error) {
	byVersion := make(map[int]*migration)

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationName.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("invalid migration version in %s: %w", entry.Name(), err)
		}

		data, err := fs.ReadFile(migrationsFS, path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: matches[2]}
			byVersion[version] = m
		}
		if matches[3] == "up" {
			m.upSQL = string(data)
		} else {
			m.downSQL = string(data)
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	return migrations, nil
}
