// Package sqlite persists trained models and batch results in a SQLite
// database. The schema is managed by golang-migrate from migrations embedded
// in the binary.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/mitosis.report/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

func dsn(path string) string {
	q := make([]string, len(pragmas))
	for i, p := range pragmas {
		q[i] = "_pragma=" + p
	}
	return path + "?" + strings.Join(q, "&")
}

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path with the connection
// pragmas. It does not migrate.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{db}, nil
}

// OpenMigrated opens the database and brings the schema to the latest
// version.
func OpenMigrated(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// Not closed: closing m would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// LatestMigrationVersion returns the highest embedded migration version.
func LatestMigrationVersion() (uint, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return 0, err
	}
	var latest uint
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		var v uint
		if _, err := fmt.Sscanf(e.Name(), "%d_", &v); err == nil && v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no embedded migrations")
	}
	return latest, nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+strings.TrimRight(format, "\n"), v...)
}

func (migrateLogger) Verbose() bool { return false }

const (
	maxBusyRetries = 5
	busyBaseDelay  = 10 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with exponential backoff while SQLite
// reports the database as busy.
func retryOnBusy(fn func() error) error {
	var err error
	delay := busyBaseDelay
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = fn()
		if !isSQLiteBusy(err) {
			return err
		}
		if attempt < maxBusyRetries-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("database busy after %d attempts: %w", maxBusyRetries, err)
}
