package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Schema applies one set of versioned migrations to a DB. Migration files
// follow the golang-migrate naming: NNNNNN_name.up.sql / NNNNNN_name.down.sql.
type Schema struct {
	db     *DB
	source fs.FS
}

// SchemaStatus describes where a database stands against its migrations.
type SchemaStatus struct {
	Version uint `json:"version"`
	Latest  uint `json:"latest"`
	Dirty   bool `json:"dirty"`
}

// Schema returns the flight schema backed by the embedded migrations.
func (db *DB) Schema() *Schema {
	return db.SchemaFrom(MigrationsFS())
}

// SchemaFrom returns a Schema over migrations read from source.
func (db *DB) SchemaFrom(source fs.FS) *Schema {
	return &Schema{db: db, source: source}
}

// Up applies every pending migration. Already being current is not an error.
func (s *Schema) Up() error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	// m is never closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema migration up failed: %w", err)
	}
	return nil
}

// Rollback reverts the most recent migration.
func (s *Schema) Rollback() error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema rollback failed: %w", err)
	}
	return nil
}

// Force records version as applied and clean without running anything.
// It is the recovery path after a migration failed halfway.
func (s *Schema) Force(version int) error {
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("force schema to version %d failed: %w", version, err)
	}
	return nil
}

// Status reports the applied version and the newest version available.
// A database with nothing applied reports version 0.
func (s *Schema) Status() (SchemaStatus, error) {
	latest, err := s.latest()
	if err != nil {
		return SchemaStatus{}, err
	}
	m, err := s.migrator()
	if err != nil {
		return SchemaStatus{}, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return SchemaStatus{Latest: latest}, nil
	}
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return SchemaStatus{Version: version, Latest: latest, Dirty: dirty}, nil
}

// Current reports whether every migration has been applied cleanly.
func (st SchemaStatus) Current() bool {
	return !st.Dirty && st.Version == st.Latest
}

func (s *Schema) latest() (uint, error) {
	entries, err := fs.ReadDir(s.source, ".")
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}
	var latest uint
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		latest = max(latest, uint(v))
	}
	return latest, nil
}

func (s *Schema) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(s.source, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = schemaLog{}
	return m, nil
}

// schemaLog routes golang-migrate output to the standard logger.
type schemaLog struct{}

func (schemaLog) Printf(format string, v ...interface{}) {
	log.Printf("[schema] "+format, v...)
}

func (schemaLog) Verbose() bool { return false }
