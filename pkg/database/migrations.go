package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one embedded schema change
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies the embedded schema migrations
type Migrator struct {
	db     *DB
	source fs.FS
	logger *zap.Logger
}

// NewMigrator creates a migrator over the embedded migrations
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		source: embeddedMigrations,
		logger: logger,
	}
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// Run applies every migration not yet recorded in schema_migrations, in version
// order, and returns how many it applied. It stops at the first failure.
func (m *Migrator) Run(ctx context.Context) (int, error) {
	todo, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mig := range todo {
		log := m.logger.With(zap.Int("version", mig.Version), zap.String("name", mig.Name))
		log.Info("Applying migration")
		if err := m.apply(ctx, mig); err != nil {
			log.Error("Migration failed", zap.Error(err))
			return i, fmt.Errorf("migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
	}

	m.logger.Info("Database migrations completed", zap.Int("applied", len(todo)))
	return len(todo), nil
}

// Pending lists the migrations Run would apply
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	if _, err := m.db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := m.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	all, err := m.load()
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	pending := all[:0]
	for _, mig := range all {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

// parseMigrationName splits "002_request_history.sql" into 2 and "request_history"
func parseMigrationName(filename string) (int, string, error) {
	stem := strings.TrimSuffix(filename, ".sql")
	num, name, _ := strings.Cut(stem, "_")
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration file %q must start with a positive version number", filename)
	}
	return version, name, nil
}

func (m *Migrator) load() ([]Migration, error) {
	files, err := fs.Glob(m.source, "migrations/*.sql")
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(files))
	seen := make(map[int]string, len(files))
	for _, file := range files {
		version, name, err := parseMigrationName(path.Base(file))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, file, version)
		}
		seen[version] = file

		body, err := fs.ReadFile(m.source, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// apply runs one migration and records it in the same transaction
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	record := m.db.Rebind("INSERT INTO schema_migrations (version, name) VALUES (?, ?)")
	if _, err := tx.ExecContext(ctx, record, mig.Version, mig.Name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
