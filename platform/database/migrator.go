package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"zapdesk/platform/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration is a single versioned schema change, loaded from the embedded
// migrations directory (NNN_name.up.sql / NNN_name.down.sql).
type Migration struct {
	AppliedAt *time.Time
	Name      string
	UpSQL     string
	DownSQL   string
	Version   int
}

// Migrator applies embedded SQL migrations tracked in "zdMigrations".
type Migrator struct {
	db     *Database
	logger *logger.Logger
}

func NewMigrator(db *Database, logger *logger.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// RunMigrations applies every pending migration in version order.
func (m *Migrator) RunMigrations() error {
	m.logger.Info("Starting database migrations...")

	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pendingCount := 0
	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.executeMigration(migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		pendingCount++
	}

	if pendingCount > 0 {
		m.logger.InfoWithFields("Database migrations completed", map[string]interface{}{
			"migrations_applied": pendingCount,
			"total_migrations":   len(migrations),
		})
	} else {
		m.logger.Info("Database is up to date, no migrations needed")
	}

	return nil
}

func (m *Migrator) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS "zdMigrations" (
			"version" INTEGER PRIMARY KEY,
			"name" VARCHAR(255) NOT NULL,
			"appliedAt" TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS "idx_zd_migrations_applied_at" ON "zdMigrations" ("appliedAt");
	`

	if _, err := m.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return nil
}

func (m *Migrator) loadMigrations() ([]*Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	byVersion := make(map[int]*Migration)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := versionFromFilename(entry.Name())
		if err != nil {
			m.logger.WarnWithFields("Skipping invalid migration file", map[string]interface{}{
				"filename": entry.Name(),
				"error":    err.Error(),
			})
			continue
		}

		content, err := fs.ReadFile(migrationsFS, filepath.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		migration := byVersion[version]
		if migration == nil {
			migration = &Migration{Version: version}
			byVersion[version] = migration
		}

		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			migration.UpSQL = string(content)
			migration.Name = nameFromFilename(entry.Name(), ".up.sql")
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			migration.DownSQL = string(content)
		}
	}

	migrations := make([]*Migration, 0, len(byVersion))
	for version, migration := range byVersion {
		if migration.UpSQL == "" {
			m.logger.WarnWithFields("Migration missing up.sql file", map[string]interface{}{
				"version": version,
			})
			continue
		}
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func versionFromFilename(filename string) (int, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid filename format")
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid version number: %w", err)
	}

	return version, nil
}

func nameFromFilename(filename, suffix string) string {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSuffix(parts[1], suffix)
}

func (m *Migrator) getAppliedMigrations() (map[int]bool, error) {
	query := `SELECT "version" FROM "zdMigrations" ORDER BY "version"`

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			m.logger.Error("Failed to close rows: " + err.Error())
		}
	}()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func (m *Migrator) executeMigration(migration *Migration) error {
	m.logger.InfoWithFields("Applying migration", map[string]interface{}{
		"version": migration.Version,
		"name":    migration.Name,
	})

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	var committed bool
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				m.logger.Error("Failed to rollback transaction: " + rollbackErr.Error())
			}
		}
	}()

	if _, err := tx.Exec(migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	insertQuery := `
		INSERT INTO "zdMigrations" ("version", "name", "appliedAt")
		VALUES ($1, $2, NOW())
	`
	if _, err := tx.Exec(insertQuery, migration.Version, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	committed = true

	return nil
}

// Rollback reverts the most recently applied migration.
func (m *Migrator) Rollback() error {
	m.logger.Info("Rolling back last migration...")

	version, name, err := m.getLastMigration()
	if err != nil {
		return err
	}

	if version == 0 {
		m.logger.Info("No migrations to rollback")
		return nil
	}

	target, err := m.findTargetMigration(version)
	if err != nil {
		return err
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	var committed bool
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				m.logger.Error("Failed to rollback transaction: " + rollbackErr.Error())
			}
		}
	}()

	if _, err := tx.Exec(target.DownSQL); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}

	deleteQuery := `DELETE FROM "zdMigrations" WHERE "version" = $1`
	if _, err := tx.Exec(deleteQuery, version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	committed = true

	m.logger.InfoWithFields("Migration rolled back successfully", map[string]interface{}{
		"version": version,
		"name":    name,
	})

	return nil
}

func (m *Migrator) getLastMigration() (int, string, error) {
	query := `SELECT "version", "name" FROM "zdMigrations" ORDER BY "version" DESC LIMIT 1`

	var version int
	var name string
	err := m.db.QueryRow(query).Scan(&version, &name)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("failed to get last migration: %w", err)
	}

	return version, name, nil
}

func (m *Migrator) findTargetMigration(version int) (*Migration, error) {
	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version == version {
			if migration.DownSQL == "" {
				return nil, fmt.Errorf("migration %d has no down SQL", version)
			}
			return migration, nil
		}
	}

	return nil, fmt.Errorf("migration %d not found in files", version)
}

// GetMigrationStatus lists every known migration with its applied state.
func (m *Migrator) GetMigrationStatus() ([]*Migration, error) {
	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			now := time.Now()
			migration.AppliedAt = &now
		}
	}

	return migrations, nil
}
