package postgres

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationsTable records which embedded schema files have already run, so
// restarts and rolling deploys never re-execute DDL against a live directory.
const migrationsTable = "schema_migrations"

func pgLogger() *slog.Logger {
	return slog.Default().With(
		"module", "postgres",
		"layer", "adapter",
	)
}

// Connect opens the GORM pool backing the user directory and verifies the
// database answers before the service takes traffic. TranslateError is on so
// the unique phone index surfaces as gorm.ErrDuplicatedKey instead of a raw
// driver error.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open directory database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql pool: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(maxConns))
		sqlDB.SetMaxIdleConns(int(maxConns) / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping directory database: %w", err)
	}

	pgLogger().InfoContext(ctx, "directory database connected",
		"operation", "connect",
		"outcome", "success",
		"max_conns", maxConns,
	)
	return db, nil
}

// RunMigrations brings the identity schema up to date. Versions already
// listed in schema_migrations are skipped; each pending file runs in its own
// transaction together with its bookkeeping row, so a failed migration leaves
// neither half behind.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec(
		"CREATE TABLE IF NOT EXISTS " + migrationsTable +
			" (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)",
	).Error; err != nil {
		return fmt.Errorf("ensure %s table: %w", migrationsTable, err)
	}

	var versions []string
	if err := db.WithContext(ctx).Table(migrationsTable).Pluck("version", &versions).Error; err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	pending, err := pendingMigrations(applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		pgLogger().InfoContext(ctx, "identity schema up to date",
			"operation", "run_migrations",
			"outcome", "success",
			"applied_count", len(versions),
		)
		return nil
	}

	for _, name := range pending {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(string(raw)).Error; err != nil {
				return err
			}
			return tx.Exec(
				"INSERT INTO "+migrationsTable+" (version, applied_at) VALUES (?, ?)",
				name, time.Now().UTC(),
			).Error
		}); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		pgLogger().InfoContext(ctx, "identity schema migration applied",
			"operation", "run_migrations",
			"outcome", "success",
			"version", name,
		)
	}
	return nil
}

func pendingMigrations(applied map[string]bool) ([]string, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	pending := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") || applied[name] {
			continue
		}
		pending = append(pending, name)
	}
	sort.Strings(pending)
	return pending, nil
}
