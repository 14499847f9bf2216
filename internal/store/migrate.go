package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLockKey serializes migrations across bridge processes sharing a database.
const migrationLockKey = 7305100

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Migrations returns the bundled schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// ApplyMigrations runs every *.up.sql file that schema_migrations does not
// list yet, in lexical order, one transaction per file. The whole run holds
// a session advisory lock.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	names, err := migrationNames(migrations, upSuffix)
	if err != nil {
		return err
	}
	return withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		if err := ensureMigrationsTable(ctx, conn); err != nil {
			return err
		}
		for _, name := range names {
			version := strings.TrimSuffix(name, upSuffix)
			applied, err := isMigrated(ctx, conn, version)
			if err != nil {
				return err
			}
			if applied {
				continue
			}
			if err := runMigration(ctx, conn, migrations, name,
				`INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
				return err
			}
		}
		return nil
	})
}

// RollbackMigrations runs the *.down.sql file of every applied migration,
// newest first, and forgets each version.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	names, err := migrationNames(migrations, downSuffix)
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		if err := ensureMigrationsTable(ctx, conn); err != nil {
			return err
		}
		for _, name := range names {
			version := strings.TrimSuffix(name, downSuffix)
			applied, err := isMigrated(ctx, conn, version)
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			if err := runMigration(ctx, conn, migrations, name,
				`DELETE FROM schema_migrations WHERE version=$1`, version); err != nil {
				return err
			}
		}
		return nil
	})
}

// migrationNames lists the file names in migrations ending in suffix, sorted.
func migrationNames(migrations fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func withMigrationLock(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}()
	return fn(conn)
}

// runMigration executes one file and the bookkeeping statement in a single transaction.
func runMigration(ctx context.Context, conn *sql.Conn, migrations fs.FS, name, bookkeeping, version string) error {
	contents, err := fs.ReadFile(migrations, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if sqlText := strings.TrimSpace(string(contents)); sqlText != "" {
		if _, err := tx.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, conn *sql.Conn, version string) (bool, error) {
	var exists bool
	err := conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
