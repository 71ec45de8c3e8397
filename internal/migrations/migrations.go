// Package migrations applies the embedded Postgres schema. It runs through
// database/sql with the lib/pq driver so each script executes as one
// simple-protocol batch.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"enhancer/internal/infra"
	"enhancer/internal/sqlinline"
)

//go:embed sql/*.sql
var files embed.FS

// Migration is one embedded script. Version is the numeric filename prefix.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Load returns the embedded migrations ordered by version.
func Load() ([]Migration, error) {
	return load(files)
}

func load(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		base := path.Base(name)
		version, _, ok := strings.Cut(strings.TrimSuffix(base, ".sql"), "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migrations: %s: expected <version>_<name>.sql", base)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations: version %s used by %s and %s", version, prev, base)
		}
		seen[version] = base
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: version, Name: base, SQL: string(raw)})
	}
	return out, nil
}

// Pending filters out applied versions, keeping order.
func Pending(all []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Open connects with the lib/pq driver.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Apply runs every pending migration in its own transaction and returns the
// names it applied.
func Apply(ctx context.Context, db *sql.DB, logger infra.Logger) ([]string, error) {
	all, err := Load()
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqlinline.QCreateSchemaMigrations); err != nil {
		return nil, fmt.Errorf("migrations: ensure table: %w", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, m := range Pending(all, applied) {
		if err := applyOne(ctx, db, m); err != nil {
			return done, err
		}
		logger.Info().Str("migration", m.Name).Msg("migrations: applied")
		done = append(done, m.Name)
	}
	return done, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, sqlinline.QSelectSchemaMigrations)
	if err != nil {
		return nil, fmt.Errorf("migrations: list applied: %w", err)
	}
	defer rows.Close()
	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migrations: %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, sqlinline.QInsertSchemaMigration, m.Version); err != nil {
		return fmt.Errorf("migrations: record %s: %w", m.Name, err)
	}
	return tx.Commit()
}
