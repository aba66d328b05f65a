package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID keys the advisory lock that serializes concurrent
// processes migrating the same database.
const migrationLockID = 0x70686d6f // "phmo"

// migration is one embedded schema step. Files are named NNN_description.sql
// and applied in ascending version order.
type migration struct {
	version int
	file    string
	body    string
}

// loadMigrations parses every embedded migration, sorted by version.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	out := make([]migration, 0, len(files))
	for _, f := range files {
		name := path.Base(f)
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing NNN_ prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version %q", name, prefix)
		}
		body, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{version: version, file: name, body: string(body)})
	}

	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("migrations %s and %s share version %d", out[i-1].file, out[i].file, out[i].version)
		}
	}
	return out, nil
}

// pending drops the migrations whose version is already recorded.
func pending(all []migration, applied map[int]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.version] {
			out = append(out, m)
		}
	}
	return out
}

// Migrate brings the schema up to date. Each migration runs in its own
// transaction under an advisory lock, so parallel starts apply it once.
func (p *Pool) Migrate(ctx context.Context) error {
	all, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version    INTEGER PRIMARY KEY,
			file       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	applied, err := appliedVersions(ctx, p.db)
	if err != nil {
		return err
	}

	for _, m := range pending(all, applied) {
		done, err := p.apply(ctx, m)
		if err != nil {
			return err
		}
		if done {
			log.Info().Int("version", m.version).Str("file", m.file).Msg("schema migrated")
		}
	}
	return nil
}

// apply runs m unless another process recorded it while we waited for the
// lock. It reports whether m was applied by this call.
func (p *Pool) apply(ctx context.Context, m migration) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("migration %s: begin: %w", m.file, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return false, fmt.Errorf("migration %s: lock: %w", m.file, err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM schema_versions WHERE version = $1)", m.version,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("migration %s: check: %w", m.file, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, m.body); err != nil {
		return false, fmt.Errorf("migration %s: %w", m.file, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_versions (version, file) VALUES ($1, $2)", m.version, m.file,
	); err != nil {
		return false, fmt.Errorf("migration %s: record: %w", m.file, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("migration %s: commit: %w", m.file, err)
	}
	return true, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_versions")
	if err != nil {
		return nil, fmt.Errorf("query schema_versions: %w", err)
	}
	defer rows.Close()

	out := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}

// MigrationsApplied lists the files of applied migrations in version order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT file FROM schema_versions ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query schema_versions: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan schema file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
