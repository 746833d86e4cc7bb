// Package sqldb opens the SQL databases used by the store and trace packages
// and applies their embedded migrations. Queries are written with ? placeholders
// and rebound for PostgreSQL.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	_ "modernc.org/sqlite"             // registers "sqlite" driver
)

// Dialect selects placeholder style.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DB wraps a *sql.DB with its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open connects using driver "sqlite" or "postgres" (alias "pgx") and pings.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var (
		name    string
		dialect Dialect
	)
	switch driver {
	case "sqlite", "sqlite3":
		name, dialect = "sqlite", SQLite
	case "postgres", "postgresql", "pgx":
		name, dialect = "pgx", Postgres
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if dialect == SQLite {
		// single writer; avoids SQLITE_BUSY under concurrent tracers
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sql ping: %w", err)
	}
	return &DB{DB: db, dialect: dialect}, nil
}

// Dialect reports the placeholder dialect.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Rebind converts ? placeholders to $n for PostgreSQL.
func (d *DB) Rebind(query string) string {
	if d.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ExecContext rebinds and executes.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, d.Rebind(query), args...)
}

// QueryContext rebinds and queries.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, d.Rebind(query), args...)
}

// QueryRowContext rebinds and queries one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, d.Rebind(query), args...)
}

// Migrate applies every *.sql file under dir in name order that has not yet
// been recorded in versionTable. File i (0-based) is version i.
func Migrate(ctx context.Context, db *DB, migrations fs.FS, dir, versionTable string) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+versionTable+` (version INTEGER NOT NULL)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", versionTable, err)
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), -1) FROM `+versionTable)
	if err = row.Scan(&current); err != nil {
		return fmt.Errorf("read %s: %w", versionTable, err)
	}

	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for i := current + 1; i < len(names); i++ {
		data, readErr := fs.ReadFile(migrations, dir+"/"+names[i])
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if execErr := execScript(ctx, db, string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.ExecContext(ctx, `INSERT INTO `+versionTable+` (version) VALUES (?)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// execScript runs a migration one statement at a time; not every driver
// accepts multiple statements per Exec.
func execScript(ctx context.Context, db *DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
