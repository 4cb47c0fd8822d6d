// Package sqlstore is a remote.Store kept in one SQL table, one row per
// context. It backs the HTTP server and can be used directly by clients that
// share a database.
//
// Postgres is reached through pgx's database/sql driver and SQLite through
// the pure Go modernc driver. The version is an integer counter bumped by
// every push inside the upsert itself.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// Supported drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Store is a SQL-backed remote replica.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to dsn with driver ("pgx", "postgres" or "sqlite") and
// ensures the replicas table exists.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch strings.ToLower(driver) {
	case DriverPostgres, "postgres", "postgresql":
		driver = DriverPostgres
	case DriverSQLite, "sqlite3", "":
		driver = DriverSQLite
		if dsn == "" {
			return nil, fmt.Errorf("sqlite dsn cannot be empty")
		}
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("create dirs: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer; the version bump relies on serialized upserts.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureTable(ctx context.Context) error {
	blob := "BLOB"
	if s.driver == DriverPostgres {
		blob = "BYTEA"
	}
	ddl := `CREATE TABLE IF NOT EXISTS replicas (
		context TEXT PRIMARY KEY,
		version BIGINT NOT NULL,
		payload ` + blob + ` NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure replicas table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Ping implements the server's health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Pull implements remote.Store.
func (s *Store) Pull(ctx context.Context, c scope.Context) (remote.Snapshot, error) {
	var (
		version int64
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT version, payload FROM replicas WHERE context = ?`), c.String()).
		Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return remote.Snapshot{}, fmt.Errorf("context %s: %w", c, remote.ErrNotFound)
	}
	if err != nil {
		return remote.Snapshot{}, fmt.Errorf("%w: select replica: %v", remote.ErrUnreachable, err)
	}

	snap, err := remote.DecodePayload(payload)
	if err != nil {
		return remote.Snapshot{}, fmt.Errorf("context %s: %w", c, err)
	}
	snap.Version = formatVersion(version)
	return snap, nil
}

// Push implements remote.Store.
func (s *Store) Push(ctx context.Context, c scope.Context, ds *schema.Dataset, tombs tombstone.Set) (remote.Version, error) {
	payload, err := remote.EncodePayload(ds, tombs, "")
	if err != nil {
		return "", err
	}

	query := s.rebind(`INSERT INTO replicas (context, version, payload, updated_at) VALUES (?, 1, ?, ?)
		ON CONFLICT (context) DO UPDATE SET
			version = replicas.version + 1,
			payload = excluded.payload,
			updated_at = excluded.updated_at
		RETURNING version`)

	var version int64
	if err := s.db.QueryRowContext(ctx, query, c.String(), payload, time.Now().UTC()).Scan(&version); err != nil {
		return "", fmt.Errorf("%w: upsert replica: %v", remote.ErrUnreachable, err)
	}
	return formatVersion(version), nil
}

// PeekVersion implements remote.Store.
func (s *Store) PeekVersion(ctx context.Context, c scope.Context) (remote.Version, error) {
	var version int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT version FROM replicas WHERE context = ?`), c.String()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("context %s: %w", c, remote.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: select version: %v", remote.ErrUnreachable, err)
	}
	return formatVersion(version), nil
}

// Contexts lists the contexts that have a snapshot.
func (s *Store) Contexts(ctx context.Context) ([]scope.Context, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT context FROM replicas ORDER BY context`)
	if err != nil {
		return nil, fmt.Errorf("select contexts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []scope.Context
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		c, err := scope.Parse(key)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contexts: %w", err)
	}
	return out, nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatVersion(v int64) remote.Version {
	return remote.Version(strconv.FormatInt(v, 10))
}

var _ remote.Store = (*Store)(nil)
