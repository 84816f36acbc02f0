// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics and snapshots state into JSONB buckets.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"fedaidash/internal/infra/persistence/memory"
	"fedaidash/internal/schema/sqlbundle"
	"fedaidash/pkg/domain"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/fedaidash?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation
// for transactions. Commits compare and advance a version row in state_meta
// under a row lock, so two processes sharing a database cannot overwrite each
// other's snapshots.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	version string
	loaded  bool
}

const (
	versionKey     = "version"
	persistedAtKey = "persisted_at"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), applies the snapshot schema and hydrates the in-memory
// store from any existing snapshot.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		return nil, err
	}
	if err := ensureVersionRow(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{Store: memory.NewStore(engine), db: db}
	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// RunInTransaction reloads state written by other processes, applies fn and
// snapshots the result to Postgres. The in-memory state changes only once the
// snapshot is committed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.refreshLocked(ctx); err != nil {
		return domain.Result{}, err
	}
	now := s.NowFunc()()
	return s.RunInTransactionWithCommit(ctx, fn, func(ctx context.Context, snapshot memory.Snapshot) error {
		return s.commit(ctx, snapshot, now)
	})
}

// Refresh reloads the state if another process committed since this store
// last read or wrote the database, and reports whether it did.
func (s *Store) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Store) refreshLocked(ctx context.Context) (bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return false, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	version, _, err := readVersion(ctx, tx, false)
	if err != nil {
		return false, err
	}
	if s.loaded && version == s.version {
		return false, nil
	}
	snapshot, err := loadSnapshot(ctx, tx)
	if err != nil {
		return false, err
	}
	s.ImportState(snapshot)
	s.version = version
	s.loaded = true
	return true, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applySchema(ctx context.Context, db execer) error {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.Postgres()) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// readVersion scans state_meta for the version row. With lock set the rows
// are locked until the surrounding transaction ends.
func readVersion(ctx context.Context, q queryer, lock bool) (string, bool, error) {
	query := `SELECT key, value FROM state_meta`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return "", false, fmt.Errorf("read version: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var version string
	found := false
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return "", false, fmt.Errorf("scan version: %w", err)
		}
		if key == versionKey {
			version, found = value, true
		}
	}
	if err := rows.Err(); err != nil {
		return "", false, fmt.Errorf("iterate state_meta: %w", err)
	}
	return version, found, nil
}

// ensureVersionRow creates an empty version row so commits always have a row
// to lock.
func ensureVersionRow(ctx context.Context, db *sql.DB) error {
	_, found, err := readVersion(ctx, db, false)
	if err != nil || found {
		return err
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO state_meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO NOTHING`, versionKey, ""); err != nil {
		return fmt.Errorf("create version row: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, q queryer) (memory.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

// commit writes snapshot if the database is still at the version this store
// last saw.
func (s *Store) commit(ctx context.Context, snapshot memory.Snapshot, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	current, _, err := readVersion(ctx, tx, true)
	if err != nil {
		return err
	}
	if current != s.version {
		return fmt.Errorf("%w: database at version %q, store at %q", domain.ErrConflict, current, s.version)
	}
	for _, bucket := range memory.Buckets {
		data, err := snapshot.EncodeBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	next := uuid.NewString()
	for _, kv := range [][2]string{{versionKey, next}, {persistedAtKey, now.Format(time.RFC3339)}} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state_meta(key,value) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("stamp %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.version = next
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
