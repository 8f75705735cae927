// Package store implements the durable sync-metadata database: a single
// embedded SQLite file mapping (rom, name, emulator?) to the last observed
// SaveMeta, behind a single-writer worker.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/romm-sync/saveport/internal/hashutil"
	"github.com/romm-sync/saveport/internal/savemeta"
)

// ErrTooManyRows is returned when a query or write that should affect
// exactly one row affects a different number — a schema or constraint
// violation, treated as a bug.
var ErrTooManyRows = errors.New("store: too many rows")

// ErrClosed is returned by calls made after Close, and by calls still
// queued when the worker goroutine exits.
var ErrClosed = errors.New("store: closed")

// request is a boxed unit of work submitted to the worker goroutine: a
// closure given direct access to the database connection, plus a reply
// channel carrying its result.
type request struct {
	do    func(ctx context.Context, db *sql.DB) (any, error)
	reply chan result
}

type result struct {
	val any
	err error
}

// Store owns the single connection to the sync-metadata database. All
// access is funneled through a dedicated worker goroutine receiving
// closures on an unbuffered channel — the connection is never shared
// directly.
// (A mutex-guarded connection satisfies the same serialization contract
// and would be a legitimate alternative implementation; the worker-queue
// form is used here because it keeps the "submit a closure, get a typed
// reply" call shape uniform with the rest of the daemon's channel-based
// coordination style.)
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	reqs   chan request
	done   chan struct{}
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pending migrations, and starts the worker goroutine. Use ":memory:" for
// tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening sync-metadata database", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// A single logical writer: SQLite handles one writer at a time
	// regardless, but pinning the pool to one connection keeps migrations
	// and every subsequent statement running against the same session.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}

	if err := applyMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		reqs:   make(chan request),
		done:   make(chan struct{}),
	}
	go s.run()

	logger.Info("sync-metadata database ready", "path", path)
	return s, nil
}

// run is the dedicated worker goroutine: it dequeues requests and invokes
// them against the database, one at a time, until Close closes reqs. If
// this goroutine were to die unexpectedly, pending and future submissions
// would block forever on an unbuffered channel send — considered fatal,
// per the store's documented liveness contract; operators must restart
// the daemon.
func (s *Store) run() {
	defer close(s.done)
	for req := range s.reqs {
		val, err := req.do(context.Background(), s.db)
		req.reply <- result{val: val, err: err}
	}
}

// submit sends a closure to the worker and waits for its reply, or for ctx
// to be cancelled.
func (s *Store) submit(ctx context.Context, do func(ctx context.Context, db *sql.DB) (any, error)) (any, error) {
	reply := make(chan result, 1)
	select {
	case s.reqs <- request{do: do, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new requests and waits for the worker to drain
// in-flight ones, then closes the underlying connection.
func (s *Store) Close() error {
	close(s.reqs)
	<-s.done
	return s.db.Close()
}

// QueryMetadata returns the stored snapshot for (rom, name, emulator). If
// no row matches, it returns the empty sentinel for that identity. More
// than one matching row is ErrTooManyRows.
func (s *Store) QueryMetadata(ctx context.Context, rom, name string, emulator *string) (savemeta.SaveMeta, error) {
	v, err := s.submit(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		return queryMetadata(ctx, db, rom, name, emulator)
	})
	if err != nil {
		return savemeta.SaveMeta{}, err
	}
	return v.(savemeta.SaveMeta), nil
}

func queryMetadata(ctx context.Context, db *sql.DB, rom, name string, emulator *string) (savemeta.SaveMeta, error) {
	rows, err := db.QueryContext(ctx, `
SELECT name, rom, ext, emulator, created, updated, md5, size
FROM saves
WHERE rom = ? AND name = ? AND ((emulator = ?) OR (? IS NULL AND emulator IS NULL))
`, rom, name, emulator, emulator)
	if err != nil {
		return savemeta.SaveMeta{}, fmt.Errorf("store: query_metadata: %w", err)
	}
	defer rows.Close()

	var found []savemeta.SaveMeta
	for rows.Next() {
		m, err := scanSaveMeta(rows)
		if err != nil {
			return savemeta.SaveMeta{}, err
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return savemeta.SaveMeta{}, fmt.Errorf("store: query_metadata: %w", err)
	}

	switch len(found) {
	case 0:
		return savemeta.NewEmpty(rom, name, "", emulator), nil
	case 1:
		return found[0], nil
	default:
		return savemeta.SaveMeta{}, fmt.Errorf("store: query_metadata(%s,%s): %w", rom, name, ErrTooManyRows)
	}
}

func scanSaveMeta(rows *sql.Rows) (savemeta.SaveMeta, error) {
	var (
		name, rom, ext    string
		emulator          sql.NullString
		created, updated  string
		md5Bytes          []byte
		size              int64
	)
	if err := rows.Scan(&name, &rom, &ext, &emulator, &created, &updated, &md5Bytes, &size); err != nil {
		return savemeta.SaveMeta{}, fmt.Errorf("store: scan row: %w", err)
	}

	m := savemeta.SaveMeta{
		Rom:  rom,
		Name: name,
		Ext:  ext,
		Size: uint64(size),
	}
	if emulator.Valid {
		m.Emulator = &emulator.String
	}

	var err error
	if m.Created, err = parseStoredTime(created); err != nil {
		return savemeta.SaveMeta{}, err
	}
	if m.Updated, err = parseStoredTime(updated); err != nil {
		return savemeta.SaveMeta{}, err
	}
	if len(md5Bytes) != len(hashutil.Hash{}) {
		return savemeta.SaveMeta{}, fmt.Errorf("store: scan row: md5 column has %d bytes, want %d", len(md5Bytes), len(hashutil.Hash{}))
	}
	copy(m.Hash[:], md5Bytes)

	return m, nil
}

// UpsertMetadata inserts or updates the row for m's natural key
// (name, rom, emulator). Must affect exactly one row; any other count is
// ErrTooManyRows.
func (s *Store) UpsertMetadata(ctx context.Context, m savemeta.SaveMeta) error {
	_, err := s.submit(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		return nil, upsertMetadata(ctx, db, m)
	})
	return err
}

func upsertMetadata(ctx context.Context, db *sql.DB, m savemeta.SaveMeta) error {
	res, err := db.ExecContext(ctx, `
INSERT INTO saves (name, rom, ext, emulator, created, updated, md5, size)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name, rom, COALESCE(emulator, char(0))) DO UPDATE SET
	ext = excluded.ext,
	created = excluded.created,
	updated = excluded.updated,
	md5 = excluded.md5,
	size = excluded.size
`, m.Name, m.Rom, m.Ext, m.Emulator, formatStoredTime(m.Created), formatStoredTime(m.Updated), m.Hash[:], int64(m.Size))
	if err != nil {
		return fmt.Errorf("store: upsert_metadata: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: upsert_metadata: rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("store: upsert_metadata affected %d rows: %w", n, ErrTooManyRows)
	}
	return nil
}
