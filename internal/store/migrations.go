package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration pairs a forward and backward schema operation under a single
// version number.
type migration struct {
	version  int
	forward  func(ctx context.Context, tx *sql.Tx) error
	backward func(ctx context.Context, tx *sql.Tx) error
}

// migrations is the ordered, numbered list of schema changes. Every
// version from 1..len(migrations) must appear exactly once; init()
// enforces this so a gap or duplicate fails fast at process start rather
// than at first use.
var migrations = []migration{
	{
		version: 1,
		forward: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
CREATE TABLE metadata (version INTEGER NOT NULL);

CREATE TABLE saves (
	name     TEXT NOT NULL,
	rom      TEXT NOT NULL,
	ext      TEXT NOT NULL,
	emulator TEXT,
	created  TEXT NOT NULL,
	updated  TEXT NOT NULL,
	md5      BLOB NOT NULL,
	size     INTEGER NOT NULL
);

-- A plain UNIQUE(name, rom, emulator) treats every NULL emulator as
-- distinct from every other, per SQLite's NULL-handling in unique
-- constraints, so it would never catch a second no-emulator upsert of the
-- same save. char(0) cannot appear in a real emulator tag (path template
-- variables are extracted from filesystem paths, which cannot contain a
-- NUL byte), so it's a safe sentinel that keeps NULL distinct from "" while
-- still colliding with itself across repeated NULL-emulator upserts.
CREATE UNIQUE INDEX saves_natural_key ON saves(name, rom, COALESCE(emulator, char(0)));
`)
			return err
		},
		backward: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DROP TABLE saves; DROP TABLE metadata;`)
			return err
		},
	},
}

func init() {
	seen := make(map[int]bool, len(migrations))
	for _, m := range migrations {
		if seen[m.version] {
			panic(fmt.Sprintf("store: duplicate migration version %d", m.version))
		}
		seen[m.version] = true
	}
	for v := 1; v <= len(migrations); v++ {
		if !seen[v] {
			panic(fmt.Sprintf("store: migration list missing version %d (have %d entries)", v, len(migrations)))
		}
	}
}

// currentVersion reads the schema version from the metadata table. Absence
// of that table implies version 0.
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name='metadata'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("store: check metadata table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var v int
	err = db.QueryRowContext(ctx, `SELECT version FROM metadata`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return v, nil
}

// MigrationError is a composite error carrying the failing version and
// both the forward and (if attempted) backward errors.
type MigrationError struct {
	Version     int
	ForwardErr  error
	BackwardErr error
}

func (e *MigrationError) Error() string {
	if e.BackwardErr != nil {
		return fmt.Sprintf("store: migration %d failed: %v (rollback also failed: %v)", e.Version, e.ForwardErr, e.BackwardErr)
	}
	return fmt.Sprintf("store: migration %d failed: %v", e.Version, e.ForwardErr)
}

func (e *MigrationError) Unwrap() error {
	return e.ForwardErr
}

// applyMigrations runs every migration with version greater than the
// database's current version, in order. On failure, it attempts that
// migration's backward operation before returning a MigrationError.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin migration %d: %w", m.version, err)
	}

	if err := m.forward(ctx, tx); err != nil {
		_ = tx.Rollback()
		backErr := runBackwardBestEffort(ctx, db, m)
		return &MigrationError{Version: m.version, ForwardErr: err, BackwardErr: backErr}
	}

	if err := stampVersion(ctx, tx, m.version); err != nil {
		_ = tx.Rollback()
		backErr := runBackwardBestEffort(ctx, db, m)
		return &MigrationError{Version: m.version, ForwardErr: err, BackwardErr: backErr}
	}

	if err := tx.Commit(); err != nil {
		return &MigrationError{Version: m.version, ForwardErr: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func runBackwardBestEffort(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.backward(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// stampVersion writes the new schema version to the single-row metadata
// table, creating the row if it doesn't yet exist. If the metadata table
// itself is absent (version 1's own backward operation drops it), that is
// treated as an implicit stamp of version 0 rather than an error.
func stampVersion(ctx context.Context, tx *sql.Tx, version int) error {
	var tableExists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name='metadata'`).Scan(&tableExists); err != nil {
		return fmt.Errorf("check metadata table: %w", err)
	}
	if tableExists == 0 {
		if version != 0 {
			return fmt.Errorf("stamp version %d: metadata table is absent", version)
		}
		return nil
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM metadata`).Scan(&count); err != nil {
		return fmt.Errorf("count metadata rows: %w", err)
	}
	if count == 0 {
		_, err := tx.ExecContext(ctx, `INSERT INTO metadata (version) VALUES (?)`, version)
		return err
	}
	_, err := tx.ExecContext(ctx, `UPDATE metadata SET version = ?`, version)
	return err
}

// revertAllMigrations reverts every applied migration, in reverse order,
// down to version 0. Used only by tests to verify migration completeness
// (spec: "applying all migrations to an empty database then reverting all
// leaves version 0").
func revertAllMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if m.version > current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin revert %d: %w", m.version, err)
		}
		if err := m.backward(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: revert %d: %w", m.version, err)
		}
		if err := stampVersion(ctx, tx, m.version-1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: stamp revert %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: commit revert %d: %w", m.version, err)
		}
	}
	return nil
}
