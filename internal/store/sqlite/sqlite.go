// Package sqlite is a database/sql-backed implementation of the
// internal/timeline storage collaborators, opened with the "sqlite3"
// driver via database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/hydrogen-go/timelinefill/internal/timeline"
)

// Store owns the long-lived *sql.DB and schema. BeginTxn opens one
// transactional Transaction per room mutation.
type Store struct {
	db *sql.DB
}

// Options controls pragmas applied when a Store is opened.
type Options struct {
	// BusyTimeoutMS sets sqlite's busy_timeout pragma, controlling how
	// long a writer blocks on a locked database before erroring. Zero
	// leaves sqlite's built-in default (0, fail immediately).
	BusyTimeoutMS int
	// ForeignKeys enables sqlite's foreign_keys pragma, which is off by
	// default per-connection.
	ForeignKeys bool
}

// Open opens (creating if necessary) the sqlite database at dsn with
// foreign key enforcement on and no busy_timeout override, and applies
// the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithOptions(ctx, dsn, Options{ForeignKeys: true})
}

// OpenWithOptions is Open with explicit pragma control, e.g. sourced
// from a loaded StoreConfig.
func OpenWithOptions(ctx context.Context, dsn string, opts Options) (*Store, error) {
	var db, err = sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening DB: %w", err)
	}
	if opts.ForeignKeys {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}
	if opts.BusyTimeoutMS > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d;", opts.BusyTimeoutMS)); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting busy_timeout: %w", err)
		}
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS fragments (
	id                    INTEGER PRIMARY KEY,
	room_id               TEXT NOT NULL,
	previous_id           INTEGER NOT NULL DEFAULT 0,
	next_id               INTEGER NOT NULL DEFAULT 0,
	previous_token        TEXT NOT NULL DEFAULT '',
	next_token            TEXT NOT NULL DEFAULT '',
	previous_edge_reached INTEGER NOT NULL DEFAULT 0,
	next_edge_reached     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS fragments_room_idx ON fragments(room_id);

CREATE TABLE IF NOT EXISTS events (
	room_id       TEXT NOT NULL,
	event_id      TEXT NOT NULL,
	fragment_id   INTEGER NOT NULL,
	event_index   INTEGER NOT NULL,
	sender        TEXT NOT NULL,
	type          TEXT NOT NULL,
	state_key     TEXT,
	content       BLOB NOT NULL,
	prev_content  BLOB,
	origin_ts     INTEGER NOT NULL DEFAULT 0,
	member_display_name TEXT,
	member_avatar_url   TEXT,
	relation_target_event_id TEXT,
	relation_type            TEXT,
	PRIMARY KEY (room_id, event_id),
	FOREIGN KEY (fragment_id) REFERENCES fragments(id)
);

CREATE INDEX IF NOT EXISTS events_fragment_idx ON events(room_id, fragment_id, event_index);
`

func applySchema(ctx context.Context, db *sql.DB) error {
	var _, err = db.ExecContext(ctx, schema)
	return err
}

// BeginTxn opens a database/sql transaction and wraps it as a
// timeline.Transaction ready to hand to the engine.
func (s *Store) BeginTxn(ctx context.Context, relations timeline.RelationWriter) (*Txn, error) {
	var tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Txn{tx: tx, Relations: relations}, nil
}

// Txn bundles one database/sql *sql.Tx behind the two timeline
// storage collaborator interfaces, plus the caller-supplied
// RelationWriter, so it converts directly to a timeline.Transaction.
type Txn struct {
	tx        *sql.Tx
	Relations timeline.RelationWriter
}

// Transaction returns the timeline.Transaction view of this Txn.
func (t *Txn) Transaction() timeline.Transaction {
	return timeline.Transaction{
		Events:    eventStore{t.tx},
		Fragments: fragmentStore{t.tx},
		Relations: t.Relations,
	}
}

func (t *Txn) Commit() error   { return t.tx.Commit() }
func (t *Txn) Rollback() error { return t.tx.Rollback() }
