// Package postgres persists voice line snapshots and the reply opt-out list
// in PostgreSQL, so a restart does not need a full wiki ingestion.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/herald/internal/voiceline"
)

// Schema is the SQL DDL for the snapshot tables. Execute it via [Migrate] or
// apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS herald_owners (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    image_path TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS herald_responses (
    id             INTEGER PRIMARY KEY,
    owner_id       INTEGER NOT NULL REFERENCES herald_owners(id) ON DELETE CASCADE,
    canonical_text TEXT NOT NULL,
    original_text  TEXT NOT NULL,
    audio_url      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_herald_responses_canonical ON herald_responses(canonical_text);
CREATE TABLE IF NOT EXISTS herald_icons (
    name TEXT PRIMARY KEY,
    url  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS herald_meta (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS herald_opt_outs (
    user_id    TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const versionKey = "version"

// DB is the database interface used by [Store]. *pgxpool.Pool satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads and writes snapshots. All methods are safe for concurrent use.
type Store struct {
	db    DB
	close func()
}

// Open connects to the database at dsn, checks the connection and applies
// [Schema].
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	s := &Store{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing connection or pool. The caller owns db and is
// responsible for calling [Store.Migrate].
func New(db DB) *Store {
	return &Store{db: db, close: func() {}}
}

// Close releases the pool opened by [Open].
func (s *Store) Close() { s.close() }

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot with snap in a single transaction.
func (s *Store) Save(ctx context.Context, snap voiceline.Snapshot) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `TRUNCATE herald_responses, herald_owners, herald_icons`); err != nil {
		return fmt.Errorf("postgres: clear snapshot: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"herald_owners"},
		[]string{"id", "name", "image_path"},
		pgx.CopyFromSlice(len(snap.Owners), func(i int) ([]any, error) {
			o := snap.Owners[i]
			return []any{o.ID, o.Name, o.ImagePath}, nil
		}))
	if err != nil {
		return fmt.Errorf("postgres: copy owners: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"herald_responses"},
		[]string{"id", "owner_id", "canonical_text", "original_text", "audio_url"},
		pgx.CopyFromSlice(len(snap.Responses), func(i int) ([]any, error) {
			r := snap.Responses[i]
			return []any{r.ID, r.OwnerID, r.CanonicalText, r.OriginalText, r.AudioURL}, nil
		}))
	if err != nil {
		return fmt.Errorf("postgres: copy responses: %w", err)
	}

	icons := make([][]any, 0, len(snap.Icons))
	for name, u := range snap.Icons {
		icons = append(icons, []any{name, u})
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"herald_icons"}, []string{"name", "url"}, pgx.CopyFromRows(icons))
	if err != nil {
		return fmt.Errorf("postgres: copy icons: %w", err)
	}

	const upsert = `
		INSERT INTO herald_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err = tx.Exec(ctx, upsert, versionKey, snap.Version); err != nil {
		return fmt.Errorf("postgres: save version: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. ok is false when nothing was saved yet.
func (s *Store) Load(ctx context.Context) (snap voiceline.Snapshot, ok bool, err error) {
	err = s.db.QueryRow(ctx, `SELECT value FROM herald_meta WHERE key = $1`, versionKey).Scan(&snap.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return voiceline.Snapshot{}, false, nil
	}
	if err != nil {
		return voiceline.Snapshot{}, false, fmt.Errorf("postgres: load version: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT id, name, image_path FROM herald_owners ORDER BY id`)
	if err != nil {
		return voiceline.Snapshot{}, false, fmt.Errorf("postgres: load owners: %w", err)
	}
	snap.Owners, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (voiceline.Owner, error) {
		var o voiceline.Owner
		err := row.Scan(&o.ID, &o.Name, &o.ImagePath)
		return o, err
	})
	if err != nil {
		return voiceline.Snapshot{}, false, fmt.Errorf("postgres: scan owners: %w", err)
	}

	rows, err = s.db.Query(ctx, `
		SELECT id, owner_id, canonical_text, original_text, audio_url
		FROM herald_responses ORDER BY id`)
	if err != nil {
		return voiceline.Snapshot{}, false, fmt.Errorf("postgres: load responses: %w", err)
	}
	snap.Responses, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (voiceline.Response, error) {
		var r voiceline.Response
		err := row.Scan(&r.ID, &r.OwnerID, &r.CanonicalText, &r.OriginalText, &r.AudioURL)
		return r, err
	})
	if err != nil {
		return voiceline.Snapshot{}, false, fmt.Errorf("postgres: scan responses: %w", err)
	}

	rows, err = s.db.Query(ctx, `SELECT name, url FROM herald_icons`)
	if err != nil {
		return voiceline.Snapshot{}, false, fmt.Errorf("postgres: load icons: %w", err)
	}
	snap.Icons = make(map[string]string)
	var name, u string
	_, err = pgx.ForEachRow(rows, []any{&name, &u}, func() error {
		snap.Icons[name] = u
		return nil
	})
	if err != nil {
		return voiceline.Snapshot{}, false, fmt.Errorf("postgres: scan icons: %w", err)
	}
	return snap, true, nil
}

// OptOuts returns every user id that disabled automatic replies.
func (s *Store) OptOuts(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM herald_opt_outs ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load opt-outs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opt-outs: %w", err)
	}
	return ids, nil
}

// SetOptOut adds userID to the opt-out list, or removes it when out is
// false.
func (s *Store) SetOptOut(ctx context.Context, userID string, out bool) error {
	var err error
	if out {
		_, err = s.db.Exec(ctx, `INSERT INTO herald_opt_outs (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, userID)
	} else {
		_, err = s.db.Exec(ctx, `DELETE FROM herald_opt_outs WHERE user_id = $1`, userID)
	}
	if err != nil {
		return fmt.Errorf("postgres: set opt-out for %q: %w", userID, err)
	}
	return nil
}
