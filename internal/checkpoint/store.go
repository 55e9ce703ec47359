// Package checkpoint persists continuation tokens in a sqlite database so that
// an enumeration can resume after a restart.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
)

// Entry is one saved token.
type Entry struct {
	Name      string
	Token     string
	UpdatedAt time.Time
}

// Store is a named set of continuation tokens.
type Store struct {
	db *sql.DB
}

// Open opens or creates the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			name TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("init checkpoint schema: %w", err)
	}
	return nil
}

// Save stores token under name, replacing any previous token.
func (s *Store) Save(ctx context.Context, name, token string) error {
	if name == "" {
		return fmt.Errorf("%w: checkpoint name is required", docerrors.ErrInvalidOptions)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (name, token, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		name, token, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", name, err)
	}
	return nil
}

// Load returns the token saved under name. It reports false if there is none.
func (s *Store) Load(ctx context.Context, name string) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM checkpoints WHERE name = ?`, name).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load checkpoint %q: %w", name, err)
	}
	return token, true, nil
}

// Delete removes the token saved under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete checkpoint %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete checkpoint %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", docerrors.ErrCheckpointNotFound, name)
	}
	return nil
}

// List returns every saved token ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, token, updated_at FROM checkpoints ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var list []Entry
	for rows.Next() {
		var (
			e       Entry
			updated string
		)
		if err := rows.Scan(&e.Name, &e.Token, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %q: bad timestamp: %w", e.Name, err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
