package credential

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLStore persists the keys as rows of the credentials table (see
// internal/database migrations). Works with both MySQL and SQLite.
type SQLStore struct{ DB *sql.DB }

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{DB: db} }

func (s *SQLStore) Load(ctx context.Context) (Blob, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT k, v FROM credentials")
	if err != nil {
		return Blob{}, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()
	vals := make(map[string]string, 3)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Blob{}, fmt.Errorf("scan credential: %w", err)
		}
		vals[k] = v
	}
	if err := rows.Err(); err != nil {
		return Blob{}, fmt.Errorf("iterate credentials: %w", err)
	}
	return fromValues(vals)
}

// Save replaces all rows inside one transaction.
func (s *SQLStore) Save(ctx context.Context, b Blob) error {
	vals, err := toValues(b)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, "DELETE FROM credentials"); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	for _, k := range []string{KeyAccess, KeyRefresh, KeyUser} {
		if _, err := tx.ExecContext(ctx, "INSERT INTO credentials (k, v) VALUES (?, ?)", k, vals[k]); err != nil {
			return fmt.Errorf("insert credential %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	committed = true
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM credentials"); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
