package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldline/internal/domain"
)

// Repo persists client state in the workspace database.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// LoadCredentials returns the persisted session, or ErrNotFound.
func (r Repo) LoadCredentials(ctx context.Context) (domain.Credentials, error) {
	var c domain.Credentials
	var userJSON, savedAt string
	err := r.DB.QueryRowContext(ctx, `SELECT token,user_json,saved_at FROM credentials WHERE id=1`).Scan(&c.Token, &userJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(userJSON), &c.User); err != nil {
		return c, fmt.Errorf("decode stored user: %w", err)
	}
	c.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
	return c, nil
}

// SaveCredentials replaces the persisted session.
func (r Repo) SaveCredentials(ctx context.Context, c domain.Credentials) error {
	if c.Token == "" {
		return errors.New("token required")
	}
	userJSON, err := json.Marshal(c.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO credentials(id,token,user_json,saved_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET token=excluded.token, user_json=excluded.user_json, saved_at=excluded.saved_at`,
		c.Token, string(userJSON), c.SavedAt.UTC().Format(time.RFC3339))
	return err
}

// SaveUser updates the stored profile, keeping the token.
func (r Repo) SaveUser(ctx context.Context, u domain.User) error {
	userJSON, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE credentials SET user_json=? WHERE id=1`, string(userJSON))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCredentials removes the persisted session. Clearing an empty store is
// not an error.
func (r Repo) ClearCredentials(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM credentials WHERE id=1`)
	return err
}
