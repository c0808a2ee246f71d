// ABOUTME: SQLite implementation of the SessionStore interface using modernc.org/sqlite
// ABOUTME: Provides session persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the SessionStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite session store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			scopes TEXT NOT NULL DEFAULT '[]',
			email_verified INTEGER NOT NULL DEFAULT 0,
			subscription_active INTEGER NOT NULL DEFAULT 0,
			expires_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the session for a token, expired or not.
func (s *SQLiteStore) Get(ctx context.Context, token string) (*Session, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, email, scopes, email_verified, subscription_active, expires_at, created_at
		FROM sessions WHERE token = ?`, token)

	var (
		sess                    Session
		scopesJSON              string
		verified, subscription  int
		expiresUnix, createdUnix int64
	)
	err := row.Scan(&sess.Token, &sess.UserID, &sess.Email, &scopesJSON,
		&verified, &subscription, &expiresUnix, &createdUnix)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying session: %w", err)
	}

	if err := json.Unmarshal([]byte(scopesJSON), &sess.Scopes); err != nil {
		return nil, false, fmt.Errorf("decoding scopes: %w", err)
	}
	sess.EmailVerified = verified != 0
	sess.SubscriptionActive = subscription != 0
	if expiresUnix != 0 {
		sess.ExpiresAt = time.Unix(expiresUnix, 0)
	}
	sess.CreatedAt = time.Unix(createdUnix, 0)

	return &sess, true, nil
}

// Put stores or replaces a session keyed by its token.
func (s *SQLiteStore) Put(ctx context.Context, session *Session) error {
	scopesJSON, err := json.Marshal(session.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var expiresUnix int64
	if !session.ExpiresAt.IsZero() {
		expiresUnix = session.ExpiresAt.Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, email, scopes, email_verified, subscription_active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			user_id = excluded.user_id,
			email = excluded.email,
			scopes = excluded.scopes,
			email_verified = excluded.email_verified,
			subscription_active = excluded.subscription_active,
			expires_at = excluded.expires_at`,
		session.Token, session.UserID, session.Email, string(scopesJSON),
		boolToInt(session.EmailVerified), boolToInt(session.SubscriptionActive),
		expiresUnix, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting a missing token is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// PruneExpired deletes sessions that expired before the given cutoff.
// Returns the number of sessions removed.
func (s *SQLiteStore) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE expires_at != 0 AND expires_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
