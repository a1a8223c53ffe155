package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserExists is returned when adding a username that is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when the username is not registered.
	ErrUserNotFound = errors.New("user not found")
)

// CredentialStore keeps bcrypt password hashes for registered usernames.
// It satisfies auth.Validator.
type CredentialStore struct {
	db   *Database
	cost int
}

// User represents a registered account.
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login,omitempty"`
}

// NewCredentialStore creates a credential store on an open database.
func NewCredentialStore(db *Database) *CredentialStore {
	return &CredentialStore{db: db, cost: bcrypt.DefaultCost}
}

// AddUser registers username with the given password.
func (cs *CredentialStore) AddUser(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cs.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return cs.db.Transaction(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrUserExists, username)
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
			username, string(hash), time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		log.Info().Str("username", username).Msg("user created")
		return nil
	})
}

// SetPassword replaces the password of an existing user.
func (cs *CredentialStore) SetPassword(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cs.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	res, err := cs.db.Exec(ctx, "UPDATE users SET password_hash = ? WHERE username = ?", string(hash), username)
	if err != nil {
		return err
	}
	return requireOneRow(res, username)
}

// RemoveUser deletes a registered user.
func (cs *CredentialStore) RemoveUser(ctx context.Context, username string) error {
	res, err := cs.db.Exec(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return err
	}
	return requireOneRow(res, username)
}

// Validate reports whether password matches the stored hash for username.
// Unknown usernames are rejected without error.
func (cs *CredentialStore) Validate(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := cs.db.QueryRow(ctx, "SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("credential lookup failed: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stored hash for %s is unusable: %w", username, err)
	}

	if _, err := cs.db.Exec(ctx, "UPDATE users SET last_login = ? WHERE username = ?", time.Now().UnixNano(), username); err != nil {
		log.Warn().Err(err).Str("username", username).Msg("failed to record last login")
	}
	return true, nil
}

// Users returns all registered users ordered by creation.
func (cs *CredentialStore) Users(ctx context.Context) ([]User, error) {
	rows, err := cs.db.Query(ctx, "SELECT id, username, created_at, last_login FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var (
			u                  User
			created, lastLogin int64
		)
		if err := rows.Scan(&u.ID, &u.Username, &created, &lastLogin); err != nil {
			return nil, err
		}
		u.CreatedAt = time.Unix(0, created)
		if lastLogin > 0 {
			u.LastLogin = time.Unix(0, lastLogin)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func requireOneRow(res sql.Result, username string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}
