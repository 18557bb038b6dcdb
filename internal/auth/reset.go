package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ResetTokenPrefix = "bhr_"
	ResetTokenBytes  = 32

	resetTokenTTL = time.Hour
)

var (
	// ErrResetTokenNotFound is returned when no matching reset token exists
	ErrResetTokenNotFound = errors.New("reset token not found")

	// ErrResetTokenUsed is returned when a reset token was already consumed
	ErrResetTokenUsed = errors.New("reset token already used")

	// ErrResetTokenExpired is returned when a reset token is past its TTL
	ErrResetTokenExpired = errors.New("reset token expired")

	// ErrUserNotFound is returned by out-of-band resets for unknown emails
	ErrUserNotFound = errors.New("user not found")
)

// GenerateResetToken returns a new password reset token and its hash.
// Only the hash is persisted; the plaintext token goes to the user.
func GenerateResetToken() (token string, hash []byte, err error) {
	randomBytes := make([]byte, ResetTokenBytes)
	_, err = rand.Read(randomBytes)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	token = ResetTokenPrefix + encoded
	hash = HashResetToken(token)

	return token, hash, nil
}

// HashResetToken returns the SHA-256 digest stored in place of the token.
func HashResetToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

// ValidateResetTokenFormat checks the token shape without touching the store.
func ValidateResetTokenFormat(token string) bool {
	if len(token) < len(ResetTokenPrefix) {
		return false
	}

	if token[:len(ResetTokenPrefix)] != ResetTokenPrefix {
		return false
	}

	encoded := token[len(ResetTokenPrefix):]
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}

	return len(decoded) == ResetTokenBytes
}

// IssueResetToken creates a persisted, expiring reset token for the account
// with the given email. Returns the plaintext token. A missing account is not
// an error to the caller; the empty token signals "no such user" so handlers
// can respond identically either way.
func IssueResetToken(ctx context.Context, pool *pgxpool.Pool, email string) (string, error) {
	var userID uuid.UUID
	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().UTC().Add(resetTokenTTL)
	_, err = pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, userID, hash, expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	return token, nil
}

// ConsumeResetToken validates a reset token and updates the account password
// in the same transaction that marks the token used.
func ConsumeResetToken(ctx context.Context, pool *pgxpool.Pool, token, newPassword string) error {
	if !ValidateResetTokenFormat(token) {
		return ErrResetTokenNotFound
	}
	tokenHash := HashResetToken(token)

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var tokenID, userID uuid.UUID
	var expiresAt time.Time
	var usedAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, expires_at, used_at
		FROM password_reset_tokens
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash).Scan(&tokenID, &userID, &expiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrResetTokenNotFound
		}
		return fmt.Errorf("failed to load reset token: %w", err)
	}

	if usedAt != nil {
		return ErrResetTokenUsed
	}
	if !expiresAt.After(time.Now().UTC()) {
		return ErrResetTokenExpired
	}

	if _, err := tx.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used_at = NOW()
		WHERE id = $1
	`, tokenID); err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE id = $1
	`, userID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ForcePasswordReset replaces an account's password without a token, for
// operator-driven resets. Unspent reset tokens for the account are revoked in
// the same transaction so an emailed token cannot undo the change.
func ForcePasswordReset(ctx context.Context, pool *pgxpool.Pool, email, newPassword string) error {
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var userID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE id = $1
	`, userID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM password_reset_tokens
		WHERE user_id = $1 AND used_at IS NULL
	`, userID); err != nil {
		return fmt.Errorf("failed to revoke reset tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
