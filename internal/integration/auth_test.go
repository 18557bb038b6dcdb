package integration

import (
	"context"
	"testing"

	"github.com/brokerhub/brokerhub/internal/auth"
	"github.com/stretchr/testify/require"
)

func TestPasswordReset_Roundtrip(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	userID := createUser(t, pool, "user@example.com")

	token, err := auth.IssueResetToken(ctx, pool, "user@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, auth.ValidateResetTokenFormat(token))

	require.NoError(t, auth.ConsumeResetToken(ctx, pool, token, "brand-new-password"))

	var passwordHash string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT password_hash FROM users WHERE id = $1
	`, userID).Scan(&passwordHash))
	require.NoError(t, auth.VerifyPassword(passwordHash, "brand-new-password"))

	// Tokens are single use.
	err = auth.ConsumeResetToken(ctx, pool, token, "another-password")
	require.ErrorIs(t, err, auth.ErrResetTokenUsed)
}

func TestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	token, err := auth.IssueResetToken(ctx, pool, "nobody@example.com")
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestPasswordReset_ExpiredToken(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	createUser(t, pool, "user@example.com")

	token, err := auth.IssueResetToken(ctx, pool, "user@example.com")
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		UPDATE password_reset_tokens SET expires_at = NOW() - INTERVAL '1 minute'
	`)
	require.NoError(t, err)

	err = auth.ConsumeResetToken(ctx, pool, token, "new-password")
	require.ErrorIs(t, err, auth.ErrResetTokenExpired)
}

func TestForcePasswordReset_RevokesOutstandingTokens(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	userID := createUser(t, pool, "user@example.com")

	token, err := auth.IssueResetToken(ctx, pool, "user@example.com")
	require.NoError(t, err)

	require.NoError(t, auth.ForcePasswordReset(ctx, pool, "user@example.com", "operator-set-pw"))

	var passwordHash string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT password_hash FROM users WHERE id = $1
	`, userID).Scan(&passwordHash))
	require.NoError(t, auth.VerifyPassword(passwordHash, "operator-set-pw"))

	// The earlier emailed token can no longer roll the password back.
	err = auth.ConsumeResetToken(ctx, pool, token, "attacker-pw")
	require.ErrorIs(t, err, auth.ErrResetTokenNotFound)
}

func TestForcePasswordReset_UnknownEmail(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	err := auth.ForcePasswordReset(ctx, pool, "nobody@example.com", "whatever-pw")
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestPasswordReset_UnknownToken(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	token, _, err := auth.GenerateResetToken()
	require.NoError(t, err)

	err = auth.ConsumeResetToken(ctx, pool, token, "new-password")
	require.ErrorIs(t, err, auth.ErrResetTokenNotFound)
}
