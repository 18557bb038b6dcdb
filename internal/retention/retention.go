package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/brokerhub/brokerhub/internal/affiliation"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DeleteOldDecidedOffers deletes recruitment offers that reached a terminal
// state (ACCEPTED, DECLINED, EXPIRED) longer ago than the retention window.
// Pending offers are never touched. Idempotent.
//
// Returns the number of rows deleted.
func DeleteOldDecidedOffers(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (int64, error) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM recruitment_offers
		WHERE status <> 'PENDING'
		  AND created_at < NOW() - INTERVAL '1 day' * $1
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old offers: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteOldDecidedJoinRequests deletes join requests that were approved,
// rejected, or auto-resolved longer ago than the retention window.
// Idempotent.
func DeleteOldDecidedJoinRequests(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (int64, error) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM agency_join_requests
		WHERE status <> 'PENDING'
		  AND created_at < NOW() - INTERVAL '1 day' * $1
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old join requests: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteOldClosedInvites deletes accepted and expired invites older than the
// retention window. Only the code hash was ever stored, so this is purely a
// storage reclaim. Idempotent.
func DeleteOldClosedInvites(ctx context.Context, pool *pgxpool.Pool, retentionDays int) (int64, error) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM agency_invites
		WHERE status <> 'PENDING'
		  AND invited_at < NOW() - INTERVAL '1 day' * $1
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old invites: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteSpentResetTokens deletes password reset tokens that are used or past
// their expiry. These are useless the moment either condition holds, so no
// retention window applies. Idempotent.
func DeleteSpentResetTokens(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM password_reset_tokens
		WHERE used_at IS NOT NULL
		   OR expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete spent reset tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RunRetentionJob sweeps expired proposals into their terminal states, then
// purges terminal rows older than the retention window. This is the main
// entry point called by the cron scheduler.
func RunRetentionJob(ctx context.Context, pool *pgxpool.Pool, retentionDays int) error {
	log.Info().
		Int("retention_days", retentionDays).
		Msg("Starting retention job")

	startTime := time.Now()

	// Expire first so stale PENDING rows become eligible for purge on a
	// later run rather than lingering forever.
	offersExpired, invitesExpired, err := affiliation.SweepAllExpired(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sweep expired proposals")
		return fmt.Errorf("expiry sweep failed: %w", err)
	}

	offersDeleted, err := DeleteOldDecidedOffers(ctx, pool, retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete old offers")
		return fmt.Errorf("offer cleanup failed: %w", err)
	}

	requestsDeleted, err := DeleteOldDecidedJoinRequests(ctx, pool, retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete old join requests")
		return fmt.Errorf("join request cleanup failed: %w", err)
	}

	invitesDeleted, err := DeleteOldClosedInvites(ctx, pool, retentionDays)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete old invites")
		return fmt.Errorf("invite cleanup failed: %w", err)
	}

	tokensDeleted, err := DeleteSpentResetTokens(ctx, pool)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete spent reset tokens")
		return fmt.Errorf("reset token cleanup failed: %w", err)
	}

	log.Info().
		Int64("offers_expired", offersExpired).
		Int64("invites_expired", invitesExpired).
		Int64("offers_deleted", offersDeleted).
		Int64("join_requests_deleted", requestsDeleted).
		Int64("invites_deleted", invitesDeleted).
		Int64("reset_tokens_deleted", tokensDeleted).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return nil
}
