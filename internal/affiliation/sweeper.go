package affiliation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by both *pgxpool.Pool and pgx.Tx so the sweeps can run
// standalone before a list read or inside a mutating transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// sweepAgencyOffers expires the agency's pending offers whose deadline has
// passed. Idempotent; already-expired rows are untouched.
func sweepAgencyOffers(ctx context.Context, q execer, agencyID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE recruitment_offers
		SET status = 'EXPIRED'
		WHERE agency_id = $1
		  AND status = 'PENDING'
		  AND expires_at < NOW()
	`, agencyID)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// sweepBrokerOffers expires the broker's pending offers whose deadline has
// passed.
func sweepBrokerOffers(ctx context.Context, q execer, brokerID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE recruitment_offers
		SET status = 'EXPIRED'
		WHERE broker_id = $1
		  AND status = 'PENDING'
		  AND expires_at < NOW()
	`, brokerID)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// sweepPairOffers expires pending offers for one (agency, broker) pair.
// Run inside proposal-creation transactions so a stale offer cannot block a
// fresh one or trigger a bogus auto-resolution.
func sweepPairOffers(ctx context.Context, q execer, agencyID, brokerID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE recruitment_offers
		SET status = 'EXPIRED'
		WHERE agency_id = $1
		  AND broker_id = $2
		  AND status = 'PENDING'
		  AND expires_at < NOW()
	`, agencyID, brokerID)
	if err != nil {
		return fmt.Errorf("failed to sweep expired offers for pair: %w", err)
	}
	return nil
}

// sweepAgencyInvites expires the agency's pending invites whose deadline has
// passed.
func sweepAgencyInvites(ctx context.Context, q execer, agencyID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE agency_invites
		SET status = 'EXPIRED'
		WHERE agency_id = $1
		  AND status = 'PENDING'
		  AND expires_at < NOW()
	`, agencyID)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired invites: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SweepAllExpired bulk-expires every pending offer and invite past its
// deadline. Called by the nightly maintenance job; the lazy per-read sweeps
// make it redundant for listed rows, which is safe because expiry is
// idempotent.
func SweepAllExpired(ctx context.Context, q execer) (offers, invites int64, err error) {
	tag, err := q.Exec(ctx, `
		UPDATE recruitment_offers
		SET status = 'EXPIRED'
		WHERE status = 'PENDING'
		  AND expires_at < NOW()
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sweep expired offers: %w", err)
	}
	offers = tag.RowsAffected()

	tag, err = q.Exec(ctx, `
		UPDATE agency_invites
		SET status = 'EXPIRED'
		WHERE status = 'PENDING'
		  AND expires_at < NOW()
	`)
	if err != nil {
		return offers, 0, fmt.Errorf("failed to sweep expired invites: %w", err)
	}
	invites = tag.RowsAffected()

	return offers, invites, nil
}
