package affiliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const offerColumns = `id, agency_id, broker_id, message, status, created_at, expires_at, decided_at`

func scanOffer(row pgx.Row) (*RecruitmentOffer, error) {
	var offer RecruitmentOffer
	err := row.Scan(
		&offer.ID,
		&offer.AgencyID,
		&offer.BrokerID,
		&offer.Message,
		&offer.Status,
		&offer.CreatedAt,
		&offer.ExpiresAt,
		&offer.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// CreateRecruitmentOffer submits an agency-initiated offer to recruit the
// broker. If the broker already has a pending join request to the same
// agency, the two proposals are auto-resolved instead: the broker is
// affiliated and the join request approved, and no offer row is created.
func (s *Service) CreateRecruitmentOffer(ctx context.Context, actorUserID, agencyID, brokerID uuid.UUID, message *string) (*CreateOfferResult, error) {
	if err := s.requireAgencyOwner(ctx, agencyID, actorUserID); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	broker, err := lockBroker(ctx, tx, brokerID)
	if err != nil {
		return nil, err
	}
	if broker.AgencyID != nil {
		return nil, ErrAlreadyAffiliated
	}

	owns, err := ownsAnyAgency(ctx, tx, broker.UserID)
	if err != nil {
		return nil, err
	}
	if owns {
		return nil, ErrOwnerNotRecruitable
	}

	// Stale offers must not block a fresh one.
	if err := sweepPairOffers(ctx, tx, agencyID, brokerID); err != nil {
		return nil, err
	}

	var hasPendingOffer bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM recruitment_offers
			WHERE agency_id = $1 AND broker_id = $2 AND status = 'PENDING'
		)
	`, agencyID, brokerID).Scan(&hasPendingOffer)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending offers: %w", err)
	}
	if hasPendingOffer {
		return nil, ErrDuplicateOffer
	}

	// Counterpart check: a pending join request from this broker to this
	// agency means both sides already want the same affiliation.
	var requestID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM agency_join_requests
		WHERE agency_id = $1 AND broker_id = $2 AND status = 'PENDING'
		FOR UPDATE
	`, agencyID, brokerID).Scan(&requestID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to check pending join requests: %w", err)
	}

	if err == nil {
		if err := affiliateBroker(ctx, tx, brokerID, agencyID); err != nil {
			return nil, err
		}

		request, err := scanJoinRequest(tx.QueryRow(ctx, `
			UPDATE agency_join_requests
			SET status = 'APPROVED', decided_at = NOW()
			WHERE id = $1
			RETURNING `+joinRequestColumns,
			requestID))
		if err != nil {
			return nil, fmt.Errorf("failed to approve join request: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		return &CreateOfferResult{AutoApproved: true, JoinRequest: request}, nil
	}

	expiresAt := time.Now().UTC().Add(OfferTTL)
	offer, err := scanOffer(tx.QueryRow(ctx, `
		INSERT INTO recruitment_offers (agency_id, broker_id, message, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+offerColumns,
		agencyID, brokerID, message, expiresAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrDuplicateOffer
		}
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &CreateOfferResult{Offer: offer}, nil
}

// RespondToOffer accepts or declines a pending recruitment offer addressed
// to the caller's broker profile. Acceptance affiliates the broker and
// closes every other pending proposal touching them; declining closes only
// this offer. An offer past its deadline is persisted as EXPIRED and the
// call fails with ErrOfferExpired.
func (s *Service) RespondToOffer(ctx context.Context, actorUserID, offerID uuid.UUID, accept bool) (*RecruitmentOffer, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Resolve the broker first so the row lock is always taken in the same
	// order as the other mutating operations.
	var brokerID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT broker_id FROM recruitment_offers WHERE id = $1
	`, offerID).Scan(&brokerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}

	broker, err := lockBroker(ctx, tx, brokerID)
	if err != nil {
		return nil, err
	}
	if broker.UserID != actorUserID {
		return nil, ErrNotProposalOwner
	}

	offer, err := scanOffer(tx.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM recruitment_offers
		WHERE id = $1
		FOR UPDATE
	`, offerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to lock offer: %w", err)
	}

	switch offer.Status {
	case OfferPending:
	case OfferExpired:
		return nil, ErrOfferExpired
	default:
		return nil, ErrProposalDecided
	}

	if offer.Expired(time.Now().UTC()) {
		// The expiry transition persists even though the call fails.
		if _, err := tx.Exec(ctx, `
			UPDATE recruitment_offers SET status = 'EXPIRED' WHERE id = $1
		`, offerID); err != nil {
			return nil, fmt.Errorf("failed to expire offer: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, ErrOfferExpired
	}

	if !accept {
		declined, err := scanOffer(tx.QueryRow(ctx, `
			UPDATE recruitment_offers
			SET status = 'DECLINED', decided_at = NOW()
			WHERE id = $1
			RETURNING `+offerColumns,
			offerID))
		if err != nil {
			return nil, fmt.Errorf("failed to decline offer: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return declined, nil
	}

	if broker.AgencyID != nil {
		return nil, ErrAlreadyAffiliated
	}
	if err := affiliateBroker(ctx, tx, brokerID, offer.AgencyID); err != nil {
		return nil, err
	}

	accepted, err := scanOffer(tx.QueryRow(ctx, `
		UPDATE recruitment_offers
		SET status = 'ACCEPTED', decided_at = NOW()
		WHERE id = $1
		RETURNING `+offerColumns,
		offerID))
	if err != nil {
		return nil, fmt.Errorf("failed to accept offer: %w", err)
	}

	if err := closeDanglingProposals(ctx, tx, brokerID, &offerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return accepted, nil
}

// WithdrawOffer deletes a pending offer. Only the owning agency may
// withdraw, and only while the offer is still pending.
func (s *Service) WithdrawOffer(ctx context.Context, actorUserID, offerID uuid.UUID) error {
	var agencyID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT agency_id FROM recruitment_offers WHERE id = $1
	`, offerID).Scan(&agencyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProposalNotFound
		}
		return fmt.Errorf("failed to load offer: %w", err)
	}

	if err := s.requireAgencyOwner(ctx, agencyID, actorUserID); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM recruitment_offers
		WHERE id = $1
		  AND status = 'PENDING'
	`, offerID)
	if err != nil {
		return fmt.Errorf("failed to withdraw offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProposalDecided
	}

	return nil
}

// ListAgencyOffers returns the agency's pending offers, sweeping expired
// ones first.
func (s *Service) ListAgencyOffers(ctx context.Context, actorUserID, agencyID uuid.UUID) ([]RecruitmentOffer, error) {
	if err := s.requireAgencyOwner(ctx, agencyID, actorUserID); err != nil {
		return nil, err
	}

	if _, err := sweepAgencyOffers(ctx, s.pool, agencyID); err != nil {
		return nil, err
	}

	return s.listOffers(ctx, "agency_id", agencyID)
}

// ListBrokerOffers returns the pending offers addressed to the caller's
// broker profile, sweeping expired ones first.
func (s *Service) ListBrokerOffers(ctx context.Context, actorUserID uuid.UUID) ([]RecruitmentOffer, error) {
	brokerID, err := s.brokerIDForUser(ctx, actorUserID)
	if err != nil {
		return nil, err
	}

	if _, err := sweepBrokerOffers(ctx, s.pool, brokerID); err != nil {
		return nil, err
	}

	return s.listOffers(ctx, "broker_id", brokerID)
}

func (s *Service) listOffers(ctx context.Context, column string, id uuid.UUID) ([]RecruitmentOffer, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM recruitment_offers
		WHERE %s = $1
		  AND status = 'PENDING'
		ORDER BY created_at DESC
	`, offerColumns, column), id)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []RecruitmentOffer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, *offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}

	return offers, nil
}

func (s *Service) brokerIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	var brokerID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM broker_profiles WHERE user_id = $1
	`, userID).Scan(&brokerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrBrokerNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to load broker profile: %w", err)
	}
	return brokerID, nil
}
