package affiliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const joinRequestColumns = `id, agency_id, broker_id, message, status, created_at, decided_at`

func scanJoinRequest(row pgx.Row) (*JoinRequest, error) {
	var request JoinRequest
	err := row.Scan(
		&request.ID,
		&request.AgencyID,
		&request.BrokerID,
		&request.Message,
		&request.Status,
		&request.CreatedAt,
		&request.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// CreateJoinRequest submits a broker-initiated request to join the agency.
// If the agency already has a pending recruitment offer for this broker,
// the two proposals are auto-resolved instead: the broker is affiliated and
// the offer accepted, and no request row is created.
func (s *Service) CreateJoinRequest(ctx context.Context, actorUserID, agencyID uuid.UUID, message *string) (*CreateJoinRequestResult, error) {
	// Agency existence is a precondition, not an ownership check: any
	// broker may ask to join any agency.
	if _, err := s.agencyOwner(ctx, agencyID); err != nil {
		return nil, err
	}

	brokerID, err := s.brokerIDForUser(ctx, actorUserID)
	if err != nil {
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

	var hasPendingRequest bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM agency_join_requests
			WHERE agency_id = $1 AND broker_id = $2 AND status = 'PENDING'
		)
	`, agencyID, brokerID).Scan(&hasPendingRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending join requests: %w", err)
	}
	if hasPendingRequest {
		return nil, ErrDuplicateJoinRequest
	}

	// Counterpart check mirrors CreateRecruitmentOffer: a live pending
	// offer from this agency means both sides already agree.
	if err := sweepPairOffers(ctx, tx, agencyID, brokerID); err != nil {
		return nil, err
	}

	var offerID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM recruitment_offers
		WHERE agency_id = $1 AND broker_id = $2 AND status = 'PENDING'
		FOR UPDATE
	`, agencyID, brokerID).Scan(&offerID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to check pending offers: %w", err)
	}

	if err == nil {
		if err := affiliateBroker(ctx, tx, brokerID, agencyID); err != nil {
			return nil, err
		}

		offer, err := scanOffer(tx.QueryRow(ctx, `
			UPDATE recruitment_offers
			SET status = 'ACCEPTED', decided_at = NOW()
			WHERE id = $1
			RETURNING `+offerColumns,
			offerID))
		if err != nil {
			return nil, fmt.Errorf("failed to accept offer: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		return &CreateJoinRequestResult{AutoAccepted: true, Offer: offer}, nil
	}

	request, err := scanJoinRequest(tx.QueryRow(ctx, `
		INSERT INTO agency_join_requests (agency_id, broker_id, message)
		VALUES ($1, $2, $3)
		RETURNING `+joinRequestColumns,
		agencyID, brokerID, message))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrDuplicateJoinRequest
		}
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &CreateJoinRequestResult{Request: request}, nil
}

// DecideJoinRequest approves or rejects a pending join request. Approval
// affiliates the broker; neither outcome cascades to other proposals.
func (s *Service) DecideJoinRequest(ctx context.Context, actorUserID, requestID uuid.UUID, approve bool) (*JoinRequest, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var agencyID, brokerID, ownerUserID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT r.agency_id, r.broker_id, a.owner_user_id
		FROM agency_join_requests r
		INNER JOIN agencies a ON a.id = r.agency_id
		WHERE r.id = $1
	`, requestID).Scan(&agencyID, &brokerID, &ownerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to load join request: %w", err)
	}
	if ownerUserID != actorUserID {
		return nil, ErrNotAgencyOwner
	}

	// Broker lock first, then the proposal row, matching the lock order of
	// every other mutating operation.
	broker, err := lockBroker(ctx, tx, brokerID)
	if err != nil {
		return nil, err
	}

	var status JoinRequestStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM agency_join_requests
		WHERE id = $1
		FOR UPDATE
	`, requestID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to lock join request: %w", err)
	}
	if status != JoinRequestPending {
		return nil, ErrProposalDecided
	}

	newStatus := JoinRequestRejected
	if approve {
		if broker.AgencyID != nil {
			return nil, ErrAlreadyAffiliated
		}
		if err := affiliateBroker(ctx, tx, brokerID, agencyID); err != nil {
			return nil, err
		}
		newStatus = JoinRequestApproved
	}

	request, err := scanJoinRequest(tx.QueryRow(ctx, `
		UPDATE agency_join_requests
		SET status = $2, decided_at = NOW()
		WHERE id = $1
		RETURNING `+joinRequestColumns,
		requestID, newStatus))
	if err != nil {
		return nil, fmt.Errorf("failed to decide join request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return request, nil
}

// WithdrawJoinRequest deletes a pending join request. Only the initiating
// broker may withdraw, and only while the request is still pending.
func (s *Service) WithdrawJoinRequest(ctx context.Context, actorUserID, requestID uuid.UUID) error {
	var brokerID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT broker_id FROM agency_join_requests WHERE id = $1
	`, requestID).Scan(&brokerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProposalNotFound
		}
		return fmt.Errorf("failed to load join request: %w", err)
	}

	actorBrokerID, err := s.brokerIDForUser(ctx, actorUserID)
	if err != nil {
		return err
	}
	if actorBrokerID != brokerID {
		return ErrNotProposalOwner
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM agency_join_requests
		WHERE id = $1
		  AND status = 'PENDING'
	`, requestID)
	if err != nil {
		return fmt.Errorf("failed to withdraw join request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProposalDecided
	}

	return nil
}

// ListAgencyJoinRequests returns the agency's pending join requests.
func (s *Service) ListAgencyJoinRequests(ctx context.Context, actorUserID, agencyID uuid.UUID) ([]JoinRequest, error) {
	if err := s.requireAgencyOwner(ctx, agencyID, actorUserID); err != nil {
		return nil, err
	}
	return s.listJoinRequests(ctx, "agency_id", agencyID)
}

// ListBrokerJoinRequests returns the pending join requests submitted by the
// caller's broker profile.
func (s *Service) ListBrokerJoinRequests(ctx context.Context, actorUserID uuid.UUID) ([]JoinRequest, error) {
	brokerID, err := s.brokerIDForUser(ctx, actorUserID)
	if err != nil {
		return nil, err
	}
	return s.listJoinRequests(ctx, "broker_id", brokerID)
}

func (s *Service) listJoinRequests(ctx context.Context, column string, id uuid.UUID) ([]JoinRequest, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM agency_join_requests
		WHERE %s = $1
		  AND status = 'PENDING'
		ORDER BY created_at DESC
	`, joinRequestColumns, column), id)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	var requests []JoinRequest
	for rows.Next() {
		request, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, *request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating join requests: %w", err)
	}

	return requests, nil
}
