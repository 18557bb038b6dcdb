package affiliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAgencyNotFound is returned when the target agency does not exist
	ErrAgencyNotFound = errors.New("agency not found")

	// ErrBrokerNotFound is returned when the target broker profile does not exist
	ErrBrokerNotFound = errors.New("broker profile not found")

	// ErrProposalNotFound is returned when the referenced proposal does not exist
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrNotAgencyOwner is returned when the caller does not own the agency
	ErrNotAgencyOwner = errors.New("caller does not own this agency")

	// ErrNotProposalOwner is returned when the caller is not the proposal's
	// initiating or responding side
	ErrNotProposalOwner = errors.New("caller does not own this proposal")

	// ErrAlreadyAffiliated is returned when the broker already belongs to an agency
	ErrAlreadyAffiliated = errors.New("broker is already affiliated with an agency")

	// ErrNotAffiliated is returned when the broker does not belong to the agency
	ErrNotAffiliated = errors.New("broker is not affiliated with this agency")

	// ErrOwnerNotRecruitable is returned when the target broker account owns
	// an agency; owners cannot be recruited or submit join requests
	ErrOwnerNotRecruitable = errors.New("agency owners cannot be recruited")

	// ErrDuplicateOffer is returned when a pending offer already exists for the pair
	ErrDuplicateOffer = errors.New("a pending offer already exists for this broker")

	// ErrDuplicateJoinRequest is returned when a pending join request already
	// exists for the pair
	ErrDuplicateJoinRequest = errors.New("a pending join request already exists for this agency")

	// ErrProposalDecided is returned when the proposal has already been
	// decided or withdrawn
	ErrProposalDecided = errors.New("proposal has already been decided")

	// ErrOfferExpired is returned when a recruitment offer is past its deadline
	ErrOfferExpired = errors.New("recruitment offer has expired")

	// ErrInviteExpired is returned when an invite is past its deadline
	ErrInviteExpired = errors.New("invite has expired")

	// ErrInviteEmailMismatch is returned when the accepting account's email
	// does not match the invited address
	ErrInviteEmailMismatch = errors.New("invite email does not match your account")
)

// Service implements the affiliation matching engine: proposal creation,
// auto-resolution of counterpart proposals, decisions, and the atomic
// affiliation transitions they authorize.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new affiliation service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// brokerRow is the broker state loaded under a row lock at the start of
// every mutating operation. Holding the lock for the duration of the
// check-then-act sequence serializes all affiliation changes per broker.
type brokerRow struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	AgencyID    *uuid.UUID
	CompanyName string
}

// lockBroker loads the broker row FOR UPDATE inside the transaction.
func lockBroker(ctx context.Context, tx pgx.Tx, brokerID uuid.UUID) (*brokerRow, error) {
	var broker brokerRow
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, agency_id, company_name
		FROM broker_profiles
		WHERE id = $1
		FOR UPDATE
	`, brokerID).Scan(&broker.ID, &broker.UserID, &broker.AgencyID, &broker.CompanyName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBrokerNotFound
		}
		return nil, fmt.Errorf("failed to lock broker row: %w", err)
	}
	return &broker, nil
}

// agencyOwner returns the owner account of an agency.
func (s *Service) agencyOwner(ctx context.Context, agencyID uuid.UUID) (uuid.UUID, error) {
	var ownerUserID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT owner_user_id FROM agencies WHERE id = $1
	`, agencyID).Scan(&ownerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrAgencyNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to load agency: %w", err)
	}
	return ownerUserID, nil
}

// requireAgencyOwner verifies the caller administers the agency.
func (s *Service) requireAgencyOwner(ctx context.Context, agencyID, actorUserID uuid.UUID) error {
	ownerUserID, err := s.agencyOwner(ctx, agencyID)
	if err != nil {
		return err
	}
	if ownerUserID != actorUserID {
		return ErrNotAgencyOwner
	}
	return nil
}

// ownsAnyAgency reports whether the account administers an agency.
// Owner and broker-target roles are mutually exclusive per account.
func ownsAnyAgency(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (bool, error) {
	var owns bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM agencies WHERE owner_user_id = $1)
	`, userID).Scan(&owns)
	if err != nil {
		return false, fmt.Errorf("failed to check agency ownership: %w", err)
	}
	return owns, nil
}

// affiliateBroker links the broker to the agency, snapshotting the current
// company name for restoration on later removal. The conditional WHERE
// clause makes concurrent affiliations impossible: only one transaction can
// move a broker out of the unaffiliated state.
func affiliateBroker(ctx context.Context, tx pgx.Tx, brokerID, agencyID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE broker_profiles
		SET agency_id = $2,
		    affiliation_type = 'AGENCY_BROKER',
		    previous_company_name = company_name,
		    updated_at = NOW()
		WHERE id = $1
		  AND agency_id IS NULL
	`, brokerID, agencyID)
	if err != nil {
		return fmt.Errorf("failed to affiliate broker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAffiliated
	}
	return nil
}

// unaffiliateBroker removes the broker from the agency and restores the
// company name recorded when the affiliation was created.
func unaffiliateBroker(ctx context.Context, tx pgx.Tx, brokerID, agencyID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE broker_profiles
		SET agency_id = NULL,
		    affiliation_type = 'INDIVIDUAL',
		    company_name = COALESCE(previous_company_name, company_name),
		    previous_company_name = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND agency_id = $2
	`, brokerID, agencyID)
	if err != nil {
		return fmt.Errorf("failed to unaffiliate broker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAffiliated
	}
	return nil
}

// closeDanglingProposals rejects every other pending join request by the
// broker and declines every other pending offer to the broker. Runs inside
// the accepting transaction so no dangling proposal survives an acceptance.
func closeDanglingProposals(ctx context.Context, tx pgx.Tx, brokerID uuid.UUID, keepOfferID *uuid.UUID) error {
	if _, err := tx.Exec(ctx, `
		UPDATE agency_join_requests
		SET status = 'REJECTED', decided_at = NOW()
		WHERE broker_id = $1
		  AND status = 'PENDING'
	`, brokerID); err != nil {
		return fmt.Errorf("failed to reject dangling join requests: %w", err)
	}

	offerFilter := uuid.Nil
	if keepOfferID != nil {
		offerFilter = *keepOfferID
	}
	if _, err := tx.Exec(ctx, `
		UPDATE recruitment_offers
		SET status = 'DECLINED', decided_at = NOW()
		WHERE broker_id = $1
		  AND status = 'PENDING'
		  AND id <> $2
	`, brokerID, offerFilter); err != nil {
		return fmt.Errorf("failed to decline dangling offers: %w", err)
	}

	return nil
}
