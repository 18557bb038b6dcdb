package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrAgencyNotFound is returned when an agency is not found
	ErrAgencyNotFound = errors.New("agency not found")

	// ErrBrokerNotFound is returned when a broker profile is not found
	ErrBrokerNotFound = errors.New("broker profile not found")

	// ErrAlreadyAgencyOwner is returned when the account already owns an agency
	ErrAlreadyAgencyOwner = errors.New("account already owns an agency")

	// ErrAlreadyBroker is returned when the account already has a broker profile
	ErrAlreadyBroker = errors.New("account already has a broker profile")

	// ErrRoleConflict is returned when an account would hold both the agency
	// owner and broker roles
	ErrRoleConflict = errors.New("account cannot be both an agency owner and a broker")
)

// Service provides read/write access to the broker and agency directory.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new directory service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// CreateAgency registers a new agency owned by the given account.
// Owner and broker roles are mutually exclusive for an account.
func (s *Service) CreateAgency(ctx context.Context, ownerUserID uuid.UUID, name string) (*Agency, error) {
	var hasBroker bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM broker_profiles WHERE user_id = $1)
	`, ownerUserID).Scan(&hasBroker)
	if err != nil {
		return nil, fmt.Errorf("failed to check broker profile: %w", err)
	}
	if hasBroker {
		return nil, ErrRoleConflict
	}

	var agency Agency
	err = s.pool.QueryRow(ctx, `
		INSERT INTO agencies (name, owner_user_id)
		VALUES ($1, $2)
		RETURNING id, name, owner_user_id, created_at
	`, name, ownerUserID).Scan(&agency.ID, &agency.Name, &agency.OwnerUserID, &agency.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrAlreadyAgencyOwner
		}
		return nil, fmt.Errorf("failed to create agency: %w", err)
	}

	return &agency, nil
}

// GetAgency retrieves an agency by ID
func (s *Service) GetAgency(ctx context.Context, agencyID uuid.UUID) (*Agency, error) {
	var agency Agency
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, owner_user_id, created_at
		FROM agencies
		WHERE id = $1
	`, agencyID).Scan(&agency.ID, &agency.Name, &agency.OwnerUserID, &agency.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgencyNotFound
		}
		return nil, fmt.Errorf("failed to get agency: %w", err)
	}

	return &agency, nil
}

// CreateBrokerProfile registers a broker profile for the given account.
func (s *Service) CreateBrokerProfile(ctx context.Context, userID uuid.UUID, companyName string) (*BrokerProfile, error) {
	var ownsAgency bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM agencies WHERE owner_user_id = $1)
	`, userID).Scan(&ownsAgency)
	if err != nil {
		return nil, fmt.Errorf("failed to check agency ownership: %w", err)
	}
	if ownsAgency {
		return nil, ErrRoleConflict
	}

	var broker BrokerProfile
	err = s.pool.QueryRow(ctx, `
		INSERT INTO broker_profiles (user_id, company_name)
		VALUES ($1, $2)
		RETURNING id, user_id, agency_id, affiliation_type, company_name,
		          previous_company_name, created_at, updated_at
	`, userID, companyName).Scan(
		&broker.ID,
		&broker.UserID,
		&broker.AgencyID,
		&broker.AffiliationType,
		&broker.CompanyName,
		&broker.PreviousCompanyName,
		&broker.CreatedAt,
		&broker.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyBroker
		}
		return nil, fmt.Errorf("failed to create broker profile: %w", err)
	}

	return &broker, nil
}

// GetBroker retrieves a broker profile by ID
func (s *Service) GetBroker(ctx context.Context, brokerID uuid.UUID) (*BrokerProfile, error) {
	return s.getBrokerBy(ctx, "id", brokerID)
}

// GetBrokerByUser retrieves the broker profile owned by the given account
func (s *Service) GetBrokerByUser(ctx context.Context, userID uuid.UUID) (*BrokerProfile, error) {
	return s.getBrokerBy(ctx, "user_id", userID)
}

func (s *Service) getBrokerBy(ctx context.Context, column string, value uuid.UUID) (*BrokerProfile, error) {
	var broker BrokerProfile
	query := fmt.Sprintf(`
		SELECT id, user_id, agency_id, affiliation_type, company_name,
		       previous_company_name, created_at, updated_at
		FROM broker_profiles
		WHERE %s = $1
	`, column)

	err := s.pool.QueryRow(ctx, query, value).Scan(
		&broker.ID,
		&broker.UserID,
		&broker.AgencyID,
		&broker.AffiliationType,
		&broker.CompanyName,
		&broker.PreviousCompanyName,
		&broker.CreatedAt,
		&broker.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBrokerNotFound
		}
		return nil, fmt.Errorf("failed to get broker profile: %w", err)
	}

	return &broker, nil
}

// ListAgencyBrokers retrieves all brokers affiliated with an agency
func (s *Service) ListAgencyBrokers(ctx context.Context, agencyID uuid.UUID) ([]BrokerProfile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, agency_id, affiliation_type, company_name,
		       previous_company_name, created_at, updated_at
		FROM broker_profiles
		WHERE agency_id = $1
		ORDER BY created_at ASC
	`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agency brokers: %w", err)
	}
	defer rows.Close()

	var brokers []BrokerProfile
	for rows.Next() {
		var broker BrokerProfile
		if err := rows.Scan(
			&broker.ID,
			&broker.UserID,
			&broker.AgencyID,
			&broker.AffiliationType,
			&broker.CompanyName,
			&broker.PreviousCompanyName,
			&broker.CreatedAt,
			&broker.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan broker profile: %w", err)
		}
		brokers = append(brokers, broker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating broker rows: %w", err)
	}

	return brokers, nil
}

// ResolveCapability resolves the actor's role once per call: agency owner,
// broker owner, or neither. Used by the matching engine for ownership checks.
func (s *Service) ResolveCapability(ctx context.Context, userID uuid.UUID) (Capability, error) {
	var ownsAgency bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM agencies WHERE owner_user_id = $1)
	`, userID).Scan(&ownsAgency)
	if err != nil {
		return CapabilityNone, fmt.Errorf("failed to check agency ownership: %w", err)
	}
	if ownsAgency {
		return CapabilityAgencyOwner, nil
	}

	var hasBroker bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM broker_profiles WHERE user_id = $1)
	`, userID).Scan(&hasBroker)
	if err != nil {
		return CapabilityNone, fmt.Errorf("failed to check broker profile: %w", err)
	}
	if hasBroker {
		return CapabilityBrokerOwner, nil
	}

	return CapabilityNone, nil
}
