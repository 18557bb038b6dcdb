package directory

import (
	"time"

	"github.com/google/uuid"
)

// AffiliationType describes whether a broker operates independently or
// under an agency.
type AffiliationType string

const (
	AffiliationIndividual   AffiliationType = "INDIVIDUAL"
	AffiliationAgencyBroker AffiliationType = "AGENCY_BROKER"
)

// Capability is the actor role resolved once per matching-engine call.
// An account holds at most one: agency owners cannot also be brokers.
type Capability string

const (
	CapabilityBrokerOwner Capability = "BROKER_OWNER"
	CapabilityAgencyOwner Capability = "AGENCY_OWNER"
	CapabilityNone        Capability = "NONE"
)

// Agency represents a brokerage agency administered by one owner account.
type Agency struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	OwnerUserID uuid.UUID `db:"owner_user_id" json:"owner_user_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// BrokerProfile represents a broker listed in the directory.
// AgencyID is non-nil exactly when AffiliationType is AGENCY_BROKER.
type BrokerProfile struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	UserID              uuid.UUID       `db:"user_id" json:"user_id"`
	AgencyID            *uuid.UUID      `db:"agency_id" json:"agency_id"`
	AffiliationType     AffiliationType `db:"affiliation_type" json:"affiliation_type"`
	CompanyName         string          `db:"company_name" json:"company_name"`
	PreviousCompanyName *string         `db:"previous_company_name" json:"previous_company_name,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}
