package affiliation

import (
	"time"

	"github.com/google/uuid"
)

const (
	// InviteTTL is how long an email invite stays open.
	InviteTTL = 7 * 24 * time.Hour

	// OfferTTL is how long a recruitment offer stays open.
	OfferTTL = 14 * 24 * time.Hour
)

// InviteStatus is the lifecycle state of an email invite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteExpired  InviteStatus = "EXPIRED"
)

// JoinRequestStatus is the lifecycle state of a broker-initiated join request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "PENDING"
	JoinRequestApproved JoinRequestStatus = "APPROVED"
	JoinRequestRejected JoinRequestStatus = "REJECTED"
)

// OfferStatus is the lifecycle state of an agency-initiated recruitment offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
	OfferDeclined OfferStatus = "DECLINED"
	OfferExpired  OfferStatus = "EXPIRED"
)

// Invite is an email invite from an agency. The target need not hold a
// broker profile yet; the code is the only credential.
type Invite struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	AgencyID   uuid.UUID    `db:"agency_id" json:"agency_id"`
	Email      string       `db:"email" json:"email"`
	Status     InviteStatus `db:"status" json:"status"`
	InvitedAt  time.Time    `db:"invited_at" json:"invited_at"`
	ExpiresAt  time.Time    `db:"expires_at" json:"expires_at"`
	AcceptedAt *time.Time   `db:"accepted_at" json:"accepted_at,omitempty"`
}

// JoinRequest is a broker-initiated request to join an agency.
// Join requests do not expire; they stay open until decided or withdrawn.
type JoinRequest struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	AgencyID  uuid.UUID         `db:"agency_id" json:"agency_id"`
	BrokerID  uuid.UUID         `db:"broker_id" json:"broker_id"`
	Message   *string           `db:"message" json:"message,omitempty"`
	Status    JoinRequestStatus `db:"status" json:"status"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	DecidedAt *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
}

// RecruitmentOffer is an agency-initiated offer to recruit a broker.
type RecruitmentOffer struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	AgencyID  uuid.UUID   `db:"agency_id" json:"agency_id"`
	BrokerID  uuid.UUID   `db:"broker_id" json:"broker_id"`
	Message   *string     `db:"message" json:"message,omitempty"`
	Status    OfferStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	ExpiresAt time.Time   `db:"expires_at" json:"expires_at"`
	DecidedAt *time.Time  `db:"decided_at" json:"decided_at,omitempty"`
}

// Expired reports whether the offer is past its deadline at the given time.
func (o *RecruitmentOffer) Expired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// Expired reports whether the invite is past its deadline at the given time.
func (i *Invite) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// CreateOfferResult is the outcome of CreateRecruitmentOffer. Exactly one
// branch is populated: either a new pending offer, or AutoApproved with the
// counterpart join request that was finalized instead.
type CreateOfferResult struct {
	Offer        *RecruitmentOffer `json:"offer,omitempty"`
	AutoApproved bool              `json:"auto_approved"`
	JoinRequest  *JoinRequest      `json:"join_request,omitempty"`
}

// CreateJoinRequestResult is the outcome of CreateJoinRequest. Either a new
// pending request, or AutoAccepted with the counterpart offer finalized.
type CreateJoinRequestResult struct {
	Request      *JoinRequest      `json:"request,omitempty"`
	AutoAccepted bool              `json:"auto_accepted"`
	Offer        *RecruitmentOffer `json:"offer,omitempty"`
}
