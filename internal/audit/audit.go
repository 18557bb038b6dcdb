package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventUserSignup           = "user.signup"
	EventPasswordReset        = "auth.password_reset"
	EventAgencyCreated        = "agency.created"
	EventBrokerCreated        = "broker.profile_created"
	EventOfferCreated         = "affiliation.offer_created"
	EventOfferResponded       = "affiliation.offer_responded"
	EventOfferWithdrawn       = "affiliation.offer_withdrawn"
	EventJoinRequestCreated   = "affiliation.join_request_created"
	EventJoinRequestDecided   = "affiliation.join_request_decided"
	EventJoinRequestWithdrawn = "affiliation.join_request_withdrawn"
	EventInviteCreated        = "affiliation.invite_created"
	EventInviteAccepted       = "affiliation.invite_accepted"
	EventBrokerRemoved        = "affiliation.broker_removed"
	EventAutoMatched          = "affiliation.auto_matched"
)

// Event represents an audit log entry.
type Event struct {
	ID          uuid.UUID              `db:"id"`
	AgencyID    uuid.NullUUID          `db:"agency_id"`
	BrokerID    uuid.NullUUID          `db:"broker_id"`
	ActorUserID uuid.NullUUID          `db:"actor_user_id"`
	Action      string                 `db:"action"`
	Meta        map[string]interface{} `db:"meta"`
	CreatedAt   time.Time              `db:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	AgencyID    *uuid.UUID
	BrokerID    *uuid.UUID
	ActorUserID *uuid.UUID
	Action      string
	Meta        map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (agency_id, broker_id, actor_user_id, action, meta)
		VALUES ($1, $2, $3, $4, $5)
	`

	agencyID := toNullUUID(params.AgencyID)
	brokerID := toNullUUID(params.BrokerID)
	actorUserID := toNullUUID(params.ActorUserID)

	_, err := w.pool.Exec(ctx, query, agencyID, brokerID, actorUserID, params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit event")
		return err
	}

	return nil
}

// LogUserSignup records a new account registration.
func (w *Writer) LogUserSignup(ctx context.Context, userID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorUserID: &userID,
		Action:      EventUserSignup,
		Meta:        map[string]interface{}{"email": email},
	})
}

// LogProposal records a proposal lifecycle event (created, responded,
// decided, withdrawn) against its agency/broker pair.
func (w *Writer) LogProposal(ctx context.Context, action string, agencyID, brokerID, actorUserID uuid.UUID, meta map[string]interface{}) error {
	return w.Log(ctx, LogParams{
		AgencyID:    &agencyID,
		BrokerID:    &brokerID,
		ActorUserID: &actorUserID,
		Action:      action,
		Meta:        meta,
	})
}

// LogInviteCreated records an email invite issued by an agency.
func (w *Writer) LogInviteCreated(ctx context.Context, agencyID, actorUserID, inviteID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		AgencyID:    &agencyID,
		ActorUserID: &actorUserID,
		Action:      EventInviteCreated,
		Meta:        map[string]interface{}{"invite_id": inviteID, "email": email},
	})
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
