package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event names emitted to the notification webhook.
const (
	EventOfferCreated       = "affiliation.offer_created"
	EventOfferAccepted      = "affiliation.offer_accepted"
	EventOfferDeclined      = "affiliation.offer_declined"
	EventJoinRequestCreated = "affiliation.join_request_created"
	EventJoinRequestDecided = "affiliation.join_request_decided"
	EventInviteCreated      = "affiliation.invite_created"
	EventInviteAccepted     = "affiliation.invite_accepted"
	EventBrokerRemoved      = "affiliation.broker_removed"
	EventAutoMatched        = "affiliation.auto_matched"
)

// Client delivers affiliation events to an external notification webhook.
// Delivery is fire-and-forget: methods never return errors and all
// failures are logged at WARN so callers are unaffected.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

// NewClient creates a notification client. An empty webhook URL disables
// delivery; events are silently dropped.
func NewClient(webhookURL string, timeoutMS int) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
	}
}

type payload struct {
	Event    string     `json:"event"`
	AgencyID uuid.UUID  `json:"agency_id"`
	BrokerID *uuid.UUID `json:"broker_id,omitempty"`
	Email    string     `json:"email,omitempty"`
}

// Emit posts a single affiliation event to the webhook.
func (c *Client) Emit(ctx context.Context, event string, agencyID uuid.UUID, brokerID *uuid.UUID, email string) {
	if c.webhookURL == "" {
		return
	}

	body, err := json.Marshal(payload{
		Event:    event,
		AgencyID: agencyID,
		BrokerID: brokerID,
		Email:    email,
	})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to marshal notification payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to create notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("Failed to deliver notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("event", event).
			Msg("Notification webhook returned error status")
		return
	}

	log.Debug().
		Str("event", event).
		Str("agency_id", agencyID.String()).
		Msg("Notification delivered")
}
