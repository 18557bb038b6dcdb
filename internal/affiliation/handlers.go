package affiliation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/brokerhub/brokerhub/internal/apperrors"
	"github.com/brokerhub/brokerhub/internal/audit"
	"github.com/brokerhub/brokerhub/internal/auth"
	"github.com/brokerhub/brokerhub/internal/notify"
	"github.com/brokerhub/brokerhub/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// writeEngineError maps the matching-engine error taxonomy onto HTTP codes.
// Unknown errors are logged and surfaced as 500 with the fallback message.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrAgencyNotFound),
		errors.Is(err, ErrBrokerNotFound),
		errors.Is(err, ErrProposalNotFound):
		apperrors.WriteNotFound(w, r, err.Error())
	case errors.Is(err, ErrNotAgencyOwner),
		errors.Is(err, ErrNotProposalOwner),
		errors.Is(err, ErrInviteEmailMismatch):
		apperrors.WriteForbidden(w, r, err.Error())
	case errors.Is(err, ErrAlreadyAffiliated),
		errors.Is(err, ErrNotAffiliated),
		errors.Is(err, ErrOwnerNotRecruitable),
		errors.Is(err, ErrDuplicateOffer),
		errors.Is(err, ErrDuplicateJoinRequest),
		errors.Is(err, ErrProposalDecided):
		apperrors.WriteConflict(w, r, err.Error())
	case errors.Is(err, ErrOfferExpired),
		errors.Is(err, ErrInviteExpired):
		apperrors.WriteGone(w, r, err.Error())
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}

type OfferCreateRequest struct {
	BrokerID uuid.UUID `json:"broker_id"`
	Message  string    `json:"message"`
}

// HandleCreateOffer handles POST /api/v1/agencies/{agency_id}/offers
func HandleCreateOffer(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		var req OfferCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.BrokerID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "Broker ID is required")
			return
		}

		message, err := validation.NormalizeMessage(req.Message)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		result, err := service.CreateRecruitmentOffer(ctx, userID, agencyID, req.BrokerID, message)
		if err != nil {
			writeEngineError(w, r, err, "Failed to create recruitment offer")
			return
		}

		if result.AutoApproved {
			if err := auditor.LogProposal(ctx, audit.EventAutoMatched, agencyID, req.BrokerID, userID,
				map[string]interface{}{"join_request_id": result.JoinRequest.ID}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			notifier.Emit(ctx, notify.EventAutoMatched, agencyID, &req.BrokerID, "")
		} else {
			if err := auditor.LogProposal(ctx, audit.EventOfferCreated, agencyID, req.BrokerID, userID,
				map[string]interface{}{"offer_id": result.Offer.ID}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			notifier.Emit(ctx, notify.EventOfferCreated, agencyID, &req.BrokerID, "")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, result)
	}
}

type JoinRequestCreateRequest struct {
	Message string `json:"message"`
}

// HandleCreateJoinRequest handles POST /api/v1/agencies/{agency_id}/join-requests
func HandleCreateJoinRequest(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		var req JoinRequestCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		message, err := validation.NormalizeMessage(req.Message)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		result, err := service.CreateJoinRequest(ctx, userID, agencyID, message)
		if err != nil {
			writeEngineError(w, r, err, "Failed to create join request")
			return
		}

		if result.AutoAccepted {
			if err := auditor.LogProposal(ctx, audit.EventAutoMatched, agencyID, result.Offer.BrokerID, userID,
				map[string]interface{}{"offer_id": result.Offer.ID}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			notifier.Emit(ctx, notify.EventAutoMatched, agencyID, &result.Offer.BrokerID, "")
		} else {
			if err := auditor.LogProposal(ctx, audit.EventJoinRequestCreated, agencyID, result.Request.BrokerID, userID,
				map[string]interface{}{"request_id": result.Request.ID}); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			notifier.Emit(ctx, notify.EventJoinRequestCreated, agencyID, &result.Request.BrokerID, "")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, result)
	}
}

type OfferRespondRequest struct {
	Accept bool `json:"accept"`
}

// HandleRespondToOffer handles POST /api/v1/offers/{offer_id}/respond
func HandleRespondToOffer(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		offerID, err := uuid.Parse(chi.URLParam(r, "offer_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid offer ID")
			return
		}

		var req OfferRespondRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(pool)
		offer, err := service.RespondToOffer(ctx, userID, offerID, req.Accept)
		if err != nil {
			writeEngineError(w, r, err, "Failed to respond to offer")
			return
		}

		if err := auditor.LogProposal(ctx, audit.EventOfferResponded, offer.AgencyID, offer.BrokerID, userID,
			map[string]interface{}{"offer_id": offer.ID, "status": offer.Status}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		event := notify.EventOfferDeclined
		if req.Accept {
			event = notify.EventOfferAccepted
		}
		notifier.Emit(ctx, event, offer.AgencyID, &offer.BrokerID, "")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"offer": offer,
		})
	}
}

type JoinRequestDecideRequest struct {
	Approve bool `json:"approve"`
}

// HandleDecideJoinRequest handles POST /api/v1/join-requests/{request_id}/decide
func HandleDecideJoinRequest(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		requestID, err := uuid.Parse(chi.URLParam(r, "request_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid join request ID")
			return
		}

		var req JoinRequestDecideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		service := NewService(pool)
		request, err := service.DecideJoinRequest(ctx, userID, requestID, req.Approve)
		if err != nil {
			writeEngineError(w, r, err, "Failed to decide join request")
			return
		}

		if err := auditor.LogProposal(ctx, audit.EventJoinRequestDecided, request.AgencyID, request.BrokerID, userID,
			map[string]interface{}{"request_id": request.ID, "status": request.Status}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
		notifier.Emit(ctx, notify.EventJoinRequestDecided, request.AgencyID, &request.BrokerID, "")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"request": request,
		})
	}
}

// HandleWithdrawOffer handles DELETE /api/v1/offers/{offer_id}
func HandleWithdrawOffer(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		offerID, err := uuid.Parse(chi.URLParam(r, "offer_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid offer ID")
			return
		}

		service := NewService(pool)
		if err := service.WithdrawOffer(ctx, userID, offerID); err != nil {
			writeEngineError(w, r, err, "Failed to withdraw offer")
			return
		}

		if err := auditor.Log(ctx, audit.LogParams{
			ActorUserID: &userID,
			Action:      audit.EventOfferWithdrawn,
			Meta:        map[string]interface{}{"offer_id": offerID},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"withdrawn": true,
		})
	}
}

// HandleWithdrawJoinRequest handles DELETE /api/v1/join-requests/{request_id}
func HandleWithdrawJoinRequest(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		requestID, err := uuid.Parse(chi.URLParam(r, "request_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid join request ID")
			return
		}

		service := NewService(pool)
		if err := service.WithdrawJoinRequest(ctx, userID, requestID); err != nil {
			writeEngineError(w, r, err, "Failed to withdraw join request")
			return
		}

		if err := auditor.Log(ctx, audit.LogParams{
			ActorUserID: &userID,
			Action:      audit.EventJoinRequestWithdrawn,
			Meta:        map[string]interface{}{"request_id": requestID},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"withdrawn": true,
		})
	}
}

type InviteCreateRequest struct {
	Email string `json:"email"`
}

type InviteCreateResponse struct {
	Invite *Invite `json:"invite"`
	Code   string  `json:"code"`
}

// HandleCreateInvite handles POST /api/v1/agencies/{agency_id}/invites
func HandleCreateInvite(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		var req InviteCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		invite, code, err := service.CreateInvite(ctx, userID, agencyID, email)
		if err != nil {
			writeEngineError(w, r, err, "Failed to create invite")
			return
		}

		if err := auditor.LogInviteCreated(ctx, agencyID, userID, invite.ID, email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
		notifier.Emit(ctx, notify.EventInviteCreated, agencyID, nil, email)

		apperrors.WriteSuccess(w, r, http.StatusCreated, InviteCreateResponse{
			Invite: invite,
			Code:   code,
		})
	}
}

type InviteAcceptRequest struct {
	Code string `json:"code"`
}

// HandleAcceptInvite handles POST /api/v1/invites/accept
func HandleAcceptInvite(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req InviteAcceptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Code = strings.TrimSpace(req.Code)
		if req.Code == "" {
			apperrors.WriteBadRequest(w, r, "Invite code is required")
			return
		}

		service := NewService(pool)
		invite, err := service.AcceptInvite(ctx, userID, req.Code)
		if err != nil {
			writeEngineError(w, r, err, "Failed to accept invite")
			return
		}

		if err := auditor.Log(ctx, audit.LogParams{
			AgencyID:    &invite.AgencyID,
			ActorUserID: &userID,
			Action:      audit.EventInviteAccepted,
			Meta:        map[string]interface{}{"invite_id": invite.ID},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
		notifier.Emit(ctx, notify.EventInviteAccepted, invite.AgencyID, nil, invite.Email)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invite": invite,
		})
	}
}

// HandleRemoveBroker handles DELETE /api/v1/agencies/{agency_id}/brokers/{broker_id}
func HandleRemoveBroker(pool *pgxpool.Pool, auditor *audit.Writer, notifier *notify.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		brokerID, err := uuid.Parse(chi.URLParam(r, "broker_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid broker ID")
			return
		}

		service := NewService(pool)
		if err := service.RemoveBrokerFromAgency(ctx, userID, agencyID, brokerID); err != nil {
			writeEngineError(w, r, err, "Failed to remove broker from agency")
			return
		}

		if err := auditor.LogProposal(ctx, audit.EventBrokerRemoved, agencyID, brokerID, userID, nil); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
		notifier.Emit(ctx, notify.EventBrokerRemoved, agencyID, &brokerID, "")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}

// HandleListAgencyOffers handles GET /api/v1/agencies/{agency_id}/offers
func HandleListAgencyOffers(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		service := NewService(pool)
		offers, err := service.ListAgencyOffers(ctx, userID, agencyID)
		if err != nil {
			writeEngineError(w, r, err, "Failed to list offers")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"offers": offers,
		})
	}
}

// HandleListAgencyJoinRequests handles GET /api/v1/agencies/{agency_id}/join-requests
func HandleListAgencyJoinRequests(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		service := NewService(pool)
		requests, err := service.ListAgencyJoinRequests(ctx, userID, agencyID)
		if err != nil {
			writeEngineError(w, r, err, "Failed to list join requests")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"requests": requests,
		})
	}
}

// HandleListInvites handles GET /api/v1/agencies/{agency_id}/invites
func HandleListInvites(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		service := NewService(pool)
		invites, err := service.ListInvites(ctx, userID, agencyID)
		if err != nil {
			writeEngineError(w, r, err, "Failed to list invites")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": invites,
		})
	}
}

// HandleListBrokerOffers handles GET /api/v1/brokers/me/offers
func HandleListBrokerOffers(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		offers, err := service.ListBrokerOffers(ctx, userID)
		if err != nil {
			writeEngineError(w, r, err, "Failed to list offers")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"offers": offers,
		})
	}
}

// HandleListBrokerJoinRequests handles GET /api/v1/brokers/me/join-requests
func HandleListBrokerJoinRequests(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		requests, err := service.ListBrokerJoinRequests(ctx, userID)
		if err != nil {
			writeEngineError(w, r, err, "Failed to list join requests")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"requests": requests,
		})
	}
}
