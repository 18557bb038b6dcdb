package directory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/brokerhub/brokerhub/internal/apperrors"
	"github.com/brokerhub/brokerhub/internal/audit"
	"github.com/brokerhub/brokerhub/internal/auth"
	"github.com/brokerhub/brokerhub/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type AgencyCreateRequest struct {
	Name string `json:"name"`
}

type BrokerCreateRequest struct {
	CompanyName string `json:"company_name"`
}

// HandleCreateAgency handles POST /api/v1/agencies
func HandleCreateAgency(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req AgencyCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "Agency name is required")
			return
		}
		if len(req.Name) > 200 {
			apperrors.WriteBadRequest(w, r, "Agency name must be at most 200 characters")
			return
		}

		service := NewService(pool)
		agency, err := service.CreateAgency(ctx, userID, req.Name)
		if err != nil {
			if errors.Is(err, ErrAlreadyAgencyOwner) || errors.Is(err, ErrRoleConflict) {
				apperrors.WriteConflict(w, r, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to create agency")
			apperrors.WriteInternalError(w, r, "Failed to create agency")
			return
		}

		if err := auditor.Log(ctx, audit.LogParams{
			AgencyID:    &agency.ID,
			ActorUserID: &userID,
			Action:      audit.EventAgencyCreated,
			Meta:        map[string]interface{}{"name": agency.Name},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"agency": agency,
		})
	}
}

// HandleGetAgency handles GET /api/v1/agencies/{agency_id}
func HandleGetAgency(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		service := NewService(pool)
		agency, err := service.GetAgency(r.Context(), agencyID)
		if err != nil {
			if errors.Is(err, ErrAgencyNotFound) {
				apperrors.WriteNotFound(w, r, "Agency not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get agency")
			apperrors.WriteInternalError(w, r, "Failed to get agency")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"agency": agency,
		})
	}
}

// HandleCreateBroker handles POST /api/v1/brokers
func HandleCreateBroker(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req BrokerCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		companyName, err := validation.NormalizeCompanyName(req.CompanyName)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		broker, err := service.CreateBrokerProfile(ctx, userID, companyName)
		if err != nil {
			if errors.Is(err, ErrAlreadyBroker) || errors.Is(err, ErrRoleConflict) {
				apperrors.WriteConflict(w, r, err.Error())
				return
			}
			log.Error().Err(err).Msg("Failed to create broker profile")
			apperrors.WriteInternalError(w, r, "Failed to create broker profile")
			return
		}

		if err := auditor.Log(ctx, audit.LogParams{
			BrokerID:    &broker.ID,
			ActorUserID: &userID,
			Action:      audit.EventBrokerCreated,
			Meta:        map[string]interface{}{"company_name": broker.CompanyName},
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"broker": broker,
		})
	}
}

// HandleGetOwnBroker handles GET /api/v1/brokers/me
func HandleGetOwnBroker(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		broker, err := service.GetBrokerByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrBrokerNotFound) {
				apperrors.WriteNotFound(w, r, "Broker profile not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get broker profile")
			apperrors.WriteInternalError(w, r, "Failed to get broker profile")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"broker": broker,
		})
	}
}

// HandleListAgencyBrokers handles GET /api/v1/agencies/{agency_id}/brokers
func HandleListAgencyBrokers(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agencyID, err := uuid.Parse(chi.URLParam(r, "agency_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid agency ID")
			return
		}

		service := NewService(pool)
		brokers, err := service.ListAgencyBrokers(r.Context(), agencyID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list agency brokers")
			apperrors.WriteInternalError(w, r, "Failed to list agency brokers")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"brokers": brokers,
		})
	}
}
