package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/brokerhub/brokerhub/internal/apperrors"
	"github.com/brokerhub/brokerhub/internal/audit"
	"github.com/brokerhub/brokerhub/internal/validation"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// SignupRequest represents the signup request payload
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupResponse represents the signup response
type SignupResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// HandleSignup processes user registration
func HandleSignup(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash password")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		var userID uuid.UUID
		err = pool.QueryRow(r.Context(), `
			INSERT INTO users (email, password_hash)
			VALUES ($1, $2)
			RETURNING id
		`, email, passwordHash).Scan(&userID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}

			log.Error().Err(err).Str("email", email).Msg("Failed to insert user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserSignup(r.Context(), userID, email); err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to log audit event")
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		SetSessionCookie(w, token, sessionDays, isProduction)

		log.Info().
			Str("user_id", userID.String()).
			Str("email", email).
			Msg("User signed up successfully")

		apperrors.WriteSuccess(w, r, http.StatusCreated, SignupResponse{
			UserID: userID,
			Email:  email,
		})
	}
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// HandleLogin processes user authentication
func HandleLogin(pool *pgxpool.Pool, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		var userID uuid.UUID
		var passwordHash string
		err := pool.QueryRow(r.Context(), `SELECT id, password_hash FROM users WHERE email = $1`, email).
			Scan(&userID, &passwordHash)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				log.Debug().Str("email", email).Msg("Login failed: user not found")
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
				return
			}
			log.Error().Err(err).Str("email", email).Msg("Failed to query user")
			apperrors.WriteInternalError(w, r, "Login failed")
			return
		}

		if err := VerifyPassword(passwordHash, req.Password); err != nil {
			log.Debug().Str("email", email).Msg("Login failed: wrong password")
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		token, err := CreateToken(userID, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		SetSessionCookie(w, token, sessionDays, isProduction)

		log.Info().
			Str("user_id", userID.String()).
			Str("email", email).
			Msg("User logged in successfully")

		apperrors.WriteSuccess(w, r, http.StatusOK, LoginResponse{
			UserID: userID,
			Email:  email,
		})
	}
}

// HandleLogout processes user logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)

	userID := GetUserID(r.Context())
	if userID != uuid.Nil {
		log.Info().Str("user_id", userID.String()).Msg("User logged out")
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"logged_out": true,
	})
}

// ResetRequestPayload represents the password reset request payload
type ResetRequestPayload struct {
	Email string `json:"email"`
}

// HandleResetRequest issues a password reset token. The response is the same
// whether or not the email matches an account.
func HandleResetRequest(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetRequestPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		token, err := IssueResetToken(r.Context(), pool, email)
		if err != nil {
			log.Error().Err(err).Msg("Failed to issue reset token")
			apperrors.WriteInternalError(w, r, "Failed to process reset request")
			return
		}

		if token != "" {
			// Delivery is the notification service's job; here we only log
			// that a token exists.
			log.Info().Str("email", email).Msg("Password reset token issued")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"requested": true,
		})
	}
}

// ResetConfirmPayload represents the password reset confirmation payload
type ResetConfirmPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// HandleResetConfirm consumes a reset token and sets the new password.
func HandleResetConfirm(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetConfirmPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}

		if err := ConsumeResetToken(r.Context(), pool, strings.TrimSpace(req.Token), req.Password); err != nil {
			switch {
			case errors.Is(err, ErrResetTokenNotFound):
				apperrors.WriteNotFound(w, r, "Reset token not found")
			case errors.Is(err, ErrResetTokenUsed):
				apperrors.WriteConflict(w, r, "Reset token already used")
			case errors.Is(err, ErrResetTokenExpired):
				apperrors.WriteGone(w, r, "Reset token expired")
			default:
				log.Error().Err(err).Msg("Failed to confirm password reset")
				apperrors.WriteInternalError(w, r, "Failed to reset password")
			}
			return
		}

		if err := auditor.Log(r.Context(), audit.LogParams{Action: audit.EventPasswordReset}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"reset": true,
		})
	}
}
