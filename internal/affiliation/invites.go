package affiliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const inviteColumns = `id, agency_id, email, status, invited_at, expires_at, accepted_at`

func scanInvite(row pgx.Row) (*Invite, error) {
	var invite Invite
	err := row.Scan(
		&invite.ID,
		&invite.AgencyID,
		&invite.Email,
		&invite.Status,
		&invite.InvitedAt,
		&invite.ExpiresAt,
		&invite.AcceptedAt,
	)
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

// CreateInvite issues an email invite for the agency. Any open invite for
// the same address is superseded (marked EXPIRED) so at most one code per
// (agency, email) is live. Returns the invite and the plaintext code.
func (s *Service) CreateInvite(ctx context.Context, actorUserID, agencyID uuid.UUID, email string) (*Invite, string, error) {
	if err := s.requireAgencyOwner(ctx, agencyID, actorUserID); err != nil {
		return nil, "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		UPDATE agency_invites
		SET status = 'EXPIRED'
		WHERE agency_id = $1
		  AND email = $2
		  AND status = 'PENDING'
	`, agencyID, email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to supersede existing invites: %w", err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		code, codeHash, err := GenerateInviteCode()
		if err != nil {
			return nil, "", err
		}

		expiresAt := time.Now().UTC().Add(InviteTTL)
		invite, err := scanInvite(tx.QueryRow(ctx, `
			INSERT INTO agency_invites (agency_id, email, code_hash, expires_at)
			VALUES ($1, $2, $3, $4)
			RETURNING `+inviteColumns,
			agencyID, email, codeHash, expiresAt))
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return nil, "", fmt.Errorf("failed to commit transaction: %w", err)
			}
			return invite, code, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Code hash collision (extremely unlikely); retry.
			continue
		}
		return nil, "", fmt.Errorf("failed to create invite: %w", err)
	}

	return nil, "", fmt.Errorf("failed to create invite: code collision retry exhausted")
}

// AcceptInvite redeems an invite code for the caller's broker profile,
// affiliating the broker with the inviting agency. An invite past its
// deadline is persisted as EXPIRED and the call fails with ErrInviteExpired.
func (s *Service) AcceptInvite(ctx context.Context, actorUserID uuid.UUID, code string) (*Invite, error) {
	if !ValidateInviteCodeFormat(code) {
		return nil, ErrProposalNotFound
	}
	codeHash := HashInviteCode(code)

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

	invite, err := scanInvite(tx.QueryRow(ctx, `
		SELECT `+inviteColumns+`
		FROM agency_invites
		WHERE code_hash = $1
		FOR UPDATE
	`, codeHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}

	switch invite.Status {
	case InvitePending:
	case InviteExpired:
		return nil, ErrInviteExpired
	default:
		return nil, ErrProposalDecided
	}

	if invite.Expired(time.Now().UTC()) {
		if _, err := tx.Exec(ctx, `
			UPDATE agency_invites SET status = 'EXPIRED' WHERE id = $1
		`, invite.ID); err != nil {
			return nil, fmt.Errorf("failed to expire invite: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil, ErrInviteExpired
	}

	var userEmail string
	err = tx.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, actorUserID).Scan(&userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !strings.EqualFold(userEmail, invite.Email) {
		return nil, ErrInviteEmailMismatch
	}

	if err := affiliateBroker(ctx, tx, brokerID, invite.AgencyID); err != nil {
		return nil, err
	}

	accepted, err := scanInvite(tx.QueryRow(ctx, `
		UPDATE agency_invites
		SET status = 'ACCEPTED', accepted_at = NOW()
		WHERE id = $1
		RETURNING `+inviteColumns,
		invite.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to mark invite accepted: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return accepted, nil
}

// ListInvites returns the agency's pending invites, sweeping expired ones
// first.
func (s *Service) ListInvites(ctx context.Context, actorUserID, agencyID uuid.UUID) ([]Invite, error) {
	if err := s.requireAgencyOwner(ctx, agencyID, actorUserID); err != nil {
		return nil, err
	}

	if _, err := sweepAgencyInvites(ctx, s.pool, agencyID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+inviteColumns+`
		FROM agency_invites
		WHERE agency_id = $1
		  AND status = 'PENDING'
		ORDER BY invited_at DESC
	`, agencyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []Invite
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, *invite)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invites: %w", err)
	}

	return invites, nil
}
