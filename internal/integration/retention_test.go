package integration

import (
	"context"
	"testing"

	"github.com/brokerhub/brokerhub/internal/affiliation"
	"github.com/brokerhub/brokerhub/internal/auth"
	"github.com/brokerhub/brokerhub/internal/retention"
	"github.com/stretchr/testify/require"
)

func TestRetentionJob_PurgesOldTerminalRows(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	// Declined offer, backdated beyond the retention window.
	declined, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	_, err = svc.RespondToOffer(ctx, brokerUser, declined.Offer.ID, false)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		UPDATE recruitment_offers SET created_at = NOW() - INTERVAL '400 days' WHERE id = $1
	`, declined.Offer.ID)
	require.NoError(t, err)

	// Fresh pending offer; must survive the purge.
	pending, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)

	// Rejected join request, backdated.
	request, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)
	_, err = svc.DecideJoinRequest(ctx, owner, request.Request.ID, false)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		UPDATE agency_join_requests SET created_at = NOW() - INTERVAL '400 days' WHERE id = $1
	`, request.Request.ID)
	require.NoError(t, err)

	// Expired invite, backdated.
	invite, _, err := svc.CreateInvite(ctx, owner, agency.ID, "stale@example.com")
	require.NoError(t, err)
	forceInviteExpiry(t, pool, invite.ID)
	_, err = pool.Exec(ctx, `
		UPDATE agency_invites SET invited_at = NOW() - INTERVAL '400 days' WHERE id = $1
	`, invite.ID)
	require.NoError(t, err)

	// Spent reset token.
	token, err := auth.IssueResetToken(ctx, pool, "broker@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NoError(t, auth.ConsumeResetToken(ctx, pool, token, "new-password-123"))

	require.NoError(t, retention.RunRetentionJob(ctx, pool, 180))

	var offers, requests, invites, tokens int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM recruitment_offers`).Scan(&offers))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM agency_join_requests`).Scan(&requests))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM agency_invites`).Scan(&invites))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM password_reset_tokens`).Scan(&tokens))

	require.Equal(t, 1, offers)
	require.Zero(t, requests)
	require.Zero(t, invites)
	require.Zero(t, tokens)

	var survivorStatus string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM recruitment_offers WHERE id = $1
	`, pending.Offer.ID).Scan(&survivorStatus))
	require.Equal(t, "PENDING", survivorStatus)

	// Idempotent.
	require.NoError(t, retention.RunRetentionJob(ctx, pool, 180))
}

func TestRetentionJob_SweepsExpiredPendingRows(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	_, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	offer, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	forceOfferExpiry(t, pool, offer.Offer.ID)

	invite, _, err := svc.CreateInvite(ctx, owner, agency.ID, "someone@example.com")
	require.NoError(t, err)
	forceInviteExpiry(t, pool, invite.ID)

	require.NoError(t, retention.RunRetentionJob(ctx, pool, 180))

	var offerStatus, inviteStatus string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM recruitment_offers WHERE id = $1
	`, offer.Offer.ID).Scan(&offerStatus))
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM agency_invites WHERE id = $1
	`, invite.ID).Scan(&inviteStatus))
	require.Equal(t, "EXPIRED", offerStatus)
	require.Equal(t, "EXPIRED", inviteStatus)
}
