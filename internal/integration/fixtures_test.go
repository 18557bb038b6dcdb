package integration

import (
	"context"
	"testing"

	"github.com/brokerhub/brokerhub/internal/directory"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// createUser inserts an account directly. Tests never log in through the
// HTTP layer, so a placeholder password hash is enough.
func createUser(t *testing.T, pool *pgxpool.Pool, email string) uuid.UUID {
	t.Helper()

	var userID uuid.UUID
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (email, password_hash)
		VALUES ($1, 'test-hash')
		RETURNING id
	`, email).Scan(&userID)
	require.NoError(t, err)

	return userID
}

// createAgency provisions an owner account and their agency.
func createAgency(t *testing.T, pool *pgxpool.Pool, name, ownerEmail string) (ownerUserID uuid.UUID, agency *directory.Agency) {
	t.Helper()

	ownerUserID = createUser(t, pool, ownerEmail)

	agency, err := directory.NewService(pool).CreateAgency(context.Background(), ownerUserID, name)
	require.NoError(t, err)

	return ownerUserID, agency
}

// createBroker provisions a broker account and their unaffiliated profile.
func createBroker(t *testing.T, pool *pgxpool.Pool, email, companyName string) (userID uuid.UUID, broker *directory.BrokerProfile) {
	t.Helper()

	userID = createUser(t, pool, email)

	broker, err := directory.NewService(pool).CreateBrokerProfile(context.Background(), userID, companyName)
	require.NoError(t, err)

	return userID, broker
}

// brokerAgency reads the broker's current affiliation directly.
func brokerAgency(t *testing.T, pool *pgxpool.Pool, brokerID uuid.UUID) *uuid.UUID {
	t.Helper()

	var agencyID *uuid.UUID
	err := pool.QueryRow(context.Background(), `
		SELECT agency_id FROM broker_profiles WHERE id = $1
	`, brokerID).Scan(&agencyID)
	require.NoError(t, err)

	return agencyID
}

// forceOfferExpiry backdates an offer's deadline.
func forceOfferExpiry(t *testing.T, pool *pgxpool.Pool, offerID uuid.UUID) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		UPDATE recruitment_offers
		SET expires_at = NOW() - INTERVAL '1 hour'
		WHERE id = $1
	`, offerID)
	require.NoError(t, err)
}

// forceInviteExpiry backdates an invite's deadline.
func forceInviteExpiry(t *testing.T, pool *pgxpool.Pool, inviteID uuid.UUID) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		UPDATE agency_invites
		SET expires_at = NOW() - INTERVAL '1 hour'
		WHERE id = $1
	`, inviteID)
	require.NoError(t, err)
}
