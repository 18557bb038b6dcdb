package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/brokerhub/brokerhub/internal/affiliation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOffer_AcceptAffiliatesAndCascades(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	ownerA, agencyA := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	ownerB, agencyB := createAgency(t, pool, "Beta Realty", "beta@example.com")
	_, agencyC := createAgency(t, pool, "Gamma Realty", "gamma@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	resultA, err := svc.CreateRecruitmentOffer(ctx, ownerA, agencyA.ID, broker.ID, nil)
	require.NoError(t, err)
	require.False(t, resultA.AutoApproved)
	require.Equal(t, affiliation.OfferPending, resultA.Offer.Status)

	resultB, err := svc.CreateRecruitmentOffer(ctx, ownerB, agencyB.ID, broker.ID, nil)
	require.NoError(t, err)

	reqC, err := svc.CreateJoinRequest(ctx, brokerUser, agencyC.ID, nil)
	require.NoError(t, err)
	require.False(t, reqC.AutoAccepted)

	accepted, err := svc.RespondToOffer(ctx, brokerUser, resultA.Offer.ID, true)
	require.NoError(t, err)
	require.Equal(t, affiliation.OfferAccepted, accepted.Status)
	require.NotNil(t, accepted.DecidedAt)

	agencyID := brokerAgency(t, pool, broker.ID)
	require.NotNil(t, agencyID)
	require.Equal(t, agencyA.ID, *agencyID)

	// Acceptance closes every other pending proposal touching the broker.
	var offerBStatus string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM recruitment_offers WHERE id = $1
	`, resultB.Offer.ID).Scan(&offerBStatus))
	require.Equal(t, "DECLINED", offerBStatus)

	var reqCStatus string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM agency_join_requests WHERE id = $1
	`, reqC.Request.ID).Scan(&reqCStatus))
	require.Equal(t, "REJECTED", reqCStatus)
}

func TestOffer_DeclineLeavesBrokerFree(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	result, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)

	declined, err := svc.RespondToOffer(ctx, brokerUser, result.Offer.ID, false)
	require.NoError(t, err)
	require.Equal(t, affiliation.OfferDeclined, declined.Status)
	require.Nil(t, brokerAgency(t, pool, broker.ID))

	// A declined offer does not block a fresh one for the same pair.
	again, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	require.Equal(t, affiliation.OfferPending, again.Offer.Status)
}

func TestOffer_DuplicatePendingRejected(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	_, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	_, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)

	_, err = svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.ErrorIs(t, err, affiliation.ErrDuplicateOffer)
}

func TestOffer_AffiliatedBrokerNotRecruitable(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	ownerA, agencyA := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	ownerB, agencyB := createAgency(t, pool, "Beta Realty", "beta@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	result, err := svc.CreateRecruitmentOffer(ctx, ownerA, agencyA.ID, broker.ID, nil)
	require.NoError(t, err)
	_, err = svc.RespondToOffer(ctx, brokerUser, result.Offer.ID, true)
	require.NoError(t, err)

	_, err = svc.CreateRecruitmentOffer(ctx, ownerB, agencyB.ID, broker.ID, nil)
	require.ErrorIs(t, err, affiliation.ErrAlreadyAffiliated)
}

func TestOffer_AgencyOwnerNotRecruitable(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	targetUser, target := createBroker(t, pool, "target@example.com", "Target Brokerage")

	// Seed a legacy state where a broker account also owns an agency; the
	// engine still refuses to recruit them.
	_, err := pool.Exec(ctx, `
		INSERT INTO agencies (name, owner_user_id) VALUES ('Side Agency', $1)
	`, targetUser)
	require.NoError(t, err)

	_, err = svc.CreateRecruitmentOffer(ctx, owner, agency.ID, target.ID, nil)
	require.ErrorIs(t, err, affiliation.ErrOwnerNotRecruitable)
}

func TestOffer_OnlyOwnerCreatesAndWithdraws(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	intruder := createUser(t, pool, "intruder@example.com")
	_, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	_, err := svc.CreateRecruitmentOffer(ctx, intruder, agency.ID, broker.ID, nil)
	require.ErrorIs(t, err, affiliation.ErrNotAgencyOwner)

	result, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)

	err = svc.WithdrawOffer(ctx, intruder, result.Offer.ID)
	require.ErrorIs(t, err, affiliation.ErrNotAgencyOwner)

	err = svc.WithdrawOffer(ctx, owner, result.Offer.ID)
	require.NoError(t, err)

	// The withdrawn offer is gone entirely.
	err = svc.WithdrawOffer(ctx, owner, result.Offer.ID)
	require.ErrorIs(t, err, affiliation.ErrProposalNotFound)
}

func TestOffer_RespondByWrongBroker(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	_, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")
	otherUser, _ := createBroker(t, pool, "other@example.com", "Other Brokerage")

	result, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)

	_, err = svc.RespondToOffer(ctx, otherUser, result.Offer.ID, true)
	require.ErrorIs(t, err, affiliation.ErrNotProposalOwner)
}

func TestOffer_ExpiryPersistsAndIsIdempotent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	result, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	forceOfferExpiry(t, pool, result.Offer.ID)

	// Use-time expiry fails the call but commits the transition.
	_, err = svc.RespondToOffer(ctx, brokerUser, result.Offer.ID, true)
	require.ErrorIs(t, err, affiliation.ErrOfferExpired)

	var status string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM recruitment_offers WHERE id = $1
	`, result.Offer.ID).Scan(&status))
	require.Equal(t, "EXPIRED", status)
	require.Nil(t, brokerAgency(t, pool, broker.ID))

	// Repeat attempts see the same error, not a double transition.
	_, err = svc.RespondToOffer(ctx, brokerUser, result.Offer.ID, true)
	require.ErrorIs(t, err, affiliation.ErrOfferExpired)

	// An expired offer does not block a fresh one for the same pair.
	again, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	require.Equal(t, affiliation.OfferPending, again.Offer.Status)
}

func TestOffer_ListSweepsExpired(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	_, brokerA := createBroker(t, pool, "a@example.com", "A Brokerage")
	_, brokerB := createBroker(t, pool, "b@example.com", "B Brokerage")

	stale, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, brokerA.ID, nil)
	require.NoError(t, err)
	_, err = svc.CreateRecruitmentOffer(ctx, owner, agency.ID, brokerB.ID, nil)
	require.NoError(t, err)
	forceOfferExpiry(t, pool, stale.Offer.ID)

	offers, err := svc.ListAgencyOffers(ctx, owner, agency.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, brokerB.ID, offers[0].BrokerID)

	var status string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM recruitment_offers WHERE id = $1
	`, stale.Offer.ID).Scan(&status))
	require.Equal(t, "EXPIRED", status)
}

func TestJoinRequest_ApproveAffiliates(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	msg := "I'd like to join"
	result, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, &msg)
	require.NoError(t, err)
	require.False(t, result.AutoAccepted)
	require.Equal(t, affiliation.JoinRequestPending, result.Request.Status)

	approved, err := svc.DecideJoinRequest(ctx, owner, result.Request.ID, true)
	require.NoError(t, err)
	require.Equal(t, affiliation.JoinRequestApproved, approved.Status)
	require.NotNil(t, approved.DecidedAt)

	agencyID := brokerAgency(t, pool, broker.ID)
	require.NotNil(t, agencyID)
	require.Equal(t, agency.ID, *agencyID)
}

func TestJoinRequest_RejectLeavesBrokerFree(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	result, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)

	rejected, err := svc.DecideJoinRequest(ctx, owner, result.Request.ID, false)
	require.NoError(t, err)
	require.Equal(t, affiliation.JoinRequestRejected, rejected.Status)
	require.Nil(t, brokerAgency(t, pool, broker.ID))

	// A rejected request does not block asking again.
	again, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)
	require.Equal(t, affiliation.JoinRequestPending, again.Request.Status)
}

func TestJoinRequest_DuplicatePendingRejected(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	_, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, _ := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	_, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)

	_, err = svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.ErrorIs(t, err, affiliation.ErrDuplicateJoinRequest)
}

func TestJoinRequest_AffiliatedBrokerConflict(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	ownerA, agencyA := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	_, agencyB := createAgency(t, pool, "Beta Realty", "beta@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	offer, err := svc.CreateRecruitmentOffer(ctx, ownerA, agencyA.ID, broker.ID, nil)
	require.NoError(t, err)
	_, err = svc.RespondToOffer(ctx, brokerUser, offer.Offer.ID, true)
	require.NoError(t, err)

	// An affiliated broker cannot ask to join another agency, or even
	// re-request their current one.
	_, err = svc.CreateJoinRequest(ctx, brokerUser, agencyB.ID, nil)
	require.ErrorIs(t, err, affiliation.ErrAlreadyAffiliated)

	_, err = svc.CreateJoinRequest(ctx, brokerUser, agencyA.ID, nil)
	require.ErrorIs(t, err, affiliation.ErrAlreadyAffiliated)
}

func TestJoinRequest_ApprovalDoesNotCascade(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	ownerA, agencyA := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	ownerB, agencyB := createAgency(t, pool, "Beta Realty", "beta@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	offerB, err := svc.CreateRecruitmentOffer(ctx, ownerB, agencyB.ID, broker.ID, nil)
	require.NoError(t, err)

	request, err := svc.CreateJoinRequest(ctx, brokerUser, agencyA.ID, nil)
	require.NoError(t, err)

	_, err = svc.DecideJoinRequest(ctx, ownerA, request.Request.ID, true)
	require.NoError(t, err)

	// The competing offer stays pending; it just can no longer be accepted.
	var status string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT status FROM recruitment_offers WHERE id = $1
	`, offerB.Offer.ID).Scan(&status))
	require.Equal(t, "PENDING", status)

	_, err = svc.RespondToOffer(ctx, brokerUser, offerB.Offer.ID, true)
	require.ErrorIs(t, err, affiliation.ErrAlreadyAffiliated)
}

func TestJoinRequest_WithdrawAndAuthz(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, _ := createBroker(t, pool, "broker@example.com", "Solo Brokerage")
	otherUser, _ := createBroker(t, pool, "other@example.com", "Other Brokerage")

	result, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)

	err = svc.WithdrawJoinRequest(ctx, otherUser, result.Request.ID)
	require.ErrorIs(t, err, affiliation.ErrNotProposalOwner)

	_, err = svc.DecideJoinRequest(ctx, brokerUser, result.Request.ID, true)
	require.ErrorIs(t, err, affiliation.ErrNotAgencyOwner)

	err = svc.WithdrawJoinRequest(ctx, brokerUser, result.Request.ID)
	require.NoError(t, err)

	_, err = svc.DecideJoinRequest(ctx, owner, result.Request.ID, true)
	require.ErrorIs(t, err, affiliation.ErrProposalNotFound)
}

func TestAutoMatch_OfferFindsPendingJoinRequest(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	request, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)

	result, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	require.True(t, result.AutoApproved)
	require.Nil(t, result.Offer)
	require.Equal(t, request.Request.ID, result.JoinRequest.ID)
	require.Equal(t, affiliation.JoinRequestApproved, result.JoinRequest.Status)

	agencyID := brokerAgency(t, pool, broker.ID)
	require.NotNil(t, agencyID)
	require.Equal(t, agency.ID, *agencyID)

	// No offer row was created.
	var count int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM recruitment_offers WHERE agency_id = $1 AND broker_id = $2
	`, agency.ID, broker.ID).Scan(&count))
	require.Zero(t, count)
}

func TestAutoMatch_JoinRequestFindsPendingOffer(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	offer, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)

	result, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)
	require.True(t, result.AutoAccepted)
	require.Nil(t, result.Request)
	require.Equal(t, offer.Offer.ID, result.Offer.ID)
	require.Equal(t, affiliation.OfferAccepted, result.Offer.Status)

	agencyID := brokerAgency(t, pool, broker.ID)
	require.NotNil(t, agencyID)
	require.Equal(t, agency.ID, *agencyID)
}

func TestAutoMatch_IgnoresExpiredCounterpart(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	offer, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	forceOfferExpiry(t, pool, offer.Offer.ID)

	result, err := svc.CreateJoinRequest(ctx, brokerUser, agency.ID, nil)
	require.NoError(t, err)
	require.False(t, result.AutoAccepted)
	require.Equal(t, affiliation.JoinRequestPending, result.Request.Status)
	require.Nil(t, brokerAgency(t, pool, broker.ID))
}

func TestRemoveBroker_RestoresCompanyName(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	owner, agency := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	offer, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	_, err = svc.RespondToOffer(ctx, brokerUser, offer.Offer.ID, true)
	require.NoError(t, err)

	err = svc.RemoveBrokerFromAgency(ctx, owner, agency.ID, broker.ID)
	require.NoError(t, err)

	var companyName, affiliationType string
	var agencyID *uuid.UUID
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT company_name, affiliation_type, agency_id
		FROM broker_profiles WHERE id = $1
	`, broker.ID).Scan(&companyName, &affiliationType, &agencyID))
	require.Equal(t, "Solo Brokerage", companyName)
	require.Equal(t, "INDIVIDUAL", affiliationType)
	require.Nil(t, agencyID)

	// Removal is not idempotent; the broker is no longer affiliated here.
	err = svc.RemoveBrokerFromAgency(ctx, owner, agency.ID, broker.ID)
	require.ErrorIs(t, err, affiliation.ErrNotAffiliated)

	// The broker is recruitable again.
	again, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
	require.NoError(t, err)
	_, err = svc.RespondToOffer(ctx, brokerUser, again.Offer.ID, true)
	require.NoError(t, err)
}

func TestConcurrentAcceptance_SingleWinner(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	const agencies = 4
	offerIDs := make([]uuid.UUID, agencies)
	emails := []string{"a1@example.com", "a2@example.com", "a3@example.com", "a4@example.com"}
	for i := 0; i < agencies; i++ {
		owner, agency := createAgency(t, pool, "Agency", emails[i])
		result, err := svc.CreateRecruitmentOffer(ctx, owner, agency.ID, broker.ID, nil)
		require.NoError(t, err)
		offerIDs[i] = result.Offer.ID
	}

	var wg sync.WaitGroup
	results := make([]error, agencies)
	for i := 0; i < agencies; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.RespondToOffer(ctx, brokerUser, offerIDs[i], true)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		// Losers see either the affiliation guard or the cascade's decline.
		require.True(t,
			err == affiliation.ErrAlreadyAffiliated || err == affiliation.ErrProposalDecided,
			"unexpected loser error: %v", err)
	}
	require.Equal(t, 1, wins)

	require.NotNil(t, brokerAgency(t, pool, broker.ID))

	var acceptedCount int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM recruitment_offers WHERE broker_id = $1 AND status = 'ACCEPTED'
	`, broker.ID).Scan(&acceptedCount))
	require.Equal(t, 1, acceptedCount)

	var pendingCount int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM recruitment_offers WHERE broker_id = $1 AND status = 'PENDING'
	`, broker.ID).Scan(&pendingCount))
	require.Zero(t, pendingCount)
}

func TestConcurrentApproval_SingleWinner(t *testing.T) {
	pool, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()
	svc := affiliation.NewService(pool)

	ownerA, agencyA := createAgency(t, pool, "Alpha Realty", "alpha@example.com")
	ownerB, agencyB := createAgency(t, pool, "Beta Realty", "beta@example.com")
	brokerUser, broker := createBroker(t, pool, "broker@example.com", "Solo Brokerage")

	reqA, err := svc.CreateJoinRequest(ctx, brokerUser, agencyA.ID, nil)
	require.NoError(t, err)
	reqB, err := svc.CreateJoinRequest(ctx, brokerUser, agencyB.ID, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.DecideJoinRequest(ctx, ownerA, reqA.Request.ID, true)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.DecideJoinRequest(ctx, ownerB, reqB.Request.ID, true)
	}()
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, affiliation.ErrAlreadyAffiliated)
		}
	}
	require.Equal(t, 1, wins)
	require.NotNil(t, brokerAgency(t, pool, broker.ID))
}
