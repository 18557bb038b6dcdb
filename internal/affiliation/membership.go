package affiliation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RemoveBrokerFromAgency detaches an affiliated broker from the caller's
// agency, restoring the company name snapshotted at affiliation time.
// Pending proposals elsewhere are untouched; the broker is free to accept
// them afterwards.
func (s *Service) RemoveBrokerFromAgency(ctx context.Context, actorUserID, agencyID, brokerID uuid.UUID) error {
	if err := s.requireAgencyOwner(ctx, agencyID, actorUserID); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	broker, err := lockBroker(ctx, tx, brokerID)
	if err != nil {
		return err
	}
	if broker.AgencyID == nil || *broker.AgencyID != agencyID {
		return ErrNotAffiliated
	}

	if err := unaffiliateBroker(ctx, tx, brokerID, agencyID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
