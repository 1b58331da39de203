package service

import (
	"context"

	"github.com/flexprice/planshift/internal/domain/audit"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/types"
)

// AuditService writes the billing history. The plan change engine only ever appends.
type AuditService interface {
	Append(ctx context.Context, record *audit.Record) error
	ListForSubscription(ctx context.Context, subscriptionRef string, limit int) ([]*audit.Record, error)
}

type auditService struct {
	ServiceParams
}

func NewAuditService(params ServiceParams) AuditService {
	return &auditService{ServiceParams: params}
}

// Append stores the record and then fans it out. A publish failure is logged only;
// the stored record is the source of truth for history.
func (s *auditService) Append(ctx context.Context, record *audit.Record) error {
	if record.UserID == "" {
		record.UserID = types.GetUserID(ctx)
	}

	if err := s.AuditRepo.Append(ctx, record); err != nil {
		if ierr.IsAlreadyExists(err) {
			s.Logger.Infow("audit record already stored, skipping",
				"audit_id", record.ID,
				"event_type", record.EventType,
			)
			return nil
		}
		return err
	}

	s.Logger.Infow("audit record appended",
		"audit_id", record.ID,
		"subscription_ref", record.SubscriptionRef,
		"event_type", record.EventType,
		"plan_id", record.PlanID,
	)

	if s.AuditPublisher == nil {
		return nil
	}
	if err := s.AuditPublisher.Publish(ctx, record); err != nil {
		s.Logger.Warnw("failed to publish audit record",
			"audit_id", record.ID,
			"error", err,
		)
	}
	return nil
}

func (s *auditService) ListForSubscription(ctx context.Context, subscriptionRef string, limit int) ([]*audit.Record, error) {
	return s.AuditRepo.ListBySubscription(ctx, subscriptionRef, limit)
}
