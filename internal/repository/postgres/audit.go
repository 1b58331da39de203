package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/planshift/internal/domain/audit"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/postgres"
	"github.com/lib/pq"
)

const (
	defaultAuditListLimit = 50

	uniqueViolation = pq.ErrorCode("23505")
)

type auditRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAuditRepository(db *postgres.DB, logger *logger.Logger) audit.Repository {
	return &auditRepository{db: db, logger: logger}
}

func (r *auditRepository) Append(ctx context.Context, record *audit.Record) error {
	query := `
		INSERT INTO plan_change_audit (
			id, subscription_ref, customer_ref, user_id, price_ref, plan_id, event_type, effective_at, occurred_at
		) VALUES (
			:id, :subscription_ref, :customer_ref, :user_id, :price_ref, :plan_id, :event_type, :effective_at, :occurred_at
		)`

	if _, err := r.db.GetQuerier().NamedExecContext(ctx, query, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ierr.WithError(err).
				WithHint("Billing history entry already exists").
				WithReportableDetails(map[string]any{"audit_id": record.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Could not record billing history").
			WithReportableDetails(map[string]any{
				"subscription_ref": record.SubscriptionRef,
				"event_type":       record.EventType,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *auditRepository) ListBySubscription(ctx context.Context, subscriptionRef string, limit int) ([]*audit.Record, error) {
	if limit <= 0 {
		limit = defaultAuditListLimit
	}

	query := `
		SELECT id, subscription_ref, customer_ref, user_id, price_ref, plan_id, event_type, effective_at, occurred_at
		FROM plan_change_audit
		WHERE subscription_ref = $1
		ORDER BY occurred_at DESC
		LIMIT $2`

	var records []*audit.Record
	if err := r.db.GetQuerier().SelectContext(ctx, &records, query, subscriptionRef, limit); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not load billing history").
			Mark(ierr.ErrDatabase)
	}
	return records, nil
}
