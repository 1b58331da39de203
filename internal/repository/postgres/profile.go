package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/planshift/internal/domain/profile"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/postgres"
)

type profileRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewProfileRepository(db *postgres.DB, logger *logger.Logger) profile.Repository {
	return &profileRepository{db: db, logger: logger}
}

const profileColumns = `user_id, email, customer_ref, active_subscription_ref, cached_plan_id, created_at, updated_at`

func (r *profileRepository) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	var p profile.Profile
	if err := r.db.GetQuerier().GetContext(ctx, &p, query, userID); err != nil {
		return nil, r.notFoundOr(err, "user_id", userID)
	}
	return &p, nil
}

func (r *profileRepository) GetByCustomerRef(ctx context.Context, customerRef string) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE customer_ref = $1`
	var p profile.Profile
	if err := r.db.GetQuerier().GetContext(ctx, &p, query, customerRef); err != nil {
		return nil, r.notFoundOr(err, "customer_ref", customerRef)
	}
	return &p, nil
}

func (r *profileRepository) Upsert(ctx context.Context, p *profile.Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES (:user_id, :email, :customer_ref, :active_subscription_ref, :cached_plan_id, :created_at, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			customer_ref = EXCLUDED.customer_ref,
			active_subscription_ref = EXCLUDED.active_subscription_ref,
			cached_plan_id = EXCLUDED.cached_plan_id,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.GetQuerier().NamedExecContext(ctx, query, p); err != nil {
		return ierr.WithError(err).
			WithHint("Could not save profile").
			WithReportableDetails(map[string]any{"user_id": p.UserID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *profileRepository) notFoundOr(err error, key, value string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHint("No billing profile found").
			WithReportableDetails(map[string]any{key: value}).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithHint("Could not load billing profile").
		Mark(ierr.ErrDatabase)
}
