package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/flexprice/planshift/internal/domain/audit"
	"github.com/flexprice/planshift/internal/domain/profile"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/postgres"
	"github.com/flexprice/planshift/internal/types"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite
	ctx      context.Context
	mock     sqlmock.Sqlmock
	db       *postgres.DB
	profiles profile.Repository
	audits   audit.Repository
}

func TestRepositories(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	raw, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.mock = mock

	log := logger.NewNoopLogger()
	s.db = postgres.NewFromSQLX(sqlx.NewDb(raw, "postgres"), log)
	s.profiles = NewProfileRepository(s.db, log)
	s.audits = NewAuditRepository(s.db, log)
}

func (s *RepositorySuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func profileRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"user_id", "email", "customer_ref", "active_subscription_ref", "cached_plan_id", "created_at", "updated_at",
	})
}

func (s *RepositorySuite) TestGetProfile() {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE user_id = $1`)).
		WithArgs("user_1").
		WillReturnRows(profileRows().AddRow("user_1", "a@example.com", "cus_1", "sub_1", "pro", now, now))

	p, err := s.profiles.Get(s.ctx, "user_1")
	s.Require().NoError(err)
	s.Equal("cus_1", p.CustomerRef)
	s.Equal("sub_1", p.ActiveSubscriptionRef)
	s.True(p.HasActiveSubscription())
}

func (s *RepositorySuite) TestGetProfileNotFound() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE user_id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.profiles.Get(s.ctx, "missing")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *RepositorySuite) TestGetByCustomerRefDatabaseError() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles WHERE customer_ref = $1`)).
		WithArgs("cus_1").
		WillReturnError(sql.ErrConnDone)

	_, err := s.profiles.GetByCustomerRef(s.ctx, "cus_1")
	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrDatabase))
}

func (s *RepositorySuite) TestUpsertProfile() {
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO profiles`)).
		WithArgs("user_1", "a@example.com", "cus_1", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &profile.Profile{UserID: "user_1", Email: "a@example.com", CustomerRef: "cus_1"}
	s.Require().NoError(s.profiles.Upsert(s.ctx, p))
	s.False(p.UpdatedAt.IsZero())
}

func (s *RepositorySuite) TestAppendAudit() {
	effective := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	record := audit.NewRecord(types.AuditEventDowngradeScheduled, "sub_1", "cus_1", "basic", "price_basic_monthly", effective.Add(-48*time.Hour))
	record.EffectiveAt = &effective

	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO plan_change_audit`)).
		WithArgs(record.ID, "sub_1", "cus_1", "", "price_basic_monthly", "basic", types.AuditEventDowngradeScheduled, &effective, record.OccurredAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.Require().NoError(s.audits.Append(s.ctx, record))
}

func (s *RepositorySuite) TestAppendAuditDuplicateID() {
	record := audit.NewRecordForEvent("evt_1", types.AuditEventCreated, "sub_1", "cus_1", "pro", "price_pro_monthly",
		time.Date(2025, time.February, 3, 10, 0, 0, 0, time.UTC))

	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO plan_change_audit`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.audits.Append(s.ctx, record)
	s.Require().Error(err)
	s.True(ierr.IsAlreadyExists(err))
	s.Equal("audit_evt_1", record.ID)
}

func (s *RepositorySuite) TestListAuditBySubscription() {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "subscription_ref", "customer_ref", "user_id", "price_ref", "plan_id", "event_type", "effective_at", "occurred_at",
	}).AddRow("audit_1", "sub_1", "cus_1", "user_1", "price_advanced_monthly", "advanced", "upgrade_immediate", nil, now)

	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM plan_change_audit`)).
		WithArgs("sub_1", defaultAuditListLimit).
		WillReturnRows(rows)

	records, err := s.audits.ListBySubscription(s.ctx, "sub_1", 0)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(types.AuditEventUpgradeImmediate, records[0].EventType)
	s.Nil(records[0].EffectiveAt)
}
