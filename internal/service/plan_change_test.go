package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flexprice/planshift/internal/domain/plan"
	"github.com/flexprice/planshift/internal/domain/subscription"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/testutil"
	"github.com/flexprice/planshift/internal/types"
	"github.com/stretchr/testify/suite"
)

type PlanChangeServiceSuite struct {
	testutil.BaseServiceTestSuite
	service   PlanChangeService
	periodEnd time.Time
}

func TestPlanChangeService(t *testing.T) {
	suite.Run(t, new(PlanChangeServiceSuite))
}

func (s *PlanChangeServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewPlanChangeService(newTestParams(&s.BaseServiceTestSuite))
	s.periodEnd = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
}

func (s *PlanChangeServiceSuite) fresh() *subscription.Subscription {
	return s.GetProvider().Snapshot(testutil.DefaultSubscriptionRef)
}

func (s *PlanChangeServiceSuite) TestUpgradeBasicToAdvanced() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	sub := s.fresh()
	s.Require().NoError(s.GetCache().Set(s.GetContext(), testutil.DefaultCustomerRef, sub, types.CacheStrategyDaily))

	result, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: sub,
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanAdvanced,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)
	s.Equal(types.AuditEventUpgradeImmediate, result.Type)
	s.Nil(result.EffectiveDate)

	calls := s.GetProvider().UpdateCalls
	s.Require().Len(calls, 1)
	s.Equal(testutil.TestPriceRef(plan.PlanAdvanced, plan.PeriodMonthly), calls[0].PriceRef)
	s.Equal(types.ProrationBehaviorCreateProrations, calls[0].ProrationMode)
	s.Equal(testutil.DefaultItemID, calls[0].ItemID)
	s.NotEmpty(calls[0].IdempotencyKey)

	records := s.GetStores().AuditRepo.Records()
	s.Require().Len(records, 1)
	s.Equal(types.AuditEventUpgradeImmediate, records[0].EventType)
	s.Equal(string(plan.PlanAdvanced), records[0].PlanID)
	s.Equal(testutil.DefaultSubscriptionRef, records[0].SubscriptionRef)
	s.Equal(testutil.DefaultUserID, records[0].UserID)
	s.Len(s.GetPublisher().Published(), 1)

	s.Contains(s.GetCache().Invalidations(), testutil.DefaultCustomerRef)
	_, hit := s.GetCache().Get(s.GetContext(), testutil.DefaultCustomerRef)
	s.False(hit)
}

func (s *PlanChangeServiceSuite) TestUpgradeRoundTrip() {
	s.SeedSubscription(plan.PlanStarter, plan.PeriodAnnual, s.periodEnd)

	_, err := s.service.ImmediateUpgrade(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanStarter,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodAnnual,
	})
	s.Require().NoError(err)

	refetched, err := s.GetProvider().RetrieveSubscription(s.GetContext(), testutil.DefaultSubscriptionRef)
	s.Require().NoError(err)
	want, err := s.GetCatalog().PriceRef(plan.PlanPro, plan.PeriodAnnual)
	s.Require().NoError(err)

	item, ok := refetched.SoleItem()
	s.Require().True(ok)
	s.Equal(want, item.PriceRef)
	s.True(s.periodEnd.Equal(refetched.CurrentPeriodEnd), "upgrade must not move the renewal date")
}

func (s *PlanChangeServiceSuite) TestDowngradePlusToBasic() {
	s.SeedSubscription(plan.PlanPlus, plan.PeriodMonthly, s.periodEnd)

	result, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPlus,
		TargetPlan:   plan.PlanBasic,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)
	s.Equal(types.AuditEventDowngradeScheduled, result.Type)
	s.Require().NotNil(result.EffectiveDate)
	s.Equal("2025-03-01T00:00:00Z", result.EffectiveDate.Format(time.RFC3339))

	calls := s.GetProvider().UpdateCalls
	s.Require().Len(calls, 1)
	s.Equal(types.ProrationBehaviorNone, calls[0].ProrationMode)
	s.Equal(testutil.TestPriceRef(plan.PlanBasic, plan.PeriodMonthly), calls[0].PriceRef)

	after := s.fresh()
	pending, ok := after.PendingChange(s.GetClock().Now())
	s.Require().True(ok)
	s.Equal(string(plan.PlanBasic), pending.TargetPlanID)
	s.True(s.periodEnd.Equal(pending.EffectiveAt))
	s.Equal(testutil.TestPriceRef(plan.PlanPlus, plan.PeriodMonthly), after.ActivePriceRef(s.GetClock().Now()))

	records := s.GetStores().AuditRepo.Records()
	s.Require().Len(records, 1)
	s.Equal(types.AuditEventDowngradeScheduled, records[0].EventType)
	s.Require().NotNil(records[0].EffectiveAt)
	s.True(s.periodEnd.Equal(*records[0].EffectiveAt))
	s.Contains(s.GetCache().Invalidations(), testutil.DefaultCustomerRef)
}

func (s *PlanChangeServiceSuite) TestPendingChangeLapsesAtPeriodEnd() {
	s.SeedSubscription(plan.PlanPlus, plan.PeriodMonthly, s.periodEnd)
	_, err := s.service.ScheduleDowngrade(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPlus,
		TargetPlan:   plan.PlanBasic,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)

	s.GetClock().Set(s.periodEnd.Add(time.Second))
	after := s.fresh()
	_, ok := after.PendingChange(s.GetClock().Now())
	s.False(ok)
	s.Equal(testutil.TestPriceRef(plan.PlanBasic, plan.PeriodMonthly), after.ActivePriceRef(s.GetClock().Now()))
}

func (s *PlanChangeServiceSuite) TestInvalidChangesMakeNoProviderCalls() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	sub := s.fresh()

	tests := []struct {
		name    string
		current plan.PlanID
		target  plan.PlanID
	}{
		{name: "same_plan", current: plan.PlanBasic, target: plan.PlanBasic},
		{name: "unknown_target", current: plan.PlanBasic, target: "enterprise"},
		{name: "unknown_current", current: "legacy", target: plan.PlanPro},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
				Subscription: sub,
				CurrentPlan:  tt.current,
				TargetPlan:   tt.target,
				Period:       plan.PeriodMonthly,
			})
			s.Require().Error(err)
			s.True(ierr.IsInvalidPlanChange(err))
		})
	}

	s.Equal(0, s.GetProvider().TotalCalls())
	s.Empty(s.GetStores().AuditRepo.Records())
	s.Empty(s.GetCache().Invalidations())
}

func (s *PlanChangeServiceSuite) TestDirectTransitionRejectsWrongDirection() {
	s.SeedSubscription(plan.PlanPro, plan.PeriodMonthly, s.periodEnd)

	_, err := s.service.ImmediateUpgrade(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPro,
		TargetPlan:   plan.PlanStarter,
		Period:       plan.PeriodMonthly,
	})
	s.True(ierr.IsInvalidPlanChange(err))

	_, err = s.service.ScheduleDowngrade(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPro,
		TargetPlan:   plan.PlanPlus,
		Period:       plan.PeriodMonthly,
	})
	s.True(ierr.IsInvalidPlanChange(err))
	s.Equal(0, s.GetProvider().Calls("UpdateSubscriptionItem"))
}

func (s *PlanChangeServiceSuite) TestCancelScheduledChangeIsIdempotent() {
	s.SeedSubscription(plan.PlanPlus, plan.PeriodMonthly, s.periodEnd)
	_, err := s.service.ScheduleDowngrade(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPlus,
		TargetPlan:   plan.PlanBasic,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)

	plusPrice := testutil.TestPriceRef(plan.PlanPlus, plan.PeriodMonthly)

	first, err := s.service.CancelScheduledChange(s.GetContext(), CancelRequest{
		Subscription: s.fresh(),
		ActivePlan:   plan.PlanPlus,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)
	s.True(first.Success)
	s.True(first.HadPendingChange)

	after := s.fresh()
	item, _ := after.SoleItem()
	s.Equal(plusPrice, item.PriceRef)
	s.False(after.HasPendingMetadata())
	s.Equal(types.ProrationBehaviorNone, s.GetProvider().UpdateCalls[1].ProrationMode)

	second, err := s.service.CancelScheduledChange(s.GetContext(), CancelRequest{
		Subscription: s.fresh(),
		ActivePlan:   plan.PlanPlus,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)
	s.True(second.Success)
	s.False(second.HadPendingChange)

	again := s.fresh()
	item, _ = again.SoleItem()
	s.Equal(plusPrice, item.PriceRef)

	events := make([]types.AuditEventType, 0)
	for _, r := range s.GetStores().AuditRepo.Records() {
		events = append(events, r.EventType)
	}
	s.Equal([]types.AuditEventType{
		types.AuditEventDowngradeScheduled,
		types.AuditEventScheduledChangeCanceled,
	}, events)
}

func (s *PlanChangeServiceSuite) TestUpgradeClearsPendingDowngrade() {
	s.SeedSubscription(plan.PlanPlus, plan.PeriodMonthly, s.periodEnd)
	_, err := s.service.ScheduleDowngrade(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPlus,
		TargetPlan:   plan.PlanStarter,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)

	// The plan in force is still plus, so this is an upgrade
	_, err = s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPlus,
		TargetPlan:   plan.PlanAdvanced,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)

	after := s.fresh()
	s.False(after.HasPendingMetadata())
	item, _ := after.SoleItem()
	s.Equal(testutil.TestPriceRef(plan.PlanAdvanced, plan.PeriodMonthly), item.PriceRef)
}

func (s *PlanChangeServiceSuite) TestAmbiguousOutcomeWritesNoAudit() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	s.GetProvider().UpdateAppliedErr = ierr.NewError("request timed out").
		Mark(ierr.ErrAmbiguousOutcome)

	_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodMonthly,
	})
	s.Require().Error(err)
	s.True(ierr.IsAmbiguousOutcome(err))
	s.Empty(s.GetStores().AuditRepo.Records())
	s.Contains(s.GetCache().Invalidations(), testutil.DefaultCustomerRef)
	s.Equal(1, s.GetProvider().Calls("UpdateSubscriptionItem"), "an unknown outcome is never retried")
}

func (s *PlanChangeServiceSuite) TestCanceledRequestStillInvalidatesOnUnknownOutcome() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	s.GetProvider().UpdateAppliedErr = ierr.NewError("request canceled").
		Mark(ierr.ErrAmbiguousOutcome)

	ctx, cancel := context.WithCancel(s.GetContext())
	cancel()

	_, err := s.service.ChangePlan(ctx, ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodMonthly,
	})
	s.Require().Error(err)
	s.True(ierr.IsAmbiguousOutcome(err))
	s.Contains(s.GetCache().Invalidations(), testutil.DefaultCustomerRef)
	s.Zero(s.GetCache().CanceledInvalidations())
	s.Empty(s.GetStores().AuditRepo.Records())
}

func (s *PlanChangeServiceSuite) TestProviderFailureWritesNothing() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	s.GetProvider().UpdateErr = ierr.NewError("card declined").
		WithHint("The billing provider could not complete the request").
		Mark(ierr.ErrProvider)

	_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodMonthly,
	})
	s.Require().Error(err)
	s.True(ierr.Is(err, ierr.ErrProvider))
	s.Empty(s.GetStores().AuditRepo.Records())
	s.Empty(s.GetCache().Invalidations())
}

func (s *PlanChangeServiceSuite) TestInvalidationFailureStillSucceeds() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	s.GetCache().InvalidateErr = errors.New("redis unavailable")

	result, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)
	s.Equal(types.AuditEventUpgradeImmediate, result.Type)
	s.Len(s.GetStores().AuditRepo.Records(), 1)
}

func (s *PlanChangeServiceSuite) TestAuditFailureStillSucceeds() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	s.GetStores().AuditRepo.FailWith = ierr.NewError("insert failed").Mark(ierr.ErrDatabase)

	_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)
	item, _ := s.fresh().SoleItem()
	s.Equal(testutil.TestPriceRef(plan.PlanPro, plan.PeriodMonthly), item.PriceRef)
	s.Empty(s.GetPublisher().Published())
}

func (s *PlanChangeServiceSuite) TestStaleSnapshotIsAConflict() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)

	_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanPro,
		TargetPlan:   plan.PlanAdvanced,
		Period:       plan.PeriodMonthly,
	})
	s.Require().Error(err)
	s.True(ierr.IsVersionConflict(err))
	s.Equal(0, s.GetProvider().Calls("UpdateSubscriptionItem"))
}

func (s *PlanChangeServiceSuite) TestMultiItemSubscriptionIsRejected() {
	sub := s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	sub.Items = append(sub.Items, subscription.Item{ID: "si_addon", PriceRef: "price_addon", Quantity: 1})
	s.GetProvider().Put(sub)

	_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodMonthly,
	})
	s.Require().Error(err)
	s.True(ierr.IsVersionConflict(err))
	s.Equal(0, s.GetProvider().Calls("UpdateSubscriptionItem"))
}

func (s *PlanChangeServiceSuite) TestMissingPriceIsConfigurationError() {
	prices := testutil.TestPrices()
	delete(prices[string(plan.PlanPro)], string(plan.PeriodAnnual))

	params := newTestParams(&s.BaseServiceTestSuite)
	params.Catalog = plan.NewCatalogFromPrices(prices, s.GetLogger())
	svc := NewPlanChangeService(params)

	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	_, err := svc.ChangePlan(s.GetContext(), ChangeRequest{
		Subscription: s.fresh(),
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodAnnual,
	})
	s.Require().Error(err)
	s.True(ierr.IsConfiguration(err))
	s.Equal(0, s.GetProvider().Calls("UpdateSubscriptionItem"))
}

func (s *PlanChangeServiceSuite) TestDuplicateSubmissionsShareIdempotencyKey() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	snapshot := s.fresh()
	req := ChangeRequest{
		Subscription: snapshot,
		CurrentPlan:  plan.PlanBasic,
		TargetPlan:   plan.PlanPro,
		Period:       plan.PeriodMonthly,
	}

	_, err := s.service.ChangePlan(s.GetContext(), req)
	s.Require().NoError(err)
	_, err = s.service.ChangePlan(s.GetContext(), req)
	s.Require().NoError(err)

	req.RequestKey = "client-key-1"
	_, err = s.service.ChangePlan(s.GetContext(), req)
	s.Require().NoError(err)

	calls := s.GetProvider().UpdateCalls
	s.Require().Len(calls, 3)
	s.Equal(calls[0].IdempotencyKey, calls[1].IdempotencyKey)
	s.NotEqual(calls[0].IdempotencyKey, calls[2].IdempotencyKey)

	// the same snapshot keeps its key no matter how long the client waits
	s.GetClock().Advance(2 * time.Minute)
	req.RequestKey = ""
	_, err = s.service.ChangePlan(s.GetContext(), req)
	s.Require().NoError(err)
	s.Equal(calls[0].IdempotencyKey, s.GetProvider().UpdateCalls[3].IdempotencyKey)
}

func (s *PlanChangeServiceSuite) TestRepeatedTransitionGetsNewIdempotencyKey() {
	s.SeedSubscription(plan.PlanPlus, plan.PeriodMonthly, s.periodEnd)
	downgrade := func() {
		_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
			Subscription: s.fresh(),
			CurrentPlan:  plan.PlanPlus,
			TargetPlan:   plan.PlanBasic,
			Period:       plan.PeriodMonthly,
		})
		s.Require().NoError(err)
	}

	downgrade()
	s.GetClock().Advance(5 * time.Second)
	_, err := s.service.CancelScheduledChange(s.GetContext(), CancelRequest{
		Subscription: s.fresh(),
		ActivePlan:   plan.PlanPlus,
		Period:       plan.PeriodMonthly,
	})
	s.Require().NoError(err)
	s.GetClock().Advance(5 * time.Second)
	downgrade()

	calls := s.GetProvider().UpdateCalls
	s.Require().Len(calls, 3)
	s.Equal(calls[0].PriceRef, calls[2].PriceRef)
	s.NotEqual(calls[0].IdempotencyKey, calls[2].IdempotencyKey)
	s.Equal("1", calls[0].Metadata[subscription.MetadataChangeRevision])
	s.Equal("2", calls[1].Metadata[subscription.MetadataChangeRevision])
	s.Equal("3", calls[2].Metadata[subscription.MetadataChangeRevision])

	pending, ok := s.fresh().PendingChange(s.GetClock().Now())
	s.Require().True(ok)
	s.Equal(string(plan.PlanBasic), pending.TargetPlanID)
}

func (s *PlanChangeServiceSuite) TestUpgradeDowngradeUpgradeGetsNewKeys() {
	s.SeedSubscription(plan.PlanBasic, plan.PeriodMonthly, s.periodEnd)
	change := func(current, target plan.PlanID) {
		_, err := s.service.ChangePlan(s.GetContext(), ChangeRequest{
			Subscription: s.fresh(),
			CurrentPlan:  current,
			TargetPlan:   target,
			Period:       plan.PeriodMonthly,
		})
		s.Require().NoError(err)
	}

	change(plan.PlanBasic, plan.PlanPro)
	// moved back outside the engine, ex through the billing portal
	reverted := s.fresh()
	reverted.Items[0].PriceRef = testutil.TestPriceRef(plan.PlanBasic, plan.PeriodMonthly)
	s.GetProvider().Put(reverted)
	change(plan.PlanBasic, plan.PlanPro)

	calls := s.GetProvider().UpdateCalls
	s.Require().Len(calls, 2)
	s.NotEqual(calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}
