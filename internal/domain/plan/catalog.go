package plan

import (
	"github.com/flexprice/planshift/internal/config"
	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
)

type priceKey struct {
	plan   PlanID
	period Period
}

// Catalog is the static tier table. It is built once at startup and never mutated.
type Catalog struct {
	tiers   []Tier
	byID    map[PlanID]Tier
	byPrice map[string]priceKey
	log     *logger.Logger
}

// NewCatalog builds the catalog from stripe.prices in configuration
func NewCatalog(cfg *config.Configuration, log *logger.Logger) *Catalog {
	return NewCatalogFromPrices(cfg.Stripe.Prices, log)
}

// NewCatalogFromPrices builds the catalog from a plan -> period -> price reference table.
// Plans outside the canonical order are ignored; missing prices surface at lookup time.
func NewCatalogFromPrices(prices map[string]map[string]string, log *logger.Logger) *Catalog {
	c := &Catalog{
		tiers:   make([]Tier, 0, len(CanonicalOrder)),
		byID:    make(map[PlanID]Tier, len(CanonicalOrder)),
		byPrice: make(map[string]priceKey),
		log:     log,
	}

	for i, id := range CanonicalOrder {
		tier := Tier{ID: id, Rank: i + 1, PriceRefs: make(map[Period]string)}
		for _, period := range Periods {
			ref := prices[string(id)][string(period)]
			if ref == "" {
				continue
			}
			tier.PriceRefs[period] = ref
			c.byPrice[ref] = priceKey{plan: id, period: period}
		}
		c.tiers = append(c.tiers, tier)
		c.byID[id] = tier
	}

	for unknown := range prices {
		if _, ok := c.byID[PlanID(unknown)]; !ok {
			log.Warnw("ignoring price configuration for unranked plan", "plan_id", unknown)
		}
	}

	return c
}

// Tiers returns the tiers in ascending rank order
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Has reports whether id is a ranked tier
func (c *Catalog) Has(id PlanID) bool {
	_, ok := c.byID[id]
	return ok
}

// Rank returns the tier rank, or 0 for unknown plans
func (c *Catalog) Rank(id PlanID) int {
	return c.byID[id].Rank
}

// Classify compares two plans by rank. Same plan and unranked identifiers are Invalid.
func (c *Catalog) Classify(current, target PlanID) Classification {
	cur, okCur := c.byID[current]
	tgt, okTgt := c.byID[target]
	if !okCur || !okTgt {
		return Classification{Change: ChangeInvalid, Reason: ReasonUnknownPlan}
	}
	if current == target {
		return Classification{Change: ChangeInvalid, Reason: ReasonSamePlan}
	}
	if tgt.Rank > cur.Rank {
		return Classification{Change: ChangeUpgrade}
	}
	return Classification{Change: ChangeDowngrade}
}

// PriceRef returns the provider price for (plan, period). A ranked plan without a
// configured price is a deployment defect and is reported as a configuration error.
func (c *Catalog) PriceRef(id PlanID, period Period) (string, error) {
	if err := period.Validate(); err != nil {
		return "", err
	}

	tier, ok := c.byID[id]
	if !ok {
		return "", ierr.NewError("unknown plan").
			WithHintf("Plan %q does not exist", id).
			WithReportableDetails(map[string]any{"plan_id": id}).
			Mark(ierr.ErrValidation)
	}

	ref, ok := tier.PriceRefs[period]
	if !ok {
		c.log.Errorw("price not configured for plan",
			"plan_id", id,
			"billing_period", period,
		)
		return "", ierr.NewErrorf("no price configured for plan %s/%s", id, period).
			WithHint("This plan is temporarily unavailable").
			Mark(ierr.ErrConfiguration)
	}
	return ref, nil
}

// Resolve maps a provider price back to its plan and period
func (c *Catalog) Resolve(priceRef string) (PlanID, Period, bool) {
	key, ok := c.byPrice[priceRef]
	if !ok {
		return "", "", false
	}
	return key.plan, key.period, true
}
