package types

// ProrationBehavior controls how the provider accounts for a mid-period price swap
type ProrationBehavior string

const (
	// ProrationBehaviorCreateProrations credits unused time and charges the new price immediately
	ProrationBehaviorCreateProrations ProrationBehavior = "create_prorations"
	// ProrationBehaviorNone makes no adjustment; the new price applies from the next invoice
	ProrationBehaviorNone ProrationBehavior = "none"
)
