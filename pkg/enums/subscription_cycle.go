package enums

// SubscriptionCycle is the provider billing cycle of a subscription.
type SubscriptionCycle string

const (
	CycleWeekly       SubscriptionCycle = "WEEKLY"
	CycleBiweekly     SubscriptionCycle = "BIWEEKLY"
	CycleMonthly      SubscriptionCycle = "MONTHLY"
	CycleBimonthly    SubscriptionCycle = "BIMONTHLY"
	CycleQuarterly    SubscriptionCycle = "QUARTERLY"
	CycleSemiannually SubscriptionCycle = "SEMIANNUALLY"
	CycleYearly       SubscriptionCycle = "YEARLY"
)

var subscriptionCycles = []SubscriptionCycle{
	CycleWeekly,
	CycleBiweekly,
	CycleMonthly,
	CycleBimonthly,
	CycleQuarterly,
	CycleSemiannually,
	CycleYearly,
}

func (c SubscriptionCycle) IsValid() bool { return member(subscriptionCycles, c) }

func ParseSubscriptionCycle(value string) (SubscriptionCycle, error) {
	return parse(subscriptionCycles, "subscription cycle", value)
}
