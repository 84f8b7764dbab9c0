package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres. Its value
// prefixes the Pub/Sub ordering key.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateSubscription OutboxAggregateType = "subscription"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregateSubscription}

func (a OutboxAggregateType) IsValid() bool { return member(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, "aggregate type", value)
}

// OutboxEventType maps to the event_type enum in Postgres and travels as the
// event_type message attribute.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderPaymentInitiated OutboxEventType = "order_payment_initiated"
	EventOrderPaid             OutboxEventType = "order_paid"
	EventOrderPaidOversold     OutboxEventType = "order_paid_oversold"
	EventOrderCanceled         OutboxEventType = "order_canceled"
	EventSubscriptionUpdated   OutboxEventType = "subscription_updated"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaymentInitiated,
	EventOrderPaid,
	EventOrderPaidOversold,
	EventOrderCanceled,
	EventSubscriptionUpdated,
}

func (e OutboxEventType) IsValid() bool { return member(outboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(outboxEventTypes, "event type", value)
}
