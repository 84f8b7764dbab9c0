package enums

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

var orderStatuses = []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusCanceled}

func (s OrderStatus) String() string { return string(s) }
func (s OrderStatus) IsValid() bool  { return member(orderStatuses, s) }

// IsFinal reports whether no further transition is allowed.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusPaid || s == OrderStatusCanceled
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(orderStatuses, "order status", value)
}
