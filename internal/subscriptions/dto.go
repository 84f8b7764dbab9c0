package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Provider subscription statuses. StatusOverdue is local: it is set when a
// subscription charge goes overdue and cleared by the next paid charge.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusExpired  = "EXPIRED"
	StatusOverdue  = "OVERDUE"
)

var liveStatuses = []string{StatusActive, StatusOverdue}

// CustomPlan describes an ad hoc subscription not backed by a catalog plan.
type CustomPlan struct {
	Name        string
	Description *string
	Value       decimal.Decimal
	Cycle       enums.SubscriptionCycle
}

// CreateInput starts a subscription from either a catalog plan or a custom plan.
type CreateInput struct {
	UserID        uuid.UUID
	PlanID        *uuid.UUID
	Custom        *CustomPlan
	PaymentMethod enums.PaymentMethod
	Card          *payments.CardDetails
	Buyer         types.Buyer
}

// ProviderUpdate is a subscription change reported by the provider. Only
// status and next due date are ever written.
type ProviderUpdate struct {
	ProviderSubscriptionID string
	Status                 string
	NextDueDate            *time.Time
	Source                 string
}

// UpdateResult reports whether a provider update changed the local row.
type UpdateResult struct {
	Subscription *models.Subscription
	Changed      bool
}

// SubscriptionDTO is the API shape of a subscription.
type SubscriptionDTO struct {
	ID                     uuid.UUID               `json:"id"`
	ProviderSubscriptionID string                  `json:"provider_subscription_id"`
	Status                 string                  `json:"status"`
	BillingType            enums.PaymentMethod     `json:"billing_type"`
	Value                  string                  `json:"value"`
	Cycle                  enums.SubscriptionCycle `json:"cycle"`
	NextDueDate            *string                 `json:"next_due_date,omitempty"`
	PlanID                 *uuid.UUID              `json:"plan_id,omitempty"`
	PlanName               *string                 `json:"plan_name,omitempty"`
	PlanDescription        *string                 `json:"plan_description,omitempty"`
	CreatedAt              time.Time               `json:"created_at"`
	UpdatedAt              time.Time               `json:"updated_at"`
}

// FromModel converts a subscription row into its API shape.
func FromModel(sub *models.Subscription) SubscriptionDTO {
	dto := SubscriptionDTO{
		ID:                     sub.ID,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Status:                 sub.Status,
		BillingType:            sub.BillingType,
		Value:                  sub.Value.StringFixed(2),
		Cycle:                  sub.Cycle,
		PlanID:                 sub.PlanID,
		PlanName:               sub.PlanName,
		PlanDescription:        sub.PlanDescription,
		CreatedAt:              sub.CreatedAt,
		UpdatedAt:              sub.UpdatedAt,
	}
	if sub.NextDueDate != nil {
		formatted := sub.NextDueDate.Format(time.DateOnly)
		dto.NextDueDate = &formatted
	}
	return dto
}
