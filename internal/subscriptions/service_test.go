package subscriptions

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/testdb"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/asaas"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubResolver struct {
	calls     int
	forgotten []string
}

func (s *stubResolver) Resolve(ctx context.Context, user *models.User, buyer types.Buyer) (string, error) {
	s.calls++
	if len(s.forgotten) > 0 {
		return "cus_456", nil
	}
	return "cus_123", nil
}

func (s *stubResolver) Forget(ctx context.Context, user *models.User, customerID string) error {
	s.forgotten = append(s.forgotten, customerID)
	return nil
}

type stubProvider struct {
	last     *asaas.SubscriptionCreateParams
	err      error
	rejected string
}

func (s *stubProvider) CreateSubscription(ctx context.Context, params asaas.SubscriptionCreateParams) (*asaas.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	if params.Customer == s.rejected {
		return nil, &asaas.APIError{StatusCode: 404, Operation: "create_subscription"}
	}
	s.last = &params
	return &asaas.Subscription{
		ID:          "sub_" + uuid.NewString()[:8],
		Status:      "ACTIVE",
		Value:       params.Value,
		Cycle:       params.Cycle,
		NextDueDate: params.NextDueDate,
	}, nil
}

type fixture struct {
	svc      Service
	conn     *gorm.DB
	user     *models.User
	provider *stubProvider
	resolver *stubResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := testdb.Client(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := &fixture{conn: conn, provider: &stubProvider{}, resolver: &stubResolver{}}
	svc, err := NewService(ServiceParams{
		Tx:        client,
		Repo:      NewRepository(conn),
		Plans:     catalog.NewRepository(conn),
		Users:     users.NewRepository(conn),
		Customers: f.resolver,
		Provider:  f.provider,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Config:    config.PaymentsConfig{BoletoDueDays: 1, Timezone: "America/Sao_Paulo"},
		Logger:    logg,
		Now:       func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	f.svc = svc
	f.user = testdb.MustCreateUser(t, conn)
	return f
}

func (f *fixture) buyer() types.Buyer {
	return types.Buyer{Name: "Maria Souza", Email: "maria@example.com", TaxID: "529.982.247-25"}
}

func (f *fixture) events(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", id, enums.EventSubscriptionUpdated).
		Count(&count).Error)
	return int(count)
}

func codeOf(t *testing.T, err error) pkgerrors.Code {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	return typed.Code()
}

func TestCreateFromPlanSnapshotsPlan(t *testing.T) {
	f := newFixture(t)
	plan := testdb.MustCreatePlan(t, f.conn, "49.90", enums.CycleMonthly)

	dto, err := f.svc.Create(context.Background(), CreateInput{
		UserID:        f.user.ID,
		PlanID:        &plan.ID,
		PaymentMethod: enums.PaymentMethodBoleto,
		Buyer:         f.buyer(),
	})
	require.NoError(t, err)

	assert.Equal(t, "49.90", dto.Value)
	assert.Equal(t, enums.CycleMonthly, dto.Cycle)
	assert.Equal(t, StatusActive, dto.Status)
	require.NotNil(t, dto.PlanID)
	assert.Equal(t, plan.ID, *dto.PlanID)
	require.NotNil(t, dto.NextDueDate)
	assert.Equal(t, "2026-03-11", *dto.NextDueDate)

	sent := f.provider.last
	require.NotNil(t, sent)
	assert.Equal(t, "cus_123", sent.Customer)
	assert.Equal(t, asaas.BillingBoleto, sent.BillingType)
	assert.Equal(t, "MONTHLY", sent.Cycle)
	assert.Equal(t, dto.ID.String(), sent.ExternalReference)
	assert.Nil(t, sent.CreditCard)

	assert.Equal(t, 1, f.events(t, dto.ID))
}

func TestCreateCustomPlanWithCard(t *testing.T) {
	f := newFixture(t)
	dto, err := f.svc.Create(context.Background(), CreateInput{
		UserID: f.user.ID,
		Custom: &CustomPlan{
			Name:  "Mentoria semanal",
			Value: decimal.RequireFromString("120"),
			Cycle: enums.CycleWeekly,
		},
		PaymentMethod: enums.PaymentMethodCreditCard,
		Card: &payments.CardDetails{
			HolderName:  "MARIA SOUZA",
			Number:      "4111111111111111",
			ExpiryMonth: "12",
			ExpiryYear:  "2030",
			CCV:         "123",
			Holder:      payments.CardHolder{PostalCode: "01001000", AddressNumber: "100", Phone: "11988887777"},
			RemoteIP:    "10.0.0.1",
		},
		Buyer: f.buyer(),
	})
	require.NoError(t, err)

	assert.Nil(t, dto.PlanID)
	require.NotNil(t, dto.PlanName)
	assert.Equal(t, "Mentoria semanal", *dto.PlanName)
	require.NotNil(t, f.provider.last.CreditCard)
	assert.Equal(t, "10.0.0.1", f.provider.last.RemoteIP)
	assert.Equal(t, "52998224725", f.provider.last.CreditCardHolderInfo.CpfCnpj)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	planID := uuid.New()
	custom := &CustomPlan{Name: "x", Value: decimal.NewFromInt(10), Cycle: enums.CycleMonthly}

	cases := map[string]CreateInput{
		"neither plan":      {UserID: f.user.ID, PaymentMethod: enums.PaymentMethodPix, Buyer: f.buyer()},
		"both plans":        {UserID: f.user.ID, PlanID: &planID, Custom: custom, PaymentMethod: enums.PaymentMethodPix, Buyer: f.buyer()},
		"bad cycle":         {UserID: f.user.ID, Custom: &CustomPlan{Name: "x", Value: decimal.NewFromInt(10), Cycle: "DAILY"}, PaymentMethod: enums.PaymentMethodPix, Buyer: f.buyer()},
		"zero value":        {UserID: f.user.ID, Custom: &CustomPlan{Name: "x", Cycle: enums.CycleMonthly}, PaymentMethod: enums.PaymentMethodPix, Buyer: f.buyer()},
		"card without data": {UserID: f.user.ID, Custom: custom, PaymentMethod: enums.PaymentMethodCreditCard, Buyer: f.buyer()},
		"incomplete card":   {UserID: f.user.ID, Custom: custom, PaymentMethod: enums.PaymentMethodCreditCard, Card: &payments.CardDetails{Number: "4111"}, Buyer: f.buyer()},
		"missing buyer":     {UserID: f.user.ID, Custom: custom, PaymentMethod: enums.PaymentMethodPix},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), input)
			assert.Equal(t, pkgerrors.CodeValidation, codeOf(t, err))
		})
	}
	assert.Nil(t, f.provider.last)
	assert.Zero(t, f.resolver.calls)
}

func TestCreateInactivePlan(t *testing.T) {
	f := newFixture(t)
	plan := testdb.MustCreatePlan(t, f.conn, "10", enums.CycleMonthly)
	require.NoError(t, f.conn.Model(plan).Update("is_active", false).Error)

	_, err := f.svc.Create(context.Background(), CreateInput{
		UserID: f.user.ID, PlanID: &plan.ID, PaymentMethod: enums.PaymentMethodPix, Buyer: f.buyer(),
	})
	assert.Equal(t, pkgerrors.CodeStateConflict, codeOf(t, err))
	assert.Nil(t, f.provider.last)
}

func TestCreateProviderFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.provider.err = &asaas.APIError{StatusCode: 400, Errors: []asaas.ErrorItem{{Code: "invalid_value", Description: "bad"}}}

	_, err := f.svc.Create(context.Background(), CreateInput{
		UserID:        f.user.ID,
		Custom:        &CustomPlan{Name: "x", Value: decimal.NewFromInt(10), Cycle: enums.CycleMonthly},
		PaymentMethod: enums.PaymentMethodPix,
		Buyer:         f.buyer(),
	})
	assert.Equal(t, pkgerrors.CodePaymentProvider, codeOf(t, err))

	var count int64
	require.NoError(t, f.conn.Model(&models.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRelinksRejectedCustomer(t *testing.T) {
	f := newFixture(t)
	plan := testdb.MustCreatePlan(t, f.conn, "49.90", enums.CycleMonthly)
	f.provider.rejected = "cus_123"

	dto, err := f.svc.Create(context.Background(), CreateInput{
		UserID:        f.user.ID,
		PlanID:        &plan.ID,
		PaymentMethod: enums.PaymentMethodPix,
		Buyer:         f.buyer(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cus_123"}, f.resolver.forgotten)
	require.NotNil(t, f.provider.last)
	assert.Equal(t, "cus_456", f.provider.last.Customer)
	assert.Equal(t, 1, f.events(t, dto.ID))
}

func (f *fixture) seed(t *testing.T, status string) *models.Subscription {
	t.Helper()
	due := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		ID:                     uuid.New(),
		UserID:                 f.user.ID,
		ProviderSubscriptionID: "sub_" + uuid.NewString()[:8],
		Status:                 status,
		BillingType:            enums.PaymentMethodPix,
		Value:                  decimal.RequireFromString("30"),
		Cycle:                  enums.CycleMonthly,
		NextDueDate:            &due,
	}
	require.NoError(t, f.conn.Create(sub).Error)
	return sub
}

func TestApplyProviderUpdate(t *testing.T) {
	f := newFixture(t)
	sub := f.seed(t, StatusActive)
	ctx := context.Background()

	res, err := f.svc.ApplyProviderUpdate(ctx, ProviderUpdate{ProviderSubscriptionID: sub.ProviderSubscriptionID, Status: "active"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Zero(t, f.events(t, sub.ID))

	next := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	res, err = f.svc.ApplyProviderUpdate(ctx, ProviderUpdate{
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Status:                 StatusOverdue,
		NextDueDate:            &next,
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, f.events(t, sub.ID))

	dto, err := f.svc.Get(ctx, f.user.ID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, dto.Status)
	require.NotNil(t, dto.NextDueDate)
	assert.Equal(t, "2026-05-10", *dto.NextDueDate)
	assert.Equal(t, "30.00", dto.Value)

	_, err = f.svc.ApplyProviderUpdate(ctx, ProviderUpdate{ProviderSubscriptionID: "sub_unknown", Status: StatusActive})
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(t, err))
}

func TestGetHidesForeignSubscriptions(t *testing.T) {
	f := newFixture(t)
	sub := f.seed(t, StatusActive)
	_, err := f.svc.Get(context.Background(), uuid.New(), sub.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(t, err))

	list, err := f.svc.ListForUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReconcileCandidates(t *testing.T) {
	f := newFixture(t)
	live := f.seed(t, StatusActive)
	old := f.seed(t, StatusExpired)
	require.NoError(t, f.conn.Model(&models.Subscription{}).Where("id = ?", old.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-30*24*time.Hour)).Error)

	rows, err := f.svc.ReconcileCandidates(context.Background(), time.Now().UTC().Add(-7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, live.ID, rows[0].ID)
}
