package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/testdb"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestLinkProviderCustomerMovesOwnership(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	first := testdb.MustCreateUser(t, conn)
	second := testdb.MustCreateUser(t, conn)

	require.NoError(t, repo.LinkProviderCustomer(ctx, first.ID, "cus_000001"))
	require.NoError(t, repo.LinkProviderCustomer(ctx, second.ID, "cus_000001"))

	reloadedFirst, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, reloadedFirst.ProviderCustomerID)

	reloadedSecond, err := repo.FindByID(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, reloadedSecond.ProviderCustomerID)
	assert.Equal(t, "cus_000001", *reloadedSecond.ProviderCustomerID)
}

func TestLinkProviderCustomerIsIdempotent(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user := testdb.MustCreateUser(t, conn)

	require.NoError(t, repo.LinkProviderCustomer(ctx, user.ID, "cus_000002"))
	require.NoError(t, repo.LinkProviderCustomer(ctx, user.ID, "cus_000002"))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ProviderCustomerID)
	assert.Equal(t, "cus_000002", *reloaded.ProviderCustomerID)
}

func TestClearProviderCustomerOnlyWhenMatching(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	user := testdb.MustCreateUser(t, conn)

	require.NoError(t, repo.LinkProviderCustomer(ctx, user.ID, "cus_new"))
	require.NoError(t, repo.ClearProviderCustomer(ctx, user.ID, "cus_old"))

	reloaded, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ProviderCustomerID)

	require.NoError(t, repo.ClearProviderCustomer(ctx, user.ID, "cus_new"))
	reloaded, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.ProviderCustomerID)
}

func TestFindByIDNotFound(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)

	_, err := repo.FindByID(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())

	err = repo.LinkProviderCustomer(context.Background(), uuid.New(), "cus_x")
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
