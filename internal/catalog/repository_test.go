package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/testdb"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestItemsLoadsProductsAndCourses(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)

	product := testdb.MustCreateProduct(t, conn, "49.90", 3)
	course := testdb.MustCreateCourse(t, conn, "199.00")
	missing := uuid.New()

	items, err := repo.Items(context.Background(), []Ref{
		{Type: enums.ItemTypeProduct, ID: product.ID},
		{Type: enums.ItemTypeCourse, ID: course.ID},
		{Type: enums.ItemTypeProduct, ID: missing},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	p := items[Ref{Type: enums.ItemTypeProduct, ID: product.ID}]
	assert.Equal(t, product.Name, p.Name)
	assert.True(t, p.Price.Equal(product.Price))

	c := items[Ref{Type: enums.ItemTypeCourse, ID: course.ID}]
	assert.Equal(t, course.Title, c.Name)

	_, ok := items[Ref{Type: enums.ItemTypeCourse, ID: product.ID}]
	assert.False(t, ok, "type is part of the key")
}

func TestPlanByID(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	plan := testdb.MustCreatePlan(t, conn, "29.90", enums.CycleMonthly)

	loaded, err := repo.PlanByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Name, loaded.Name)

	_, err = repo.PlanByID(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}
