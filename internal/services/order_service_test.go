package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
)

func (f *fixture) orders() *OrderService {
	return NewOrderService(f.store.Orders(), f.store, nil)
}

func TestCancelRestocksVariants(t *testing.T) {
	f := newFixture(t)
	order := f.codOrder(t, 3)
	variantID := order.Lines[0].VariantID
	require.Equal(t, 7, f.store.Stock(variantID))

	updated, err := f.orders().UpdateStatus(context.Background(), f.admin, order.ID, models.OrderCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, updated.Status)
	assert.Equal(t, 10, f.store.Stock(variantID))

	_, err = f.orders().UpdateStatus(context.Background(), f.admin, order.ID, models.OrderProcessing)
	requireKind(t, err, apperr.KindConflict)
}

func TestUpdateStatusRules(t *testing.T) {
	f := newFixture(t)
	order := f.codOrder(t, 1)
	svc := f.orders()
	ctx := context.Background()

	_, err := svc.UpdateStatus(ctx, f.customer, order.ID, models.OrderShipped)
	requireKind(t, err, apperr.KindForbidden)

	_, err = svc.UpdateStatus(ctx, f.admin, order.ID, models.OrderDelivered)
	requireKind(t, err, apperr.KindConflict)

	_, err = svc.UpdateStatus(ctx, f.admin, order.ID, models.OrderShipped)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, f.admin, order.ID, models.OrderDelivered)
	require.NoError(t, err)

	// Delivered orders cannot be cancelled, so stock stays sold.
	_, err = svc.UpdateStatus(ctx, f.admin, order.ID, models.OrderCancelled)
	requireKind(t, err, apperr.KindConflict)
	assert.Equal(t, 9, f.store.Stock(order.Lines[0].VariantID))
}

func TestOrderListingIsScopedToCaller(t *testing.T) {
	f := newFixture(t)
	f.codOrder(t, 1)
	f.codOrder(t, 1)
	svc := f.orders()
	ctx := context.Background()

	mine, err := svc.List(ctx, f.customer, "", repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, mine.Orders, 2)
	assert.Equal(t, int64(2), mine.Total)

	theirs, err := svc.List(ctx, f.other, "", repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, theirs.Orders)
	assert.NotNil(t, theirs.Orders)

	filtered, err := svc.List(ctx, f.customer, models.OrderShipped, repository.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, filtered.Orders)

	_, err = svc.ListAll(ctx, f.customer, "", repository.Page{Limit: 10})
	requireKind(t, err, apperr.KindForbidden)
	all, err := svc.ListAll(ctx, f.admin, "", repository.Page{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 1)
	assert.Equal(t, int64(2), all.Total)
}

func TestGetOrderChecksOwnership(t *testing.T) {
	f := newFixture(t)
	order := f.codOrder(t, 1)
	svc := f.orders()

	got, err := svc.Get(context.Background(), f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)

	_, err = svc.Get(context.Background(), f.other, order.ID)
	requireKind(t, err, apperr.KindForbidden)

	_, err = svc.Get(context.Background(), f.admin, order.ID)
	require.NoError(t, err)
}
