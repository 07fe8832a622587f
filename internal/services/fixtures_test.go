package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository/repotest"
)

var testPricing = Pricing{
	FreeShippingThreshold: decimal.NewFromInt(1000),
	FlatDeliveryFee:       decimal.NewFromInt(50),
	Currency:              "INR",
}

var testAddress = models.Address{
	Name:       "Asha Rao",
	Phone:      "9000000001",
	Line1:      "12 MG Road",
	City:       "Bengaluru",
	State:      "KA",
	PostalCode: "560001",
	Country:    "IN",
}

type fixture struct {
	store    *repotest.Store
	customer access.Identity
	other    access.Identity
	admin    access.Identity
	user     models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.New()
	user := store.SeedUser(models.User{Email: "asha@example.com", Name: "Asha"})
	other := store.SeedUser(models.User{Email: "ben@example.com", Name: "Ben"})
	admin := store.SeedUser(models.User{Email: "ops@example.com", Name: "Ops", IsAdmin: true})
	return &fixture{
		store:    store,
		user:     user,
		customer: access.Identity{UserID: user.ID},
		other:    access.Identity{UserID: other.ID},
		admin:    access.Identity{UserID: admin.ID, IsAdmin: true},
	}
}

// variant seeds a product with one variant priced at price.
func (f *fixture) variant(sku, price string, stock int) models.Variant {
	p := decimal.RequireFromString(price)
	_, vs := f.store.SeedProduct(
		models.Product{Slug: "p-" + sku, Name: "Product " + sku, BasePrice: p},
		models.Variant{SKU: sku, Size: "50ml", Stock: stock, WeightGrams: 300, LengthCm: 12, BreadthCm: 8, HeightCm: 5},
	)
	return vs[0]
}

func (f *fixture) carts() *CartService {
	return NewCartService(f.store.Carts(), f.store.Products(), testPricing, nil, nil)
}

func (f *fixture) fill(t *testing.T, id access.Identity, v models.Variant, qty int) {
	t.Helper()
	_, err := f.carts().Add(context.Background(), id, v.ID, qty)
	require.NoError(t, err)
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind.String(), apperr.KindOf(err).String(), "error: %v", err)
}

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) CreateOrder(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	args := m.Called(ctx, req)
	order, _ := args.Get(0).(*GatewayOrder)
	return order, args.Error(1)
}
