package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
)

// rendezvousCarts holds each reader until both concurrent callers have read,
// so both act on the same stale view of the cart.
type rendezvousCarts struct {
	repository.CartRepository
	read sync.WaitGroup

	mu     sync.Mutex
	writes []int
}

func newRendezvousCarts(inner repository.CartRepository) *rendezvousCarts {
	r := &rendezvousCarts{CartRepository: inner}
	r.read.Add(2)
	return r
}

func (r *rendezvousCarts) FindByID(ctx context.Context, id uuid.UUID) (*models.CartEntry, error) {
	entry, err := r.CartRepository.FindByID(ctx, id)
	r.read.Done()
	r.read.Wait()
	return entry, err
}

func (r *rendezvousCarts) FindByUserAndVariant(ctx context.Context, userID, variantID uuid.UUID) (*models.CartEntry, error) {
	entry, err := r.CartRepository.FindByUserAndVariant(ctx, userID, variantID)
	r.read.Done()
	r.read.Wait()
	return entry, err
}

func (r *rendezvousCarts) UpdateQuantity(ctx context.Context, id uuid.UUID, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.CartRepository.UpdateQuantity(ctx, id, qty); err != nil {
		return err
	}
	r.writes = append(r.writes, qty)
	return nil
}

func TestCartUpdateIsLastWriteWins(t *testing.T) {
	f := newFixture(t)
	v := f.variant("LWW", "100", 10)
	ctx := context.Background()

	entry, err := f.carts().Add(ctx, f.customer, v.ID, 1)
	require.NoError(t, err)

	// Sequential writes: the later one is what the cart keeps.
	_, err = f.carts().Update(ctx, f.customer, entry.ID, 3)
	require.NoError(t, err)
	_, err = f.carts().Update(ctx, f.customer, entry.ID, 5)
	require.NoError(t, err)
	stored, err := f.store.Carts().FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Quantity)

	// Concurrent writes from the same stale read: neither is rejected.
	carts := newRendezvousCarts(f.store.Carts())
	svc := NewCartService(carts, f.store.Products(), testPricing, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, qty := range []int{2, 7} {
		wg.Add(1)
		go func(i, qty int) {
			defer wg.Done()
			_, errs[i] = svc.Update(ctx, f.customer, entry.ID, qty)
		}(i, qty)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Len(t, carts.writes, 2)
	stored, err = f.store.Carts().FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, carts.writes[1], stored.Quantity)
	assert.Equal(t, 1, f.store.CartSize(f.user.ID))
}

func TestCartConcurrentFirstAddConflicts(t *testing.T) {
	f := newFixture(t)
	v := f.variant("RACE", "100", 10)
	ctx := context.Background()

	carts := newRendezvousCarts(f.store.Carts())
	svc := NewCartService(carts, f.store.Products(), testPricing, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Add(ctx, f.customer, v.ID, 1)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, f.store.CartSize(f.user.ID))

	entries, err := f.store.Carts().ListByUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Quantity)
}
