package cli

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/services"
)

// slowBus publishes after a delay and refuses writes once closed, like a
// kafka writer.
type slowBus struct {
	delay time.Duration

	mu        sync.Mutex
	published int
	closed    bool
	lost      int
}

func (b *slowBus) Publish(context.Context, string, string, any) error {
	time.Sleep(b.delay)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.lost++
		return errors.New("writer closed")
	}
	b.published++
	return nil
}

func (b *slowBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func placeOrder(n *services.Notifier) {
	n.OrderPlaced(context.Background(), nil, &models.Order{
		BaseModel:   models.BaseModel{ID: uuid.New()},
		OrderNumber: "ORD-20240309-0badf00d",
		Total:       decimal.NewFromInt(750),
		Currency:    "INR",
	})
}

func TestDrainFlushesNotificationsBeforeClosingProducer(t *testing.T) {
	bus := &slowBus{delay: 50 * time.Millisecond}
	notifier := services.NewNotifier(nil, services.NewTelegramService("", ""), bus, nil)
	placeOrder(notifier)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errs := drain(ctx, fiber.New(), notifier, bus)

	assert.Empty(t, errs)
	assert.Equal(t, 1, bus.published)
	assert.Zero(t, bus.lost)
	assert.True(t, bus.closed)
}

func TestDrainGivesUpAtDeadline(t *testing.T) {
	bus := &slowBus{delay: 300 * time.Millisecond}
	notifier := services.NewNotifier(nil, services.NewTelegramService("", ""), bus, nil)
	placeOrder(notifier)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	errs := drain(ctx, fiber.New(), notifier, bus)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.DeadlineExceeded)
	assert.True(t, bus.closed)
	notifier.Wait()
}

func TestDrainWithoutProducer(t *testing.T) {
	assert.Empty(t, drain(context.Background(), fiber.New(), nil, nil))
}
