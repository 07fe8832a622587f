package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
)

// OrderService reads orders and applies admin status changes.
type OrderService struct {
	orders repository.OrderRepository
	tx     repository.TxManager
	logger *slog.Logger
}

func NewOrderService(orders repository.OrderRepository, tx repository.TxManager, logger *slog.Logger) *OrderService {
	return &OrderService{orders: orders, tx: tx, logger: orDiscard(logger)}
}

type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int64          `json:"total"`
}

// List returns the caller's own orders, newest first.
func (s *OrderService) List(ctx context.Context, id access.Identity, status models.OrderStatus, page repository.Page) (*OrderPage, error) {
	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	userID := id.UserID
	return s.list(ctx, repository.OrderFilter{UserID: &userID, Status: status, Page: page})
}

// ListAll returns every customer's orders. Admins only.
func (s *OrderService) ListAll(ctx context.Context, id access.Identity, status models.OrderStatus, page repository.Page) (*OrderPage, error) {
	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.list(ctx, repository.OrderFilter{Status: status, Page: page})
}

func (s *OrderService) list(ctx context.Context, filter repository.OrderFilter) (*OrderPage, error) {
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, internal("list orders", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &OrderPage{Orders: orders, Total: total}, nil
}

// Get returns an order to its owner or an admin.
func (s *OrderService) Get(ctx context.Context, id access.Identity, orderID uuid.UUID) (*models.Order, error) {
	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if err := id.CanAccess(order.UserID); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus moves an order along its lifecycle. Cancelling returns the
// reserved units to stock in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, id access.Identity, orderID uuid.UUID, next models.OrderStatus) (*models.Order, error) {
	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}

	var order *models.Order
	err := s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		var err error
		order, err = r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return notFound(err, "order")
		}
		if !order.Status.CanTransition(next) {
			return apperr.Conflict("cannot move order from "+string(order.Status)+" to "+string(next)).
				WithDetail("from", order.Status).
				WithDetail("to", next)
		}
		if next == models.OrderCancelled {
			for _, line := range order.Lines {
				if err := r.Products().IncrementStock(ctx, line.VariantID, line.Quantity); err != nil {
					return notFound(err, "variant")
				}
			}
		}
		if err := r.Orders().UpdateStatus(ctx, order.ID, next); err != nil {
			return notFound(err, "order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status changed", "order_id", order.ID, "from", order.Status, "to", next, "by", id.UserID)
	order.Status = next
	return order, nil
}
