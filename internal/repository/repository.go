// Package repository declares the persistence contracts used by the services
// and implements them on top of GORM.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

var (
	// ErrNotFound is returned when a lookup by id matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate record")
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

type ProductFilter struct {
	Search         string
	IncludeDeleted bool
	Page
}

type OrderFilter struct {
	// UserID restricts the listing to one customer; nil lists every order.
	UserID *uuid.UUID
	Status models.OrderStatus
	Page
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SetDefaultAddress(ctx context.Context, id uuid.UUID, addr models.Address) error
}

type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error)
	// FindByID loads a product with its variants.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	CreateVariant(ctx context.Context, variant *models.Variant) error
	// FindVariant loads a variant together with its product.
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	SetStock(ctx context.Context, variantID uuid.UUID, stock int) error
	// DecrementStock subtracts qty when enough stock remains and reports whether it did.
	DecrementStock(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, variantID uuid.UUID, qty int) error
}

type CartRepository interface {
	// ListByUser returns the user's entries with variant and product loaded.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartEntry, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CartEntry, error)
	FindByUserAndVariant(ctx context.Context, userID, variantID uuid.UUID) (*models.CartEntry, error)
	Create(ctx context.Context, entry *models.CartEntry) error
	UpdateQuantity(ctx context.Context, id uuid.UUID, qty int) error
	Delete(ctx context.Context, id uuid.UUID) error
	ClearByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type OrderRepository interface {
	// Create inserts the order together with its lines.
	Create(ctx context.Context, order *models.Order) error
	// FindByID loads an order with its lines.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	SetGatewayOrder(ctx context.Context, id uuid.UUID, gatewayOrderID string, status models.OrderStatus) error
	// MarkPaid flips an unpaid order to paid and reports whether a row changed.
	MarkPaid(ctx context.Context, id uuid.UUID, paymentID string, status models.OrderStatus) (bool, error)
}

type ShipmentRepository interface {
	Create(ctx context.Context, shipment *models.Shipment) error
	FindByLineAndSequence(ctx context.Context, lineID uuid.UUID, seq int) (*models.Shipment, error)
	// MaxSequence returns the highest sequence index used for a line, 0 when none.
	MaxSequence(ctx context.Context, lineID uuid.UUID) (int, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Shipment, error)
	MarkBooked(ctx context.Context, id uuid.UUID, awb, carrier string) error
	RecordFailure(ctx context.Context, id uuid.UUID, reason string) error
}

// TxRepos are repositories bound to one open transaction.
type TxRepos interface {
	Users() UserRepository
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
}

// TxManager runs fn inside a transaction. Returning an error from fn rolls
// back every write made through r; returning nil commits them together.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(r TxRepos) error) error
}
