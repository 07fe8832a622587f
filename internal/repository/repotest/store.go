// Package repotest provides an in-memory implementation of the repository
// contracts for tests. Transactions snapshot the whole store and restore it
// when the callback fails, and any operation can be made to fail on demand.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
)

type state struct {
	users     map[uuid.UUID]models.User
	products  map[uuid.UUID]models.Product
	variants  map[uuid.UUID]models.Variant
	carts     map[uuid.UUID]models.CartEntry
	orders    map[uuid.UUID]models.Order
	shipments map[uuid.UUID]models.Shipment
}

func (st state) clone() state {
	c := state{
		users:     make(map[uuid.UUID]models.User, len(st.users)),
		products:  make(map[uuid.UUID]models.Product, len(st.products)),
		variants:  make(map[uuid.UUID]models.Variant, len(st.variants)),
		carts:     make(map[uuid.UUID]models.CartEntry, len(st.carts)),
		orders:    make(map[uuid.UUID]models.Order, len(st.orders)),
		shipments: make(map[uuid.UUID]models.Shipment, len(st.shipments)),
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	for k, v := range st.variants {
		c.variants[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = copyOrder(v)
	}
	for k, v := range st.shipments {
		c.shipments[k] = v
	}
	return c
}

// Store is an in-memory database.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	st       state
	failures map[string]error
	clock    time.Time
	calls    map[string]int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st:       state{}.clone(),
		failures: map[string]error{},
		calls:    map[string]int{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FailOn makes every later call to op return err until cleared with a nil err.
// Operation names look like "carts.ClearByUser" or "orders.Create".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls reports how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter records the call and returns an injected failure. Callers hold s.mu.
func (s *Store) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

// tick returns a strictly increasing timestamp. Callers hold s.mu.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) stamp(b *models.BaseModel) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := s.tick()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func (s *Store) Users() *Users         { return &Users{s} }
func (s *Store) Products() *Products   { return &Products{s} }
func (s *Store) Carts() *Carts         { return &Carts{s} }
func (s *Store) Orders() *Orders       { return &Orders{s} }
func (s *Store) Shipments() *Shipments { return &Shipments{s} }

type txRepos struct{ s *Store }

func (r txRepos) Users() repository.UserRepository       { return r.s.Users() }
func (r txRepos) Products() repository.ProductRepository { return r.s.Products() }
func (r txRepos) Carts() repository.CartRepository       { return r.s.Carts() }
func (r txRepos) Orders() repository.OrderRepository     { return r.s.Orders() }

// WithinTx serialises transactions and restores the pre-transaction state when
// fn returns an error.
func (s *Store) WithinTx(ctx context.Context, fn func(r repository.TxRepos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	if err := s.enter("tx.Begin"); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(txRepos{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("tx.Commit"); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// SeedUser inserts a user and returns it.
func (s *Store) SeedUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamp(&u.BaseModel)
	s.st.users[u.ID] = u
	return u
}

// SeedProduct inserts a product and its variants and returns the variants with
// their generated ids.
func (s *Store) SeedProduct(p models.Product, variants ...models.Variant) (models.Product, []models.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Variants = nil
	s.stamp(&p.BaseModel)
	s.st.products[p.ID] = p
	out := make([]models.Variant, 0, len(variants))
	for _, v := range variants {
		v.ProductID = p.ID
		v.Product = nil
		s.stamp(&v.BaseModel)
		s.st.variants[v.ID] = v
		out = append(out, v)
	}
	return p, out
}

// CartSize returns the number of cart entries the user holds.
func (s *Store) CartSize(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.st.carts {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

// LineCount returns the number of stored order lines across all orders.
func (s *Store) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.st.orders {
		n += len(o.Lines)
	}
	return n
}

// Stock returns the current stock of a variant.
func (s *Store) Stock(variantID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.variants[variantID].Stock
}

func copyOrder(o models.Order) models.Order {
	lines := make([]models.OrderLine, len(o.Lines))
	copy(lines, o.Lines)
	o.Lines = lines
	return o
}

func paginate[T any](items []T, p repository.Page) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	items = items[p.Offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortByCreated[T any](items []T, created func(T) time.Time, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return created(items[i]).After(created(items[j]))
		}
		return created(items[i]).Before(created(items[j]))
	})
}
