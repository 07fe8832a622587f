package repotest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
)

type Users struct{ s *Store }

func (r *Users) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("users.Create"); err != nil {
		return err
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.s.st.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&user.BaseModel)
	r.s.st.users[user.ID] = *user
	return nil
}

func (r *Users) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("users.FindByID"); err != nil {
		return nil, err
	}
	u, ok := r.s.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("users.FindByEmail"); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Users) SetDefaultAddress(_ context.Context, id uuid.UUID, addr models.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("users.SetDefaultAddress"); err != nil {
		return err
	}
	u, ok := r.s.st.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.DefaultAddress = addr
	u.UpdatedAt = r.s.tick()
	r.s.st.users[id] = u
	return nil
}

type Products struct{ s *Store }

// withVariants attaches live variants. Callers hold s.mu.
func (r *Products) withVariants(p models.Product) models.Product {
	p.Variants = nil
	for _, v := range r.s.st.variants {
		if v.ProductID == p.ID && !v.IsDeleted {
			p.Variants = append(p.Variants, v)
		}
	}
	sortByCreated(p.Variants, func(v models.Variant) time.Time { return v.CreatedAt }, false)
	return p
}

// variant returns a variant with its product attached. Callers hold s.mu.
func (r *Products) variant(id uuid.UUID) (models.Variant, bool) {
	v, ok := r.s.st.variants[id]
	if !ok {
		return models.Variant{}, false
	}
	if p, ok := r.s.st.products[v.ProductID]; ok {
		p.Variants = nil
		v.Product = &p
	}
	return v, true
}

func (r *Products) List(_ context.Context, filter repository.ProductFilter) ([]models.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.List"); err != nil {
		return nil, 0, err
	}
	var out []models.Product
	search := strings.TrimSpace(filter.Search)
	for _, p := range r.s.st.products {
		if p.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if search != "" && !containsFold(p.Name, search) && !containsFold(p.Description, search) {
			continue
		}
		out = append(out, r.withVariants(p))
	}
	sortByCreated(out, func(p models.Product) time.Time { return p.CreatedAt }, true)
	return paginate(out, filter.Page), int64(len(out)), nil
}

func (r *Products) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.FindByID"); err != nil {
		return nil, err
	}
	p, ok := r.s.st.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p = r.withVariants(p)
	return &p, nil
}

func (r *Products) Create(_ context.Context, product *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.Create"); err != nil {
		return err
	}
	for _, p := range r.s.st.products {
		if p.Slug == product.Slug {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&product.BaseModel)
	for i := range product.Variants {
		product.Variants[i].ProductID = product.ID
		r.s.stamp(&product.Variants[i].BaseModel)
		v := product.Variants[i]
		v.Product = nil
		r.s.st.variants[v.ID] = v
	}
	stored := *product
	stored.Variants = nil
	r.s.st.products[product.ID] = stored
	return nil
}

func (r *Products) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.SoftDelete"); err != nil {
		return err
	}
	p, ok := r.s.st.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.IsDeleted = true
	r.s.st.products[id] = p
	for vid, v := range r.s.st.variants {
		if v.ProductID == id {
			v.IsDeleted = true
			r.s.st.variants[vid] = v
		}
	}
	return nil
}

func (r *Products) CreateVariant(_ context.Context, variant *models.Variant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.CreateVariant"); err != nil {
		return err
	}
	if _, ok := r.s.st.products[variant.ProductID]; !ok {
		return repository.ErrNotFound
	}
	r.s.stamp(&variant.BaseModel)
	v := *variant
	v.Product = nil
	r.s.st.variants[v.ID] = v
	return nil
}

func (r *Products) FindVariant(_ context.Context, id uuid.UUID) (*models.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.FindVariant"); err != nil {
		return nil, err
	}
	v, ok := r.variant(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *Products) SetStock(_ context.Context, variantID uuid.UUID, stock int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.SetStock"); err != nil {
		return err
	}
	v, ok := r.s.st.variants[variantID]
	if !ok {
		return repository.ErrNotFound
	}
	v.Stock = stock
	r.s.st.variants[variantID] = v
	return nil
}

func (r *Products) DecrementStock(_ context.Context, variantID uuid.UUID, qty int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.DecrementStock"); err != nil {
		return false, err
	}
	v, ok := r.s.st.variants[variantID]
	if !ok || v.Stock < qty {
		return false, nil
	}
	v.Stock -= qty
	r.s.st.variants[variantID] = v
	return true, nil
}

func (r *Products) IncrementStock(_ context.Context, variantID uuid.UUID, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("products.IncrementStock"); err != nil {
		return err
	}
	v, ok := r.s.st.variants[variantID]
	if !ok {
		return repository.ErrNotFound
	}
	v.Stock += qty
	r.s.st.variants[variantID] = v
	return nil
}

type Carts struct{ s *Store }

// hydrate attaches the variant and product. Callers hold s.mu.
func (r *Carts) hydrate(e models.CartEntry) models.CartEntry {
	if v, ok := (&Products{r.s}).variant(e.VariantID); ok {
		e.Variant = &v
	}
	return e
}

func (r *Carts) ListByUser(_ context.Context, userID uuid.UUID) ([]models.CartEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("carts.ListByUser"); err != nil {
		return nil, err
	}
	var out []models.CartEntry
	for _, e := range r.s.st.carts {
		if e.UserID == userID {
			out = append(out, r.hydrate(e))
		}
	}
	sortByCreated(out, func(e models.CartEntry) time.Time { return e.CreatedAt }, false)
	return out, nil
}

func (r *Carts) FindByID(_ context.Context, id uuid.UUID) (*models.CartEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("carts.FindByID"); err != nil {
		return nil, err
	}
	e, ok := r.s.st.carts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e = r.hydrate(e)
	return &e, nil
}

func (r *Carts) FindByUserAndVariant(_ context.Context, userID, variantID uuid.UUID) (*models.CartEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("carts.FindByUserAndVariant"); err != nil {
		return nil, err
	}
	for _, e := range r.s.st.carts {
		if e.UserID == userID && e.VariantID == variantID {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Carts) Create(_ context.Context, entry *models.CartEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("carts.Create"); err != nil {
		return err
	}
	for _, e := range r.s.st.carts {
		if e.UserID == entry.UserID && e.VariantID == entry.VariantID {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&entry.BaseModel)
	stored := *entry
	stored.Variant = nil
	r.s.st.carts[entry.ID] = stored
	return nil
}

func (r *Carts) UpdateQuantity(_ context.Context, id uuid.UUID, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("carts.UpdateQuantity"); err != nil {
		return err
	}
	e, ok := r.s.st.carts[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Quantity = qty
	e.UpdatedAt = r.s.tick()
	r.s.st.carts[id] = e
	return nil
}

func (r *Carts) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("carts.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.st.carts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.carts, id)
	return nil
}

func (r *Carts) ClearByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("carts.ClearByUser"); err != nil {
		return 0, err
	}
	var n int64
	for id, e := range r.s.st.carts {
		if e.UserID == userID {
			delete(r.s.st.carts, id)
			n++
		}
	}
	return n, nil
}

type Orders struct{ s *Store }

func (r *Orders) Create(_ context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("orders.Create"); err != nil {
		return err
	}
	for _, o := range r.s.st.orders {
		if o.OrderNumber == order.OrderNumber {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&order.BaseModel)
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
		r.s.stamp(&order.Lines[i].BaseModel)
	}
	r.s.st.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r *Orders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("orders.FindByID"); err != nil {
		return nil, err
	}
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (r *Orders) List(_ context.Context, filter repository.OrderFilter) ([]models.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("orders.List"); err != nil {
		return nil, 0, err
	}
	var out []models.Order
	for _, o := range r.s.st.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sortByCreated(out, func(o models.Order) time.Time { return o.PlacedAt }, true)
	return paginate(out, filter.Page), int64(len(out)), nil
}

func (r *Orders) update(op string, id uuid.UUID, fn func(o *models.Order) bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(op); err != nil {
		return false, err
	}
	o, ok := r.s.st.orders[id]
	if !ok {
		return false, nil
	}
	if !fn(&o) {
		return false, nil
	}
	o.UpdatedAt = r.s.tick()
	r.s.st.orders[id] = o
	return true, nil
}

func (r *Orders) UpdateStatus(_ context.Context, id uuid.UUID, status models.OrderStatus) error {
	ok, err := r.update("orders.UpdateStatus", id, func(o *models.Order) bool {
		o.Status = status
		return true
	})
	if err == nil && !ok {
		return repository.ErrNotFound
	}
	return err
}

func (r *Orders) SetGatewayOrder(_ context.Context, id uuid.UUID, gatewayOrderID string, status models.OrderStatus) error {
	ok, err := r.update("orders.SetGatewayOrder", id, func(o *models.Order) bool {
		if o.IsPaid {
			return false
		}
		o.GatewayOrderID = gatewayOrderID
		o.Status = status
		return true
	})
	if err == nil && !ok {
		return repository.ErrNotFound
	}
	return err
}

func (r *Orders) MarkPaid(_ context.Context, id uuid.UUID, paymentID string, status models.OrderStatus) (bool, error) {
	return r.update("orders.MarkPaid", id, func(o *models.Order) bool {
		if o.IsPaid {
			return false
		}
		o.IsPaid = true
		o.Status = status
		o.GatewayPaymentID = paymentID
		return true
	})
}

type Shipments struct{ s *Store }

func (r *Shipments) Create(_ context.Context, shipment *models.Shipment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("shipments.Create"); err != nil {
		return err
	}
	for _, sh := range r.s.st.shipments {
		if sh.OrderLineID == shipment.OrderLineID && sh.SequenceIndex == shipment.SequenceIndex {
			return repository.ErrDuplicate
		}
	}
	r.s.stamp(&shipment.BaseModel)
	r.s.st.shipments[shipment.ID] = *shipment
	return nil
}

func (r *Shipments) FindByLineAndSequence(_ context.Context, lineID uuid.UUID, seq int) (*models.Shipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("shipments.FindByLineAndSequence"); err != nil {
		return nil, err
	}
	for _, sh := range r.s.st.shipments {
		if sh.OrderLineID == lineID && sh.SequenceIndex == seq {
			return &sh, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Shipments) MaxSequence(_ context.Context, lineID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("shipments.MaxSequence"); err != nil {
		return 0, err
	}
	last := 0
	for _, sh := range r.s.st.shipments {
		if sh.OrderLineID == lineID && sh.SequenceIndex > last {
			last = sh.SequenceIndex
		}
	}
	return last, nil
}

func (r *Shipments) ListByOrder(_ context.Context, orderID uuid.UUID) ([]models.Shipment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("shipments.ListByOrder"); err != nil {
		return nil, err
	}
	var out []models.Shipment
	for _, sh := range r.s.st.shipments {
		if sh.OrderID == orderID {
			out = append(out, sh)
		}
	}
	sortByCreated(out, func(sh models.Shipment) time.Time { return sh.CreatedAt }, false)
	return out, nil
}

func (r *Shipments) MarkBooked(_ context.Context, id uuid.UUID, awb, carrier string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("shipments.MarkBooked"); err != nil {
		return err
	}
	sh, ok := r.s.st.shipments[id]
	if !ok {
		return repository.ErrNotFound
	}
	sh.AWB = awb
	sh.Carrier = carrier
	sh.Status = models.ShipmentBooked
	sh.LastError = ""
	sh.UpdatedAt = r.s.tick()
	r.s.st.shipments[id] = sh
	return nil
}

func (r *Shipments) RecordFailure(_ context.Context, id uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter("shipments.RecordFailure"); err != nil {
		return err
	}
	sh, ok := r.s.st.shipments[id]
	if !ok || sh.Status != models.ShipmentNotCreated {
		return repository.ErrNotFound
	}
	sh.LastError = reason
	sh.UpdatedAt = r.s.tick()
	r.s.st.shipments[id] = sh
	return nil
}

var (
	_ repository.UserRepository     = (*Users)(nil)
	_ repository.ProductRepository  = (*Products)(nil)
	_ repository.CartRepository     = (*Carts)(nil)
	_ repository.OrderRepository    = (*Orders)(nil)
	_ repository.ShipmentRepository = (*Shipments)(nil)
	_ repository.TxManager          = (*Store)(nil)
)
