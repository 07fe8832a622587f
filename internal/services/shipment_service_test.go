package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/models"
)

var testPickup = config.Pickup{
	WarehouseName: "Main",
	Name:          "Storefront Ops",
	Phone:         "9000000000",
	Address:       "Plot 4, Industrial Area",
	City:          "Pune",
	State:         "MH",
	Pincode:       "411001",
}

// bookingServer fakes the carrier login and booking endpoints.
type bookingServer struct {
	*httptest.Server
	logins   atomic.Int32
	bookings atomic.Int32

	mu       sync.Mutex
	payloads []BookingPayload
	tokens   []string
	// respond writes the answer to the n-th booking (1-based).
	respond func(w http.ResponseWriter, n int32)
}

func newBookingServer(t *testing.T) *bookingServer {
	t.Helper()
	bs := &bookingServer{respond: bookedWith("AWB123")}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		n := bs.logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": true, "data": "tok-" + string(rune('0'+n))})
	})
	mux.HandleFunc("/api/shipments2", func(w http.ResponseWriter, r *http.Request) {
		n := bs.bookings.Add(1)
		var p BookingPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		bs.mu.Lock()
		bs.payloads = append(bs.payloads, p)
		bs.tokens = append(bs.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		bs.mu.Unlock()
		bs.respond(w, n)
	})
	bs.Server = httptest.NewServer(mux)
	t.Cleanup(bs.Close)
	return bs
}

func bookedWith(awb string) func(http.ResponseWriter, int32) {
	return func(w http.ResponseWriter, _ int32) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   map[string]any{"awb_number": awb, "courier_name": "Xpress"},
		})
	}
}

func (f *fixture) shipments(bs *bookingServer) *ShipmentService {
	client := NewCarrierClient(bs.URL, "ops@example.com", "pw", 2*time.Second, nil)
	tokens := NewCarrierTokenCache(client, time.Hour, time.Minute)
	return NewShipmentService(f.store.Orders(), f.store.Products(), f.store.Shipments(),
		tokens, client, testPickup, nil, nil, nil)
}

func (f *fixture) codOrder(t *testing.T, qty int) *models.Order {
	t.Helper()
	x := f.variant("X", "500", 10)
	f.fill(t, f.customer, x, qty)
	res, err := f.checkout(nil).Checkout(context.Background(), f.customer, codInput())
	require.NoError(t, err)
	return res.Order
}

func (f *fixture) shipmentRows(t *testing.T, order models.Order) []models.Shipment {
	t.Helper()
	rows, err := f.store.Shipments().ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	return rows
}

func TestDispatchBooksShipment(t *testing.T) {
	f := newFixture(t)
	bs := newBookingServer(t)
	order := f.codOrder(t, 2)
	line := order.Lines[0]

	sh, err := f.shipments(bs).Dispatch(context.Background(), f.admin, DispatchInput{OrderID: order.ID, OrderLineID: line.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentBooked, sh.Status)
	assert.Equal(t, "AWB123", sh.AWB)
	assert.Equal(t, "Xpress", sh.Carrier)
	assert.Equal(t, 1, sh.SequenceIndex)

	require.Len(t, bs.payloads, 1)
	p := bs.payloads[0]
	assert.Equal(t, PaymentTypeCOD, p.PaymentType)
	assert.Equal(t, 1000.0, p.CollectableAmount)
	assert.Equal(t, 600, p.PackageWeight)
	assert.Equal(t, "560001", p.Consignee.Pincode)
	assert.Equal(t, "411001", p.Pickup.Pincode)
	assert.Equal(t, "tok-1", bs.tokens[0])

	stored, err := f.store.Orders().FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderShipped, stored.Status)

	// A second parcel for the same line gets the next sequence index.
	bs.respond = bookedWith("AWB124")
	next, err := f.shipments(bs).Dispatch(context.Background(), f.admin, DispatchInput{OrderID: order.ID, OrderLineID: line.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, next.SequenceIndex)
	assert.NotEqual(t, bs.payloads[0].OrderNumber, bs.payloads[1].OrderNumber)
}

func TestDispatchWithoutAWBLeavesShipmentNotCreated(t *testing.T) {
	f := newFixture(t)
	bs := newBookingServer(t)
	bs.respond = func(w http.ResponseWriter, _ int32) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": false, "message": "pincode not serviceable"})
	}
	order := f.codOrder(t, 1)
	line := order.Lines[0]

	_, err := f.shipments(bs).Dispatch(context.Background(), f.admin, DispatchInput{OrderID: order.ID, OrderLineID: line.ID})
	requireKind(t, err, apperr.KindUpstream)
	appErr, _ := apperr.As(err)
	assert.Contains(t, appErr.Details["payload"], "pincode not serviceable")
	assert.NotEmpty(t, appErr.Details["shipment_id"])

	rows := f.shipmentRows(t, *order)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ShipmentNotCreated, rows[0].Status)
	assert.Empty(t, rows[0].AWB)
	assert.Contains(t, rows[0].LastError, "pincode not serviceable")
	assert.Equal(t, int32(1), bs.bookings.Load(), "bookings are never retried")

	stored, err := f.store.Orders().FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, stored.Status)

	// Retrying the same sequence reuses the NOT_CREATED row.
	bs.respond = bookedWith("AWB200")
	seq := 1
	sh, err := f.shipments(bs).Dispatch(context.Background(), f.admin,
		DispatchInput{OrderID: order.ID, OrderLineID: line.ID, SequenceIndex: &seq})
	require.NoError(t, err)
	assert.Equal(t, rows[0].ID, sh.ID)
	rows = f.shipmentRows(t, *order)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ShipmentBooked, rows[0].Status)
	assert.Empty(t, rows[0].LastError)
}

func TestDispatchLogsInAgainAfterUnauthorized(t *testing.T) {
	f := newFixture(t)
	bs := newBookingServer(t)
	bs.respond = func(w http.ResponseWriter, n int32) {
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":false,"message":"token expired"}`))
			return
		}
		bookedWith("AWB777")(w, n)
	}
	order := f.codOrder(t, 1)

	sh, err := f.shipments(bs).Dispatch(context.Background(), f.admin,
		DispatchInput{OrderID: order.ID, OrderLineID: order.Lines[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "AWB777", sh.AWB)
	assert.Equal(t, int32(2), bs.logins.Load())
	assert.Equal(t, []string{"tok-1", "tok-2"}, bs.tokens)
}

func TestDispatchServerErrorIsNotRetried(t *testing.T) {
	f := newFixture(t)
	bs := newBookingServer(t)
	bs.respond = func(w http.ResponseWriter, _ int32) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`upstream exploded`))
	}
	order := f.codOrder(t, 1)

	_, err := f.shipments(bs).Dispatch(context.Background(), f.admin,
		DispatchInput{OrderID: order.ID, OrderLineID: order.Lines[0].ID})
	requireKind(t, err, apperr.KindUpstream)
	appErr, _ := apperr.As(err)
	assert.True(t, appErr.Retryable)
	assert.Equal(t, int32(1), bs.bookings.Load())
}

func TestDispatchGuards(t *testing.T) {
	f := newFixture(t)
	bs := newBookingServer(t)
	svc := f.shipments(bs)
	ctx := context.Background()
	order := f.codOrder(t, 1)
	line := order.Lines[0]

	_, err := svc.Dispatch(ctx, f.customer, DispatchInput{OrderID: order.ID, OrderLineID: line.ID})
	requireKind(t, err, apperr.KindForbidden)

	_, err = svc.Dispatch(ctx, f.admin, DispatchInput{OrderID: order.ID, OrderLineID: order.ID})
	requireKind(t, err, apperr.KindNotFound)

	zero := 0
	_, err = svc.Dispatch(ctx, f.admin, DispatchInput{OrderID: order.ID, OrderLineID: line.ID, SequenceIndex: &zero})
	requireKind(t, err, apperr.KindValidation)

	one := 1
	_, err = svc.Dispatch(ctx, f.admin, DispatchInput{OrderID: order.ID, OrderLineID: line.ID, SequenceIndex: &one})
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, f.admin, DispatchInput{OrderID: order.ID, OrderLineID: line.ID, SequenceIndex: &one})
	requireKind(t, err, apperr.KindConflict)
	assert.Equal(t, int32(1), bs.bookings.Load())
}

func TestDispatchRequiresPaymentForOnlineOrders(t *testing.T) {
	f := newFixture(t)
	bs := newBookingServer(t)
	order := f.onlineOrder(t)

	_, err := f.shipments(bs).Dispatch(context.Background(), f.admin,
		DispatchInput{OrderID: order.ID, OrderLineID: order.Lines[0].ID})
	requireKind(t, err, apperr.KindConflict)
	assert.Zero(t, bs.bookings.Load())
	assert.Empty(t, f.shipmentRows(t, *order))
}

func TestListShipmentsForOrder(t *testing.T) {
	f := newFixture(t)
	bs := newBookingServer(t)
	svc := f.shipments(bs)
	order := f.codOrder(t, 1)
	_, err := svc.Dispatch(context.Background(), f.admin, DispatchInput{OrderID: order.ID, OrderLineID: order.Lines[0].ID})
	require.NoError(t, err)

	list, err := svc.ListForOrder(context.Background(), f.customer, order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListForOrder(context.Background(), f.other, order.ID)
	requireKind(t, err, apperr.KindForbidden)
}
