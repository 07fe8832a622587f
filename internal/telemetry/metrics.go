package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider installs a Prometheus-backed MeterProvider and returns the
// /metrics handler together with its shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(serviceResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the business counters. A nil *Metrics records nothing.
type Metrics struct {
	cartMutations   metric.Int64Counter
	ordersPlaced    metric.Int64Counter
	checkoutFailed  metric.Int64Counter
	paymentsChecked metric.Int64Counter
	shipments       metric.Int64Counter
	carrierLogins   metric.Int64Counter
	upstreamLatency metric.Float64Histogram
}

// NewMetrics registers the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/example/storefront")
	m := &Metrics{}
	var err error

	if m.cartMutations, err = meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart add, update and remove operations")); err != nil {
		return nil, err
	}
	if m.ordersPlaced, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders created at checkout")); err != nil {
		return nil, err
	}
	if m.checkoutFailed, err = meter.Int64Counter("storefront.checkout.failures",
		metric.WithDescription("Checkouts rejected or rolled back")); err != nil {
		return nil, err
	}
	if m.paymentsChecked, err = meter.Int64Counter("storefront.payments.verifications",
		metric.WithDescription("Payment callbacks verified")); err != nil {
		return nil, err
	}
	if m.shipments, err = meter.Int64Counter("storefront.shipments.dispatches",
		metric.WithDescription("Carrier booking attempts")); err != nil {
		return nil, err
	}
	if m.carrierLogins, err = meter.Int64Counter("storefront.carrier.logins",
		metric.WithDescription("Carrier login calls")); err != nil {
		return nil, err
	}
	if m.upstreamLatency, err = meter.Float64Histogram("storefront.upstream.duration",
		metric.WithDescription("Latency of calls to the payment gateway and carrier"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) CartMutation(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) OrderPlaced(ctx context.Context, paymentMethod string) {
	if m == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", paymentMethod)))
}

func (m *Metrics) CheckoutFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.checkoutFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) PaymentVerified(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.paymentsChecked.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) ShipmentDispatched(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.shipments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) CarrierLogin(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.carrierLogins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveUpstream records how long a call to provider took.
func (m *Metrics) ObserveUpstream(ctx context.Context, provider, op string, started time.Time) {
	if m == nil {
		return
	}
	m.upstreamLatency.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("op", op),
	))
}
