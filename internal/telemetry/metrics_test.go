package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsRecordsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.OrderPlaced(ctx, "COD")
	m.OrderPlaced(ctx, "ONLINE")
	m.CarrierLogin(ctx, "ok")
	m.ObserveUpstream(ctx, "carrier", "book", time.Now())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		names[md.Name] = true
		if md.Name == "storefront.orders.placed" {
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.EqualValues(t, 2, total)
		}
	}
	assert.True(t, names["storefront.orders.placed"])
	assert.True(t, names["storefront.carrier.logins"])
	assert.True(t, names["storefront.upstream.duration"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderPlaced(context.Background(), "COD")
		m.ShipmentDispatched(context.Background(), "booked")
		m.ObserveUpstream(context.Background(), "gateway", "create_order", time.Now())
	})
}
