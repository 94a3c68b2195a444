package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPrediction(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("ok"))

	RecordPrediction("ok", 15*time.Millisecond)
	RecordPrediction("ok", 20*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(PredictionsTotal.WithLabelValues("ok")))
}

func TestRecordProviderCall(t *testing.T) {
	tests := []struct {
		name   string
		result string
	}{
		{name: "successful read", result: "ok"},
		{name: "missing reading", result: "missing"},
		{name: "timed out read", result: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(ProviderCallsTotal.WithLabelValues(tt.result))
			RecordProviderCall(tt.result)
			assert.Equal(t, before+1, testutil.ToFloat64(ProviderCallsTotal.WithLabelValues(tt.result)))
		})
	}
}

func TestRecordTrendsPurgedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(TrendsPurgedTotal)

	RecordTrendsPurged(0)
	assert.Equal(t, before, testutil.ToFloat64(TrendsPurgedTotal))

	RecordTrendsPurged(3)
	assert.Equal(t, before+3, testutil.ToFloat64(TrendsPurgedTotal))
}

func TestTrackRealtimeClient(t *testing.T) {
	TrackRealtimeClient("sse", true)
	TrackRealtimeClient("sse", true)
	TrackRealtimeClient("sse", false)

	assert.GreaterOrEqual(t, testutil.ToFloat64(RealtimeClients.WithLabelValues("sse")), 1.0)
}

func TestRecordWebhookDelivery(t *testing.T) {
	okBefore := testutil.ToFloat64(WebhookDeliveriesTotal.WithLabelValues("success"))
	failBefore := testutil.ToFloat64(WebhookDeliveriesTotal.WithLabelValues("failed"))

	RecordWebhookDelivery(true)
	RecordWebhookDelivery(false)
	RecordWebhookDelivery(false)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(WebhookDeliveriesTotal.WithLabelValues("success")))
	assert.Equal(t, failBefore+2, testutil.ToFloat64(WebhookDeliveriesTotal.WithLabelValues("failed")))
}
