package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAnalyticsTrack(t *testing.T) {
	before := testutil.ToFloat64(analyticsEventsTotal.WithLabelValues("Chat-message-route", "search"))
	Analytics{}.Track("Chat-message-route", map[string]string{"route": "search"})
	Analytics{}.Track("Chat-message-route", nil)

	assert.Equal(t, before+1, testutil.ToFloat64(analyticsEventsTotal.WithLabelValues("Chat-message-route", "search")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(analyticsEventsTotal.WithLabelValues("Chat-message-route", "")), 1.0)
}

func TestObserveExchange(t *testing.T) {
	before := testutil.ToFloat64(exchangeStatusTotal.WithLabelValues("complete"))
	ObserveExchange("complete", 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(exchangeStatusTotal.WithLabelValues("complete")))

	ObserveExchange("", time.Second)
	assert.GreaterOrEqual(t, testutil.ToFloat64(exchangeStatusTotal.WithLabelValues("unknown")), 1.0)
}

func TestObserveReplay(t *testing.T) {
	before := testutil.ToFloat64(framesSentTotal.WithLabelValues("text"))
	ObserveFrame("text")
	ObserveFrame("text")
	assert.Equal(t, before+2, testutil.ToFloat64(framesSentTotal.WithLabelValues("text")))

	ObserveStream("complete")
	assert.GreaterOrEqual(t, testutil.ToFloat64(streamsTotal.WithLabelValues("complete")), 1.0)
}
