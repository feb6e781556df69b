package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestOrNop(t *testing.T) {
	assert.IsType(t, Nop{}, OrNop(nil))

	c := NewOTelWithMeter(noop.NewMeterProvider().Meter("test"))
	assert.Same(t, c, OrNop(c))
}

func TestOTelCachesInstruments(t *testing.T) {
	c := NewOTelWithMeter(noop.NewMeterProvider().Meter("test"))

	c.IncrementCounter("tracking.delivery.success", map[string]string{"event": "revenue"})
	c.IncrementCounter("tracking.delivery.success", nil)
	c.RecordDuration("tracking.delivery.duration", 25*time.Millisecond, nil)

	assert.Len(t, c.counters, 1)
	assert.Len(t, c.histograms, 1)
}
