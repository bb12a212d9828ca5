package metrics

import (
	"errors"
	"testing"

	"github.com/berfenger/zeroexport2mqtt/internal/core/payload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLimiterMetrics(t *testing.T) {

	reg := prometheus.NewRegistry()
	m := NewLimiterMetrics(reg)

	m.FeedUpdated(210.5)
	m.BurnUpdated(330)
	m.LimitSet(540)
	m.LimitSet(560)
	m.LimitFailed(600)

	assert.Equal(t, 210.5, testutil.ToFloat64(m.feed))
	assert.Equal(t, 330.0, testutil.ToFloat64(m.burn))
	assert.Equal(t, 560.0, testutil.ToFloat64(m.limit))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("failed")))
}

func TestDropReasons(t *testing.T) {

	reg := prometheus.NewRegistry()
	m := NewLimiterMetrics(reg)

	_, err := payload.Extract([]byte(`{"power":"n/a"}`), []string{"power"})
	m.MessageDropped("inverter/status", err)
	_, err = payload.Extract([]byte(`{}`), []string{"power"})
	m.MessageDropped("inverter/status", err)
	m.MessageDropped("inverter/status", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("inverter/status", "format")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("inverter/status", "path")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("inverter/status", "other")))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 6, count, "three gauges and three drop series")
}
