// Package metrics exposes the limiter state as Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/berfenger/zeroexport2mqtt/internal/core/payload"
	"github.com/berfenger/zeroexport2mqtt/internal/core/port"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const NAMESPACE = "zeroexport"

type LimiterMetrics struct {
	feed     prometheus.Gauge
	burn     prometheus.Gauge
	limit    prometheus.Gauge
	commands *prometheus.CounterVec
	dropped  *prometheus.CounterVec
}

func NewLimiterMetrics(reg prometheus.Registerer) *LimiterMetrics {
	factory := promauto.With(reg)
	return &LimiterMetrics{
		feed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "feed_watts",
			Help:      "Last power production reported by the inverter.",
		}),
		burn: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "burn_watts",
			Help:      "Last power consumption reported by the smartmeter.",
		}),
		limit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "limit_watts",
			Help:      "Inverter power limit currently applied.",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "limit_commands_total",
			Help:      "Limit commands published, by result.",
		}, []string{"result"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "dropped_messages_total",
			Help:      "Telemetry messages dropped because no reading could be extracted.",
		}, []string{"topic", "reason"}),
	}
}

func (m *LimiterMetrics) FeedUpdated(watts float64) {
	m.feed.Set(watts)
}

func (m *LimiterMetrics) BurnUpdated(watts float64) {
	m.burn.Set(watts)
}

func (m *LimiterMetrics) LimitSet(watts int) {
	m.limit.Set(float64(watts))
	m.commands.WithLabelValues("sent").Inc()
}

func (m *LimiterMetrics) LimitFailed(int) {
	m.commands.WithLabelValues("failed").Inc()
}

func (m *LimiterMetrics) MessageDropped(topic string, err error) {
	m.dropped.WithLabelValues(topic, dropReason(err)).Inc()
}

func dropReason(err error) string {
	var de *payload.DecodeError
	var pe *payload.PathError
	var fe *payload.FormatError
	switch {
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &pe):
		return "path"
	case errors.As(err, &fe):
		return "format"
	default:
		return "other"
	}
}

// ensure interface compliance
var _ port.LimiterObserver = (*LimiterMetrics)(nil)
var _ port.DropObserver = (*LimiterMetrics)(nil)
