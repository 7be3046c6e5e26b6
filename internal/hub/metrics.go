//nolint:gochecknoglobals
package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelsMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "planhub",
		Name:      "channels",
		Help:      "The number of active project channels",
	})

	subscriptionsMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "planhub",
		Name:      "subscriptions",
		Help:      "The number of channel subscriptions",
	})

	eventsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "planhub",
		Name:      "events_routed",
		Help:      "The total number of events routed",
	}, []string{"kind"})

	droppedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "planhub",
		Name:      "events_dropped",
		Help:      "The total number of deliveries to dead subscribers",
	})
)
