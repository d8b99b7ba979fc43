// ABOUTME: Prometheus metrics for the bridge
// ABOUTME: Tracks connections, requests by op and dropped messages
package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "minitester",
		Subsystem: "bridge",
		Name:      "connections",
		Help:      "Open control connections",
	})

	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minitester",
		Subsystem: "bridge",
		Name:      "requests_total",
		Help:      "Control requests by operation",
	}, []string{"op"})

	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "minitester",
		Subsystem: "bridge",
		Name:      "dropped_messages_total",
		Help:      "State events dropped because a connection's send buffer was full",
	})
)
