// ABOUTME: Prometheus metrics for the session engine
// ABOUTME: Tracks live sessions, device bindings, transitions and latched errors
package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "minitester",
		Subsystem: "session",
		Name:      "sessions",
		Help:      "Sessions currently allocated",
	})

	bindingsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "minitester",
		Subsystem: "session",
		Name:      "device_bindings",
		Help:      "Device bindings currently held",
	})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minitester",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "State transitions by target state",
	}, []string{"state"})

	failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minitester",
		Subsystem: "session",
		Name:      "errors_total",
		Help:      "Latched session errors by kind",
	}, []string{"kind"})

	deviceOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minitester",
		Subsystem: "session",
		Name:      "device_opens_total",
		Help:      "Device open attempts by driver and result",
	}, []string{"driver", "result"})
)
