// Package observe holds the prometheus collectors shared by the bridge and
// the teardown coordinator.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediactl_bridge_requests_total",
		Help: "Control messages received, by request channel.",
	}, []string{"channel"})

	// BridgeFailures counts requests that were dropped without a response.
	// The wire protocol has no error channel, so this is the only place a
	// failed request becomes visible outside the logs.
	BridgeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediactl_bridge_failures_total",
		Help: "Control messages that failed and produced no response, by request channel.",
	}, []string{"channel"})

	Teardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediactl_teardowns_total",
		Help: "Resources removed by the teardown coordinator, by resource kind.",
	}, []string{"kind"})
)
