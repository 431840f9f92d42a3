// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unraid_console"

var (
	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validations_total",
		Help:      "Credential validations against the remote API, by result and error kind.",
	}, []string{"result", "kind"})

	ClientRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_rebuilds_total",
		Help:      "API client rebuilds, by outcome (connected, disconnected, timeout).",
	}, []string{"outcome"})

	GraphQLRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graphql_requests_total",
		Help:      "GraphQL requests issued to the remote API.",
	}, []string{"operation", "outcome"})

	ServerOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "server_online",
		Help:      "1 when the active server answered the last health query.",
	})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
