// Package metrics exposes the NAT's Prometheus counters and gauges
// (spec §7, SPEC_FULL §1.E domain stack).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// DroppedCalls counts endpoints freed by a BSC disconnect (spec §4.7 and
// §7's "rate counters").
var DroppedCalls = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "bscnat",
	Name:      "dropped_calls_total",
	Help:      "Endpoints freed because their owning BSC disconnected.",
})

// EndpointsInUse reports the current in-use endpoint count per BSC.
var EndpointsInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "bscnat",
	Name:      "endpoints_in_use",
	Help:      "Number of allocated trunk endpoints, labelled by BSC name.",
}, []string{"bsc"})

func init() {
	prometheus.MustRegister(DroppedCalls, EndpointsInUse)
}
