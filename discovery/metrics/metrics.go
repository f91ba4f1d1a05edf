// Package metrics instruments the Discovery Manager with Prometheus
// gauges and counters (SPEC_FULL.md §4, §9). Observability only: no
// metric here is load-bearing for the state machine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder collects the Discovery Manager's Prometheus series. It is
// safe to share a single Recorder across a Manager's lifetime.
type Recorder struct {
	TableSize       prometheus.Gauge
	PoolOccupancy   prometheus.Gauge
	CleanupRemovals *prometheus.CounterVec
	RegisterOutcome *prometheus.CounterVec
}

// New registers the Discovery Manager's series against reg and
// returns a Recorder ready to use.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		TableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discovery",
			Name:      "registration_table_size",
			Help:      "Current number of registered peer servers.",
		}),
		PoolOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "discovery",
			Name:      "register_pool_occupied_slots",
			Help:      "Number of outbound register pool slots currently in use.",
		}),
		CleanupRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Name:      "cleanup_removals_total",
			Help:      "Registration table entries removed by the cleanup ticker, by reason.",
		}, []string{"reason"}),
		RegisterOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "discovery",
			Name:      "register_outcomes_total",
			Help:      "Outbound registration attempts, by outcome.",
		}, []string{"result"}),
	}

	reg.MustRegister(r.TableSize, r.PoolOccupancy, r.CleanupRemovals, r.RegisterOutcome)
	return r
}
