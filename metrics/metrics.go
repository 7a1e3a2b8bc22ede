// ABOUTME: Prometheus metrics for sync cycles and connector calls
// ABOUTME: Exposes a Recorder interface with a Prometheus-backed and a no-op implementation
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the sync engine reports to.
type Recorder interface {
	ObserveCycle(outcome string, duration time.Duration)
	IncConnectorCall(system, op, result string)
	AddContactChanges(system, change string, n int)
	IncLeaseContention()
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	connectorCalls  *prometheus.CounterVec
	contactChanges  *prometheus.CounterVec
	leaseContention prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmsync_cycles_total",
			Help: "Sync cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crmsync_cycle_duration_seconds",
			Help:    "Wall time of a sync cycle.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		connectorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmsync_connector_calls_total",
			Help: "Connector calls by system, operation and result.",
		}, []string{"system", "op", "result"}),
		contactChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crmsync_contact_changes_total",
			Help: "Contact changes applied by sync, by system and kind.",
		}, []string{"system", "change"}),
		leaseContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crmsync_lease_contention_total",
			Help: "Cycles refused because the tenant lease was held.",
		}),
	}

	reg.MustRegister(c.cycles, c.cycleDuration, c.connectorCalls, c.contactChanges, c.leaseContention)
	return c
}

func (c *Collector) ObserveCycle(outcome string, duration time.Duration) {
	c.cycles.WithLabelValues(outcome).Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

func (c *Collector) IncConnectorCall(system, op, result string) {
	c.connectorCalls.WithLabelValues(system, op, result).Inc()
}

func (c *Collector) AddContactChanges(system, change string, n int) {
	if n <= 0 {
		return
	}
	c.contactChanges.WithLabelValues(system, change).Add(float64(n))
}

func (c *Collector) IncLeaseContention() {
	c.leaseContention.Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveCycle(string, time.Duration) {}
func (Nop) IncConnectorCall(string, string, string) {}
func (Nop) AddContactChanges(string, string, int) {}
func (Nop) IncLeaseContention() {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
