package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memgate"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	InvitesTotal       *prometheus.CounterVec
	RedemptionsTotal   *prometheus.CounterVec
	CapabilityErrors   *prometheus.CounterVec
	RedemptionDuration prometheus.Histogram
}

// NewRegistry creates a registry with the memgate metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		InvitesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invites_total",
			Help:      "Roster rows processed by the issuer, by group and outcome.",
		}, []string{"group", "outcome"}),
		RedemptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Redemption requests handled, by outcome.",
		}, []string{"outcome"}),
		CapabilityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_errors_total",
			Help:      "Failed calls to the chat platform or mail transport.",
		}, []string{"op", "kind"}),
		RedemptionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "redemption_duration_seconds",
			Help:      "Time spent handling one redemption request.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
	reg.MustRegister(r.InvitesTotal, r.RedemptionsTotal, r.CapabilityErrors, r.RedemptionDuration)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// MustRegister registers additional collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.registry.MustRegister(cs...)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// InviteOutcome counts one processed roster row.
func (r *Registry) InviteOutcome(group, outcome string) {
	if r == nil {
		return
	}
	r.InvitesTotal.WithLabelValues(group, outcome).Inc()
}

// RedemptionOutcome counts one handled request and records its duration.
func (r *Registry) RedemptionOutcome(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.RedemptionsTotal.WithLabelValues(outcome).Inc()
	r.RedemptionDuration.Observe(elapsed.Seconds())
}

// CapabilityError counts one failed capability call.
func (r *Registry) CapabilityError(op, kind string) {
	if r == nil {
		return
	}
	r.CapabilityErrors.WithLabelValues(op, kind).Inc()
}
