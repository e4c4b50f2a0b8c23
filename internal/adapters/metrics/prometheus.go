// Package metrics exposes sync and credential counters in the Prometheus
// format.
package metrics

import (
	"net/http"
	"time"

	"github.com/bnema/terms-cli/internal/domain"
	"github.com/bnema/terms-cli/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "terms"

type Prometheus struct {
	registry      *prometheus.Registry
	fetches       *prometheus.CounterVec
	fetchSeconds  *prometheus.HistogramVec
	mutations     *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	conversations prometheus.Gauge
}

var _ ports.Metrics = (*Prometheus)(nil)

// New registers the collectors on a private registry so tests and multiple
// instances do not collide on the default one.
func New() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "fetches_total",
			Help:      "Conversation fetches by mode and outcome.",
		}, []string{"mode", "outcome"}),
		fetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching and merging one conversation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"mode"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutations",
			Name:      "total",
			Help:      "Settled mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "conversations",
			Help:      "Conversations currently held in the local model.",
		}),
	}

	p.registry.MustRegister(p.fetches, p.fetchSeconds, p.mutations, p.refreshes, p.conversations)
	return p
}

func (p *Prometheus) ObserveFetch(mode, outcome string, elapsed time.Duration) {
	p.fetches.WithLabelValues(mode, outcome).Inc()
	if outcome == ports.OutcomeOK {
		p.fetchSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
}

func (p *Prometheus) ObserveMutation(kind domain.MutationKind, outcome string) {
	p.mutations.WithLabelValues(string(kind), outcome).Inc()
}

func (p *Prometheus) ObserveRefresh(outcome string) {
	p.refreshes.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) SetConversations(n int) {
	p.conversations.Set(float64(n))
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
