// Package metrics exposes the Prometheus counters shared by the three
// servers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oidcflow"

type Metrics struct {
	registry *prometheus.Registry

	codesIssued   prometheus.Counter
	codeRedeems   *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	guardResults  *prometheus.CounterVec
	jwksFetches   *prometheus.CounterVec
	callbacks     *prometheus.CounterVec
	introspection *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_codes_issued_total",
			Help:      "Authorization codes issued by the authorize endpoint.",
		}),
		codeRedeems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_code_redemptions_total",
			Help:      "Authorization code redemption attempts by result.",
		}, []string{"result"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Signed tokens issued by kind.",
		}, []string{"kind"}),
		guardResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bearer_guard_requests_total",
			Help:      "Bearer guarded requests by result.",
		}, []string{"result"}),
		jwksFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_fetches_total",
			Help:      "JWKS document fetches by provider and result.",
		}, []string{"provider", "result"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_callbacks_total",
			Help:      "Relying party callbacks by provider and result.",
		}, []string{"provider", "result"}),
		introspection: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_introspections_total",
			Help:      "Opaque access token introspections by provider and result.",
		}, []string{"provider", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.codesIssued,
		m.codeRedeems,
		m.tokensIssued,
		m.guardResults,
		m.jwksFetches,
		m.callbacks,
		m.introspection,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) CodeIssued() {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *Metrics) CodeRedeemed(result string) {
	if m == nil {
		return
	}
	m.codeRedeems.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) GuardResult(result string) {
	if m == nil {
		return
	}
	m.guardResults.WithLabelValues(result).Inc()
}

func (m *Metrics) JWKSFetch(provider, result string) {
	if m == nil {
		return
	}
	m.jwksFetches.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Callback(provider, result string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(provider, result).Inc()
}

func (m *Metrics) Introspection(provider, result string) {
	if m == nil {
		return
	}
	m.introspection.WithLabelValues(provider, result).Inc()
}
