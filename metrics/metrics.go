/*
Package metrics implements collection of the request admission metrics:
route lookup latency, response codes per route, and authentication
failures by kind. The prometheus backend exposes them on the support
listener under /metrics.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace       = "badged"
	promRouteSubsystem  = "route"
	promServeSubsystem  = "serve"
	promAuthSubsystem   = "auth"
	promSecretSubsystem = "secret"
)

// Metrics is the collection interface consumed by the dispatcher, so
// tests can run without a registry.
type Metrics interface {
	MeasureRouteLookup(start time.Time)
	MeasureServe(route, method string, code int, start time.Time)
	IncNoMatch(method string)
	IncAuthFailure(kind string)
}

// Default is the fallback metrics backend, collecting nothing.
var Default Metrics = &Void{}

// Void is a no-op Metrics backend.
type Void struct{}

func (*Void) MeasureRouteLookup(time.Time)                {}
func (*Void) MeasureServe(string, string, int, time.Time) {}
func (*Void) IncNoMatch(string)                           {}
func (*Void) IncAuthFailure(string)                       {}

// Options for the prometheus backend.
type Options struct {
	// Prefix overrides the metric namespace, defaults to "badged".
	Prefix string

	// EnableRuntimeMetrics adds the Go runtime collectors.
	EnableRuntimeMetrics bool

	// HistogramBuckets overrides the default latency buckets.
	HistogramBuckets []float64
}

// Prometheus implements the prometheus metrics backend.
type Prometheus struct {
	routeLookupM  prometheus.Histogram
	serveM        *prometheus.HistogramVec
	noMatchM      *prometheus.CounterVec
	authFailuresM *prometheus.CounterVec

	registry *prometheus.Registry
	handler  http.Handler
}

// NewPrometheus returns a new Prometheus metrics backend.
func NewPrometheus(opts Options) *Prometheus {
	namespace := promNamespace
	if opts.Prefix != "" {
		namespace = opts.Prefix
	}
	if len(opts.HistogramBuckets) == 0 {
		opts.HistogramBuckets = prometheus.DefBuckets
	}

	routeLookup := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promRouteSubsystem,
		Name:      "lookup_duration_seconds",
		Help:      "Duration in seconds of a route lookup.",
		Buckets:   opts.HistogramBuckets,
	})

	serve := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: promServeSubsystem,
		Name:      "duration_seconds",
		Help:      "Duration in seconds of serving a route.",
		Buckets:   opts.HistogramBuckets,
	}, []string{"route", "method", "code"})

	noMatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promRouteSubsystem,
		Name:      "nomatch_total",
		Help:      "The total of requests resolving to no route.",
	}, []string{"method"})

	authFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: promAuthSubsystem,
		Name:      "failure_total",
		Help:      "The total of failed request authentications by kind.",
	}, []string{"kind"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(routeLookup, serve, noMatch, authFailures)
	if opts.EnableRuntimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Prometheus{
		routeLookupM:  routeLookup,
		serveM:        serve,
		noMatchM:      noMatch,
		authFailuresM: authFailures,
		registry:      registry,
		handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
}

// Handler returns the /metrics scrape handler.
func (p *Prometheus) Handler() http.Handler { return p.handler }

func (p *Prometheus) MeasureRouteLookup(start time.Time) {
	p.routeLookupM.Observe(time.Since(start).Seconds())
}

func (p *Prometheus) MeasureServe(route, method string, code int, start time.Time) {
	p.serveM.WithLabelValues(route, method, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
}

func (p *Prometheus) IncNoMatch(method string) {
	p.noMatchM.WithLabelValues(method).Inc()
}

func (p *Prometheus) IncAuthFailure(kind string) {
	p.authFailuresM.WithLabelValues(kind).Inc()
}
