package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

const (
	PollErrorReasonUnavailable    = "source_unavailable"
	PollErrorReasonSessionExpired = "session_expired"
	PollErrorReasonStore          = "store"
	PollErrorReasonUnknown        = "unknown"
)

// Metrics captures payment verification health signals.
type Metrics struct {
	ordersCreated  prometheus.Counter
	confirmations  *prometheus.CounterVec
	matcherPasses  *prometheus.CounterVec
	matcherMatches prometheus.Counter
	pollRuns       prometheus.Counter
	pollErrors     *prometheus.CounterVec
	pollDuration   prometheus.Histogram
	webhookEvents  prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers the payqr metric set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payqr_orders_created_total",
			Help: "Orders created.",
		}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payqr_order_confirmations_total",
			Help: "Order confirmations by source.",
		}, []string{"confirmed_by"}),
		matcherPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payqr_matcher_passes_total",
			Help: "Matcher passes by trigger.",
		}, []string{"trigger"}),
		matcherMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payqr_matcher_matches_total",
			Help: "Credit events matched to orders.",
		}),
		pollRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payqr_poll_runs_total",
			Help: "Background verification poll runs.",
		}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payqr_poll_errors_total",
			Help: "Background verification poll errors by reason.",
		}, []string{"reason"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payqr_poll_duration_seconds",
			Help:    "Background verification poll duration.",
			Buckets: prometheus.DefBuckets,
		}),
		webhookEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payqr_webhook_events_total",
			Help: "Credit events received via webhook.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payqr_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payqr_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.ordersCreated,
		m.confirmations,
		m.matcherPasses,
		m.matcherMatches,
		m.pollRuns,
		m.pollErrors,
		m.pollDuration,
		m.webhookEvents,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

func (m *Metrics) IncOrdersCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) IncConfirmation(confirmedBy string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(confirmedBy).Inc()
}

func (m *Metrics) IncMatcherPass(trigger string) {
	if m == nil {
		return
	}
	m.matcherPasses.WithLabelValues(trigger).Inc()
}

func (m *Metrics) AddMatches(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.matcherMatches.Add(float64(count))
}

func (m *Metrics) IncPollRun() {
	if m == nil {
		return
	}
	m.pollRuns.Inc()
}

func (m *Metrics) IncPollError(reason string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObservePollDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
}

func (m *Metrics) IncWebhookEvent() {
	if m == nil {
		return
	}
	m.webhookEvents.Inc()
}

// GinMiddleware records request counts and latencies per route.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

var Module = fx.Module("metrics",
	fx.Provide(NewDefault),
)
