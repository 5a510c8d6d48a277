// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicodishanthj/testcase_agent/internal/common"
)

const namespace = "testcase_agent"

// Stream outcomes recorded by the relay.
const (
	OutcomeEnd       = "end"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

// Metrics holds the Prometheus collectors for the service. All methods are
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	streamsTotal        *prometheus.CounterVec
	fragmentsTotal      prometheus.Counter
	persistFailures     *prometheus.CounterVec
	agentRecordsTotal   *prometheus.CounterVec
	streamDuration      prometheus.Histogram
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	attachmentsTotal    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		streamsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_streams_total",
			Help:      "Relay invocations by terminal outcome",
		}, []string{"outcome"}),
		fragmentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_fragments_total",
			Help:      "Chunk and message events emitted to clients",
		}),
		persistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_persist_failures_total",
			Help:      "Failed message writes during streaming, by role",
		}, []string{"role"}),
		agentRecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_records_total",
			Help:      "Agent output records by decoded shape",
		}, []string{"shape"}),
		streamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_stream_duration_seconds",
			Help:      "Wall time of a relay invocation",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		attachmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachments_total",
			Help:      "Preprocessed uploads by descriptor kind",
		}, []string{"kind"}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordStream(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.streamsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.streamDuration.Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordFragment() {
	if m == nil {
		return
	}
	m.fragmentsTotal.Inc()
}

func (m *Metrics) RecordPersistFailure(role string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(role).Inc()
}

func (m *Metrics) RecordAgentRecord(shape string) {
	if m == nil {
		return
	}
	m.agentRecordsTotal.WithLabelValues(normalizeLabel(shape, "unknown")).Inc()
}

func (m *Metrics) RecordAttachment(kind string) {
	if m == nil {
		return
	}
	m.attachmentsTotal.WithLabelValues(normalizeLabel(kind, "unknown")).Inc()
}

func (m *Metrics) RecordHTTP(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route, "unmatched")
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func normalizeLabel(value, fallback string) string {
	key := strings.TrimSpace(strings.ToLower(value))
	if key == "" {
		return fallback
	}
	return key
}

// StartSpan logs the start of a named unit of work at debug level and
// returns a func that logs its end with the elapsed time.
func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", time.Since(sp.start)}, attrs...)...)
	}
}

// SpanDuration returns the time elapsed since the span in ctx started.
func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}
