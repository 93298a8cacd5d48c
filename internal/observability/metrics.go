package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leanrobert/telegram-jira-bot/internal/events"
)

// Metrics exposes prometheus counters for the reconciliation engine and the
// admin HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal         prometheus.Counter
	transitionsRecorded prometheus.Counter
	notificationsSent   prometheus.Counter
	notificationsFailed prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec
}

// NewMetrics initializes the registry and counters.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		cyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconciliation_cycles_total",
			Help: "Completed reconciliation cycles.",
		}),
		transitionsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "status_transitions_recorded_total",
			Help: "Distinct status transitions persisted to the ledger.",
		}),
		notificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications delivered and recorded.",
		}),
		notificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Delivery attempts that returned an error.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Admin API requests.",
		}, []string{"path", "method", "status"}),
		httpErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Admin API error responses by code.",
		}, []string{"path", "method", "code"}),
	}
}

// Observe subscribes the counters to reconciliation events.
func (m *Metrics) Observe(dispatcher events.Dispatcher) {
	if m == nil || dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventCycleCompleted, func(context.Context, events.Event) error {
		m.cyclesTotal.Inc()
		return nil
	})
	dispatcher.Subscribe(events.EventTransitionRecorded, func(context.Context, events.Event) error {
		m.transitionsRecorded.Inc()
		return nil
	})
	dispatcher.Subscribe(events.EventNotificationSent, func(context.Context, events.Event) error {
		m.notificationsSent.Inc()
		return nil
	})
	dispatcher.Subscribe(events.EventNotificationFailed, func(context.Context, events.Event) error {
		m.notificationsFailed.Inc()
		return nil
	})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, _ time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}

// Serve exposes /metrics on its own listener until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
}
