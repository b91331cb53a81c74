package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alertd/internal/eventbus"
	"alertd/internal/notifier"
	"alertd/internal/poller"
)

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	PollCycles       *prometheus.CounterVec
	PollDuration     prometheus.Histogram
	SeenIDs          prometheus.Gauge
	Suppressed       prometheus.Counter
	Notifications    *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	RequestCount     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		PollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertd_poll_cycles_total",
				Help: "Poll cycles by outcome (ok, malformed, skipped or a failure kind)",
			},
			[]string{"outcome"},
		),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_poll_duration_seconds",
			Help:    "Duration of fetch-and-evaluate cycles",
			Buckets: prometheus.DefBuckets,
		}),
		SeenIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertd_seen_ids",
			Help: "Size of the seen-set after the last cycle",
		}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_delayed_suppressed_total",
			Help: "Delayed notifications dropped at fire time",
		}),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertd_notifications_total",
				Help: "Notifications by source and pipeline result",
			},
			[]string{"source", "result"},
		),
		DeliveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_notification_delivery_seconds",
			Help:    "Time spent in the sink per notification",
			Buckets: prometheus.DefBuckets,
		}),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alertd_http_requests_total",
				Help: "Total number of local HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alertd_http_request_duration_seconds",
				Help:    "Histogram of local HTTP response durations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
	m.reg.MustRegister(
		m.PollCycles, m.PollDuration, m.SeenIDs, m.Suppressed,
		m.Notifications, m.DeliveryDuration,
		m.RequestCount, m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Observe records bus events until ctx is done.
func (m *Metrics) Observe(ctx context.Context, bus eventbus.Bus) {
	if bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.record(ev)
		}
	}
}

func (m *Metrics) record(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.PollCompleted, eventbus.PollFailed:
		ce, ok := ev.Data.(poller.CycleEvent)
		if !ok {
			return
		}
		m.PollCycles.WithLabelValues(ce.Outcome).Inc()
		if ce.Took > 0 {
			m.PollDuration.Observe(ce.Took.Seconds())
		}
		m.SeenIDs.Set(float64(ce.SeenCount))
	case eventbus.HistoryCleared:
		m.SeenIDs.Set(0)
	case eventbus.PollSuppressed:
		m.Suppressed.Inc()
	case eventbus.NotifierQueued, eventbus.NotifierSent, eventbus.NotifierFailed, eventbus.NotifierDropped:
		ne, ok := ev.Data.(notifier.NotificationEvent)
		if !ok {
			return
		}
		result := ev.Type[len("notifier."):]
		m.Notifications.WithLabelValues(ne.Source, result).Inc()
		if ne.Took > 0 {
			m.DeliveryDuration.Observe(ne.Took.Seconds())
		}
	}
}

// Middleware counts requests by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCount.WithLabelValues(path, r.Method, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}
