// Package metrics holds the service's Prometheus collectors. All methods are
// safe to call on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/duka/internal/core/domain"
)

const namespace = "duka"

type Metrics struct {
	registry       *prometheus.Registry
	stockMutations *prometheus.CounterVec
	saleAttempts   *prometheus.CounterVec
	unitsSold      prometheus.Counter
	httpDuration   *prometheus.HistogramVec
	openFeeds      *prometheus.GaugeVec
	notifications  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		stockMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_mutations_total",
			Help:      "Stock create, update and delete operations that reached the database.",
		}, []string{"op"}),
		saleAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sale_attempts_total",
			Help:      "Sell attempts by terminal state.",
		}, []string{"state"}),
		unitsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_sold_total",
			Help:      "Quantity sold across committed sales.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		openFeeds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_feeds",
			Help:      "Live feed subscriptions currently open.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Owner notifications by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stockMutations, m.saleAttempts, m.unitsSold, m.httpDuration, m.openFeeds, m.notifications,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StockMutation(op string) {
	if m == nil {
		return
	}
	m.stockMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) SaleAttempt(state domain.SaleState, quantity int) {
	if m == nil {
		return
	}
	m.saleAttempts.WithLabelValues(string(state)).Inc()
	if state == domain.SaleStateCommitted {
		m.unitsSold.Add(float64(quantity))
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) FeedOpened(kind string) {
	if m == nil {
		return
	}
	m.openFeeds.WithLabelValues(kind).Inc()
}

func (m *Metrics) FeedClosed(kind string) {
	if m == nil {
		return
	}
	m.openFeeds.WithLabelValues(kind).Dec()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
