package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type Metrics struct {
	Requests   *prometheus.CounterVec
	LatencyMS  *prometheus.HistogramVec
	Checkouts  *prometheus.CounterVec
	CheckoutMS *prometheus.HistogramVec
	Relayed    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// New は reg に登録する。nil なら専用の Registry を作る。
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"method", "route"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Order placement attempts by outcome.",
		}, []string{"outcome"}),
		CheckoutMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_ms",
			Help:      "Order placement latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"outcome"}),
		Relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relayed_total",
			Help:      "Outbox events handled by the relay.",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(m.Requests, m.LatencyMS, m.Checkouts, m.CheckoutMS, m.Relayed)
	return m
}

// ObserveCheckout は checkout.Observer の実装
func (m *Metrics) ObserveCheckout(outcome string, elapsed time.Duration) {
	m.Checkouts.WithLabelValues(outcome).Inc()
	m.CheckoutMS.WithLabelValues(outcome).Observe(float64(elapsed.Milliseconds()))
}

// ObserveRelay は outbox.Observer の実装
func (m *Metrics) ObserveRelay(result string, n int) {
	m.Relayed.WithLabelValues(result).Add(float64(n))
}

// Middleware はルート単位（/orders/:id など）で数える
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// ステータスを確定させる
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			method := c.Request().Method

			m.Requests.WithLabelValues(method, route, status).Inc()
			m.LatencyMS.WithLabelValues(method, route).Observe(float64(time.Since(start).Milliseconds()))
			return nil
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
