package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type engineMetrics struct {
	orders      *prometheus.CounterVec
	settlements *prometheus.CounterVec
	inflowTotal prometheus.Counter
	feeTotal    prometheus.Counter
	liquidity   *prometheus.GaugeVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record JSON-RPC activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "untron",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "untron",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "untron",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "untron",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an RPC request. The status code should be the
// HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied reason.
// Reasons should be stable strings such as "rate_limit" so dashboards and
// alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// EngineMetrics returns the singleton registry tracking order lifecycle and
// settlement activity.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			orders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "untron",
				Subsystem: "engine",
				Name:      "orders_total",
				Help:      "Count of order lifecycle transitions segmented by transition.",
			}, []string{"transition"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "untron",
				Subsystem: "engine",
				Name:      "settlements_total",
				Help:      "Count of settlement batches segmented by outcome.",
			}, []string{"outcome"}),
			inflowTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "untron",
				Subsystem: "engine",
				Name:      "inflow_units_total",
				Help:      "Cumulative proven receiver inflow in integer deposit units.",
			}),
			feeTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "untron",
				Subsystem: "engine",
				Name:      "protocol_fee_units_total",
				Help:      "Cumulative protocol fee collected in integer payout units.",
			}),
			liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "untron",
				Subsystem: "engine",
				Name:      "provider_liquidity",
				Help:      "Advertised liquidity per provider in integer payout units.",
			}, []string{"provider"}),
		}
		prometheus.MustRegister(
			engineRegistry.orders,
			engineRegistry.settlements,
			engineRegistry.inflowTotal,
			engineRegistry.feeTotal,
			engineRegistry.liquidity,
		)
	})
	return engineRegistry
}

// RecordOrder increments the lifecycle counter for the supplied transition.
// Transitions should be stable strings such as "created" or "fulfilled".
func (m *engineMetrics) RecordOrder(transition string) {
	if m == nil {
		return
	}
	if transition = strings.TrimSpace(transition); transition == "" {
		transition = "unknown"
	}
	m.orders.WithLabelValues(transition).Inc()
}

// RecordSettlement records a processed settlement batch and its totals.
func (m *engineMetrics) RecordSettlement(ok bool, inflow, fee *big.Int) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !ok {
		outcome = "rejected"
	}
	m.settlements.WithLabelValues(outcome).Inc()
	if !ok {
		return
	}
	if v := bigToFloat(inflow); v > 0 {
		m.inflowTotal.Add(v)
	}
	if v := bigToFloat(fee); v > 0 {
		m.feeTotal.Add(v)
	}
}

// RecordLiquidity updates the advertised liquidity gauge for a provider.
func (m *engineMetrics) RecordLiquidity(provider string, liquidity *big.Int) {
	if m == nil {
		return
	}
	if provider = strings.TrimSpace(provider); provider == "" {
		provider = "unknown"
	}
	m.liquidity.WithLabelValues(provider).Set(bigToFloat(liquidity))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
