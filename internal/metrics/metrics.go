package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics - счетчики конвейера рассылки и расчета сделок.
// Методы безопасны для nil-получателя, чтобы компоненты работали без метрик.
type Metrics struct {
	registry *prometheus.Registry

	childTrades     *prometheus.CounterVec
	unitFailures    *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	storeRetries    *prometheus.CounterVec
	rollovers       *prometheus.CounterVec
	triggerDuration *prometheus.HistogramVec
}

// New создает метрики на собственном реестре
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		childTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "child_trades_total",
				Help:      "Child trades processed by fan-out, by result",
			},
			[]string{"result"},
		),

		unitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_failures_total",
				Help:      "Per-user units of work that failed",
			},
			[]string{"operation"},
		),

		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Child trades settled, by outcome",
			},
			[]string{"outcome"},
		),

		storeRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_retries_total",
				Help:      "Store operations retried after a transient failure",
			},
			[]string{"op"},
		),

		rollovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rollover_dashboards_total",
				Help:      "Dashboards processed by the monthly rollover, by result",
			},
			[]string{"result"},
		),

		triggerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trigger_duration_seconds",
				Help:      "Duration of trigger handlers",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(
		m.childTrades,
		m.unitFailures,
		m.settlements,
		m.storeRetries,
		m.rollovers,
		m.triggerDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry возвращает реестр (для тестов и дополнительных коллекторов)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ChildTrade(result string) {
	if m == nil {
		return
	}

	m.childTrades.WithLabelValues(result).Inc()
}

func (m *Metrics) UnitFailure(operation string) {
	if m == nil {
		return
	}

	m.unitFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) Settlement(outcome string) {
	if m == nil {
		return
	}

	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StoreRetry(op string) {
	if m == nil {
		return
	}

	m.storeRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) RolloverDashboard(result string) {
	if m == nil {
		return
	}

	m.rollovers.WithLabelValues(result).Inc()
}

// ObserveTrigger записывает длительность обработчика, начатого в start
func (m *Metrics) ObserveTrigger(operation string, start time.Time) {
	if m == nil {
		return
	}

	m.triggerDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
