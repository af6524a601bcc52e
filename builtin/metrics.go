package builtin

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps a prometheus.Registry with the counters and histograms the
// orchestrator can optionally be wired to. Every method is nil-safe so a
// feature that holds a *Metrics obtained before metrics were configured
// never has to guard every call site itself.
type Metrics struct {
	registry *prometheus.Registry

	mu sync.Mutex

	serviceInstantiations *prometheus.CounterVec
	pluginStartDuration   *prometheus.HistogramVec
	moduleStartDuration   *prometheus.HistogramVec
}

// NewMetrics builds a Metrics sink backed by a fresh prometheus.Registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		serviceInstantiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "corewire_service_instantiations_total",
			Help: "Count of service factory invocations, by service id, scope, and run id.",
		}, []string{"service_id", "scope", "run_id"}),
		pluginStartDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "corewire_plugin_start_duration_seconds",
			Help: "Wall time spent starting a plugin, module graph through lifecycle startup.",
		}, []string{"plugin_id", "run_id"}),
		moduleStartDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "corewire_module_start_duration_seconds",
			Help: "Wall time spent running a single module's init.func.",
		}, []string{"plugin_id", "module_id", "run_id"}),
	}
	reg.MustRegister(m.serviceInstantiations, m.pluginStartDuration, m.moduleStartDuration)
	return m
}

// Registry returns the underlying prometheus.Registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveServiceInstantiation(serviceID, scope, runID string) {
	if m == nil {
		return
	}
	m.serviceInstantiations.WithLabelValues(serviceID, scope, runID).Inc()
}

func (m *Metrics) ObservePluginStart(pluginID, runID string, d time.Duration) {
	if m == nil {
		return
	}
	m.pluginStartDuration.WithLabelValues(pluginID, runID).Observe(d.Seconds())
}

func (m *Metrics) ObserveModuleStart(pluginID, moduleID, runID string, d time.Duration) {
	if m == nil {
		return
	}
	m.moduleStartDuration.WithLabelValues(pluginID, moduleID, runID).Observe(d.Seconds())
}
