package metrics

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Options selects which metric families are collected
type Options struct {
	Business bool
	System   bool
}

// MetricsManager is a singleton that owns the Prometheus registry
type MetricsManager struct {
	systemCPUUsage    *prometheus.GaugeVec
	systemMemoryUsage *prometheus.GaugeVec
	goGoroutines      prometheus.Gauge
	goHeapAlloc       prometheus.Gauge
	goHeapSys         prometheus.Gauge
	goGCCPUFraction   prometheus.Gauge

	registry *prometheus.Registry
	opts     Options

	systemInitialized bool
	mu                sync.RWMutex
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton instance of MetricsManager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = &MetricsManager{
			registry: prometheus.NewRegistry(),
		}
	})
	return instance
}

// Configure enables metric families. Until it is called every Record
// function is a no-op.
func Configure(opts Options) {
	mm := GetInstance()
	mm.mu.Lock()
	mm.opts = opts
	mm.mu.Unlock()
}

func businessEnabled() bool {
	mm := GetInstance()
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.opts.Business
}

// Handler serves the private registry
func Handler() http.Handler {
	return promhttp.HandlerFor(GetInstance().registry, promhttp.HandlerOpts{})
}

func (mm *MetricsManager) initializeSystemMetrics() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.systemInitialized {
		return
	}

	mm.systemCPUUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Current CPU usage percentage",
		},
		[]string{"core"},
	)

	mm.systemMemoryUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "system_memory_usage_bytes",
			Help: "Current memory usage in bytes",
		},
		[]string{"type"},
	)

	mm.goGoroutines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fhirgraph_goroutines",
		Help: "Number of goroutines that currently exist",
	})
	mm.goHeapAlloc = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fhirgraph_heap_alloc_bytes",
		Help: "Heap memory usage in bytes",
	})
	mm.goHeapSys = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fhirgraph_heap_sys_bytes",
		Help: "Heap memory reserved in bytes",
	})
	mm.goGCCPUFraction = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fhirgraph_gc_cpu_fraction",
		Help: "Fraction of CPU time used by GC",
	})

	mm.registry.MustRegister(
		mm.systemCPUUsage,
		mm.systemMemoryUsage,
		mm.goGoroutines,
		mm.goHeapAlloc,
		mm.goHeapSys,
		mm.goGCCPUFraction,
	)

	mm.systemInitialized = true
}

// StartSystemMetrics samples host and runtime gauges every interval until
// ctx is done. It does nothing unless system metrics are enabled.
func StartSystemMetrics(ctx context.Context, interval time.Duration) {
	mm := GetInstance()
	mm.mu.RLock()
	enabled := mm.opts.System
	mm.mu.RUnlock()
	if !enabled {
		return
	}

	mm.initializeSystemMetrics()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mm.collectSystemMetrics()
				mm.collectGoRuntimeMetrics()
			}
		}
	}()
}

func (mm *MetricsManager) collectSystemMetrics() {
	if cpuPercentages, err := cpu.Percent(0, true); err == nil {
		for i, percentage := range cpuPercentages {
			mm.systemCPUUsage.WithLabelValues(fmt.Sprintf("cpu%d", i)).Set(percentage)
		}
	}

	if vmstat, err := mem.VirtualMemory(); err == nil {
		mm.systemMemoryUsage.WithLabelValues("total").Set(float64(vmstat.Total))
		mm.systemMemoryUsage.WithLabelValues("available").Set(float64(vmstat.Available))
		mm.systemMemoryUsage.WithLabelValues("used").Set(float64(vmstat.Used))
	}
}

func (mm *MetricsManager) collectGoRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Set(float64(runtime.NumGoroutine()))
	mm.goHeapAlloc.Set(float64(m.HeapAlloc))
	mm.goHeapSys.Set(float64(m.HeapSys))
	mm.goGCCPUFraction.Set(m.GCCPUFraction)
}
