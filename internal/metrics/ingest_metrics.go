package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	bundlesTotal          *prometheus.CounterVec
	resourcesTotal        *prometheus.CounterVec
	linksTotal            *prometheus.CounterVec
	storeOperationSeconds *prometheus.HistogramVec
	batchDuration         *prometheus.HistogramVec
	fetchSeconds          *prometheus.HistogramVec

	ingestMetricsOnce sync.Once
)

func initializeIngestMetrics() {
	ingestMetricsOnce.Do(func() {
		bundlesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhirgraph_bundles_total",
				Help: "Bundle files handled, by outcome",
			},
			[]string{"status"}, // "processed", "failed"
		)

		resourcesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhirgraph_resources_total",
				Help: "Resources seen in bundles, by type and outcome",
			},
			[]string{"resource_type", "status"}, // "upserted", "skipped", "ignored", "failed"
		)

		linksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhirgraph_links_total",
				Help: "Reference candidates by edge type and whether they became edges",
			},
			[]string{"edge_type", "status"}, // "linked", "dropped"
		)

		storeOperationSeconds = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhirgraph_store_operation_duration_seconds",
				Help:    "Time spent in graph store operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "operation", "status"},
		)

		batchDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhirgraph_batch_duration_seconds",
				Help:    "Wall time of one ingestion batch",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"status"},
		)

		fetchSeconds = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhirgraph_fetch_duration_seconds",
				Help:    "Time to download one searchset page from the FHIR server",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resource_type", "status"},
		)

		GetInstance().registry.MustRegister(
			bundlesTotal,
			resourcesTotal,
			linksTotal,
			storeOperationSeconds,
			batchDuration,
			fetchSeconds,
		)
	})
}

// RecordBundle counts one bundle file outcome
func RecordBundle(status string) {
	if !businessEnabled() {
		return
	}
	initializeIngestMetrics()
	bundlesTotal.WithLabelValues(status).Inc()
}

// RecordResources adds n resources of one type with the given outcome
func RecordResources(resourceType, status string, n int) {
	if !businessEnabled() || n == 0 {
		return
	}
	initializeIngestMetrics()
	resourcesTotal.WithLabelValues(resourceType, status).Add(float64(n))
}

// RecordLinks counts linked and dropped candidates for one edge type
func RecordLinks(edgeType string, linked, dropped int) {
	if !businessEnabled() {
		return
	}
	initializeIngestMetrics()
	linksTotal.WithLabelValues(edgeType, "linked").Add(float64(linked))
	linksTotal.WithLabelValues(edgeType, "dropped").Add(float64(dropped))
}

// RecordStoreOperation observes one graph store call started at start
func RecordStoreOperation(backend, operation string, start time.Time, err error) {
	if !businessEnabled() {
		return
	}
	initializeIngestMetrics()
	storeOperationSeconds.WithLabelValues(backend, operation, statusOf(err)).Observe(time.Since(start).Seconds())
}

// RecordBatch observes a finished batch
func RecordBatch(start time.Time, err error) {
	if !businessEnabled() {
		return
	}
	initializeIngestMetrics()
	batchDuration.WithLabelValues(statusOf(err)).Observe(time.Since(start).Seconds())
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordFetch observes one FHIR server page download
func RecordFetch(resourceType, status string, start time.Time) {
	if !businessEnabled() {
		return
	}
	initializeIngestMetrics()
	fetchSeconds.WithLabelValues(resourceType, status).Observe(time.Since(start).Seconds())
}
