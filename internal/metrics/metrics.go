// Package metrics provides Prometheus metrics for the region/vector store
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the store
type Metrics struct {
	// Region store metrics
	RegionFlushTotal     prometheus.Counter
	RegionFlushDuration  prometheus.Histogram
	RegionCompactTotal   prometheus.Counter
	RegionOperationsTotal *prometheus.CounterVec

	RegionCount        prometheus.Gauge
	DataFileBytes      prometheus.Gauge
	LiveHoleBytes      prometheus.Gauge
	PendingHoleBytes   prometheus.Gauge
	CorruptSlotsTotal  prometheus.Counter
	PunchedBytesTotal  prometheus.Counter

	// Vector metrics
	VectorPushTotal     *prometheus.CounterVec
	VectorUpdateTotal   *prometheus.CounterVec
	VectorTakeTotal     *prometheus.CounterVec
	VectorRollbackTotal *prometheus.CounterVec
	VectorElementsTotal *prometheus.GaugeVec

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.RegionFlushTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seqdb_region_flush_total",
			Help: "Total number of region store flushes",
		},
	)

	m.RegionFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seqdb_region_flush_duration_seconds",
			Help:    "Duration of region store flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.RegionCompactTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seqdb_region_compact_total",
			Help: "Total number of region store compactions",
		},
	)

	m.RegionOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqdb_region_operations_total",
			Help: "Total number of region operations by kind and status",
		},
		[]string{"operation", "status"},
	)

	m.RegionCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seqdb_region_count",
			Help: "Current number of live regions",
		},
	)

	m.DataFileBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seqdb_region_data_file_bytes",
			Help: "Current size of the mapped data file in bytes",
		},
	)

	m.LiveHoleBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seqdb_region_live_hole_bytes",
			Help: "Bytes currently reusable by the layout allocator",
		},
	)

	m.PendingHoleBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seqdb_region_pending_hole_bytes",
			Help: "Bytes freed this session but not yet reusable (awaiting a flush)",
		},
	)

	m.CorruptSlotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seqdb_region_corrupt_slots_total",
			Help: "Total number of metadata slots that failed checksum verification on load",
		},
	)

	m.PunchedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seqdb_region_punched_bytes_total",
			Help: "Total bytes reclaimed from the data file via hole punching",
		},
	)

	m.VectorPushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqdb_vector_push_total",
			Help: "Total number of elements pushed to a vector",
		},
		[]string{"vector"},
	)

	m.VectorUpdateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqdb_vector_update_total",
			Help: "Total number of in-place element updates",
		},
		[]string{"vector"},
	)

	m.VectorTakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqdb_vector_take_total",
			Help: "Total number of elements removed (holed) from a vector",
		},
		[]string{"vector"},
	)

	m.VectorRollbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seqdb_vector_rollback_total",
			Help: "Total number of rollbacks applied to a vector",
		},
		[]string{"vector"},
	)

	m.VectorElementsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seqdb_vector_elements_total",
			Help: "Current logical element count of a vector",
		},
		[]string{"vector"},
	)

	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seqdb_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	go m.updateUptime()

	return m
}

// updateUptime periodically updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordFlush records a completed region store flush.
func (m *Metrics) RecordFlush(duration time.Duration, punchedBytes uint64) {
	m.RegionFlushTotal.Inc()
	m.RegionFlushDuration.Observe(duration.Seconds())
	m.PunchedBytesTotal.Add(float64(punchedBytes))
}

// RecordRegionOperation records a region-level operation outcome.
func (m *Metrics) RecordRegionOperation(operation, status string) {
	m.RegionOperationsTotal.WithLabelValues(operation, status).Inc()
}

// UpdateRegionStats updates the space-usage gauges from a snapshot.
func (m *Metrics) UpdateRegionStats(regionCount int, dataFileBytes, liveHoleBytes, pendingHoleBytes uint64) {
	m.RegionCount.Set(float64(regionCount))
	m.DataFileBytes.Set(float64(dataFileBytes))
	m.LiveHoleBytes.Set(float64(liveHoleBytes))
	m.PendingHoleBytes.Set(float64(pendingHoleBytes))
}
