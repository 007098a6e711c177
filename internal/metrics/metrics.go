// Package metrics provides Prometheus metrics for the viewer core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync metrics
	syncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveview_sync_total",
			Help: "Total sync runs by result (full, incremental, stale, error)",
		},
		[]string{"result"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driveview_sync_duration_seconds",
			Help:    "Time for one sync run",
			Buckets: prometheus.DefBuckets,
		},
	)

	syncRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driveview_sync_records",
			Help: "Number of records in the last merged listing",
		},
	)

	listingTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driveview_listing_truncated_total",
			Help: "Remote listings abandoned at the pagination cap",
		},
	)

	// Store metrics
	storeOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveview_store_ops_total",
			Help: "Snapshot store operations by op and result",
		},
		[]string{"op", "result"},
	)

	// Blob cache metrics
	blobRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveview_blob_requests_total",
			Help: "Blob requests by outcome (hit, fetched, shared, error)",
		},
		[]string{"outcome"},
	)

	blobBytesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driveview_blob_bytes_fetched_total",
			Help: "Total bytes of remote content written to the blob cache",
		},
	)

	blobsCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driveview_blobs_cached",
			Help: "Number of blobs currently cached on disk",
		},
	)
)

// RecordSync records a completed sync run.
func RecordSync(result string, duration time.Duration, records int) {
	syncTotal.WithLabelValues(result).Inc()
	syncDuration.Observe(duration.Seconds())
	if records >= 0 {
		syncRecords.Set(float64(records))
	}
}

// RecordListingTruncated records a listing abandoned at the cap.
func RecordListingTruncated() {
	listingTruncatedTotal.Inc()
}

// RecordStoreOp records a snapshot store operation.
func RecordStoreOp(op string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	storeOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordBlobRequest records a blob request outcome.
func RecordBlobRequest(outcome string) {
	blobRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordBlobFetched records bytes written for a fetched blob.
func RecordBlobFetched(bytes int64) {
	blobBytesFetched.Add(float64(bytes))
}

// SetBlobsCached updates the cached blob count.
func SetBlobsCached(n int) {
	blobsCached.Set(float64(n))
}

// Handler returns the Prometheus exporter handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
