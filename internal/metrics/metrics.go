// Package metrics exports Prometheus collectors for the HTTP API and the
// archive events. Path labels use gin route templates to keep cardinality bounded.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/celerix-dev/celerix-comms/internal/events"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_http_requests_total",
			Help: "HTTP requests served by the comms API.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comms_http_request_duration_seconds",
			Help:    "Duration of HTTP requests to the comms API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_archive_events_total",
			Help: "Archive events by kind.",
		},
		[]string{"kind"},
	)

	messageLogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "comms_message_log_records",
		Help: "Records in the message log after the last change.",
	})

	fileArchiveSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "comms_file_archive_records",
		Help: "Records in the file archive after the last change.",
	})
)

// Middleware records request count and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Observe feeds archive events from bus into the collectors until cancel is called.
func Observe(bus *events.Bus) (cancel func()) {
	return bus.Subscribe(Record)
}

// Record updates the collectors for one event.
func Record(e events.Event) {
	eventsTotal.WithLabelValues(string(e.Kind)).Inc()

	switch e.Kind {
	case events.MessageAppended, events.MessagesTruncated:
		messageLogSize.Set(float64(e.Count))
	case events.MessagesCleared:
		messageLogSize.Set(0)
	case events.FileStored, events.FileDeleted:
		fileArchiveSize.Set(float64(e.Count))
	case events.FilesCleared:
		fileArchiveSize.Set(0)
	}
}

// SetArchiveSizes initializes the record gauges, before any event has been seen.
func SetArchiveSizes(messages, files int) {
	messageLogSize.Set(float64(messages))
	fileArchiveSize.Set(float64(files))
}
