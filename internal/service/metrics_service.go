package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/circle-calendar-api/internal/models"
)

// Reschedule outcomes recorded by MetricsService.
const (
	RescheduleApplied = "applied"
	RescheduleIgnored = "ignored"
	RescheduleFailed  = "failed"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	timelineReloads *prometheus.CounterVec
	normalizerDrops prometheus.Counter
	reschedules     *prometheus.CounterVec
	chatMessages    *prometheus.CounterVec
	roomConnections prometheus.Gauge
	liveViews       prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	appliedCount         uint64
	failedCount          uint64
	dropCount            uint64
	liveViewCount        int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	timelineReloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_reloads_total",
		Help: "Full timeline reloads by result",
	}, []string{"result"})

	normalizerDrops := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "event_records_dropped_total",
		Help: "Raw event records rejected by the normalizer",
	})

	reschedules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reschedule_attempts_total",
		Help: "Drag and resize commits by outcome",
	}, []string{"outcome"})

	chatMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "room_chat_messages_total",
		Help: "Room chat sends by result",
	}, []string{"result"})

	roomConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "room_connections",
		Help: "Open room sessions on this instance",
	})

	liveViews := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_live_views",
		Help: "Open live timeline views on this instance",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		timelineReloads, normalizerDrops, reschedules, chatMessages, roomConnections, liveViews, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		timelineReloads: timelineReloads,
		normalizerDrops: normalizerDrops,
		reschedules:     reschedules,
		chatMessages:    chatMessages,
		roomConnections: roomConnections,
		liveViews:       liveViews,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTimelineReload counts a live view reload.
func (m *MetricsService) RecordTimelineReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.timelineReloads.WithLabelValues(result).Inc()
}

// RecordNormalizerDrop counts a rejected raw record.
func (m *MetricsService) RecordNormalizerDrop() {
	if m == nil {
		return
	}
	m.normalizerDrops.Inc()
	atomic.AddUint64(&m.dropCount, 1)
}

// RecordReschedule counts a reschedule outcome.
func (m *MetricsService) RecordReschedule(outcome string) {
	if m == nil {
		return
	}
	m.reschedules.WithLabelValues(outcome).Inc()
	switch outcome {
	case RescheduleApplied:
		atomic.AddUint64(&m.appliedCount, 1)
	case RescheduleFailed:
		atomic.AddUint64(&m.failedCount, 1)
	}
}

// RecordChatMessage counts a chat send attempt.
func (m *MetricsService) RecordChatMessage(result string) {
	if m == nil {
		return
	}
	m.chatMessages.WithLabelValues(result).Inc()
}

// AddRoomConnections adjusts the open room gauge.
func (m *MetricsService) AddRoomConnections(delta int) {
	if m == nil {
		return
	}
	m.roomConnections.Add(float64(delta))
}

// AddLiveViews adjusts the open live view gauge.
func (m *MetricsService) AddLiveViews(delta int) {
	if m == nil {
		return
	}
	m.liveViews.Add(float64(delta))
	atomic.AddInt64(&m.liveViewCount, int64(delta))
}

// Snapshot returns aggregated metrics suitable for the metrics summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		ReschedulesApplied:       atomic.LoadUint64(&m.appliedCount),
		ReschedulesFailed:        atomic.LoadUint64(&m.failedCount),
		RecordsDropped:           atomic.LoadUint64(&m.dropCount),
		LiveViews:                atomic.LoadInt64(&m.liveViewCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
