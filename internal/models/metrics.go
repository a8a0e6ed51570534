package models

import "time"

// SystemMetrics is a lightweight metrics snapshot served alongside /metrics.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	ReschedulesApplied       uint64    `json:"reschedules_applied"`
	ReschedulesFailed        uint64    `json:"reschedules_failed"`
	RecordsDropped           uint64    `json:"records_dropped"`
	LiveViews                int64     `json:"live_views"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
