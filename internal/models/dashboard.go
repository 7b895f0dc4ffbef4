package models

import "time"

// AdminDashboard is the cached summary shown on the admin landing page.
type AdminDashboard struct {
	TotalStudents  int                        `json:"total_students"`
	TotalTeachers  int                        `json:"total_teachers"`
	TotalStreams   int                        `json:"total_streams"`
	Attendance     []StreamAttendanceOverview `json:"attendance"`
	UnsyncedScopes int                        `json:"unsynced_scopes"`
	Date           string                     `json:"date"`
	GeneratedAt    time.Time                  `json:"generated_at"`
}

// SystemMetrics is a lightweight aggregate snapshot for the ops endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
