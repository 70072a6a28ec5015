package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	AnalysesTotal      uint64
	AnalysesRunning    uint64
	AnalysesFailed     uint64
	PagesAnalyzed      uint64
	PagesFailed        uint64
	AccessChecks       uint64
	AccessGranted      uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

func IncrementRequests()     { atomic.AddUint64(&globalMetrics.RequestsTotal, 1) }
func IncrementInProgress()   { atomic.AddUint64(&globalMetrics.RequestsInProgress, 1) }
func DecrementInProgress()   { atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0)) }
func IncrementSuccess()      { atomic.AddUint64(&globalMetrics.RequestsSuccess, 1) }
func IncrementFailed()       { atomic.AddUint64(&globalMetrics.RequestsFailed, 1) }
func IncrementAnalyses()     { atomic.AddUint64(&globalMetrics.AnalysesTotal, 1) }
func IncrementAnalysesRun()  { atomic.AddUint64(&globalMetrics.AnalysesRunning, 1) }
func DecrementAnalysesRun()  { atomic.AddUint64(&globalMetrics.AnalysesRunning, ^uint64(0)) }
func IncrementAnalysesFail() { atomic.AddUint64(&globalMetrics.AnalysesFailed, 1) }

// AddPages records the outcome of one analysis run.
func AddPages(analyzed, failed int) {
	atomic.AddUint64(&globalMetrics.PagesAnalyzed, uint64(analyzed))
	atomic.AddUint64(&globalMetrics.PagesFailed, uint64(failed))
}

// RecordAccessCheck counts one access resolution.
func RecordAccessCheck(granted bool) {
	atomic.AddUint64(&globalMetrics.AccessChecks, 1)
	if granted {
		atomic.AddUint64(&globalMetrics.AccessGranted, 1)
	}
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"analyses_total":       atomic.LoadUint64(&globalMetrics.AnalysesTotal),
		"analyses_running":     atomic.LoadUint64(&globalMetrics.AnalysesRunning),
		"analyses_failed":      atomic.LoadUint64(&globalMetrics.AnalysesFailed),
		"pages_analyzed":       atomic.LoadUint64(&globalMetrics.PagesAnalyzed),
		"pages_failed":         atomic.LoadUint64(&globalMetrics.PagesFailed),
		"access_checks":        atomic.LoadUint64(&globalMetrics.AccessChecks),
		"access_granted":       atomic.LoadUint64(&globalMetrics.AccessGranted),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
