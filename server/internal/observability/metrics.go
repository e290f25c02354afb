package observability

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Metrics collects request counters for the directory API.
type Metrics struct {
	mu sync.Mutex

	// Counters
	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	// Route-specific metrics, keyed by "METHOD /path/:param".
	routeMetrics map[string]*RouteMetrics
}

// RouteMetrics represents metrics for a single route.
type RouteMetrics struct {
	requestCount  atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		routeMetrics: make(map[string]*RouteMetrics),
	}
}

// Record records one finished request.
func (m *Metrics) Record(route string, durationMs int64, failed bool) {
	m.requestTotal.Add(1)
	rm := m.getRouteMetrics(route)
	rm.requestCount.Add(1)
	rm.totalDuration.Add(durationMs)
	if failed {
		m.requestFailed.Add(1)
		rm.errorCount.Add(1)
	}
}

// GetRequestTotal returns the total number of requests.
func (m *Metrics) GetRequestTotal() int64 {
	return m.requestTotal.Load()
}

// GetRequestFailed returns the total number of failed requests.
func (m *Metrics) GetRequestFailed() int64 {
	return m.requestFailed.Load()
}

func (m *Metrics) getRouteMetrics(route string) *RouteMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.routeMetrics[route]
	if !ok {
		rm = &RouteMetrics{}
		m.routeMetrics[route] = rm
	}
	return rm
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	routes := make([]RouteMetricsSnapshot, 0, len(m.routeMetrics))
	for route, rm := range m.routeMetrics {
		count := rm.requestCount.Load()
		var avg int64
		if count > 0 {
			avg = rm.totalDuration.Load() / count
		}
		routes = append(routes, RouteMetricsSnapshot{
			Route:             route,
			RequestCount:      count,
			ErrorCount:        rm.errorCount.Load(),
			AverageDurationMs: avg,
		})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Route < routes[j].Route })

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		Routes:        routes,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                  `json:"requestTotal"`
	RequestFailed int64                  `json:"requestFailed"`
	Routes        []RouteMetricsSnapshot `json:"routes"`
}

// RouteMetricsSnapshot represents metrics for a single route.
type RouteMetricsSnapshot struct {
	Route             string `json:"route"`
	RequestCount      int64  `json:"requestCount"`
	ErrorCount        int64  `json:"errorCount"`
	AverageDurationMs int64  `json:"averageDurationMs"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
