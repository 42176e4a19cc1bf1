package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Data freshness
	MetricMarkerFreshness = "reports.marker_age_seconds"
	MetricRenderLatency   = "map.render_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricReportsFiled      = "business.reports_filed"
	MetricClusterExpansions = "business.cluster_expansions"
)
