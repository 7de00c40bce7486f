// Package metrics defines the Prometheus metrics for the HTTP surface,
// router, correlator, and reaper. Only the HTTP metrics are recorded
// (by HTTPMiddleware); nothing in the repository updates the routing,
// correlator, or reaper metrics, so they are exported at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webordinary_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webordinary_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Routing metrics.
var (
	RoutesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webordinary_routes_total",
		Help: "Total number of messages routed, by outcome.",
	}, []string{"outcome"})

	ClaimsAnnouncedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webordinary_claims_announced_total",
		Help: "Total number of claim requests placed on the unclaimed queue.",
	})

	RouteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webordinary_route_duration_seconds",
		Help:    "Time to execute the full routing pipeline.",
		Buckets: prometheus.DefBuckets,
	})
)

// Correlator metrics.
var (
	ResponsesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webordinary_responses_resolved_total",
		Help: "Total number of pending commands resolved, by resolution.",
	}, []string{"resolution"}) // response, timeout, interrupted, cancelled

	PendingCommands = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webordinary_pending_commands",
		Help: "Number of commands currently awaiting a response.",
	})

	TenantPollLoops = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webordinary_tenant_poll_loops",
		Help: "Number of active per-tenant output-queue poll loops.",
	})
)

// Reaper metrics.
var (
	ReaperOrphanedQueuesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webordinary_reaper_orphaned_queues_deleted_total",
		Help: "Total number of orphaned queue triplets deleted by the reaper.",
	})

	ReaperStaleOwnershipFlipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webordinary_reaper_stale_ownership_flipped_total",
		Help: "Total number of ownership records flipped to inactive by the reaper.",
	})

	ReaperExpiredThreadMappings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webordinary_reaper_expired_thread_mappings",
		Help: "Number of thread mappings past their TTL as of the last reaper pass.",
	})
)
