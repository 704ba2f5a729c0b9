// Package metrics defines the Prometheus metrics of the group map service.
// Metrics register with the default registry on import and are served by
// promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "groupmap"

// Presence upsert results.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultInvalid   = "invalid"
	ResultError     = "error"
)

// PresenceUpsertsTotal counts presence upserts.
// Label:
//   - result: "applied", "duplicate" (skipped by dedup), "invalid" or "error"
var PresenceUpsertsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "presence_upserts_total",
		Help:      "Total number of presence upserts, labelled by result.",
	},
	[]string{"result"},
)

// RosterFetchDuration measures how long resolving a viewer's visible roster takes.
var RosterFetchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "roster_fetch_duration_seconds",
		Help:      "Duration of visible roster resolution.",
		Buckets:   prometheus.DefBuckets,
	},
)

// GroupMembershipChangesTotal counts membership changes.
// Label:
//   - change: "created", "joined", "removed", "leader_changed", "dissolved", "deleted"
var GroupMembershipChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "group_membership_changes_total",
		Help:      "Total number of group membership changes, labelled by kind.",
	},
	[]string{"change"},
)

// HTTPRequestsTotal counts served HTTP requests.
// Labels:
//   - method: HTTP method
//   - route: chi route pattern (e.g. "/groups/{id}/leave")
//   - status: response status code
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests, by method, route and status.",
	},
	[]string{"method", "route", "status"},
)

// HTTPRequestDuration measures HTTP request latency per route.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests, by method and route.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)
