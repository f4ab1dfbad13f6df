package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "auth_failures_total", Help: "Refused credentials by reason."},
		[]string{"reason"},
	)
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "active_connections", Help: "Live websocket sessions."},
	)
	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "collab", Name: "active_rooms", Help: "Rooms with at least one member."},
	)
	BroadcastDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "broadcast_delivered_total", Help: "Payloads queued to peers by kind."},
		[]string{"kind"},
	)
	BroadcastDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "broadcast_dropped_total", Help: "Payloads not delivered by reason (full|closed)."},
		[]string{"reason"},
	)
	RemoteEditsDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "collab", Name: "remote_edits_discarded_total", Help: "Remote edits dropped because the receiver was editing locally."},
	)
	Commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "commits_total", Help: "Version store commits by result."},
		[]string{"result"},
	)
	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "collab", Name: "commit_duration_seconds", Help: "Latency of version store commits.", Buckets: prometheus.DefBuckets},
	)
	Reverts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collab", Name: "reverts_total", Help: "Revert requests by result."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(AuthFailures)
	reg.MustRegister(ActiveConnections)
	reg.MustRegister(ActiveRooms)
	reg.MustRegister(BroadcastDelivered)
	reg.MustRegister(BroadcastDropped)
	reg.MustRegister(RemoteEditsDiscarded)
	reg.MustRegister(Commits)
	reg.MustRegister(CommitDuration)
	reg.MustRegister(Reverts)
}
