package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// lock acquisition latency - histogram to track p50/p90/p99
	// tracks how long a worker waits on the file lock
	// labels: path (the lock file being contended)
	LockAcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lockstep_lock_acquire_duration_seconds",
			Help:    "time spent waiting to acquire the file lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"path"},
	)

	// lock acquisition counter - successes vs timeouts vs errors
	// use this to calculate contention rate per lock file
	// labels: path, status (success/timeout/busy/error)
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_lock_acquire_total",
			Help: "total number of lock acquisition attempts",
		},
		[]string{"path", "status"},
	)

	// lock release counter - tracks clean releases
	// should match successful acquisitions over time
	LockReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_lock_release_total",
			Help: "total number of lock releases",
		},
		[]string{"path"},
	)

	// currently held locks - gauge shows real-time held state
	// a value stuck at 1 with no activity indicates a leaked lock
	LocksHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lockstep_locks_held",
			Help: "current number of file locks held by this process",
		},
	)

	// critical section latency - time between acquire and release
	// long tails here starve every other contender
	CriticalSectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lockstep_critical_section_duration_seconds",
			Help:    "time spent inside the critical section",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	// permission wait latency - time spent collecting peer grants
	// only populated when the peer coordination layer is enabled
	PermissionWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lockstep_permission_wait_duration_seconds",
			Help:    "time spent waiting for peer permission grants",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	// peer message counter - coordination traffic volume
	// labels: kind (REQUEST/OK), direction (sent/received)
	PeerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_peer_messages_total",
			Help: "total number of coordination messages",
		},
		[]string{"kind", "direction"},
	)

	// deferred grants - requests queued while we held priority
	// high values mean heavy contention between peers
	GrantsDeferredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lockstep_grants_deferred_total",
			Help: "total number of permission grants deferred",
		},
	)

	// worker run counter - one protected operation per run
	// labels: status (success/failure)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lockstep_runs_total",
			Help: "total number of worker runs",
		},
		[]string{"status"},
	)

	// service uptime - always 1 when running
	// prometheus uses this to detect restarts
	Up = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lockstep_up",
			Help: "whether the process is up (always 1 when running)",
		},
	)
)

func init() {
	// set uptime gauge to 1 on startup
	Up.Set(1)
}
