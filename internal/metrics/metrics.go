// Package metrics holds the process-wide prometheus collectors, grounded on
// this module's prior metrics.go layout: package-level vars registered
// once via Register, served on their own mux via NewServer. The webhook/job
// vocabulary (job pickup latency, reaper rescues) is replaced with gauges and
// counters for the scheduler, session, HRIS, attendance and meal-request
// components this module actually runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler (C6)

	JobExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mealreq",
		Subsystem: "scheduler",
		Name:      "job_execution_duration_seconds",
		Help:      "Duration of a scheduled job execution.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"job_key", "status"})

	JobExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "scheduler",
		Name:      "job_executions_total",
		Help:      "Total scheduled job executions, by job key and outcome.",
	}, []string{"job_key", "status"})

	LockAcquireFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "scheduler",
		Name:      "lock_acquire_failures_total",
		Help:      "Times a job fire lost the row lock race to another instance.",
	}, []string{"trigger"}) // trigger = manual|periodic

	ReapedLocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "scheduler",
		Name:      "reaped_locks_total",
		Help:      "Total expired execution locks reclaimed by the reaper.",
	})

	InstancesStoppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "scheduler",
		Name:      "instances_marked_stopped_total",
		Help:      "Total scheduler instances marked stopped for a missed heartbeat.",
	})

	// Session / Token Authority (C4/C5)

	LoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "session",
		Name:      "logins_total",
		Help:      "Total login attempts, by outcome.",
	}, []string{"outcome"}) // outcome = success|invalid_credentials|locked|error

	RefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "session",
		Name:      "refreshes_total",
		Help:      "Total refresh-token rotations, by outcome.",
	}, []string{"outcome"}) // outcome = success|reuse_detected|expired|error

	RevocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "session",
		Name:      "revocations_total",
		Help:      "Total session revocations, by reason.",
	}, []string{"reason"}) // reason = logout|limit_enforced|reuse_detected|admin

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mealreq",
		Subsystem: "session",
		Name:      "active_sessions",
		Help:      "Sessions currently not revoked and not expired, sampled each refresh/login.",
	})

	// HRIS Replicator (C8)

	HRISRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "hris",
		Name:      "records_total",
		Help:      "Records processed by the replicator, by phase and outcome.",
	}, []string{"phase", "outcome"}) // phase = department|employee|user|assignment|status_sync; outcome = created|updated|skipped|failed

	HRISReplicationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mealreq",
		Subsystem: "hris",
		Name:      "replication_duration_seconds",
		Help:      "Duration of one full replication pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// Attendance Sync (C9)

	AttendanceLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "attendance",
		Name:      "lines_total",
		Help:      "Meal-request lines evaluated by the attendance sync, by outcome.",
	}, []string{"outcome"}) // outcome = updated|unchanged|no_external_record|clamped

	AttendanceSyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mealreq",
		Subsystem: "attendance",
		Name:      "sync_duration_seconds",
		Help:      "Duration of one attendance sync pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// Meal Request (C10)

	MealRequestTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Subsystem: "mealrequest",
		Name:      "status_transitions_total",
		Help:      "Total meal-request status transitions, by resulting status.",
	}, []string{"status"})

	// HTTP

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mealreq",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mealreq",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

// Register registers every collector against the default registry. Called
// once at process start, before either HTTP or background work begins.
func Register() {
	prometheus.MustRegister(
		JobExecutionDuration,
		JobExecutionsTotal,
		LockAcquireFailuresTotal,
		ReapedLocksTotal,
		InstancesStoppedTotal,
		LoginsTotal,
		RefreshesTotal,
		RevocationsTotal,
		ActiveSessions,
		HRISRecordsTotal,
		HRISReplicationDuration,
		AttendanceLinesTotal,
		AttendanceSyncDuration,
		MealRequestTransitionsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
