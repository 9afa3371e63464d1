package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the service counters. One Set is constructed per process and
// passed explicitly to the components that report on it.
type Set struct {
	APIRequests        prometheus.Counter
	JobsSubmitted      prometheus.Counter
	JobsClaimed        prometheus.Counter
	JobsSucceeded      prometheus.Counter
	JobsFailed         prometheus.Counter
	JobsRetried        prometheus.Counter
	WorkerHeartbeats   prometheus.Counter
	StaleWritesBlocked prometheus.Counter
	ReconcilerRepaired prometheus.Counter
}

func NewSet() *Set {
	return &Set{
		APIRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_api_requests_total",
			Help: "Total API requests",
		}),
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_jobs_submitted_total",
			Help: "Jobs accepted by the submission path",
		}),
		JobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_jobs_claimed_total",
			Help: "Successful lease claims",
		}),
		JobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_jobs_succeeded_total",
			Help: "Jobs converged to succeeded",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_jobs_failed_total",
			Help: "Jobs that exhausted their attempt budget",
		}),
		JobsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_jobs_retried_total",
			Help: "Handler failures re-queued with backoff",
		}),
		WorkerHeartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_worker_heartbeat_total",
			Help: "Worker heartbeat ticks",
		}),
		StaleWritesBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_stale_writes_blocked_total",
			Help: "Writes rejected by token or lease fencing",
		}),
		ReconcilerRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faultline_reconciler_repaired_total",
			Help: "Jobs converged by the reconciler",
		}),
	}
}

// Register adds all counters of the set to reg.
func (s *Set) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		s.APIRequests,
		s.JobsSubmitted,
		s.JobsClaimed,
		s.JobsSucceeded,
		s.JobsFailed,
		s.JobsRetried,
		s.WorkerHeartbeats,
		s.StaleWritesBlocked,
		s.ReconcilerRepaired,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
