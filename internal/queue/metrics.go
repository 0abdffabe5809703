package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"clip-flow/internal/domain"
)

var (
	metricJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipflow_queue_jobs",
			Help: "Number of jobs currently tracked per lane and state.",
		},
		[]string{"lane", "state"},
	)

	metricEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_queue_enqueued_total",
			Help: "Total number of jobs admitted per lane.",
		},
		[]string{"lane"},
	)

	metricFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipflow_queue_finished_total",
			Help: "Total number of jobs that reached a terminal state per lane.",
		},
		[]string{"lane", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(metricJobs)
	prometheus.MustRegister(metricEnqueued)
	prometheus.MustRegister(metricFinished)

	// Pre-initialize label combinations so lanes report 0 from startup.
	for _, lane := range []string{string(domain.LaneTranscription), string(domain.LaneSummarization)} {
		metricEnqueued.WithLabelValues(lane)
		metricFinished.WithLabelValues(lane, "completed")
		metricFinished.WithLabelValues(lane, "error")
	}
}

// setLaneMetrics publishes one lane's statistics to the job state gauges.
func setLaneMetrics(lane domain.Lane, stats domain.LaneStats) {
	l := string(lane)
	metricJobs.WithLabelValues(l, string(domain.JobStatePending)).Set(float64(stats.Pending))
	metricJobs.WithLabelValues(l, string(domain.JobStateActive)).Set(float64(stats.Active))
	metricJobs.WithLabelValues(l, string(domain.JobStateCompleted)).Set(float64(stats.Completed))
	metricJobs.WithLabelValues(l, string(domain.JobStateError)).Set(float64(stats.Error))
}
