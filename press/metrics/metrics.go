// Package metrics records pipeline runs as Prometheus metrics, which the development server exposes so slow or
// problematic pipelines can be spotted while working on a site.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = `press`

// Result labels.
const (
	ResultSuccess = `success`
	ResultFailure = `failure`
)

// A Recorder holds the metrics of every task.
type Recorder struct {
	duration *prom.HistogramVec
	runs     *prom.CounterVec
	written  *prom.CounterVec
	problems *prom.CounterVec
}

// New constructs the metrics and registers them with reg.  If reg is nil, a new registry is used.
func New(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	rec := &Recorder{
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      `task_duration_seconds`,
			Help:      `Duration of task runs`,
			Buckets:   prom.DefBuckets,
		}, []string{`task`}),
		runs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      `task_runs_total`,
			Help:      `Task runs by result`,
		}, []string{`task`, `result`}),
		written: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      `outputs_written_total`,
			Help:      `Output files written by task`,
		}, []string{`task`}),
		problems: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      `problems_total`,
			Help:      `Recoverable problems reported by task`,
		}, []string{`task`}),
	}
	reg.MustRegister(rec.duration, rec.runs, rec.written, rec.problems)
	return rec
}

// Observe records one run of a task.
func (rec *Recorder) Observe(task string, elapsed time.Duration, written, problems int, err error) {
	if rec == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	rec.duration.WithLabelValues(task).Observe(elapsed.Seconds())
	rec.runs.WithLabelValues(task, result).Inc()
	rec.written.WithLabelValues(task).Add(float64(written))
	rec.problems.WithLabelValues(task).Add(float64(problems))
}

// Handler serves the metrics in reg.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
