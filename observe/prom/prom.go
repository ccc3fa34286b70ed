// Package prom exports job lifecycle and dispatcher metrics to Prometheus.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NetPo4ki/go-flowscope/dispatch"
	"github.com/NetPo4ki/go-flowscope/scope"
)

// Metrics is a scope.Observer backed by Prometheus collectors.
type Metrics struct {
	jobsCreated   prometheus.Counter
	jobsCancelled prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	activeBodies  prometheus.Gauge
	bodyDuration  *prometheus.HistogramVec
	joinWait      prometheus.Histogram
}

// New creates the collectors under namespace. Register them with Register or
// MustRegister.
func New(namespace string) *Metrics {
	return &Metrics{
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_created_total",
			Help: "Jobs created.",
		}),
		jobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_cancelled_total",
			Help: "Jobs moved to Cancelling.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_finished_total",
			Help: "Jobs that reached a terminal state.",
		}, []string{"state"}),
		activeBodies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bodies_active",
			Help: "Job bodies currently running.",
		}),
		bodyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "body_duration_seconds",
			Help:    "Time spent in job bodies.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"outcome"}),
		joinWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "join_wait_seconds",
			Help:    "Time spent waiting in Join and Scope.Wait.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.jobsCreated, m.jobsCancelled, m.jobsFinished, m.activeBodies, m.bodyDuration, m.joinWait}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.collectors()...)
}

func (m *Metrics) JobCreated(context.Context, scope.JobInfo) { m.jobsCreated.Inc() }

func (m *Metrics) JobCancelled(context.Context, scope.JobInfo, error) { m.jobsCancelled.Inc() }

func (m *Metrics) JobJoined(_ context.Context, _ scope.JobInfo, wait time.Duration) {
	m.joinWait.Observe(wait.Seconds())
}

func (m *Metrics) JobFinished(_ context.Context, _ scope.JobInfo, state scope.State, _ error) {
	m.jobsFinished.WithLabelValues(state.String()).Inc()
}

func (m *Metrics) BodyStarted(context.Context, scope.JobInfo) { m.activeBodies.Inc() }

func (m *Metrics) BodyFinished(_ context.Context, _ scope.JobInfo, dur time.Duration, err error, panicked bool) {
	m.activeBodies.Dec()
	m.bodyDuration.WithLabelValues(outcome(err, panicked)).Observe(dur.Seconds())
}

func outcome(err error, panicked bool) string {
	switch {
	case panicked:
		return "panic"
	case err == nil:
		return "ok"
	case scope.IsCancellation(err):
		return "cancelled"
	default:
		return "error"
	}
}

// DispatcherCollector reports the slot usage of dispatchers at scrape time.
type DispatcherCollector struct {
	dispatchers []*dispatch.Dispatcher
	limit       *prometheus.Desc
	running     *prometheus.Desc
	queued      *prometheus.Desc
}

func NewDispatcherCollector(namespace string, ds ...*dispatch.Dispatcher) *DispatcherCollector {
	labels := []string{"dispatcher", "kind"}
	return &DispatcherCollector{
		dispatchers: ds,
		limit:       prometheus.NewDesc(prometheus.BuildFQName(namespace, "dispatcher", "slots"), "Slots of the dispatcher.", labels, nil),
		running:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "dispatcher", "running"), "Slots held by running tasks.", labels, nil),
		queued:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "dispatcher", "queued"), "Tasks waiting for a slot.", labels, nil),
	}
}

func (c *DispatcherCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.limit
	ch <- c.running
	ch <- c.queued
}

func (c *DispatcherCollector) Collect(ch chan<- prometheus.Metric) {
	for _, d := range c.dispatchers {
		st := d.Stats()
		kind := st.Kind.String()
		ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, float64(st.Limit), st.Name, kind)
		ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, float64(st.Running), st.Name, kind)
		ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(st.Queued), st.Name, kind)
	}
}
