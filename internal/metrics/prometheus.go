package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cortexrd/Knack-Toolkit-Library-sub001/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	busSent     *prometheus.CounterVec
	busRetries  *prometheus.CounterVec
	busFailures *prometheus.CounterVec
	busPending  prometheus.Gauge

	heartbeats *prometheus.CounterVec

	workerCreated   prometheus.Counter
	workerRecreated *prometheus.CounterVec

	logsAdded         *prometheus.CounterVec
	logsEvicted       *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec
}

var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace ("ktl" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "ktl"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.busSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "bus",
			Name:      "messages_sent_total",
			Help:      "Messages dispatched by type and subtype, including retries.",
		}, []string{"type", "subtype"})

		p.busRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "bus",
			Name:      "retries_total",
			Help:      "Re-sends of expired requests by type.",
		}, []string{"type"})

		p.busFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "bus",
			Name:      "failures_total",
			Help:      "Requests whose retries were exhausted, by type.",
		}, []string{"type"})

		p.busPending = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "bus",
			Name:      "pending_messages",
			Help:      "Requests waiting for an acknowledge.",
		})

		p.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "heartbeat",
			Name:      "responses_total",
			Help:      "Heartbeat requests handled by result (ack, skipped).",
		}, []string{"result"})

		p.workerCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "created_total",
			Help:      "Worker windows opened.",
		})

		p.workerRecreated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "recreated_total",
			Help:      "Worker window recreations by reason.",
		}, []string{"reason"})

		p.logsAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "telemetry",
			Name:      "logs_added_total",
			Help:      "Log entries accepted by category.",
		}, []string{"category"})

		p.logsEvicted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "telemetry",
			Name:      "logs_evicted_total",
			Help:      "Log entries evicted by the per-category cap.",
		}, []string{"category"})

		p.submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "telemetry",
			Name:      "submissions_total",
			Help:      "Batch submissions by category and result (success, failure).",
		}, []string{"category", "result"})

		p.submissionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "telemetry",
			Name:      "submission_duration_seconds",
			Help:      "Latency of batch submissions in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"category"})

		p.reg.MustRegister(p.busSent)
		p.reg.MustRegister(p.busRetries)
		p.reg.MustRegister(p.busFailures)
		p.reg.MustRegister(p.busPending)
		p.reg.MustRegister(p.heartbeats)
		p.reg.MustRegister(p.workerCreated)
		p.reg.MustRegister(p.workerRecreated)
		p.reg.MustRegister(p.logsAdded)
		p.reg.MustRegister(p.logsEvicted)
		p.reg.MustRegister(p.submissions)
		p.reg.MustRegister(p.submissionLatency)
	})
}

// RecordMessageSent increments the sent counter.
func (p *PrometheusCollector) RecordMessageSent(msgType types.MessageType, subtype types.Subtype) {
	p.ensureRegistered()
	p.busSent.WithLabelValues(string(msgType), string(subtype)).Inc()
}

// RecordMessageRetry increments the retry counter.
func (p *PrometheusCollector) RecordMessageRetry(msgType types.MessageType) {
	p.ensureRegistered()
	p.busRetries.WithLabelValues(string(msgType)).Inc()
}

// RecordMessageFailed increments the failure counter.
func (p *PrometheusCollector) RecordMessageFailed(msgType types.MessageType) {
	p.ensureRegistered()
	p.busFailures.WithLabelValues(string(msgType)).Inc()
}

// RecordPendingMessages sets the pending gauge.
func (p *PrometheusCollector) RecordPendingMessages(count int) {
	p.ensureRegistered()
	p.busPending.Set(float64(count))
}

// RecordHeartbeat counts acknowledged and skipped heartbeats.
func (p *PrometheusCollector) RecordHeartbeat(success bool) {
	p.ensureRegistered()
	if success {
		p.heartbeats.WithLabelValues("ack").Inc()
	} else {
		p.heartbeats.WithLabelValues("skipped").Inc()
	}
}

// RecordWorkerCreated increments the creation counter.
func (p *PrometheusCollector) RecordWorkerCreated() {
	p.ensureRegistered()
	p.workerCreated.Inc()
}

// RecordWorkerRecreated increments the recreation counter for reason.
func (p *PrometheusCollector) RecordWorkerRecreated(reason string) {
	p.ensureRegistered()
	p.workerRecreated.WithLabelValues(reason).Inc()
}

// RecordLogAdded increments the added counter for category.
func (p *PrometheusCollector) RecordLogAdded(category types.Category) {
	p.ensureRegistered()
	p.logsAdded.WithLabelValues(string(category)).Inc()
}

// RecordLogEvicted adds count to the eviction counter for category.
func (p *PrometheusCollector) RecordLogEvicted(category types.Category, count int) {
	p.ensureRegistered()
	p.logsEvicted.WithLabelValues(string(category)).Add(float64(count))
}

// RecordSubmission records a submission result and its latency.
func (p *PrometheusCollector) RecordSubmission(category types.Category, success bool, duration time.Duration) {
	p.ensureRegistered()
	result := "failure"
	if success {
		result = "success"
	}
	p.submissions.WithLabelValues(string(category), result).Inc()
	p.submissionLatency.WithLabelValues(string(category)).Observe(duration.Seconds())
}
