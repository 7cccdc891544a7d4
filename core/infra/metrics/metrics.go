package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics defines counters for the publish loop.
type Metrics interface {
	IncTriggersFound(n int)
	IncPublished(kind string)
	IncPublishFailed(reason string)
	IncMarkedDone()
	IncDeadLettered()
	ObserveCycleDuration(seconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncTriggersFound(int)          {}
func (Noop) IncPublished(string)           {}
func (Noop) IncPublishFailed(string)       {}
func (Noop) IncMarkedDone()                {}
func (Noop) IncDeadLettered()              {}
func (Noop) ObserveCycleDuration(float64)  {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	triggersFound *prometheus.CounterVec
	published     *prometheus.CounterVec
	publishFailed *prometheus.CounterVec
	markedDone    prometheus.Counter
	deadLettered  prometheus.Counter
	cycleDuration prometheus.Histogram
	once          sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		triggersFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_found_total",
			Help:      "Pending trigger files returned by bucket scans",
		}, nil),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Successful layer publications by dataset kind",
		}, []string{"kind"}),
		publishFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failed_total",
			Help:      "Failed publish attempts by reason",
		}, []string{"reason"}),
		markedDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marked_done_total",
			Help:      "Triggers renamed to the done suffix",
		}),
		deadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_lettered_total",
			Help:      "Triggers moved aside after exhausting retries",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full scan cycle",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.triggersFound, p.published, p.publishFailed, p.markedDone, p.deadLettered, p.cycleDuration)
	})
}

func (p *Prom) IncTriggersFound(n int) {
	p.triggersFound.WithLabelValues().Add(float64(n))
}

func (p *Prom) IncPublished(kind string) {
	p.published.WithLabelValues(kind).Inc()
}

func (p *Prom) IncPublishFailed(reason string) {
	p.publishFailed.WithLabelValues(reason).Inc()
}

func (p *Prom) IncMarkedDone() {
	p.markedDone.Inc()
}

func (p *Prom) IncDeadLettered() {
	p.deadLettered.Inc()
}

func (p *Prom) ObserveCycleDuration(seconds float64) {
	p.cycleDuration.Observe(seconds)
}
