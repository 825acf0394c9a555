package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	UpdatesTotal          prometheus.Counter
	EnqueuedJobs          prometheus.Counter
	ProcessedJobs         prometheus.Counter
	FailedJobs            prometheus.Counter
	IgnoredMessages       prometheus.Counter
	GenerationFailures    prometheus.Counter
	HistoryAppendFailures prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			UpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gembot",
				Name:      "telegram_updates_total",
				Help:      "Total telegram updates received",
			}),
			EnqueuedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gembot",
				Name:      "queue_enqueued_total",
				Help:      "Total intake jobs enqueued to redis stream",
			}),
			ProcessedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gembot",
				Name:      "queue_processed_total",
				Help:      "Total intake jobs fully processed",
			}),
			FailedJobs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gembot",
				Name:      "queue_failed_total",
				Help:      "Total intake jobs that ended in an apology reply",
			}),
			IgnoredMessages: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gembot",
				Name:      "gate_ignored_total",
				Help:      "Total messages rejected by the responder gate",
			}),
			GenerationFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gembot",
				Name:      "generation_failures_total",
				Help:      "Total generation backend call failures",
			}),
			HistoryAppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gembot",
				Name:      "history_append_failures_total",
				Help:      "Total failed turn appends to the history store",
			}),
		}
		prometheus.MustRegister(
			global.UpdatesTotal,
			global.EnqueuedJobs,
			global.ProcessedJobs,
			global.FailedJobs,
			global.IgnoredMessages,
			global.GenerationFailures,
			global.HistoryAppendFailures,
		)
	})
	return global
}
