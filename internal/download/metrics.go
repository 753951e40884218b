package download

import "github.com/prometheus/client_golang/prometheus"

var (
	transfersStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketllm",
		Subsystem: "download",
		Name:      "transfers_started_total",
		Help:      "Transfers started",
	})

	transfersCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketllm",
		Subsystem: "download",
		Name:      "transfers_completed_total",
		Help:      "Transfers completed successfully",
	})

	transfersFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketllm",
		Subsystem: "download",
		Name:      "transfers_failed_total",
		Help:      "Transfers that ended in error",
	})

	transferBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketllm",
		Subsystem: "download",
		Name:      "bytes_total",
		Help:      "Bytes recorded as downloaded on completion",
	})

	transfersInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pocketllm",
		Subsystem: "download",
		Name:      "inflight",
		Help:      "Transfers currently in flight",
	})
)

func init() {
	prometheus.MustRegister(transfersStarted, transfersCompleted, transfersFailed, transferBytes, transfersInflight)
}
