package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketllm",
		Subsystem: "chat",
		Name:      "generations_started_total",
		Help:      "Generations admitted and started",
	})

	generationsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketllm",
		Subsystem: "chat",
		Name:      "generations_completed_total",
		Help:      "Generations that finished successfully",
	})

	generationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pocketllm",
		Subsystem: "chat",
		Name:      "generations_failed_total",
		Help:      "Generations that ended in error",
	})
)

func init() {
	prometheus.MustRegister(generationsStarted, generationsCompleted, generationsFailed)
}
