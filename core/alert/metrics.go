package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "elimu",
		Subsystem: "alerts",
		Name:      "rule_evaluations_total",
		Help:      "Total number of alert rule evaluations",
	})

	evaluationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "elimu",
		Subsystem: "alerts",
		Name:      "rule_evaluation_errors_total",
		Help:      "Total number of alert rule evaluations that failed",
	})

	firedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elimu",
		Subsystem: "alerts",
		Name:      "fired_total",
		Help:      "Total number of alerts fired",
	}, []string{"severity"})

	resolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elimu",
		Subsystem: "alerts",
		Name:      "resolved_total",
		Help:      "Total number of alerts resolved, by system or user",
	}, []string{"by"})

	notificationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elimu",
		Subsystem: "alerts",
		Name:      "notification_errors_total",
		Help:      "Total number of alert notifications that could not be delivered",
	}, []string{"channel"})

	streamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "elimu",
		Subsystem: "alerts",
		Name:      "stream_dropped_total",
		Help:      "Total number of events dropped for slow stream subscribers",
	})

	openAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "elimu",
		Subsystem: "alerts",
		Name:      "open",
		Help:      "Number of firing or acknowledged alerts after the last evaluation",
	})
)
