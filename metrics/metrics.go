package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopfloor"

var (
	StageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_transitions_total",
		Help:      "Batch stage transitions by target stage and transition type.",
	}, []string{"to_stage", "transition_type"})

	TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_created_total",
		Help:      "Tasks created by stage and creation path.",
	}, []string{"stage", "source"})

	AutomationExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "automation_executions_total",
		Help:      "Automation rule executions by trigger type and outcome.",
	}, []string{"trigger_type", "outcome"})

	AutomationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "automation_execution_seconds",
		Help:      "Duration of automation rule executions.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Notifications dropped by the rate limiter or failed deliveries.",
	})
)

const (
	SourceTaskGenerator = "generator"
	SourceStageConfig   = "stage_config"
	SourceManual        = "manual"
)

func RegisterMetricsAPI(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
