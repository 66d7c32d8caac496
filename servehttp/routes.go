package servehttp

import (
	"net/http"
	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/domain/assign"
	"shopfloor/domain/automation"
	"shopfloor/domain/batch"
	"shopfloor/domain/flow"
	"shopfloor/domain/task"
	"shopfloor/indices"
	"shopfloor/infra/tracing"
	"shopfloor/metrics"

	"github.com/gin-gonic/gin"
)

// NewEngine builds the http surface of the workflow engine. middleWares guard every /v1 route.
func NewEngine(middleWares ...gin.HandlerFunc) *gin.Engine {
	engine := gin.Default()
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling())

	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, common.GetServiceName())
	})
	metrics.RegisterMetricsAPI(engine)

	flow.RegisterWorkflowsRestAPI(engine, middleWares...)
	batch.RegisterBatchesRestAPI(engine, middleWares...)
	task.RegisterTasksRestAPI(engine, middleWares...)
	assign.RegisterWorkersRestAPI(engine, middleWares...)
	automation.RegisterAutomationRestAPI(engine, middleWares...)
	indices.RegisterIndicesRestAPI(engine, middleWares...)
	return engine
}
