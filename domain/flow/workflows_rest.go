package flow

import (
	"net/http"
	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	PathWorkflows = "/v1/workflows"

	workflowValidator = validator.New()
)

func RegisterWorkflowsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkflows, middleWares...)
	g.POST("", handleCreateWorkflow)
	g.GET("", handleQueryWorkflows)
	g.GET(":id", handleDetailWorkflow)
	g.PUT(":id", handleUpdateWorkflow)
	g.PUT(":id/active", handleSetWorkflowActive)
	g.GET(":id/transitions", handleQueryTransitions)
}

func handleCreateWorkflow(c *gin.Context) {
	creation := WorkflowCreation{}
	err := c.ShouldBindBodyWith(&creation, binding.JSON)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = workflowValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}

	workflow, err := CreateWorkflowFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, workflow)
}

func handleQueryWorkflows(c *gin.Context) {
	query := WorkflowQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	workflows, err := QueryWorkflowsFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, workflows)
}

func handleDetailWorkflow(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	detail, err := DetailWorkflowFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleUpdateWorkflow(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	updating := WorkflowUpdating{}
	if err = c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = workflowValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	detail, err := UpdateWorkflowFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, detail)
}

func handleSetWorkflowActive(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	activation := WorkflowActivation{}
	if err = c.ShouldBindBodyWith(&activation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = workflowValidator.Struct(activation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = SetWorkflowActiveFunc(id, *activation.IsActive, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func handleQueryTransitions(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	detail, err := DetailWorkflowFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	from := c.Query("fromStage")
	if from != "" && !detail.IsValidStage(from) {
		panic(&bizerror.ErrInvalidStage{Stage: from, ValidStages: detail.ValidStages()})
	}
	c.JSON(http.StatusOK, detail.AvailableTransitions(from))
}
