package batch

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
	PathBatches = "/v1/batches"

	batchValidator = validator.New()
)

func RegisterBatchesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathBatches, middleWares...)
	g.POST("", handleCreateBatch)
	g.GET("", handleQueryBatches)
	g.GET(":id", handleDetailBatch)
	g.PUT(":id/workflow", handleAssignWorkflow)
	g.POST(":id/transitions", handleTransitionBatch)
	g.GET(":id/transitions", handleQueryStageTransitions)
	g.POST(":id/cancel", handleCancelBatch)
}

func handleCreateBatch(c *gin.Context) {
	creation := BatchCreation{}
	err := c.ShouldBindBodyWith(&creation, binding.JSON)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = batchValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	b, err := CreateBatchFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, b)
}

func handleQueryBatches(c *gin.Context) {
	query := BatchQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	batches, err := QueryBatchesFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, batches)
}

func handleDetailBatch(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	b, err := DetailBatchFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, b)
}

func handleAssignWorkflow(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	assignment := WorkflowAssignment{}
	if err = c.ShouldBindBodyWith(&assignment, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = batchValidator.Struct(assignment); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	s := session.ExtractSessionFromGinContext(c)
	b, err := AssignWorkflowFunc(s.Ctx(), id, &assignment, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, b)
}

func handleTransitionBatch(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	req := TransitionRequest{}
	if err = c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = batchValidator.Struct(req); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	s := session.ExtractSessionFromGinContext(c)
	result, err := TransitionBatchFunc(s.Ctx(), id, &req, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}

func handleQueryStageTransitions(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	records, err := QueryStageTransitionsFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, records)
}

func handleCancelBatch(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	s := session.ExtractSessionFromGinContext(c)
	b, err := CancelBatchFunc(s.Ctx(), id, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, b)
}
