package assign

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
	PathWorkers = "/v1/workers"

	workerValidator = validator.New()
)

func RegisterWorkersRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkers, middleWares...)
	g.POST("", handleCreateWorker)
	g.GET("", handleQueryWorkers)
	g.GET(":id", handleDetailWorker)
	g.PUT(":id/active", handleSetWorkerActive)
}

func handleCreateWorker(c *gin.Context) {
	creation := WorkerCreation{}
	err := c.ShouldBindBodyWith(&creation, binding.JSON)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = workerValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	worker, err := CreateWorkerFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, worker)
}

func handleQueryWorkers(c *gin.Context) {
	query := WorkerQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	workers, err := QueryWorkersFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, workers)
}

func handleDetailWorker(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	worker, err := DetailWorkerFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, worker)
}

func handleSetWorkerActive(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	activation := WorkerActivation{}
	if err = c.ShouldBindBodyWith(&activation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = workerValidator.Struct(activation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = SetWorkerActiveFunc(id, *activation.IsActive, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}
