package task

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
	PathTasks      = "/v1/tasks"
	PathBatchTasks = "/v1/batches/:id/tasks"

	taskValidator = validator.New()
)

func RegisterTasksRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	r.POST(PathBatchTasks, append(middleWares, handleGenerateTasks)...)

	g := r.Group(PathTasks, middleWares...)
	g.GET("", handleQueryTasks)
	g.POST("", handleCreateTask)
	g.PUT("assignee", handleAssignTasks)
	g.POST(":id/claim", handleClaimTask)
	g.PUT(":id/status", handleUpdateTaskStatus)
}

func handleGenerateTasks(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	opts := GenerationOptions{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindBodyWith(&opts, binding.JSON); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}
	s := session.ExtractSessionFromGinContext(c)
	result, err := GenerateTasksFunc(s.Ctx(), id, opts, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, result)
}

func handleQueryTasks(c *gin.Context) {
	query := TaskQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	tasks, err := QueryTasksFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, tasks)
}

func handleCreateTask(c *gin.Context) {
	creation := TaskCreation{}
	if err := c.ShouldBindBodyWith(&creation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := taskValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	t, err := CreateTaskFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, t)
}

func handleAssignTasks(c *gin.Context) {
	assignment := TaskAssignment{}
	if err := c.ShouldBindBodyWith(&assignment, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := taskValidator.Struct(assignment); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	s := session.ExtractSessionFromGinContext(c)
	tasks, err := AssignTasksFunc(s.Ctx(), &assignment, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, tasks)
}

func handleClaimTask(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	s := session.ExtractSessionFromGinContext(c)
	t, err := ClaimTaskFunc(s.Ctx(), id, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, t)
}

func handleUpdateTaskStatus(c *gin.Context) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return
	}
	updating := TaskStatusUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := taskValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	s := session.ExtractSessionFromGinContext(c)
	t, err := UpdateTaskStatusFunc(s.Ctx(), id, updating.Status, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, t)
}
