package automation

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
	PathAutomationRules = "/v1/automation-rules"

	ruleValidator = validator.New()
)

func RegisterAutomationRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathAutomationRules, middleWares...)
	g.POST("", handleCreateRule)
	g.GET("", handleQueryRules)
	g.GET(":id", handleDetailRule)
	g.PUT(":id", handleUpdateRule)
	g.PUT(":id/active", handleSetRuleActive)
	g.DELETE(":id", handleDeleteRule)
	g.POST(":id/executions", handleExecuteRule)
	g.GET(":id/executions", handleQueryExecutions)
}

func parseRuleID(c *gin.Context) (types.ID, bool) {
	id, err := types.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, &common.ErrorBody{Code: "common.bad_param", Message: "invalid id '" + c.Param("id") + "'"})
		return 0, false
	}
	return id, true
}

func handleCreateRule(c *gin.Context) {
	creation := RuleCreation{}
	err := c.ShouldBindBodyWith(&creation, binding.JSON)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err = ruleValidator.Struct(creation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	rule, err := CreateRuleFunc(&creation, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, rule)
}

func handleQueryRules(c *gin.Context) {
	query := RuleQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	rules, err := QueryRulesFunc(&query, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, rules)
}

func handleDetailRule(c *gin.Context) {
	id, ok := parseRuleID(c)
	if !ok {
		return
	}
	rule, err := DetailRuleFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, rule)
}

func handleUpdateRule(c *gin.Context) {
	id, ok := parseRuleID(c)
	if !ok {
		return
	}
	updating := RuleUpdating{}
	if err := c.ShouldBindBodyWith(&updating, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := ruleValidator.Struct(updating); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	rule, err := UpdateRuleFunc(id, &updating, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, rule)
}

func handleSetRuleActive(c *gin.Context) {
	id, ok := parseRuleID(c)
	if !ok {
		return
	}
	activation := RuleActivation{}
	if err := c.ShouldBindBodyWith(&activation, binding.JSON); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := ruleValidator.Struct(activation); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := SetRuleActiveFunc(id, *activation.IsActive, session.ExtractSessionFromGinContext(c)); err != nil {
		panic(err)
	}
	c.Status(http.StatusNoContent)
}

func handleDeleteRule(c *gin.Context) {
	id, ok := parseRuleID(c)
	if !ok {
		return
	}
	result, err := DeleteRuleFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}

func handleExecuteRule(c *gin.Context) {
	id, ok := parseRuleID(c)
	if !ok {
		return
	}
	req := ExecutionRequest{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			panic(&bizerror.ErrBadParam{Cause: err})
		}
	}
	s := session.ExtractSessionFromGinContext(c)
	result, err := ExecuteRuleFunc(s.Ctx(), id, &req, s)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, result)
}

func handleQueryExecutions(c *gin.Context) {
	id, ok := parseRuleID(c)
	if !ok {
		return
	}
	executions, err := QueryExecutionsFunc(id, session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, executions)
}
