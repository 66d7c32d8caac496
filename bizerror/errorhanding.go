package bizerror

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"shopfloor/common"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/gorm"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
)

// ErrorHandling turns panics and errors attached to the gin context into {code, message, data} responses.
func ErrorHandling() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer handle(c)
		c.Next()
	}
}

func handle(c *gin.Context) {
	if ret := recover(); ret != nil {
		err, ok := ret.(error)
		if !ok {
			err = errors.New(fmt.Sprintf("%s", ret))
		}
		HandleError(c, err)
	} else {
		if err := c.Errors.Last(); err != nil {
			HandleError(c, err)
		}
	}
}

func HandleError(c *gin.Context, err error) {
	genericErr := err
	var ginErr *gin.Error
	if errors.As(err, &ginErr) {
		genericErr = ginErr.Err
	}

	status, body := respondOf(genericErr)
	entry := logrus.WithFields(logrus.Fields{"code": body.Code, "method": c.Request.Method, "path": c.Request.URL.Path})
	if status >= http.StatusInternalServerError {
		entry.Error(genericErr)
		if span := opentracing.SpanFromContext(c.Request.Context()); span != nil {
			ext.Error.Set(span, true)
			span.LogKV("event", "error", "message", genericErr.Error())
		}
	} else {
		entry.Info(genericErr)
	}
	c.JSON(status, body)
	c.Abort()
}

func respondOf(err error) (int, *common.ErrorBody) {
	var bizErr BizError
	if errors.As(err, &bizErr) {
		respond := bizErr.Respond()
		return respond.Status, &common.ErrorBody{Code: respond.Code, Message: respond.Message, Data: respond.Data}
	}

	// bad request: no body
	if errors.Is(err, io.EOF) {
		return http.StatusBadRequest, &common.ErrorBody{Code: "bad_request.body_not_found", Message: "body not found"}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return http.StatusBadRequest, &common.ErrorBody{Code: "bad_request.invalid_body_format", Message: "invalid body format", Data: syntaxErr.Error()}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return http.StatusBadRequest, &common.ErrorBody{Code: "bad_request.invalid_body_format", Message: "invalid body format",
			Data: fmt.Sprintf("field '%s' expects %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)}
	}
	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, &common.ErrorBody{Code: "bad_request.validation_failed", Message: "validation failed", Data: validationErr.Error()}
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, &common.ErrorBody{Code: "common.unauthenticated", Message: "unauthenticated"}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, &common.ErrorBody{Code: "security.forbidden", Message: "access forbidden"}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, &common.ErrorBody{Code: "common.record_not_found", Message: "record not found"}
	}
	return http.StatusInternalServerError, &common.ErrorBody{Code: "common.internal_server_error", Message: err.Error()}
}
