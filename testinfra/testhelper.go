package testinfra

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"shopfloor/session"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

// BuildSession builds an active caller session with the given role.
func BuildSession(uid types.ID, role string) *session.Session {
	return &session.Session{
		Context:  context.Background(),
		Token:    "token-" + uid.String(),
		Identity: session.Identity{ID: uid, Name: "user" + uid.String(), Role: role, Active: true},
	}
}

func ExecuteRequest(req *http.Request, engine *gin.Engine) (int, string, *http.Response) {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	resp := w.Result()
	body, _ := ioutil.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp
}
