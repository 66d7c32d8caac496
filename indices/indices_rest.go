package indices

import (
	"net/http"
	"shopfloor/bizerror"
	"shopfloor/session"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathIndexRequests = "/v1/index-requests"
	PathEventSearch   = "/v1/event-search"

	SearchEventsFunc = SearchEvents
)

func RegisterIndicesRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	r.POST(PathIndexRequests, append(middleWares, handleIndexRequest)...)
	r.GET(PathEventSearch, append(middleWares, handleSearchEvents)...)
}

func handleIndexRequest(c *gin.Context) {
	success, err := ScheduleNewSyncRunFunc(session.ExtractSessionFromGinContext(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"result": success})
}

func handleSearchEvents(c *gin.Context) {
	s := session.ExtractSessionFromGinContext(c)
	if !s.IsActive() {
		panic(bizerror.ErrForbidden)
	}
	query := EventSearchQuery{}
	if err := c.ShouldBindWith(&query, binding.Query); err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	records, err := SearchEventsFunc(s.Ctx(), &query)
	if err != nil {
		panic(&bizerror.ErrDependency{Dependency: "elasticsearch", Cause: err})
	}
	c.JSON(http.StatusOK, records)
}
