package batch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/domain/batch"
	"shopfloor/session"
	"shopfloor/testinfra"
	"strings"
	"testing"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

func newRouter() *gin.Engine {
	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	batch.RegisterBatchesRestAPI(router)
	return router
}

func TestCreateBatchRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := newRouter()

	t.Run("should validate request body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches, strings.NewReader(`{"name":"b1"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param",
			"message":"Key: 'BatchCreation.BatchType' Error:Field validation for 'BatchType' failed on the 'required' tag",
			"data":null}`))
	})

	t.Run("should pass creation to the store", func(t *testing.T) {
		var captured *batch.BatchCreation
		batch.CreateBatchFunc = func(c *batch.BatchCreation, s *session.Session) (*domain.Batch, error) {
			captured = c
			return &domain.Batch{ID: 100, Name: c.Name, BatchType: domain.BatchTypeCustom, Status: domain.BatchPending,
				OrderItemIDs: domain.IDList{1, 2}, Criteria: domain.JSONMap{"stock_batch": true}, Version: 1}, nil
		}
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches,
			strings.NewReader(`{"name":"b1","batchType":"stock","workflowTemplateId":"7","orderItemIds":["1","2"]}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(captured.BatchType).To(Equal(domain.RequestedStock))
		Expect(captured.WorkflowID).To(Equal(types.ID(7)))
		Expect(captured.OrderItemIDs).To(Equal([]types.ID{1, 2}))
		Expect(body).To(ContainSubstring(`"id":"100"`))
		Expect(body).To(ContainSubstring(`"currentStage":null`))
		Expect(body).To(ContainSubstring(`"orderItemIds":["1","2"]`))
	})

	t.Run("should respond domain errors", func(t *testing.T) {
		batch.CreateBatchFunc = func(c *batch.BatchCreation, s *session.Session) (*domain.Batch, error) {
			return nil, &bizerror.ErrInvalidEnum{Field: "batchType", Value: "pallet", Accepted: domain.RequestedBatchTypes}
		}
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches, strings.NewReader(`{"name":"b1","batchType":"pallet"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.invalid_value",
			"message":"invalid batchType 'pallet', accepted values: model, wood_type, custom, stock",
			"data":["model","wood_type","custom","stock"]}`))
	})
}

func TestQueryBatchesRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := newRouter()

	t.Run("should bind query parameters", func(t *testing.T) {
		var captured *batch.BatchQuery
		batch.QueryBatchesFunc = func(q *batch.BatchQuery, s *session.Session) ([]domain.Batch, error) {
			captured = q
			return []domain.Batch{}, nil
		}
		req := httptest.NewRequest(http.MethodGet, batch.PathBatches+"?status=active&workflowTemplateId=9", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`[]`))
		Expect(*captured).To(Equal(batch.BatchQuery{Status: "active", WorkflowID: 9}))
	})

	t.Run("should reject invalid ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, batch.PathBatches+"/abc", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param","message":"invalid id 'abc'","data":null}`))
	})

	t.Run("should respond not found", func(t *testing.T) {
		batch.DetailBatchFunc = func(id types.ID, s *session.Session) (*domain.Batch, error) {
			return nil, &bizerror.ErrNotFound{Resource: "batch", ID: id}
		}
		req := httptest.NewRequest(http.MethodGet, batch.PathBatches+"/5", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body).To(MatchJSON(`{"code":"batch.not_found","message":"batch 5 not found","data":null}`))
	})
}

func TestTransitionBatchRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := newRouter()

	t.Run("should require target stage", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches+"/5/transitions", strings.NewReader(`{}`))
		status, _, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
	})

	t.Run("should respond the transition result", func(t *testing.T) {
		var capturedID types.ID
		var captured *batch.TransitionRequest
		batch.TransitionBatchFunc = func(ctx context.Context, id types.ID, req *batch.TransitionRequest, s *session.Session) (*batch.TransitionResult, error) {
			capturedID, captured = id, req
			previous := "sanding"
			return &batch.TransitionResult{PreviousStage: &previous, NewStage: nil, RequestedStage: req.TargetStage}, nil
		}
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches+"/5/transitions",
			strings.NewReader(`{"targetStage":"pending","notes":"rework"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(capturedID).To(Equal(types.ID(5)))
		Expect(*captured).To(Equal(batch.TransitionRequest{TargetStage: "pending", Notes: "rework"}))
		Expect(body).To(MatchJSON(`{"previousStage":"sanding","newStage":null,"requestedStage":"pending"}`))
	})

	t.Run("should respond invalid stages with the valid list", func(t *testing.T) {
		batch.TransitionBatchFunc = func(ctx context.Context, id types.ID, req *batch.TransitionRequest, s *session.Session) (*batch.TransitionResult, error) {
			return nil, &bizerror.ErrInvalidStage{Stage: req.TargetStage, ValidStages: []string{"sanding", "pending", "completed"}}
		}
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches+"/5/transitions", strings.NewReader(`{"targetStage":"paint"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"workflow.invalid_stage",
			"message":"invalid stage 'paint', valid stages: sanding, pending, completed",
			"data":["sanding","pending","completed"]}`))
	})

	t.Run("should respond concurrent updates as conflicts", func(t *testing.T) {
		batch.TransitionBatchFunc = func(ctx context.Context, id types.ID, req *batch.TransitionRequest, s *session.Session) (*batch.TransitionResult, error) {
			return nil, &bizerror.ErrConcurrentUpdate{Resource: "batch", ID: id}
		}
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches+"/5/transitions", strings.NewReader(`{"targetStage":"qc"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(body).To(MatchJSON(`{"code":"batch.concurrent_update","message":"batch 5 was modified concurrently","data":null}`))
	})
}

func TestQueryStageTransitionsRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := newRouter()

	t.Run("should list transition records", func(t *testing.T) {
		batch.QueryStageTransitionsFunc = func(id types.ID, s *session.Session) ([]domain.StageTransitionRecord, error) {
			return []domain.StageTransitionRecord{{ID: 1, BatchID: id, ToStage: "sanding", TransitionType: domain.TransitionManual}}, nil
		}
		req := httptest.NewRequest(http.MethodGet, batch.PathBatches+"/5/transitions", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`"batchId":"5"`))
		Expect(body).To(ContainSubstring(`"fromStage":null`))
		Expect(body).To(ContainSubstring(`"toStage":"sanding"`))
	})
}

func TestAssignWorkflowAndCancelRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := newRouter()

	t.Run("should require workflow id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, batch.PathBatches+"/5/workflow", strings.NewReader(`{"initialStage":"sanding"}`))
		status, _, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
	})

	t.Run("should assign workflow", func(t *testing.T) {
		var captured *batch.WorkflowAssignment
		batch.AssignWorkflowFunc = func(ctx context.Context, id types.ID, a *batch.WorkflowAssignment, s *session.Session) (*domain.Batch, error) {
			captured = a
			stage := a.InitialStage
			return &domain.Batch{ID: id, WorkflowID: a.WorkflowID, CurrentStage: &stage, Status: domain.BatchActive}, nil
		}
		req := httptest.NewRequest(http.MethodPut, batch.PathBatches+"/5/workflow",
			strings.NewReader(`{"workflowTemplateId":"7","initialStage":"sanding"}`))
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(*captured).To(Equal(batch.WorkflowAssignment{WorkflowID: 7, InitialStage: "sanding"}))
		Expect(body).To(ContainSubstring(`"currentStage":"sanding"`))
		Expect(body).To(ContainSubstring(`"workflowTemplateId":"7"`))
	})

	t.Run("should cancel batch", func(t *testing.T) {
		batch.CancelBatchFunc = func(ctx context.Context, id types.ID, s *session.Session) (*domain.Batch, error) {
			return &domain.Batch{ID: id, Status: domain.BatchCancelled}, nil
		}
		req := httptest.NewRequest(http.MethodPost, batch.PathBatches+"/5/cancel", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring(`"status":"cancelled"`))

		batch.CancelBatchFunc = func(ctx context.Context, id types.ID, s *session.Session) (*domain.Batch, error) {
			return nil, bizerror.ErrForbidden
		}
		req = httptest.NewRequest(http.MethodPost, batch.PathBatches+"/5/cancel", nil)
		status, _, _ = testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusForbidden))
	})
}
