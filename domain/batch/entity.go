package batch

import (
	"shopfloor/domain"

	"github.com/fundwit/go-commons/types"
)

type BatchCreation struct {
	Name         string                    `json:"name" validate:"required"`
	BatchType    domain.RequestedBatchType `json:"batchType" validate:"required"`
	WorkflowID   types.ID                  `json:"workflowTemplateId"`
	OrderItemIDs []types.ID                `json:"orderItemIds"`
	Criteria     map[string]interface{}    `json:"criteria"`
}

type BatchQuery struct {
	Status     string   `form:"status"`
	WorkflowID types.ID `form:"workflowTemplateId"`
}

type WorkflowAssignment struct {
	WorkflowID   types.ID `json:"workflowTemplateId" validate:"required"`
	InitialStage string   `json:"initialStage"`
}

type TransitionRequest struct {
	TargetStage    string                `json:"targetStage" validate:"required"`
	TransitionType domain.TransitionType `json:"transitionType"`
	Notes          string                `json:"notes"`
}

type TransitionResult struct {
	PreviousStage  *string `json:"previousStage"`
	NewStage       *string `json:"newStage"`
	RequestedStage string  `json:"requestedStage"`
}
