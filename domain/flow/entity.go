package flow

import (
	"shopfloor/domain"
)

type WorkflowCreation struct {
	Name        string                       `json:"name" validate:"required"`
	Description string                       `json:"description"`
	Stages      []domain.StageDefinition     `json:"stages" validate:"required,min=1,dive"`
	Transitions []domain.StageTransitionEdge `json:"stageTransitions" validate:"dive"`
}

type WorkflowUpdating struct {
	Name        string                       `json:"name" validate:"required"`
	Description string                       `json:"description"`
	Stages      []domain.StageDefinition     `json:"stages" validate:"required,min=1,dive"`
	Transitions []domain.StageTransitionEdge `json:"stageTransitions" validate:"dive"`
}

type WorkflowQuery struct {
	Name       string `form:"name"`
	ActiveOnly bool   `form:"activeOnly"`
}

type WorkflowActivation struct {
	IsActive *bool `json:"isActive" validate:"required"`
}
