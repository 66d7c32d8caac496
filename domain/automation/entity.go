package automation

import (
	"shopfloor/domain"

	"github.com/fundwit/go-commons/types"
)

type RuleCreation struct {
	WorkflowID     types.ID          `json:"workflowTemplateId"`
	Name           string            `json:"name" validate:"required"`
	Description    string            `json:"description"`
	TriggerConfig  domain.JSONMap    `json:"triggerConfig" validate:"required"`
	Conditions     domain.Conditions `json:"conditions"`
	Actions        domain.Actions    `json:"actions"`
	Priority       int               `json:"priority"`
	ExecutionOrder int               `json:"executionOrder"`
	IsActive       *bool             `json:"isActive"`
}

type RuleUpdating struct {
	WorkflowID     types.ID          `json:"workflowTemplateId"`
	Name           string            `json:"name" validate:"required"`
	Description    string            `json:"description"`
	TriggerConfig  domain.JSONMap    `json:"triggerConfig" validate:"required"`
	Conditions     domain.Conditions `json:"conditions"`
	Actions        domain.Actions    `json:"actions"`
	Priority       int               `json:"priority"`
	ExecutionOrder int               `json:"executionOrder"`
}

type RuleQuery struct {
	WorkflowID  types.ID `form:"workflowTemplateId"`
	TriggerType string   `form:"triggerType"`
	ActiveOnly  bool     `form:"activeOnly"`
}

type RuleActivation struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// RuleDeletion tells whether a rule was removed or, because it has history, only deactivated.
type RuleDeletion struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}

type ExecutionRequest struct {
	BatchID     types.ID               `json:"batchId"`
	TaskID      types.ID               `json:"taskId"`
	TriggerData map[string]interface{} `json:"triggerData"`
	DryRun      bool                   `json:"dryRun"`
}
