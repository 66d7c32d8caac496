package task

import (
	"shopfloor/domain"

	"github.com/fundwit/go-commons/types"
)

type GenerationOptions struct {
	AutoAssign       bool                  `json:"autoAssign"`
	AssignmentRule   domain.AutoAssignRule `json:"assignmentRule"`
	SpecificWorkerID types.ID              `json:"specificWorkerId"`
	OverrideExisting bool                  `json:"overrideExisting"`
	StageOverride    string                `json:"stageOverride"`
	Priority         string                `json:"priority"`
}

// AssignmentInfo describes the single worker every task of one generation was assigned to.
type AssignmentInfo struct {
	Rule       domain.AutoAssignRule `json:"rule"`
	WorkerID   types.ID              `json:"workerId,omitempty"`
	WorkerName string                `json:"workerName,omitempty"`
	Message    string                `json:"message,omitempty"`
}

type GenerationResult struct {
	Stage          string          `json:"stage"`
	TasksCreated   int             `json:"tasksCreated"`
	TasksReplaced  int             `json:"tasksReplaced"`
	Tasks          []domain.Task   `json:"tasks"`
	AssignmentInfo *AssignmentInfo `json:"assignmentInfo"`
}

type TaskQuery struct {
	BatchID    types.ID `form:"batchId"`
	Stage      string   `form:"stage"`
	AssignedTo types.ID `form:"assignedTo"`
	Status     string   `form:"status"`
}

type TaskCreation struct {
	BatchID        types.ID `json:"batchId"`
	OrderItemID    types.ID `json:"orderItemId"`
	Stage          string   `json:"stage" validate:"required"`
	TaskType       string   `json:"taskType"`
	Title          string   `json:"title" validate:"required"`
	Priority       string   `json:"priority"`
	EstimatedHours float64  `json:"estimatedHours" validate:"gte=0"`
	AssignedTo     types.ID `json:"assignedTo"`
}

type TaskAssignment struct {
	TaskIDs  []types.ID `json:"taskIds" validate:"required,min=1"`
	WorkerID types.ID   `json:"workerId" validate:"required"`
}

type TaskStatusUpdating struct {
	Status domain.TaskStatus `json:"status" validate:"required"`
}
