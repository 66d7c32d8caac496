package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
)

var TaskStatuses = []string{string(TaskPending), string(TaskAssigned), string(TaskInProgress),
	string(TaskBlocked), string(TaskCompleted)}

// BusyTaskStatuses are the statuses counted as a worker's current load.
var BusyTaskStatuses = []TaskStatus{TaskAssigned, TaskInProgress}

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskAssigned, TaskInProgress, TaskBlocked, TaskCompleted:
		return true
	}
	return false
}

const DefaultTaskPriority = "normal"

type Task struct {
	ID          types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	BatchID     types.ID `json:"batchId,omitempty"`
	OrderItemID types.ID `json:"orderItemId,omitempty"`
	Stage       string   `json:"stage"`
	TaskType    string   `json:"taskType"`
	Title       string   `json:"title"`

	AssignedTo       types.ID   `json:"assignedTo,omitempty"`
	AssignedBy       types.ID   `json:"assignedBy,omitempty"`
	Status           TaskStatus `json:"status"`
	Priority         string     `json:"priority"`
	EstimatedHours   float64    `json:"estimatedHours"`
	AutoGenerated    bool       `json:"autoGenerated"`
	ManualAssignment bool       `json:"manualAssignment"`

	CreateTime time.Time `json:"createTime" gorm:"precision:6"`
	UpdateTime time.Time `json:"updateTime" gorm:"precision:6"`
}

type Worker struct {
	ID       types.ID   `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name     string     `json:"name"`
	Role     string     `json:"role"`
	Skills   StringList `json:"skills" sql:"type:TEXT"`
	IsActive bool       `json:"isActive"`

	AccessToken string    `json:"-" gorm:"index"`
	CreateTime  time.Time `json:"createTime" gorm:"precision:6"`
}

// SkillAllStages qualifies a worker for every stage.
const SkillAllStages = "all_stages"

func (w *Worker) HasAnySkill(required []string) bool {
	if w.Skills.Contains(SkillAllStages) {
		return true
	}
	for _, r := range required {
		if w.Skills.Contains(r) {
			return true
		}
	}
	return false
}
