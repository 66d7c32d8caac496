package domain

import (
	"database/sql/driver"
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	StagePending   = "pending"
	StageCompleted = "completed"
)

// PseudoStages are valid transition targets regardless of workflow contents.
var PseudoStages = []string{StagePending, StageCompleted}

func IsPseudoStage(code string) bool {
	return code == StagePending || code == StageCompleted
}

type AutoAssignRule string

const (
	AutoAssignNone           AutoAssignRule = "none"
	AutoAssignRoundRobin     AutoAssignRule = "round_robin"
	AutoAssignLeastBusy      AutoAssignRule = "least_busy"
	AutoAssignSpecificWorker AutoAssignRule = "specific_worker"
)

var AutoAssignRules = []string{string(AutoAssignNone), string(AutoAssignRoundRobin),
	string(AutoAssignLeastBusy), string(AutoAssignSpecificWorker)}

func (r AutoAssignRule) IsValid() bool {
	switch r {
	case AutoAssignNone, AutoAssignRoundRobin, AutoAssignLeastBusy, AutoAssignSpecificWorker:
		return true
	}
	return false
}

type TransitionType string

const (
	TransitionAutomatic TransitionType = "automatic"
	TransitionManual    TransitionType = "manual"
)

var TransitionTypes = []string{string(TransitionAutomatic), string(TransitionManual)}

func (t TransitionType) IsValid() bool {
	return t == TransitionAutomatic || t == TransitionManual
}

type Workflow struct {
	ID          types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsActive    bool     `json:"isActive"`

	CreatorID  types.ID  `json:"creatorId"`
	CreateTime time.Time `json:"createTime" gorm:"precision:6"`
	UpdateTime time.Time `json:"updateTime" gorm:"precision:6"`
}

// TaskSpec is a task template configured on a stage.
type TaskSpec struct {
	Type             string `json:"type" validate:"required"`
	Title            string `json:"title"`
	Priority         string `json:"priority"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
}

type TaskSpecs []TaskSpec

func (t TaskSpecs) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *TaskSpecs) Scan(v interface{}) error {
	return jsonScan(v, t)
}

type StageDefinition struct {
	StageCode      string         `json:"stageCode" gorm:"primary_key" validate:"required"`
	DisplayName    string         `json:"displayName"`
	Description    string         `json:"description"`
	EstimatedHours float64        `json:"estimatedHours"`
	RequiredSkills StringList     `json:"requiredSkills" sql:"type:TEXT"`
	IsAutomated    bool           `json:"isAutomated"`
	AutoAssignRule AutoAssignRule `json:"autoAssignRule"`
	IsOptional     bool           `json:"isOptional"`
	Tasks          TaskSpecs      `json:"tasks" sql:"type:TEXT"`
}

// WorkflowStage is the stored row of a stage definition.
type WorkflowStage struct {
	WorkflowID types.ID `json:"workflowId" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	StageDefinition
	StageOrder int       `json:"stageOrder"`
	CreateTime time.Time `json:"createTime" gorm:"precision:6"`
}

// StageTransitionEdge is an allowed move; an empty FromStage means start.
type StageTransitionEdge struct {
	FromStage      string         `json:"fromStage"`
	ToStage        string         `json:"toStage" validate:"required"`
	TransitionType TransitionType `json:"transitionType"`
}

type WorkflowStageTransition struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	WorkflowID types.ID `json:"workflowId" sql:"type:BIGINT UNSIGNED NOT NULL"`
	FromStage  string   `json:"fromStage"`
	ToStage    string   `json:"toStage"`

	TransitionType TransitionType `json:"transitionType"`
	CreateTime     time.Time      `json:"createTime" gorm:"precision:6"`
}

type WorkflowDetail struct {
	Workflow

	Stages      []StageDefinition     `json:"stages"`
	Transitions []StageTransitionEdge `json:"stageTransitions"`
}

func (w *WorkflowDetail) FindStage(code string) (StageDefinition, bool) {
	for _, s := range w.Stages {
		if s.StageCode == code {
			return s, true
		}
	}
	return StageDefinition{}, false
}

// ValidStages lists the workflow stage codes in order followed by the pseudo-stages.
func (w *WorkflowDetail) ValidStages() []string {
	codes := make([]string, 0, len(w.Stages)+len(PseudoStages))
	for _, s := range w.Stages {
		codes = append(codes, s.StageCode)
	}
	return append(codes, PseudoStages...)
}

func (w *WorkflowDetail) IsValidStage(code string) bool {
	if IsPseudoStage(code) {
		return true
	}
	_, found := w.FindStage(code)
	return found
}

// AvailableTransitions returns the edges leaving from; an empty from selects the start edges.
func (w *WorkflowDetail) AvailableTransitions(from string) []StageTransitionEdge {
	edges := []StageTransitionEdge{}
	for _, t := range w.Transitions {
		if t.FromStage == from {
			edges = append(edges, t)
		}
	}
	return edges
}

func (w *WorkflowDetail) FindTransition(from, to string) (StageTransitionEdge, bool) {
	for _, t := range w.Transitions {
		if t.FromStage == from && t.ToStage == to {
			return t, true
		}
	}
	return StageTransitionEdge{}, false
}
