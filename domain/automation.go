package domain

import (
	"database/sql/driver"
	"time"

	"github.com/fundwit/go-commons/types"
)

type TriggerType string

const (
	TriggerStageComplete      TriggerType = "stage_complete"
	TriggerTimeElapsed        TriggerType = "time_elapsed"
	TriggerManual             TriggerType = "manual"
	TriggerSchedule           TriggerType = "schedule"
	TriggerBatchSize          TriggerType = "batch_size"
	TriggerBottleneckDetected TriggerType = "bottleneck_detected"
)

var TriggerTypes = []string{string(TriggerStageComplete), string(TriggerTimeElapsed), string(TriggerManual),
	string(TriggerSchedule), string(TriggerBatchSize), string(TriggerBottleneckDetected)}

type ConditionType string

const (
	ConditionBatchSize       ConditionType = "batch_size"
	ConditionWorkerAvailable ConditionType = "worker_available"
	ConditionTimeOfDay       ConditionType = "time_of_day"
)

var ConditionTypes = []string{string(ConditionBatchSize), string(ConditionWorkerAvailable), string(ConditionTimeOfDay)}

type Operator string

const (
	OpEquals             Operator = "equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpBetween            Operator = "between"
)

var Operators = []string{string(OpEquals), string(OpGreaterThan), string(OpLessThan), string(OpGreaterThanOrEqual),
	string(OpLessThanOrEqual), string(OpContains), string(OpBetween)}

type ActionType string

const (
	ActionAssignTask     ActionType = "assign_task"
	ActionNotify         ActionType = "notify"
	ActionCreateTasks    ActionType = "create_tasks"
	ActionGenerateReport ActionType = "generate_report"
)

var ActionTypes = []string{string(ActionAssignTask), string(ActionNotify), string(ActionCreateTasks), string(ActionGenerateReport)}

func IsOneOf(v string, accepted []string) bool {
	for _, a := range accepted {
		if a == v {
			return true
		}
	}
	return false
}

type Condition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`
	Value    interface{}   `json:"value"`
}

type Conditions []Condition

func (t Conditions) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *Conditions) Scan(v interface{}) error {
	return jsonScan(v, t)
}

// Action is an action config: a type plus type specific fields.
type Action map[string]interface{}

func (a Action) Type() ActionType {
	s, _ := a["type"].(string)
	return ActionType(s)
}

type Actions []Action

func (t Actions) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *Actions) Scan(v interface{}) error {
	return jsonScan(v, t)
}

type AutomationRule struct {
	ID          types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	WorkflowID  types.ID `json:"workflowTemplateId,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`

	TriggerConfig  JSONMap    `json:"triggerConfig" sql:"type:TEXT"`
	Conditions     Conditions `json:"conditions" sql:"type:TEXT"`
	Actions        Actions    `json:"actions" sql:"type:TEXT"`
	Priority       int        `json:"priority"`
	ExecutionOrder int        `json:"executionOrder"`
	IsActive       bool       `json:"isActive"`

	CreatorID  types.ID  `json:"creatorId"`
	CreateTime time.Time `json:"createTime" gorm:"precision:6"`
	UpdateTime time.Time `json:"updateTime" gorm:"precision:6"`
}

func (r *AutomationRule) TriggerType() TriggerType {
	return TriggerType(r.TriggerConfig.String("type"))
}

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
)

type ConditionResult struct {
	ConditionType ConditionType `json:"conditionType"`
	Config        Condition     `json:"config"`
	Result        bool          `json:"result"`
	Details       string        `json:"details"`
}

type ConditionResults []ConditionResult

func (t ConditionResults) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *ConditionResults) Scan(v interface{}) error {
	return jsonScan(v, t)
}

type ActionResult struct {
	ActionType ActionType `json:"actionType"`
	Config     Action     `json:"config"`
	Executed   bool       `json:"executed"`
	Details    string     `json:"details"`
}

type ActionResults []ActionResult

func (t ActionResults) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	return jsonValue(t)
}

func (t *ActionResults) Scan(v interface{}) error {
	return jsonScan(v, t)
}

type AutomationExecution struct {
	ID      types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	RuleID  types.ID `json:"automationRuleId" sql:"type:BIGINT UNSIGNED NOT NULL"`
	BatchID types.ID `json:"batchId,omitempty"`
	TaskID  types.ID `json:"taskId,omitempty"`

	TriggerData         JSONMap          `json:"triggerData" sql:"type:TEXT"`
	ConditionsEvaluated ConditionResults `json:"conditionsEvaluated" sql:"type:TEXT"`
	ConditionsMet       ConditionResults `json:"conditionsMet" sql:"type:TEXT"`
	ActionsExecuted     ActionResults    `json:"actionsExecuted" sql:"type:TEXT"`
	ExecutionStatus     ExecutionStatus  `json:"executionStatus"`
	ErrorMessage        string           `json:"errorMessage,omitempty" sql:"type:TEXT"`
	ExecutionTimeMs     int64            `json:"executionTimeMs"`

	ExecutedBy types.ID  `json:"executedBy,omitempty"`
	CreateTime time.Time `json:"createTime" gorm:"precision:6"`
}
