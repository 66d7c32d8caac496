package event

import (
	"shopfloor/domain"
	"time"

	"github.com/fundwit/go-commons/types"
)

const (
	EventCategoryBatchCreated       = "BATCH_CREATED"
	EventCategoryBatchCancelled     = "BATCH_CANCELLED"
	EventCategoryStageTransitioned  = "STAGE_TRANSITIONED"
	EventCategoryTasksGenerated     = "TASKS_GENERATED"
	EventCategoryAutomationExecuted = "AUTOMATION_EXECUTED"
)

const (
	SourceTypeBatch          = "BATCH"
	SourceTypeAutomationRule = "AUTOMATION_RULE"
)

type EventCategory string

type Event struct {
	SourceID   types.ID `json:"sourceId"`
	SourceType string   `json:"sourceType"`
	SourceDesc string   `json:"sourceDesc"`

	BatchID    types.ID `json:"batchId,omitempty"`
	WorkflowID types.ID `json:"workflowTemplateId,omitempty"`

	CreatorID   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`

	EventCategory EventCategory  `json:"eventCategory"`
	Details       domain.JSONMap `json:"details" sql:"type:TEXT"`
}

// EventRecord is an entry of the append-only execution log.
type EventRecord struct {
	ID types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Event

	Timestamp time.Time `json:"timestamp" gorm:"precision:6"`
	Synced    bool      `json:"synced"`
}

func (r *EventRecord) TableName() string {
	return "events"
}

type EventQuery struct {
	SourceType    string        `form:"sourceType"`
	SourceID      types.ID      `form:"sourceId"`
	BatchID       types.ID      `form:"batchId"`
	EventCategory EventCategory `form:"eventCategory"`
}
