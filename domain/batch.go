package domain

import (
	"time"

	"github.com/fundwit/go-commons/types"
)

type BatchType string

const (
	BatchTypeModel    BatchType = "model"
	BatchTypeWoodType BatchType = "wood_type"
	BatchTypeCustom   BatchType = "custom"
)

// RequestedBatchType is the batch type accepted at the api boundary.
type RequestedBatchType string

const (
	RequestedModel    RequestedBatchType = "model"
	RequestedWoodType RequestedBatchType = "wood_type"
	RequestedCustom   RequestedBatchType = "custom"
	RequestedStock    RequestedBatchType = "stock"
)

var RequestedBatchTypes = []string{string(RequestedModel), string(RequestedWoodType), string(RequestedCustom), string(RequestedStock)}

const CriteriaStockBatch = "stock_batch"

type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchActive    BatchStatus = "active"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

var BatchStatuses = []string{string(BatchPending), string(BatchActive), string(BatchCompleted), string(BatchCancelled)}

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchPending, BatchActive, BatchCompleted, BatchCancelled:
		return true
	}
	return false
}

type Batch struct {
	ID        types.ID  `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	Name      string    `json:"name"`
	BatchType BatchType `json:"batchType"`

	WorkflowID   types.ID    `json:"workflowTemplateId,omitempty"`
	CurrentStage *string     `json:"currentStage"`
	Status       BatchStatus `json:"status"`
	OrderItemIDs IDList      `json:"orderItemIds" sql:"type:TEXT"`
	Criteria     JSONMap     `json:"criteria" sql:"type:TEXT"`
	Version      int         `json:"version"`

	CreatorID  types.ID  `json:"creatorId"`
	CreateTime time.Time `json:"createTime" gorm:"precision:6"`
	UpdateTime time.Time `json:"updateTime" gorm:"precision:6"`
}

// Stage returns the current stage code, empty when the batch has not started.
func (b *Batch) Stage() string {
	if b.CurrentStage == nil {
		return ""
	}
	return *b.CurrentStage
}

func (b *Batch) IsStockBatch() bool {
	v, ok := b.Criteria[CriteriaStockBatch].(bool)
	return ok && v
}

type StageTransitionRecord struct {
	ID         types.ID `json:"id" gorm:"primary_key" sql:"type:BIGINT UNSIGNED NOT NULL"`
	BatchID    types.ID `json:"batchId" sql:"type:BIGINT UNSIGNED NOT NULL"`
	WorkflowID types.ID `json:"workflowTemplateId"`

	FromStage      *string        `json:"fromStage"`
	ToStage        string         `json:"toStage"`
	TransitionType TransitionType `json:"transitionType"`
	TransitionedBy types.ID       `json:"transitionedBy,omitempty"`
	Notes          string         `json:"notes"`
	TransitionTime time.Time      `json:"transitionTime" gorm:"precision:6"`
}
