package batch

import (
	"context"
	"errors"
	"fmt"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/domain/flow"
	"shopfloor/event"
	"shopfloor/idgen"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	idWorker = idgen.NewWorker()

	CreateBatchFunc    = CreateBatch
	DetailBatchFunc    = DetailBatch
	QueryBatchesFunc   = QueryBatches
	AssignWorkflowFunc = AssignWorkflow
	CancelBatchFunc    = CancelBatch
)

// NormalizeBatchType maps a requested batch type to the persisted one. Stock batches are stored as custom
// batches carrying the stock_batch marker.
func NormalizeBatchType(requested domain.RequestedBatchType, criteria map[string]interface{}) (domain.BatchType, domain.JSONMap, error) {
	normalized := domain.JSONMap{}
	for k, v := range criteria {
		normalized[k] = v
	}
	switch requested {
	case domain.RequestedModel:
		return domain.BatchTypeModel, normalized, nil
	case domain.RequestedWoodType:
		return domain.BatchTypeWoodType, normalized, nil
	case domain.RequestedCustom:
		return domain.BatchTypeCustom, normalized, nil
	case domain.RequestedStock:
		normalized[domain.CriteriaStockBatch] = true
		return domain.BatchTypeCustom, normalized, nil
	}
	return "", nil, &bizerror.ErrInvalidEnum{Field: "batchType", Value: string(requested), Accepted: domain.RequestedBatchTypes}
}

func CreateBatch(c *BatchCreation, s *session.Session) (*domain.Batch, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	batchType, criteria, err := NormalizeBatchType(c.BatchType, c.Criteria)
	if err != nil {
		return nil, err
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if c.WorkflowID != 0 {
		if _, err := loadAssignableWorkflow(db, c.WorkflowID); err != nil {
			return nil, err
		}
	}

	itemIDs := domain.IDList{}
	for _, id := range c.OrderItemIDs {
		if !itemIDs.Contains(id) {
			itemIDs = append(itemIDs, id)
		}
	}

	now := time.Now().Round(time.Microsecond)
	b := &domain.Batch{
		ID:           idgen.NextID(idWorker),
		Name:         c.Name,
		BatchType:    batchType,
		WorkflowID:   c.WorkflowID,
		Status:       domain.BatchPending,
		OrderItemIDs: itemIDs,
		Criteria:     criteria,
		Version:      1,
		CreatorID:    s.ActorID(),
		CreateTime:   now,
		UpdateTime:   now,
	}
	if err := db.Create(b).Error; err != nil {
		return nil, err
	}

	event.RecordFunc(s.Ctx(), event.Event{SourceType: event.SourceTypeBatch, SourceID: b.ID, SourceDesc: b.Name,
		BatchID: b.ID, WorkflowID: b.WorkflowID, EventCategory: event.EventCategoryBatchCreated,
		Details: domain.JSONMap{"batchType": b.BatchType, "orderItemCount": len(b.OrderItemIDs)}}, &s.Identity)
	return b, nil
}

func DetailBatch(id types.ID, s *session.Session) (*domain.Batch, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	return LoadBatch(persistence.ActiveDataSourceManager.GormDB(s.Ctx()), id)
}

func QueryBatches(query *BatchQuery, s *session.Session) ([]domain.Batch, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	q := db.Model(&domain.Batch{})
	if query.Status != "" {
		if !domain.BatchStatus(query.Status).IsValid() {
			return nil, &bizerror.ErrInvalidEnum{Field: "status", Value: query.Status, Accepted: domain.BatchStatuses}
		}
		q = q.Where("status = ?", query.Status)
	}
	if query.WorkflowID != 0 {
		q = q.Where("workflow_id = ?", query.WorkflowID)
	}
	batches := []domain.Batch{}
	if err := q.Order("create_time DESC").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// AssignWorkflow binds a workflow to a batch, then enters the initial stage through the transition engine.
// A batch at a stage the new workflow does not define keeps its workflow; move it to pending first.
func AssignWorkflow(ctx context.Context, id types.ID, a *WorkflowAssignment, s *session.Session) (*domain.Batch, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	workflow, err := loadAssignableWorkflow(db, a.WorkflowID)
	if err != nil {
		return nil, err
	}
	if a.InitialStage != "" && !workflow.IsValidStage(a.InitialStage) {
		return nil, &bizerror.ErrInvalidStage{Stage: a.InitialStage, ValidStages: workflow.ValidStages()}
	}

	err = func() error {
		unlock := LockBatch(id)
		defer unlock()

		b, err := LoadBatch(db, id)
		if err != nil {
			return err
		}
		if b.Status == domain.BatchCancelled {
			return &bizerror.ErrValidation{Message: fmt.Sprintf("batch %s is cancelled", id)}
		}
		if current := b.Stage(); current != "" && !workflow.IsValidStage(current) {
			return &bizerror.ErrInvalidStage{Stage: current, ValidStages: workflow.ValidStages()}
		}
		return updateWithVersion(db, b, map[string]interface{}{"workflow_id": workflow.ID})
	}()
	if err != nil {
		return nil, err
	}

	if a.InitialStage != "" {
		if _, err := TransitionBatch(ctx, id, &TransitionRequest{TargetStage: a.InitialStage}, s); err != nil {
			return nil, err
		}
	}
	return LoadBatch(db, id)
}

// CancelBatch moves a batch to the terminal cancelled status and clears its stage.
func CancelBatch(ctx context.Context, id types.ID, s *session.Session) (*domain.Batch, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	unlock := LockBatch(id)
	defer unlock()

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	b, err := LoadBatch(db, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BatchCancelled {
		return b, nil
	}
	if b.Status == domain.BatchCompleted {
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("batch %s is completed", id)}
	}
	previous := b.Stage()
	if err := updateWithVersion(db, b, map[string]interface{}{"current_stage": nil, "status": domain.BatchCancelled}); err != nil {
		return nil, err
	}
	b.CurrentStage = nil
	b.Status = domain.BatchCancelled

	event.RecordFunc(ctx, event.Event{SourceType: event.SourceTypeBatch, SourceID: b.ID, SourceDesc: b.Name,
		BatchID: b.ID, WorkflowID: b.WorkflowID, EventCategory: event.EventCategoryBatchCancelled,
		Details: domain.JSONMap{"fromStage": previous}}, &s.Identity)
	return b, nil
}

func LoadBatch(db *gorm.DB, id types.ID) (*domain.Batch, error) {
	b := domain.Batch{}
	if err := db.Where("id = ?", id).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bizerror.ErrNotFound{Resource: "batch", ID: id}
		}
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	return &b, nil
}

// updateWithVersion applies fields only if the batch row still carries b's version, and bumps the version.
func updateWithVersion(db *gorm.DB, b *domain.Batch, fields map[string]interface{}) error {
	now := time.Now().Round(time.Microsecond)
	fields["version"] = b.Version + 1
	fields["update_time"] = now
	result := db.Model(&domain.Batch{}).Where("id = ? AND version = ?", b.ID, b.Version).Updates(fields)
	if result.Error != nil {
		return &bizerror.ErrDependency{Dependency: "database", Cause: result.Error}
	}
	if result.RowsAffected != 1 {
		return &bizerror.ErrConcurrentUpdate{Resource: "batch", ID: b.ID}
	}
	b.Version++
	b.UpdateTime = now
	return nil
}

func loadAssignableWorkflow(db *gorm.DB, id types.ID) (*domain.WorkflowDetail, error) {
	workflow, err := flow.LoadWorkflow(db, id)
	if err != nil {
		return nil, err
	}
	if !workflow.IsActive {
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("workflow %s is inactive", id)}
	}
	if len(workflow.Stages) == 0 {
		return nil, &bizerror.ErrInvalidWorkflowConfig{WorkflowID: id, Reason: "workflow has no stages"}
	}
	return workflow, nil
}
