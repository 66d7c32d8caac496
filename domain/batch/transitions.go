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
	"shopfloor/metrics"
	"shopfloor/persistence"
	"shopfloor/session"
	"sync"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	TransitionBatchFunc        = TransitionBatch
	QueryStageTransitionsFunc  = QueryStageTransitions
	createConfiguredTasksFunc  = createConfiguredTasks
	appendTransitionRecordFunc = appendTransitionRecord

	batchLocksMutex sync.Mutex
	batchLocks      = map[types.ID]*batchLock{}
)

type batchLock struct {
	sync.Mutex
	refs int
}

// LockBatch serializes mutations of one batch within the process. Cross process writers are
// rejected by the version precondition instead. The entry of a batch is dropped once nobody holds
// or waits for it.
func LockBatch(id types.ID) func() {
	batchLocksMutex.Lock()
	l, ok := batchLocks[id]
	if !ok {
		l = &batchLock{}
		batchLocks[id] = l
	}
	l.refs++
	batchLocksMutex.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		batchLocksMutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(batchLocks, id)
		}
		batchLocksMutex.Unlock()
	}
}

// TransitionBatch moves a batch to target stage. The batch update is authoritative; the transition record
// and the execution log are best effort, while tasks configured on the target stage must be created.
func TransitionBatch(ctx context.Context, id types.ID, req *TransitionRequest, s *session.Session) (*TransitionResult, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	if req.TargetStage == "" {
		return nil, &bizerror.ErrValidation{Message: "target stage is required"}
	}
	if req.TransitionType != "" && !req.TransitionType.IsValid() {
		return nil, &bizerror.ErrInvalidEnum{Field: "transitionType", Value: string(req.TransitionType), Accepted: domain.TransitionTypes}
	}

	unlock := LockBatch(id)
	defer unlock()

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	b, err := LoadBatch(db, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BatchCancelled {
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("batch %s is cancelled", id)}
	}
	if b.WorkflowID == 0 {
		return nil, &bizerror.ErrInvalidWorkflowConfig{Reason: fmt.Sprintf("batch %s has no workflow", id)}
	}
	workflow, err := flow.LoadWorkflow(db, b.WorkflowID)
	if err != nil {
		var notFound *bizerror.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &bizerror.ErrInvalidWorkflowConfig{WorkflowID: b.WorkflowID, Reason: "workflow not found"}
		}
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	if len(workflow.Stages) == 0 {
		return nil, &bizerror.ErrInvalidWorkflowConfig{WorkflowID: b.WorkflowID, Reason: "workflow has no stages"}
	}
	if !workflow.IsValidStage(req.TargetStage) {
		return nil, &bizerror.ErrInvalidStage{Stage: req.TargetStage, ValidStages: workflow.ValidStages()}
	}

	previous := b.CurrentStage
	var newStage *string
	var status domain.BatchStatus
	switch req.TargetStage {
	case domain.StagePending:
		status = domain.BatchPending
	case domain.StageCompleted:
		completed := domain.StageCompleted
		newStage, status = &completed, domain.BatchCompleted
	default:
		target := req.TargetStage
		newStage, status = &target, domain.BatchActive
	}

	transitionType := req.TransitionType
	if transitionType == "" {
		transitionType = domain.TransitionManual
		if edge, found := workflow.FindTransition(b.Stage(), req.TargetStage); found {
			transitionType = edge.TransitionType
		}
	}

	if err := updateWithVersion(db, b, map[string]interface{}{"current_stage": newStage, "status": status}); err != nil {
		return nil, err
	}
	b.CurrentStage, b.Status = newStage, status
	metrics.StageTransitions.WithLabelValues(req.TargetStage, string(transitionType)).Inc()

	record := &domain.StageTransitionRecord{
		ID:             idgen.NextID(idWorker),
		BatchID:        b.ID,
		WorkflowID:     b.WorkflowID,
		FromStage:      previous,
		ToStage:        req.TargetStage,
		TransitionType: transitionType,
		TransitionedBy: s.ActorID(),
		Notes:          req.Notes,
		TransitionTime: b.UpdateTime,
	}
	if err := appendTransitionRecordFunc(db, record); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"batch": b.ID, "toStage": req.TargetStage}).
			Warn("failed to append stage transition record")
	}

	var taskErr error
	tasksCreated := 0
	if stage, found := workflow.FindStage(req.TargetStage); found && len(stage.Tasks) > 0 {
		tasks, err := createConfiguredTasksFunc(db, b, stage)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"batch": b.ID, "stage": stage.StageCode}).
				Error("failed to create configured stage tasks")
			taskErr = &bizerror.ErrTaskCreation{Stage: stage.StageCode, Cause: err}
		} else {
			tasksCreated = len(tasks)
			metrics.TasksCreated.WithLabelValues(stage.StageCode, metrics.SourceStageConfig).Add(float64(tasksCreated))
		}
	}

	event.RecordFunc(ctx, event.Event{
		SourceType: event.SourceTypeBatch, SourceID: b.ID, SourceDesc: b.Name,
		BatchID: b.ID, WorkflowID: b.WorkflowID, EventCategory: event.EventCategoryStageTransitioned,
		Details: domain.JSONMap{
			"fromStage":      stageValue(previous),
			"toStage":        req.TargetStage,
			"transitionType": transitionType,
			"notes":          req.Notes,
			"tasksCreated":   tasksCreated,
		},
	}, &s.Identity)

	if taskErr != nil {
		return nil, taskErr
	}
	return &TransitionResult{PreviousStage: previous, NewStage: newStage, RequestedStage: req.TargetStage}, nil
}

func QueryStageTransitions(id types.ID, s *session.Session) ([]domain.StageTransitionRecord, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if _, err := LoadBatch(db, id); err != nil {
		return nil, err
	}
	records := []domain.StageTransitionRecord{}
	if err := db.Where("batch_id = ?", id).Order("transition_time ASC, id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func appendTransitionRecord(db *gorm.DB, record *domain.StageTransitionRecord) error {
	return db.Create(record).Error
}

// createConfiguredTasks creates one task per task spec of the stage, all or nothing.
func createConfiguredTasks(db *gorm.DB, b *domain.Batch, stage domain.StageDefinition) ([]domain.Task, error) {
	now := time.Now().Round(time.Microsecond)
	tasks := make([]domain.Task, 0, len(stage.Tasks))
	for _, spec := range stage.Tasks {
		priority := spec.Priority
		if priority == "" {
			priority = domain.DefaultTaskPriority
		}
		title := spec.Title
		if title == "" {
			title = stage.StageCode + " " + spec.Type
		}
		tasks = append(tasks, domain.Task{
			ID:             idgen.NextID(idWorker),
			BatchID:        b.ID,
			Stage:          stage.StageCode,
			TaskType:       spec.Type,
			Title:          title,
			Status:         domain.TaskPending,
			Priority:       priority,
			EstimatedHours: float64(spec.EstimatedMinutes) / 60,
			AutoGenerated:  true,
			CreateTime:     now,
			UpdateTime:     now,
		})
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		for i := range tasks {
			if err := tx.Create(&tasks[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func stageValue(stage *string) interface{} {
	if stage == nil {
		return nil
	}
	return *stage
}
