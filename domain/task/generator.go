package task

import (
	"context"
	"errors"
	"fmt"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/domain/assign"
	"shopfloor/domain/batch"
	"shopfloor/domain/flow"
	"shopfloor/event"
	"shopfloor/idgen"
	"shopfloor/metrics"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

var (
	idWorker = idgen.NewWorker()

	GenerateTasksFunc = GenerateTasks
)

// GenerateTasks creates one task per order item of the batch at the target stage. When auto assignment
// is requested a single worker is resolved and every task of the call is assigned to that worker.
func GenerateTasks(ctx context.Context, batchID types.ID, opts GenerationOptions, s *session.Session) (*GenerationResult, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	if opts.AssignmentRule != "" && !opts.AssignmentRule.IsValid() {
		return nil, &bizerror.ErrInvalidEnum{Field: "assignmentRule", Value: string(opts.AssignmentRule), Accepted: domain.AutoAssignRules}
	}

	unlock := batch.LockBatch(batchID)
	defer unlock()

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	b, err := batch.LoadBatch(db, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BatchCancelled {
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("batch %s is cancelled", batchID)}
	}
	stageCode := opts.StageOverride
	if stageCode == "" {
		stageCode = b.Stage()
	}
	if stageCode == "" {
		return nil, &bizerror.ErrNoStage{BatchID: batchID}
	}
	if b.WorkflowID == 0 {
		return nil, &bizerror.ErrInvalidWorkflowConfig{Reason: fmt.Sprintf("batch %s has no workflow", batchID)}
	}
	workflow, err := flow.LoadWorkflow(db, b.WorkflowID)
	if err != nil {
		var notFound *bizerror.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &bizerror.ErrInvalidWorkflowConfig{WorkflowID: b.WorkflowID, Reason: "workflow not found"}
		}
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	stage, found := workflow.FindStage(stageCode)
	if !found {
		return nil, &bizerror.ErrStageNotFound{Stage: stageCode, WorkflowID: b.WorkflowID}
	}

	var info *AssignmentInfo
	var worker *domain.Worker
	if opts.AutoAssign {
		info, worker, err = resolveAssignee(ctx, opts, stage)
		if err != nil {
			return nil, err
		}
	}

	priority := opts.Priority
	if priority == "" {
		priority = domain.DefaultTaskPriority
	}
	now := time.Now().Round(time.Microsecond)
	tasks := make([]domain.Task, 0, len(b.OrderItemIDs))
	for _, itemID := range b.OrderItemIDs {
		t := domain.Task{
			ID:             idgen.NextID(idWorker),
			BatchID:        b.ID,
			OrderItemID:    itemID,
			Stage:          stage.StageCode,
			TaskType:       stage.StageCode,
			Title:          fmt.Sprintf("%s - item %s", stageTitle(stage), itemID),
			Status:         domain.TaskPending,
			Priority:       priority,
			EstimatedHours: stage.EstimatedHours,
			AutoGenerated:  true,
			CreateTime:     now,
			UpdateTime:     now,
		}
		if worker != nil {
			t.AssignedTo = worker.ID
			t.AssignedBy = s.ActorID()
			t.Status = domain.TaskAssigned
		}
		tasks = append(tasks, t)
	}

	replaced := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		existing := 0
		if err := tx.Model(&domain.Task{}).Where("batch_id = ? AND stage = ?", b.ID, stage.StageCode).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			if !opts.OverrideExisting {
				return &bizerror.ErrDuplicateTasks{BatchID: b.ID, Stage: stage.StageCode, Count: existing}
			}
			if err := tx.Where("batch_id = ? AND stage = ?", b.ID, stage.StageCode).Delete(&domain.Task{}).Error; err != nil {
				return err
			}
			replaced = existing
		}
		for i := range tasks {
			if err := tx.Create(&tasks[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, asDomainError(err)
	}
	metrics.TasksCreated.WithLabelValues(stage.StageCode, metrics.SourceTaskGenerator).Add(float64(len(tasks)))

	details := domain.JSONMap{"stage": stage.StageCode, "tasksCreated": len(tasks), "tasksReplaced": replaced}
	if info != nil {
		details["assignmentRule"] = info.Rule
		details["assignedTo"] = info.WorkerID
	}
	event.RecordFunc(ctx, event.Event{
		SourceType: event.SourceTypeBatch, SourceID: b.ID, SourceDesc: b.Name,
		BatchID: b.ID, WorkflowID: b.WorkflowID, EventCategory: event.EventCategoryTasksGenerated,
		Details: details,
	}, &s.Identity)

	return &GenerationResult{Stage: stage.StageCode, TasksCreated: len(tasks), TasksReplaced: replaced,
		Tasks: tasks, AssignmentInfo: info}, nil
}

// resolveAssignee picks the one worker of a generation. An empty rule falls back to the stage rule,
// and none falls back to round_robin.
func resolveAssignee(ctx context.Context, opts GenerationOptions, stage domain.StageDefinition) (*AssignmentInfo, *domain.Worker, error) {
	rule := opts.AssignmentRule
	if rule == "" {
		rule = stage.AutoAssignRule
	}
	if rule == "" || rule == domain.AutoAssignNone {
		rule = domain.AutoAssignRoundRobin
	}

	var worker *domain.Worker
	var err error
	if rule == domain.AutoAssignSpecificWorker {
		worker, err = assign.ResolveSpecificWorkerFunc(ctx, opts.SpecificWorkerID)
	} else {
		worker, err = assign.ResolveFunc(ctx, rule, stage.StageCode, stage.RequiredSkills)
	}
	if err != nil {
		return nil, nil, err
	}
	info := &AssignmentInfo{Rule: rule}
	if worker == nil {
		logrus.WithField("stage", stage.StageCode).Warn("no active worker available, tasks stay pending")
		info.Message = "no active worker available"
		return info, nil, nil
	}
	info.WorkerID = worker.ID
	info.WorkerName = worker.Name
	return info, worker, nil
}

func stageTitle(stage domain.StageDefinition) string {
	if stage.DisplayName != "" {
		return stage.DisplayName
	}
	return stage.StageCode
}
