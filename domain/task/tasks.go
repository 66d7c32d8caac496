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
	"shopfloor/idgen"
	"shopfloor/metrics"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	QueryTasksFunc       = QueryTasks
	CreateTaskFunc       = CreateTask
	AssignTasksFunc      = AssignTasks
	ClaimTaskFunc        = ClaimTask
	UpdateTaskStatusFunc = UpdateTaskStatus
)

func QueryTasks(query *TaskQuery, s *session.Session) ([]domain.Task, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	q := persistence.ActiveDataSourceManager.GormDB(s.Ctx()).Model(&domain.Task{})
	if query.BatchID != 0 {
		q = q.Where("batch_id = ?", query.BatchID)
	}
	if query.Stage != "" {
		q = q.Where("stage = ?", query.Stage)
	}
	if query.AssignedTo != 0 {
		q = q.Where("assigned_to = ?", query.AssignedTo)
	}
	if query.Status != "" {
		if !domain.TaskStatus(query.Status).IsValid() {
			return nil, &bizerror.ErrInvalidEnum{Field: "status", Value: query.Status, Accepted: domain.TaskStatuses}
		}
		q = q.Where("status = ?", query.Status)
	}
	tasks := []domain.Task{}
	if err := q.Order("create_time ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask creates a manual task. A task bound to a batch with a workflow must name one of its stages.
func CreateTask(c *TaskCreation, s *session.Session) (*domain.Task, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if c.BatchID != 0 {
		b, err := batch.LoadBatch(db, c.BatchID)
		if err != nil {
			return nil, err
		}
		if b.WorkflowID != 0 {
			workflow, err := flow.LoadWorkflow(db, b.WorkflowID)
			if err != nil {
				return nil, err
			}
			if _, found := workflow.FindStage(c.Stage); !found {
				return nil, &bizerror.ErrStageNotFound{Stage: c.Stage, WorkflowID: b.WorkflowID}
			}
		}
	}

	now := time.Now().Round(time.Microsecond)
	t := &domain.Task{
		ID:             idgen.NextID(idWorker),
		BatchID:        c.BatchID,
		OrderItemID:    c.OrderItemID,
		Stage:          c.Stage,
		TaskType:       c.TaskType,
		Title:          c.Title,
		Status:         domain.TaskPending,
		Priority:       c.Priority,
		EstimatedHours: c.EstimatedHours,
		CreateTime:     now,
		UpdateTime:     now,
	}
	if t.TaskType == "" {
		t.TaskType = c.Stage
	}
	if t.Priority == "" {
		t.Priority = domain.DefaultTaskPriority
	}
	if c.AssignedTo != 0 {
		worker, err := assign.ResolveSpecificWorkerFunc(s.Ctx(), c.AssignedTo)
		if err != nil {
			return nil, err
		}
		t.AssignedTo = worker.ID
		t.AssignedBy = s.ActorID()
		t.ManualAssignment = true
		t.Status = domain.TaskAssigned
	}
	if err := db.Create(t).Error; err != nil {
		return nil, err
	}
	metrics.TasksCreated.WithLabelValues(t.Stage, metrics.SourceManual).Inc()
	return t, nil
}

// AssignTasks assigns tasks to one worker. It races with workers claiming the same tasks, the last write wins.
func AssignTasks(ctx context.Context, a *TaskAssignment, s *session.Session) ([]domain.Task, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	worker, err := assign.ResolveSpecificWorkerFunc(ctx, a.WorkerID)
	if err != nil {
		return nil, err
	}

	ids := []types.ID{}
	for _, id := range a.TaskIDs {
		if !domain.IDList(ids).Contains(id) {
			ids = append(ids, id)
		}
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	var tasks []domain.Task
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id IN (?)", ids).Find(&tasks).Error; err != nil {
			return err
		}
		loaded := domain.IDList{}
		for _, t := range tasks {
			if t.Status == domain.TaskCompleted {
				return &bizerror.ErrValidation{Message: fmt.Sprintf("task %s is completed", t.ID)}
			}
			loaded = append(loaded, t.ID)
		}
		for _, id := range ids {
			if !loaded.Contains(id) {
				return &bizerror.ErrNotFound{Resource: "task", ID: id}
			}
		}

		now := time.Now().Round(time.Microsecond)
		if err := tx.Model(&domain.Task{}).Where("id IN (?)", ids).Updates(map[string]interface{}{
			"assigned_to": worker.ID, "assigned_by": s.ActorID(), "manual_assignment": true, "update_time": now,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Task{}).Where("id IN (?) AND status = ?", ids, domain.TaskPending).
			Updates(map[string]interface{}{"status": domain.TaskAssigned}).Error; err != nil {
			return err
		}
		tasks = nil
		return tx.Where("id IN (?)", ids).Order("create_time ASC, id ASC").Find(&tasks).Error
	})
	if err != nil {
		return nil, asDomainError(err)
	}
	return tasks, nil
}

// ClaimTask lets an active worker take a pending or assigned task and start it.
func ClaimTask(ctx context.Context, id types.ID, s *session.Session) (*domain.Task, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	t, err := LoadTask(db, id)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.TaskPending && t.Status != domain.TaskAssigned {
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("task %s is %s and cannot be claimed", id, t.Status)}
	}
	fields := map[string]interface{}{
		"assigned_to": s.ActorID(), "assigned_by": s.ActorID(), "manual_assignment": true,
		"status": domain.TaskInProgress, "update_time": time.Now().Round(time.Microsecond),
	}
	if err := db.Model(&domain.Task{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	return LoadTask(db, id)
}

// UpdateTaskStatus moves a task to any status of the closed set. Completed tasks are final.
func UpdateTaskStatus(ctx context.Context, id types.ID, status domain.TaskStatus, s *session.Session) (*domain.Task, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	if !status.IsValid() {
		return nil, &bizerror.ErrInvalidEnum{Field: "status", Value: string(status), Accepted: domain.TaskStatuses}
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	t, err := LoadTask(db, id)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TaskCompleted {
		if status == domain.TaskCompleted {
			return t, nil
		}
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("task %s is completed", id)}
	}
	err = db.Model(&domain.Task{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "update_time": time.Now().Round(time.Microsecond)}).Error
	if err != nil {
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	return LoadTask(db, id)
}

func LoadTask(db *gorm.DB, id types.ID) (*domain.Task, error) {
	t := domain.Task{}
	if err := db.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bizerror.ErrNotFound{Resource: "task", ID: id}
		}
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	return &t, nil
}

func asDomainError(err error) error {
	var bizErr bizerror.BizError
	if errors.As(err, &bizErr) {
		return err
	}
	return &bizerror.ErrDependency{Dependency: "database", Cause: err}
}
