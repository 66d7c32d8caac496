package assign

import (
	"context"
	"fmt"
	"math/rand"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	ResolveFunc               = Resolve
	ResolveSpecificWorkerFunc = ResolveSpecificWorker

	pickIndexFunc = rand.Intn
)

// ResolvableRules are the rules Resolve picks a worker for.
var ResolvableRules = []string{string(domain.AutoAssignRoundRobin), string(domain.AutoAssignLeastBusy)}

// Resolve picks a worker for a stage. It returns nil only when there is no active worker at all.
func Resolve(ctx context.Context, rule domain.AutoAssignRule, stage string, requiredSkills []string) (*domain.Worker, error) {
	if rule != domain.AutoAssignRoundRobin && rule != domain.AutoAssignLeastBusy {
		if rule == domain.AutoAssignSpecificWorker {
			return nil, &bizerror.ErrValidation{Message: "specific_worker assignment requires a worker id"}
		}
		return nil, &bizerror.ErrInvalidEnum{Field: "assignmentRule", Value: string(rule), Accepted: ResolvableRules}
	}

	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	var activeWorkers []domain.Worker
	if err := db.Where("is_active = ?", true).Order("create_time ASC, id ASC").Find(&activeWorkers).Error; err != nil {
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	if len(activeWorkers) == 0 {
		return nil, nil
	}

	candidates := filterBySkills(activeWorkers, requiredSkills)
	if len(candidates) == 0 {
		logrus.WithFields(logrus.Fields{"stage": stage, "skills": requiredSkills}).
			Info("no active worker has the required skills, falling back to all active workers")
		candidates = activeWorkers
	}

	if rule == domain.AutoAssignRoundRobin {
		w := candidates[pickIndexFunc(len(candidates))]
		return &w, nil
	}

	loads, err := CountBusyTasks(ctx, workerIDs(candidates))
	if err != nil {
		return nil, err
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if loads[candidates[i].ID] < loads[candidates[best].ID] {
			best = i
		}
	}
	w := candidates[best]
	return &w, nil
}

// ResolveSpecificWorker loads a caller supplied worker, which must be active.
func ResolveSpecificWorker(ctx context.Context, id types.ID) (*domain.Worker, error) {
	if id == 0 {
		return nil, &bizerror.ErrValidation{Message: "specific_worker assignment requires a worker id"}
	}
	worker, err := findWorker(persistence.ActiveDataSourceManager.GormDB(ctx), id)
	if err != nil {
		if bizerror.KindOf(err) == bizerror.KindNotFound {
			return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("worker %s does not exist", id)}
		}
		return nil, err
	}
	if !worker.IsActive {
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("worker %s is not active", id)}
	}
	return worker, nil
}

type workerLoad struct {
	AssignedTo types.ID
	Total      int
}

// CountBusyTasks counts the assigned and in progress tasks of each worker.
func CountBusyTasks(ctx context.Context, ids []types.ID) (map[types.ID]int, error) {
	loads := map[types.ID]int{}
	if len(ids) == 0 {
		return loads, nil
	}
	var rows []workerLoad
	err := persistence.ActiveDataSourceManager.GormDB(ctx).Model(&domain.Task{}).
		Select("assigned_to, count(*) AS total").
		Where("assigned_to IN (?) AND status IN (?)", ids, domain.BusyTaskStatuses).
		Group("assigned_to").Scan(&rows).Error
	if err != nil {
		return nil, &bizerror.ErrDependency{Dependency: "database", Cause: err}
	}
	for _, row := range rows {
		loads[row.AssignedTo] = row.Total
	}
	return loads, nil
}

func filterBySkills(workers []domain.Worker, requiredSkills []string) []domain.Worker {
	if len(requiredSkills) == 0 {
		return workers
	}
	filtered := []domain.Worker{}
	for _, w := range workers {
		if w.HasAnySkill(requiredSkills) {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

func workerIDs(workers []domain.Worker) []types.ID {
	ids := make([]types.ID, 0, len(workers))
	for _, w := range workers {
		ids = append(ids, w.ID)
	}
	return ids
}
