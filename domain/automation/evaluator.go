package automation

import (
	"context"
	"errors"
	"fmt"
	"shopfloor/domain"
	"shopfloor/domain/assign"
	"shopfloor/domain/task"
	"shopfloor/event"
	"shopfloor/idgen"
	"shopfloor/metrics"
	"shopfloor/notify"
	"shopfloor/persistence"
	"shopfloor/report"
	"shopfloor/session"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
)

const (
	MessageConditionsNotMet = "Not all conditions were met"
	MessageDryRun           = "Dry run - action not executed"
	MessageAborted          = "execution aborted: "
)

var (
	idWorker = idgen.NewWorker()

	nowFunc              = time.Now
	persistExecutionFunc = persistExecution
)

// ExecutionResult is the outcome of one rule evaluation, with the full condition trail.
type ExecutionResult struct {
	Success             bool                    `json:"success"`
	DryRun              bool                    `json:"dryRun"`
	ConditionsEvaluated domain.ConditionResults `json:"conditionsEvaluated"`
	ConditionsMet       domain.ConditionResults `json:"conditionsMet"`
	ActionsExecuted     domain.ActionResults    `json:"actionsExecuted"`
	Error               string                  `json:"error,omitempty"`
	ExecutionTimeMs     int64                   `json:"executionTimeMs"`
	ExecutionID         types.ID                `json:"executionId,omitempty"`
}

// ActionHandler runs one action and describes what it did.
type ActionHandler func(ctx context.Context, rule *domain.AutomationRule, action domain.Action, ec ExecutionContext) (string, error)

var ActionHandlers = map[domain.ActionType]ActionHandler{
	domain.ActionAssignTask:     assignTaskAction,
	domain.ActionNotify:         notifyAction,
	domain.ActionCreateTasks:    createTasksAction,
	domain.ActionGenerateReport: generateReportAction,
}

// Execute evaluates the conditions of rule and, when all of them hold, runs its actions in order.
// Every run that is not a dry run is persisted and appended to the execution log.
func Execute(ctx context.Context, rule *domain.AutomationRule, ec ExecutionContext, triggerData map[string]interface{},
	dryRun bool) (*ExecutionResult, error) {
	begin := time.Now()
	result := &ExecutionResult{DryRun: dryRun, ActionsExecuted: domain.ActionResults{}}
	result.ConditionsEvaluated, result.ConditionsMet = EvaluateConditions(rule.Conditions, ec, nowFunc())

	if len(result.ConditionsMet) != len(result.ConditionsEvaluated) {
		result.Error = MessageConditionsNotMet
	} else {
		var actionErrs *multierror.Error
		for _, action := range rule.Actions {
			r := domain.ActionResult{ActionType: action.Type(), Config: action}
			if dryRun {
				r.Details = MessageDryRun
				result.ActionsExecuted = append(result.ActionsExecuted, r)
				continue
			}
			if err := ctx.Err(); err != nil {
				r.Details = "not executed: " + err.Error()
				actionErrs = multierror.Append(actionErrs, fmt.Errorf("%s: %w", r.ActionType, err))
				result.ActionsExecuted = append(result.ActionsExecuted, r)
				continue
			}
			handler, found := ActionHandlers[r.ActionType]
			if !found {
				r.Details = fmt.Sprintf("unknown action type '%s', not executed", r.ActionType)
				result.ActionsExecuted = append(result.ActionsExecuted, r)
				continue
			}
			details, err := handler(ctx, rule, action, ec)
			if err != nil {
				r.Details = err.Error()
				actionErrs = multierror.Append(actionErrs, fmt.Errorf("%s: %w", r.ActionType, err))
			} else {
				r.Executed = true
				r.Details = details
			}
			result.ActionsExecuted = append(result.ActionsExecuted, r)
		}
		if err := actionErrs.ErrorOrNil(); err != nil {
			result.Error = err.Error()
		} else if err := ctx.Err(); err != nil && !dryRun {
			// the caller already gave up on this run
			result.Error = MessageAborted + err.Error()
		} else {
			result.Success = true
		}
	}

	elapsed := time.Since(begin)
	result.ExecutionTimeMs = elapsed.Milliseconds()
	metrics.AutomationExecutions.WithLabelValues(string(rule.TriggerType()), outcomeOf(result)).Inc()
	metrics.AutomationDuration.Observe(elapsed.Seconds())

	if dryRun {
		return result, nil
	}

	record := buildExecutionRecord(rule, ec, triggerData, result)
	if err := persistExecutionFunc(ctx, record); err != nil {
		logrus.WithError(err).WithField("rule", rule.ID).Warn("failed to persist automation execution")
	} else {
		result.ExecutionID = record.ID
	}

	var identity *session.Identity
	if ec.Actor != nil {
		identity = &ec.Actor.Identity
	}
	details := domain.JSONMap{
		"executionId": record.ID.String(), "triggerType": string(rule.TriggerType()), "success": result.Success,
		"actionsExecuted": executedCount(result.ActionsExecuted),
	}
	if result.Error != "" {
		details["error"] = result.Error
	}
	event.RecordFunc(ctx, event.Event{
		SourceID: rule.ID, SourceType: event.SourceTypeAutomationRule, SourceDesc: rule.Name,
		BatchID: record.BatchID, WorkflowID: rule.WorkflowID,
		EventCategory: event.EventCategoryAutomationExecuted, Details: details,
	}, identity)
	return result, nil
}

func buildExecutionRecord(rule *domain.AutomationRule, ec ExecutionContext, triggerData map[string]interface{},
	result *ExecutionResult) *domain.AutomationExecution {
	record := &domain.AutomationExecution{
		ID:                  idgen.NextID(idWorker),
		RuleID:              rule.ID,
		TriggerData:         triggerData,
		ConditionsEvaluated: result.ConditionsEvaluated,
		ConditionsMet:       result.ConditionsMet,
		ActionsExecuted:     result.ActionsExecuted,
		ExecutionStatus:     domain.ExecutionSuccess,
		ErrorMessage:        result.Error,
		ExecutionTimeMs:     result.ExecutionTimeMs,
		CreateTime:          time.Now().Round(time.Microsecond),
	}
	if !result.Success {
		record.ExecutionStatus = domain.ExecutionFailed
	}
	if record.TriggerData == nil {
		record.TriggerData = domain.JSONMap{}
	}
	if ec.Batch != nil {
		record.BatchID = ec.Batch.ID
	}
	if ec.Task != nil {
		record.TaskID = ec.Task.ID
		if record.BatchID == 0 {
			record.BatchID = ec.Task.BatchID
		}
	}
	if ec.Actor != nil {
		record.ExecutedBy = ec.Actor.ActorID()
	}
	return record
}

func persistExecution(ctx context.Context, record *domain.AutomationExecution) error {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if db == nil {
		return errors.New("no active data source")
	}
	return db.Create(record).Error
}

func outcomeOf(result *ExecutionResult) string {
	switch {
	case result.DryRun:
		return "dry_run"
	case result.Success:
		return "success"
	case result.Error == MessageConditionsNotMet:
		return "conditions_not_met"
	}
	return "failed"
}

func executedCount(results domain.ActionResults) int {
	n := 0
	for _, r := range results {
		if r.Executed {
			n++
		}
	}
	return n
}

// decodeAction decodes the type specific fields of an action into out.
func decodeAction(action domain.Action, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(action))
}

type assignTaskConfig struct {
	Rule     domain.AutoAssignRule `json:"rule"`
	WorkerID types.ID              `json:"workerId"`
}

type notifyConfig struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

type createTasksConfig struct {
	Stage            string                `json:"stage"`
	AutoAssign       bool                  `json:"autoAssign"`
	AssignmentRule   domain.AutoAssignRule `json:"assignmentRule"`
	OverrideExisting bool                  `json:"overrideExisting"`
	Priority         string                `json:"priority"`
}

type generateReportConfig struct {
	ReportType string `json:"reportType"`
}

// assignTaskAction assigns the task of the context, or the pending tasks of the batch at its current stage.
func assignTaskAction(ctx context.Context, rule *domain.AutomationRule, action domain.Action, ec ExecutionContext) (string, error) {
	c := assignTaskConfig{}
	if err := decodeAction(action, &c); err != nil {
		return "", err
	}

	var taskIDs []types.ID
	stage := ""
	if ec.Task != nil {
		taskIDs = []types.ID{ec.Task.ID}
		stage = ec.Task.Stage
	} else if ec.Batch != nil {
		stage = ec.Batch.Stage()
		tasks, err := task.QueryTasksFunc(&task.TaskQuery{BatchID: ec.Batch.ID, Stage: stage,
			Status: string(domain.TaskPending)}, session.System(ctx))
		if err != nil {
			return "", err
		}
		for _, t := range tasks {
			taskIDs = append(taskIDs, t.ID)
		}
	} else {
		return "", errors.New("no batch or task in execution context")
	}
	if len(taskIDs) == 0 {
		return "no pending tasks to assign", nil
	}

	var worker *domain.Worker
	var err error
	if c.WorkerID != 0 {
		worker, err = assign.ResolveSpecificWorkerFunc(ctx, c.WorkerID)
	} else {
		if c.Rule == "" || c.Rule == domain.AutoAssignNone {
			c.Rule = domain.AutoAssignRoundRobin
		}
		worker, err = assign.ResolveFunc(ctx, c.Rule, stage, nil)
	}
	if err != nil {
		return "", err
	}
	if worker == nil {
		return "", errors.New("no active worker available")
	}

	assigned, err := task.AssignTasksFunc(ctx, &task.TaskAssignment{TaskIDs: taskIDs, WorkerID: worker.ID}, session.System(ctx))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("assigned %d tasks to %s", len(assigned), worker.Name), nil
}

// notifyAction sends a message to the notification sink. Delivery failures are not reported.
func notifyAction(ctx context.Context, rule *domain.AutomationRule, action domain.Action, ec ExecutionContext) (string, error) {
	c := notifyConfig{}
	if err := decodeAction(action, &c); err != nil {
		return "", err
	}
	message := c.Message
	if message == "" {
		message = "automation rule '{rule}' fired"
	}
	batchName, stage := "", ""
	if ec.Batch != nil {
		batchName, stage = ec.Batch.Name, ec.Batch.Stage()
	}
	message = strings.NewReplacer("{rule}", rule.Name, "{batch}", batchName, "{stage}", stage).Replace(message)
	notify.NotifyFunc(ctx, c.Channel, message)
	return fmt.Sprintf("notification sent to '%s'", c.Channel), nil
}

func createTasksAction(ctx context.Context, rule *domain.AutomationRule, action domain.Action, ec ExecutionContext) (string, error) {
	if ec.Batch == nil {
		return "", errors.New("no batch in execution context")
	}
	c := createTasksConfig{}
	if err := decodeAction(action, &c); err != nil {
		return "", err
	}
	result, err := task.GenerateTasksFunc(ctx, ec.Batch.ID, task.GenerationOptions{
		AutoAssign: c.AutoAssign, AssignmentRule: c.AssignmentRule, OverrideExisting: c.OverrideExisting,
		StageOverride: c.Stage, Priority: c.Priority,
	}, session.System(ctx))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created %d tasks at stage %s", result.TasksCreated, result.Stage), nil
}

func generateReportAction(ctx context.Context, rule *domain.AutomationRule, action domain.Action, ec ExecutionContext) (string, error) {
	if ec.Batch == nil {
		return "", errors.New("no batch in execution context")
	}
	c := generateReportConfig{}
	if err := decodeAction(action, &c); err != nil {
		return "", err
	}
	key, err := report.GenerateFunc(ctx, ec.Batch.ID, c.ReportType)
	if err != nil {
		return "", err
	}
	return "report uploaded to " + key, nil
}
