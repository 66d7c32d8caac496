package automation

import (
	"context"
	"fmt"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/domain/batch"
	"shopfloor/domain/task"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/fundwit/go-commons/types"
)

var (
	ExecuteRuleFunc     = ExecuteRule
	QueryExecutionsFunc = QueryExecutions

	// ExecutionTimeout bounds one ExecuteRule call, zero means no limit.
	ExecutionTimeout = 30 * time.Second
)

// ExecuteRule is the entry point of trigger sources: it loads the rule and its context, then runs Execute
// under ExecutionTimeout. Inactive rules can only be dry run. A run that outlives the timeout finishes its
// current action in the background and is recorded as failed.
func ExecuteRule(ctx context.Context, ruleID types.ID, req *ExecutionRequest, s *session.Session) (*ExecutionResult, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	rule, err := LoadRule(db, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive && !req.DryRun {
		return nil, &bizerror.ErrValidation{Message: fmt.Sprintf("automation rule %s is inactive", ruleID)}
	}

	ec := ExecutionContext{Actor: s}
	if req.TaskID != 0 {
		if ec.Task, err = task.LoadTask(db, req.TaskID); err != nil {
			return nil, err
		}
	}
	batchID := req.BatchID
	if batchID == 0 && ec.Task != nil {
		batchID = ec.Task.BatchID
	}
	if batchID != 0 {
		if ec.Batch, err = batch.LoadBatch(db, batchID); err != nil {
			return nil, err
		}
	}

	if ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ExecutionTimeout)
		defer cancel()
	}

	type outcome struct {
		result *ExecutionResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := Execute(ctx, rule, ec, req.TriggerData, req.DryRun)
		done <- outcome{result: result, err: err}
	}()
	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, &bizerror.ErrDependency{Dependency: "automation", Cause: ctx.Err()}
	}
}

// QueryExecutions lists the execution history of a rule, most recent first.
func QueryExecutions(ruleID types.ID, s *session.Session) ([]domain.AutomationExecution, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if _, err := LoadRule(db, ruleID); err != nil {
		return nil, err
	}
	executions := []domain.AutomationExecution{}
	if err := db.Where("rule_id = ?", ruleID).Order("create_time DESC, id DESC").Find(&executions).Error; err != nil {
		return nil, err
	}
	return executions, nil
}
