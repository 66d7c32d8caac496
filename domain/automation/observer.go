package automation

import (
	"context"
	"shopfloor/domain"
	"shopfloor/event"
	"shopfloor/persistence"
	"shopfloor/session"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

const observerIdentifier = "automation-stage-complete"

// goFunc runs observed rules off the transition path, the batch lock is still held by the caller there.
var goFunc = func(f func()) { go f() }

// StageCompleteObserver runs the active stage_complete rules of a batch workflow, and the global ones,
// whose trigger stage is the stage the batch just left.
func StageCompleteObserver(record *event.EventRecord) *event.EventHandleResult {
	if record.EventCategory != event.EventCategoryStageTransitioned {
		return nil
	}
	fromStage, _ := record.Details["fromStage"].(string)
	if fromStage == "" {
		return nil
	}
	batchID, workflowID := record.BatchID, record.WorkflowID
	triggerData := map[string]interface{}{
		"eventId": record.ID.String(), "fromStage": fromStage, "toStage": record.Details["toStage"],
	}
	goFunc(func() {
		runStageCompleteRules(batchID, workflowID, fromStage, triggerData)
	})
	return &event.EventHandleResult{Success: true, HandlerIdentifier: observerIdentifier,
		Message: "stage_complete rules dispatched for stage " + fromStage}
}

func runStageCompleteRules(batchID, workflowID types.ID, fromStage string, triggerData map[string]interface{}) {
	ctx := context.Background()
	rules, err := matchStageCompleteRules(ctx, workflowID, fromStage)
	if err != nil {
		logrus.WithError(err).WithField("batch", batchID).Error("failed to load stage_complete rules")
		return
	}
	for _, rule := range rules {
		result, err := ExecuteRuleFunc(ctx, rule.ID, &ExecutionRequest{BatchID: batchID, TriggerData: triggerData}, session.System(ctx))
		fields := logrus.Fields{"rule": rule.ID, "batch": batchID, "stage": fromStage}
		if err != nil {
			logrus.WithError(err).WithFields(fields).Warn("stage_complete rule failed")
			continue
		}
		logrus.WithFields(fields).WithField("success", result.Success).Info("stage_complete rule executed")
	}
}

func matchStageCompleteRules(ctx context.Context, workflowID types.ID, fromStage string) ([]domain.AutomationRule, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	var candidates []domain.AutomationRule
	if err := db.Where("is_active = ? AND (workflow_id = ? OR workflow_id = 0)", true, workflowID).
		Order("priority DESC, execution_order ASC, create_time ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}
	var matched []domain.AutomationRule
	for _, rule := range candidates {
		if rule.TriggerType() == domain.TriggerStageComplete && rule.TriggerConfig.String("stage") == fromStage {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}
