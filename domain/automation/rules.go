package automation

import (
	"errors"
	"fmt"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/domain/flow"
	"shopfloor/idgen"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/robfig/cron/v3"
)

var (
	CreateRuleFunc    = CreateRule
	UpdateRuleFunc    = UpdateRule
	DetailRuleFunc    = DetailRule
	QueryRulesFunc    = QueryRules
	SetRuleActiveFunc = SetRuleActive
	DeleteRuleFunc    = DeleteRule
)

func CreateRule(c *RuleCreation, s *session.Session) (*domain.AutomationRule, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if err := validateRule(db, c.WorkflowID, c.TriggerConfig, c.Conditions, c.Actions); err != nil {
		return nil, err
	}

	now := time.Now().Round(time.Microsecond)
	rule := &domain.AutomationRule{
		ID:             idgen.NextID(idWorker),
		WorkflowID:     c.WorkflowID,
		Name:           c.Name,
		Description:    c.Description,
		TriggerConfig:  c.TriggerConfig,
		Conditions:     nonNilConditions(c.Conditions),
		Actions:        nonNilActions(c.Actions),
		Priority:       c.Priority,
		ExecutionOrder: c.ExecutionOrder,
		IsActive:       c.IsActive == nil || *c.IsActive,
		CreatorID:      s.ActorID(),
		CreateTime:     now,
		UpdateTime:     now,
	}
	if err := db.Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule replaces the definition of a rule, its active flag is kept.
func UpdateRule(id types.ID, u *RuleUpdating, s *session.Session) (*domain.AutomationRule, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	rule, err := LoadRule(db, id)
	if err != nil {
		return nil, err
	}
	if err := validateRule(db, u.WorkflowID, u.TriggerConfig, u.Conditions, u.Actions); err != nil {
		return nil, err
	}

	rule.WorkflowID = u.WorkflowID
	rule.Name = u.Name
	rule.Description = u.Description
	rule.TriggerConfig = u.TriggerConfig
	rule.Conditions = nonNilConditions(u.Conditions)
	rule.Actions = nonNilActions(u.Actions)
	rule.Priority = u.Priority
	rule.ExecutionOrder = u.ExecutionOrder
	rule.UpdateTime = time.Now().Round(time.Microsecond)
	if err := db.Model(&domain.AutomationRule{}).Where("id = ?", id).Updates(map[string]interface{}{
		"workflow_id": rule.WorkflowID, "name": rule.Name, "description": rule.Description,
		"trigger_config": rule.TriggerConfig, "conditions": rule.Conditions, "actions": rule.Actions,
		"priority": rule.Priority, "execution_order": rule.ExecutionOrder, "update_time": rule.UpdateTime,
	}).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

func DetailRule(id types.ID, s *session.Session) (*domain.AutomationRule, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	return LoadRule(persistence.ActiveDataSourceManager.GormDB(s.Ctx()), id)
}

// QueryRules lists rules in evaluation order: priority descending, then execution order ascending.
func QueryRules(query *RuleQuery, s *session.Session) ([]domain.AutomationRule, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	if query.TriggerType != "" && !domain.IsOneOf(query.TriggerType, domain.TriggerTypes) {
		return nil, &bizerror.ErrInvalidEnum{Field: "triggerType", Value: query.TriggerType, Accepted: domain.TriggerTypes}
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	q := db.Model(&domain.AutomationRule{})
	if query.WorkflowID != 0 {
		q = q.Where("workflow_id = ?", query.WorkflowID)
	}
	if query.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	rules := []domain.AutomationRule{}
	if err := q.Order("priority DESC, execution_order ASC, create_time ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	if query.TriggerType == "" {
		return rules, nil
	}
	filtered := []domain.AutomationRule{}
	for _, r := range rules {
		if string(r.TriggerType()) == query.TriggerType {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func SetRuleActive(id types.ID, active bool, s *session.Session) error {
	if !s.IsPrivileged() {
		return bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	if _, err := LoadRule(db, id); err != nil {
		return err
	}
	return db.Model(&domain.AutomationRule{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active": active, "update_time": time.Now().Round(time.Microsecond),
	}).Error
}

// DeleteRule removes a rule that never ran. A rule with execution history is deactivated instead.
func DeleteRule(id types.ID, s *session.Session) (*RuleDeletion, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	result := &RuleDeletion{}
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := LoadRule(tx, id); err != nil {
			return err
		}
		var executions int
		if err := tx.Model(&domain.AutomationExecution{}).Where("rule_id = ?", id).Count(&executions).Error; err != nil {
			return err
		}
		if executions > 0 {
			result.Deactivated = true
			return tx.Model(&domain.AutomationRule{}).Where("id = ?", id).Updates(map[string]interface{}{
				"is_active": false, "update_time": time.Now().Round(time.Microsecond),
			}).Error
		}
		result.Deleted = true
		return tx.Where("id = ?", id).Delete(&domain.AutomationRule{}).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func LoadRule(db *gorm.DB, id types.ID) (*domain.AutomationRule, error) {
	rule := domain.AutomationRule{}
	if err := db.Where("id = ?", id).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bizerror.ErrNotFound{Resource: "automation_rule", ID: id}
		}
		return nil, err
	}
	return &rule, nil
}

func validateRule(db *gorm.DB, workflowID types.ID, trigger domain.JSONMap, conditions domain.Conditions, actions domain.Actions) error {
	triggerType := trigger.String("type")
	if !domain.IsOneOf(triggerType, domain.TriggerTypes) {
		return &bizerror.ErrInvalidEnum{Field: "triggerConfig.type", Value: triggerType, Accepted: domain.TriggerTypes}
	}
	for _, c := range conditions {
		if !domain.IsOneOf(string(c.Type), domain.ConditionTypes) {
			return &bizerror.ErrInvalidEnum{Field: "conditions.type", Value: string(c.Type), Accepted: domain.ConditionTypes}
		}
		if !domain.IsOneOf(string(c.Operator), domain.Operators) {
			return &bizerror.ErrInvalidEnum{Field: "conditions.operator", Value: string(c.Operator), Accepted: domain.Operators}
		}
		if c.Operator == domain.OpBetween {
			if _, _, err := toRange(c.Value); err != nil {
				return &bizerror.ErrValidation{Message: err.Error()}
			}
		}
	}
	for _, a := range actions {
		if !domain.IsOneOf(string(a.Type()), domain.ActionTypes) {
			return &bizerror.ErrInvalidEnum{Field: "actions.type", Value: string(a.Type()), Accepted: domain.ActionTypes}
		}
	}

	if domain.TriggerType(triggerType) == domain.TriggerSchedule {
		spec := trigger.String("cron")
		if _, err := cron.ParseStandard(spec); err != nil {
			return &bizerror.ErrValidation{Message: fmt.Sprintf("invalid cron expression '%s': %v", spec, err)}
		}
	}

	if workflowID == 0 {
		return nil
	}
	workflow, err := flow.LoadWorkflow(db, workflowID)
	if err != nil {
		return err
	}
	if domain.TriggerType(triggerType) == domain.TriggerStageComplete {
		stage, ok := trigger["stage"].(string)
		if trigger["stage"] != nil && (!ok || !workflow.IsValidStage(stage)) {
			return &bizerror.ErrInvalidStage{Stage: fmt.Sprint(trigger["stage"]), ValidStages: workflow.ValidStages()}
		}
	}
	return nil
}

func nonNilConditions(c domain.Conditions) domain.Conditions {
	if c == nil {
		return domain.Conditions{}
	}
	return c
}

func nonNilActions(a domain.Actions) domain.Actions {
	if a == nil {
		return domain.Actions{}
	}
	return a
}
