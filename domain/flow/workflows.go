package flow

import (
	"errors"
	"fmt"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/idgen"
	"shopfloor/persistence"
	"shopfloor/session"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	idWorker = idgen.NewWorker()

	QueryWorkflowsFunc    = QueryWorkflows
	DetailWorkflowFunc    = DetailWorkflow
	CreateWorkflowFunc    = CreateWorkflow
	UpdateWorkflowFunc    = UpdateWorkflow
	SetWorkflowActiveFunc = SetWorkflowActive
)

func CreateWorkflow(c *WorkflowCreation, s *session.Session) (*domain.WorkflowDetail, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	stages, transitions, err := normalizeDefinition(c.Stages, c.Transitions)
	if err != nil {
		return nil, err
	}

	now := time.Now().Round(time.Microsecond)
	workflow := &domain.WorkflowDetail{
		Workflow: domain.Workflow{
			ID:          idgen.NextID(idWorker),
			Name:        c.Name,
			Description: c.Description,
			IsActive:    true,
			CreatorID:   s.ActorID(),
			CreateTime:  now,
			UpdateTime:  now,
		},
		Stages:      stages,
		Transitions: transitions,
	}

	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&workflow.Workflow).Error; err != nil {
			return err
		}
		return saveDefinition(tx, workflow.ID, stages, transitions, now)
	})
	if err != nil {
		return nil, err
	}
	return workflow, nil
}

func DetailWorkflow(id types.ID, s *session.Session) (*domain.WorkflowDetail, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	return LoadWorkflow(persistence.ActiveDataSourceManager.GormDB(s.Ctx()), id)
}

// LoadWorkflow reads a workflow with its stages and transition edges.
func LoadWorkflow(db *gorm.DB, id types.ID) (*domain.WorkflowDetail, error) {
	detail := domain.WorkflowDetail{}
	if err := db.Where("id = ?", id).First(&detail.Workflow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bizerror.ErrNotFound{Resource: "workflow", ID: id}
		}
		return nil, err
	}

	var stageRecords []domain.WorkflowStage
	if err := db.Where("workflow_id = ?", id).Order("stage_order ASC").Find(&stageRecords).Error; err != nil {
		return nil, err
	}
	var transitionRecords []domain.WorkflowStageTransition
	if err := db.Where("workflow_id = ?", id).Order("id ASC").Find(&transitionRecords).Error; err != nil {
		return nil, err
	}

	detail.Stages = []domain.StageDefinition{}
	for _, record := range stageRecords {
		detail.Stages = append(detail.Stages, record.StageDefinition)
	}
	detail.Transitions = []domain.StageTransitionEdge{}
	for _, record := range transitionRecords {
		detail.Transitions = append(detail.Transitions, domain.StageTransitionEdge{
			FromStage: record.FromStage, ToStage: record.ToStage, TransitionType: record.TransitionType,
		})
	}
	return &detail, nil
}

func QueryWorkflows(query *WorkflowQuery, s *session.Session) ([]domain.Workflow, error) {
	if !s.IsActive() {
		return nil, bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	q := db.Model(&domain.Workflow{})
	if query.Name != "" {
		q = q.Where("name LIKE ?", "%"+query.Name+"%")
	}
	if query.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	workflows := []domain.Workflow{}
	if err := q.Order("create_time ASC").Find(&workflows).Error; err != nil {
		return nil, err
	}
	return workflows, nil
}

// UpdateWorkflow replaces the definition of a workflow in one transaction. Stages that batches of the
// workflow are currently at cannot be removed.
func UpdateWorkflow(id types.ID, u *WorkflowUpdating, s *session.Session) (*domain.WorkflowDetail, error) {
	if !s.IsPrivileged() {
		return nil, bizerror.ErrForbidden
	}
	stages, transitions, err := normalizeDefinition(u.Stages, u.Transitions)
	if err != nil {
		return nil, err
	}

	var detail *domain.WorkflowDetail
	now := time.Now().Round(time.Microsecond)
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	err = db.Transaction(func(tx *gorm.DB) error {
		wf := domain.Workflow{}
		if err := tx.Where("id = ?", id).First(&wf).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &bizerror.ErrNotFound{Resource: "workflow", ID: id}
			}
			return err
		}
		if err := checkStagesInUse(tx, id, stages); err != nil {
			return err
		}
		if err := tx.Model(&domain.Workflow{}).Where("id = ?", id).
			Updates(map[string]interface{}{"name": u.Name, "description": u.Description, "update_time": now}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&domain.WorkflowStage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&domain.WorkflowStageTransition{}).Error; err != nil {
			return err
		}
		if err := saveDefinition(tx, id, stages, transitions, now); err != nil {
			return err
		}

		wf.Name = u.Name
		wf.Description = u.Description
		wf.UpdateTime = now
		detail = &domain.WorkflowDetail{Workflow: wf, Stages: stages, Transitions: transitions}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// checkStagesInUse rejects a definition missing a stage some batch of the workflow currently is at.
func checkStagesInUse(tx *gorm.DB, id types.ID, stages []domain.StageDefinition) error {
	codes := append([]string{}, domain.PseudoStages...)
	for _, stage := range stages {
		codes = append(codes, stage.StageCode)
	}
	var stranded []domain.Batch
	if err := tx.Where("workflow_id = ? AND current_stage IS NOT NULL AND current_stage NOT IN (?)", id, codes).
		Order("id ASC").Find(&stranded).Error; err != nil {
		return err
	}
	if len(stranded) == 0 {
		return nil
	}
	inUse := &bizerror.ErrStagesInUse{WorkflowID: id}
	seen := map[string]bool{}
	for _, b := range stranded {
		inUse.BatchIDs = append(inUse.BatchIDs, b.ID)
		if stage := b.Stage(); !seen[stage] {
			seen[stage] = true
			inUse.Stages = append(inUse.Stages, stage)
		}
	}
	return inUse
}

// SetWorkflowActive toggles whether a workflow may be assigned to new batches.
func SetWorkflowActive(id types.ID, active bool, s *session.Session) error {
	if !s.IsPrivileged() {
		return bizerror.ErrForbidden
	}
	db := persistence.ActiveDataSourceManager.GormDB(s.Ctx())
	result := db.Model(&domain.Workflow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": active, "update_time": time.Now().Round(time.Microsecond)})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &bizerror.ErrNotFound{Resource: "workflow", ID: id}
	}
	return nil
}

func saveDefinition(tx *gorm.DB, workflowID types.ID, stages []domain.StageDefinition,
	transitions []domain.StageTransitionEdge, now time.Time) error {
	for idx, stage := range stages {
		record := &domain.WorkflowStage{WorkflowID: workflowID, StageDefinition: stage, StageOrder: idx + 1, CreateTime: now}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
	}
	for _, t := range transitions {
		record := &domain.WorkflowStageTransition{ID: idgen.NextID(idWorker), WorkflowID: workflowID,
			FromStage: t.FromStage, ToStage: t.ToStage, TransitionType: t.TransitionType, CreateTime: now}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
	}
	return nil
}

// normalizeDefinition validates stage codes and edges, and fills defaults for assignment rules and transition types.
func normalizeDefinition(stages []domain.StageDefinition, transitions []domain.StageTransitionEdge) (
	[]domain.StageDefinition, []domain.StageTransitionEdge, error) {
	if len(stages) == 0 {
		return nil, nil, &bizerror.ErrValidation{Message: "a workflow needs at least one stage"}
	}

	codes := map[string]bool{}
	normalizedStages := make([]domain.StageDefinition, 0, len(stages))
	for _, stage := range stages {
		if stage.StageCode == "" {
			return nil, nil, &bizerror.ErrValidation{Message: "stage code is required"}
		}
		if domain.IsPseudoStage(stage.StageCode) {
			return nil, nil, &bizerror.ErrValidation{Message: fmt.Sprintf("stage code '%s' is reserved", stage.StageCode)}
		}
		if codes[stage.StageCode] {
			return nil, nil, &bizerror.ErrValidation{Message: fmt.Sprintf("duplicated stage code '%s'", stage.StageCode)}
		}
		codes[stage.StageCode] = true

		if stage.AutoAssignRule == "" {
			stage.AutoAssignRule = domain.AutoAssignNone
		}
		if !stage.AutoAssignRule.IsValid() {
			return nil, nil, &bizerror.ErrInvalidEnum{Field: "autoAssignRule", Value: string(stage.AutoAssignRule),
				Accepted: domain.AutoAssignRules}
		}
		if stage.RequiredSkills == nil {
			stage.RequiredSkills = domain.StringList{}
		}
		if stage.Tasks == nil {
			stage.Tasks = domain.TaskSpecs{}
		}
		normalizedStages = append(normalizedStages, stage)
	}

	validStages := (&domain.WorkflowDetail{Stages: normalizedStages}).ValidStages()
	edges := map[string]bool{}
	normalizedTransitions := make([]domain.StageTransitionEdge, 0, len(transitions))
	for _, t := range transitions {
		if t.FromStage != "" && !codes[t.FromStage] && !domain.IsPseudoStage(t.FromStage) {
			return nil, nil, &bizerror.ErrInvalidStage{Stage: t.FromStage, ValidStages: validStages}
		}
		if !codes[t.ToStage] && !domain.IsPseudoStage(t.ToStage) {
			return nil, nil, &bizerror.ErrInvalidStage{Stage: t.ToStage, ValidStages: validStages}
		}
		if t.TransitionType == "" {
			t.TransitionType = domain.TransitionManual
		}
		if !t.TransitionType.IsValid() {
			return nil, nil, &bizerror.ErrInvalidEnum{Field: "transitionType", Value: string(t.TransitionType),
				Accepted: domain.TransitionTypes}
		}
		key := t.FromStage + "->" + t.ToStage
		if edges[key] {
			return nil, nil, &bizerror.ErrValidation{Message: fmt.Sprintf("duplicated transition '%s'", key)}
		}
		edges[key] = true
		normalizedTransitions = append(normalizedTransitions, t)
	}
	return normalizedStages, normalizedTransitions, nil
}
