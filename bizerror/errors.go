package bizerror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fundwit/go-commons/types"
)

type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindDependency Kind = "dependency"
	KindPermission Kind = "permission"
	KindInternal   Kind = "internal"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type BizError interface {
	Respond() *BizErrorDetail
}

type BizErrorDetail struct {
	Status  int
	Code    string
	Message string
	Kind    Kind

	Data  interface{}
	Cause error
}

// KindOf classifies any error returned by the domain packages.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthenticated) {
		return KindPermission
	}
	var bizErr BizError
	if errors.As(err, &bizErr) {
		return bizErr.Respond().Kind
	}
	return KindInternal
}

type ErrBadParam struct {
	Cause error
}

func (e *ErrBadParam) Unwrap() error {
	return e.Cause
}
func (e *ErrBadParam) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "common.bad_param"
}
func (e *ErrBadParam) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.bad_param", Message: e.Error(),
		Kind: KindValidation, Cause: e.Cause}
}

// ErrNotFound reports a missing batch, workflow, rule, task or worker.
type ErrNotFound struct {
	Resource string
	ID       types.ID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}
func (e *ErrNotFound) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusNotFound, Code: e.Resource + ".not_found", Message: e.Error(), Kind: KindNotFound}
}

// ErrInvalidEnum reports a value outside a closed wire vocabulary.
type ErrInvalidEnum struct {
	Field    string
	Value    string
	Accepted []string
}

func (e *ErrInvalidEnum) Error() string {
	return fmt.Sprintf("invalid %s '%s', accepted values: %s", e.Field, e.Value, strings.Join(e.Accepted, ", "))
}
func (e *ErrInvalidEnum) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.invalid_value", Message: e.Error(),
		Kind: KindValidation, Data: e.Accepted}
}

// ErrValidation is a shape error without an enumerable set of accepted values.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}
func (e *ErrValidation) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "common.validation_failed", Message: e.Message, Kind: KindValidation}
}

type ErrInvalidStage struct {
	Stage       string
	ValidStages []string
}

func (e *ErrInvalidStage) Error() string {
	return fmt.Sprintf("invalid stage '%s', valid stages: %s", e.Stage, strings.Join(e.ValidStages, ", "))
}
func (e *ErrInvalidStage) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "workflow.invalid_stage", Message: e.Error(),
		Kind: KindValidation, Data: e.ValidStages}
}

type ErrInvalidWorkflowConfig struct {
	WorkflowID types.ID
	Reason     string
}

func (e *ErrInvalidWorkflowConfig) Error() string {
	return fmt.Sprintf("invalid workflow config %s: %s", e.WorkflowID, e.Reason)
}
func (e *ErrInvalidWorkflowConfig) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "workflow.invalid_config", Message: e.Error(), Kind: KindValidation}
}

type ErrNoStage struct {
	BatchID types.ID
}

func (e *ErrNoStage) Error() string {
	return fmt.Sprintf("batch %s has no current stage and no stage override was given", e.BatchID)
}
func (e *ErrNoStage) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadRequest, Code: "task.no_stage", Message: e.Error(), Kind: KindValidation}
}

type ErrStageNotFound struct {
	Stage      string
	WorkflowID types.ID
}

func (e *ErrStageNotFound) Error() string {
	return fmt.Sprintf("stage '%s' not found in workflow %s", e.Stage, e.WorkflowID)
}
func (e *ErrStageNotFound) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusNotFound, Code: "workflow.stage_not_found", Message: e.Error(), Kind: KindNotFound}
}

type ErrDuplicateTasks struct {
	BatchID types.ID
	Stage   string
	Count   int
}

func (e *ErrDuplicateTasks) Error() string {
	return fmt.Sprintf("%d tasks already exist for batch %s at stage '%s'", e.Count, e.BatchID, e.Stage)
}
func (e *ErrDuplicateTasks) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusConflict, Code: "task.duplicated", Message: e.Error(),
		Kind: KindConflict, Data: map[string]interface{}{"existingCount": e.Count}}
}

// ErrStagesInUse rejects a workflow definition that drops stages batches are still at.
type ErrStagesInUse struct {
	WorkflowID types.ID
	Stages     []string
	BatchIDs   []types.ID
}

func (e *ErrStagesInUse) Error() string {
	ids := make([]string, 0, len(e.BatchIDs))
	for _, id := range e.BatchIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("workflow %s stages %s are still in use by batches %s",
		e.WorkflowID, strings.Join(e.Stages, ", "), strings.Join(ids, ", "))
}
func (e *ErrStagesInUse) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusConflict, Code: "workflow.stages_in_use", Message: e.Error(),
		Kind: KindConflict, Data: map[string]interface{}{"stages": e.Stages, "batchIds": e.BatchIDs}}
}

// ErrConcurrentUpdate is returned when a versioned update matched no row.
type ErrConcurrentUpdate struct {
	Resource string
	ID       types.ID
}

func (e *ErrConcurrentUpdate) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}
func (e *ErrConcurrentUpdate) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusConflict, Code: e.Resource + ".concurrent_update", Message: e.Error(), Kind: KindConflict}
}

type ErrTaskCreation struct {
	Stage string
	Cause error
}

func (e *ErrTaskCreation) Error() string {
	return fmt.Sprintf("failed to create configured tasks for stage '%s': %v", e.Stage, e.Cause)
}
func (e *ErrTaskCreation) Unwrap() error {
	return e.Cause
}
func (e *ErrTaskCreation) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusInternalServerError, Code: "task.creation_failed", Message: e.Error(),
		Kind: KindDependency, Cause: e.Cause}
}

// ErrDependency wraps a failure of the store or another collaborator.
type ErrDependency struct {
	Dependency string
	Cause      error
}

func (e *ErrDependency) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Dependency, e.Cause)
}
func (e *ErrDependency) Unwrap() error {
	return e.Cause
}
func (e *ErrDependency) Respond() *BizErrorDetail {
	return &BizErrorDetail{Status: http.StatusBadGateway, Code: "common.dependency_failure", Message: e.Error(),
		Kind: KindDependency, Cause: e.Cause}
}
