package task

import (
	"context"
	"errors"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/domain/assign"
	"shopfloor/domain/batch"
	"shopfloor/domain/flow"
	"shopfloor/event"
	"shopfloor/persistence"
	"shopfloor/session"
	"shopfloor/testinfra"
	"testing"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

var (
	testDatabase *testinfra.TestDatabase

	manager = testinfra.BuildSession(1, session.RoleManager)
)

func setup(t *testing.T) {
	testDatabase = testinfra.StartTestDatabase("shopfloor")
	assert.Nil(t, testDatabase.DS.GormDB(context.Background()).AutoMigrate(
		&domain.Workflow{}, &domain.WorkflowStage{}, &domain.WorkflowStageTransition{},
		&domain.Batch{}, &domain.StageTransitionRecord{}, &domain.Task{}, &domain.Worker{}, &event.EventRecord{}).Error)
	persistence.ActiveDataSourceManager = testDatabase.DS
}

func teardown(t *testing.T) {
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func createWorkflow() *domain.WorkflowDetail {
	w, err := flow.CreateWorkflow(&flow.WorkflowCreation{
		Name: "chairs",
		Stages: []domain.StageDefinition{
			{StageCode: "sanding", DisplayName: "Sanding", EstimatedHours: 2, RequiredSkills: domain.StringList{"sanding"}},
			{StageCode: "qc", RequiredSkills: domain.StringList{"qc"}, AutoAssignRule: domain.AutoAssignLeastBusy},
		},
		Transitions: []domain.StageTransitionEdge{{FromStage: "sanding", ToStage: "qc"}},
	}, manager)
	Expect(err).To(BeNil())
	return w
}

func createBatchAt(workflowID types.ID, stage string, items ...types.ID) *domain.Batch {
	b, err := batch.CreateBatch(&batch.BatchCreation{Name: "b1", BatchType: domain.RequestedModel, OrderItemIDs: items}, manager)
	Expect(err).To(BeNil())
	b, err = batch.AssignWorkflow(context.Background(), b.ID, &batch.WorkflowAssignment{WorkflowID: workflowID, InitialStage: stage}, manager)
	Expect(err).To(BeNil())
	return b
}

func createWorker(name string, skills ...string) *domain.Worker {
	w, err := assign.CreateWorker(&assign.WorkerCreation{Name: name, Role: session.RoleWorker, Skills: skills}, manager)
	Expect(err).To(BeNil())
	return w
}

func stageTasks(batchID types.ID, stage string) []domain.Task {
	tasks, err := QueryTasks(&TaskQuery{BatchID: batchID, Stage: stage}, manager)
	Expect(err).To(BeNil())
	return tasks
}

func TestGenerateTasks(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()

	t.Run("tasks of different stages do not conflict", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		w := createWorkflow()
		b := createBatchAt(w.ID, "sanding", 11, 12, 13)

		result, err := GenerateTasks(ctx, b.ID, GenerationOptions{}, manager)
		Expect(err).To(BeNil())
		Expect(result.Stage).To(Equal("sanding"))
		Expect(result.TasksCreated).To(Equal(3))
		Expect(result.AssignmentInfo).To(BeNil())
		sanding := stageTasks(b.ID, "sanding")
		Expect(len(sanding)).To(Equal(3))
		for i, task := range sanding {
			Expect(task.Status).To(Equal(domain.TaskPending))
			Expect(task.AssignedTo).To(BeZero())
			Expect(task.TaskType).To(Equal("sanding"))
			Expect(task.Priority).To(Equal(domain.DefaultTaskPriority))
			Expect(task.EstimatedHours).To(Equal(2.0))
			Expect(task.AutoGenerated).To(BeTrue())
			Expect(task.OrderItemID).To(Equal([]types.ID{11, 12, 13}[i]))
		}
		Expect(sanding[0].Title).To(Equal("Sanding - item 11"))

		_, err = batch.TransitionBatch(ctx, b.ID, &batch.TransitionRequest{TargetStage: "qc"}, manager)
		Expect(err).To(BeNil())
		result, err = GenerateTasks(ctx, b.ID, GenerationOptions{}, manager)
		Expect(err).To(BeNil())
		Expect(result.Stage).To(Equal("qc"))
		Expect(result.TasksCreated).To(Equal(3))

		Expect(stageTasks(b.ID, "sanding")).To(Equal(sanding))
		Expect(len(stageTasks(b.ID, "qc"))).To(Equal(3))

		events, err := event.QueryEvents(event.EventQuery{BatchID: b.ID, EventCategory: event.EventCategoryTasksGenerated}, manager)
		Expect(err).To(BeNil())
		Expect(len(events)).To(Equal(2))
		Expect(events[1].Details).To(Equal(domain.JSONMap{"stage": "qc", "tasksCreated": float64(3), "tasksReplaced": float64(0)}))
	})

	t.Run("should reject duplicates unless overriding and replace the whole stage set", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		w := createWorkflow()
		b := createBatchAt(w.ID, "sanding", 11, 12)
		_, err := GenerateTasks(ctx, b.ID, GenerationOptions{}, manager)
		Expect(err).To(BeNil())
		old := stageTasks(b.ID, "sanding")

		_, err = GenerateTasks(ctx, b.ID, GenerationOptions{}, manager)
		Expect(err).To(Equal(&bizerror.ErrDuplicateTasks{BatchID: b.ID, Stage: "sanding", Count: 2}))
		Expect(bizerror.KindOf(err)).To(Equal(bizerror.KindConflict))
		Expect(len(stageTasks(b.ID, "sanding"))).To(Equal(2))

		_, err = CreateTask(&TaskCreation{BatchID: b.ID, Stage: "sanding", Title: "extra"}, manager)
		Expect(err).To(BeNil())
		Expect(len(stageTasks(b.ID, "sanding"))).To(Equal(3))

		result, err := GenerateTasks(ctx, b.ID, GenerationOptions{OverrideExisting: true, Priority: "high"}, manager)
		Expect(err).To(BeNil())
		Expect(result.TasksCreated).To(Equal(2))
		Expect(result.TasksReplaced).To(Equal(3))

		replaced := stageTasks(b.ID, "sanding")
		Expect(len(replaced)).To(Equal(2))
		for _, task := range replaced {
			Expect(task.Priority).To(Equal("high"))
			for _, o := range old {
				Expect(task.ID).ToNot(Equal(o.ID))
			}
		}
	})

	t.Run("a failed override keeps the original stage tasks", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		w := createWorkflow()
		b := createBatchAt(w.ID, "sanding", 11, 12, 13)
		_, err := GenerateTasks(ctx, b.ID, GenerationOptions{}, manager)
		Expect(err).To(BeNil())
		original := stageTasks(b.ID, "sanding")
		Expect(len(original)).To(Equal(3))

		inserted := 0
		callbacks := testDatabase.DS.GormDB(ctx).Callback()
		callbacks.Create().Before("gorm:create").Register("fail_second_task", func(scope *gorm.Scope) {
			if _, ok := scope.Value.(*domain.Task); !ok {
				return
			}
			inserted++
			if inserted == 2 {
				scope.Err(errors.New("disk full"))
			}
		})
		defer callbacks.Create().Remove("fail_second_task")

		result, err := GenerateTasks(ctx, b.ID, GenerationOptions{OverrideExisting: true}, manager)
		Expect(result).To(BeNil())
		Expect(errors.Unwrap(err)).To(MatchError("disk full"))
		Expect(bizerror.KindOf(err)).To(Equal(bizerror.KindDependency))
		Expect(inserted).To(Equal(2))

		Expect(stageTasks(b.ID, "sanding")).To(Equal(original))
	})

	t.Run("least_busy assigns every generated task to the same least loaded worker", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		busy := createWorker("busy", "sanding")
		idle := createWorker("idle", "sanding")
		createWorker("painter", "paint")

		w := createWorkflow()
		other := createBatchAt(w.ID, "sanding", 1)
		_, err := CreateTask(&TaskCreation{BatchID: other.ID, Stage: "sanding", Title: "t", AssignedTo: busy.ID}, manager)
		Expect(err).To(BeNil())

		b := createBatchAt(w.ID, "sanding", 21, 22, 23, 24)
		result, err := GenerateTasks(ctx, b.ID, GenerationOptions{AutoAssign: true, AssignmentRule: domain.AutoAssignLeastBusy}, manager)
		Expect(err).To(BeNil())
		Expect(*result.AssignmentInfo).To(Equal(AssignmentInfo{Rule: domain.AutoAssignLeastBusy, WorkerID: idle.ID, WorkerName: "idle"}))
		tasks := stageTasks(b.ID, "sanding")
		Expect(len(tasks)).To(Equal(4))
		for _, task := range tasks {
			Expect(task.AssignedTo).To(Equal(idle.ID))
			Expect(task.AssignedBy).To(Equal(manager.Identity.ID))
			Expect(task.Status).To(Equal(domain.TaskAssigned))
		}
	})

	t.Run("should default the rule from the stage and validate specific workers", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		var capturedRule domain.AutoAssignRule
		var capturedSkills []string
		assign.ResolveFunc = func(ctx context.Context, rule domain.AutoAssignRule, stage string, requiredSkills []string) (*domain.Worker, error) {
			capturedRule, capturedSkills = rule, requiredSkills
			return nil, nil
		}
		defer func() { assign.ResolveFunc = assign.Resolve }()

		w := createWorkflow()
		b := createBatchAt(w.ID, "qc", 1)
		result, err := GenerateTasks(ctx, b.ID, GenerationOptions{AutoAssign: true}, manager)
		Expect(err).To(BeNil())
		Expect(capturedRule).To(Equal(domain.AutoAssignLeastBusy))
		Expect(capturedSkills).To(Equal([]string{"qc"}))
		Expect(result.AssignmentInfo.Message).To(Equal("no active worker available"))
		Expect(stageTasks(b.ID, "qc")[0].Status).To(Equal(domain.TaskPending))

		_, err = GenerateTasks(ctx, b.ID, GenerationOptions{AutoAssign: true, StageOverride: "sanding",
			AssignmentRule: domain.AutoAssignSpecificWorker}, manager)
		Expect(bizerror.KindOf(err)).To(Equal(bizerror.KindValidation))
		Expect(stageTasks(b.ID, "sanding")).To(BeEmpty())

		worker := createWorker("w1")
		result, err = GenerateTasks(ctx, b.ID, GenerationOptions{AutoAssign: true, StageOverride: "sanding",
			AssignmentRule: domain.AutoAssignSpecificWorker, SpecificWorkerID: worker.ID}, manager)
		Expect(err).To(BeNil())
		Expect(result.Tasks[0].AssignedTo).To(Equal(worker.ID))
	})

	t.Run("should report missing stages", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		w := createWorkflow()
		b, err := batch.CreateBatch(&batch.BatchCreation{Name: "b", BatchType: domain.RequestedModel, WorkflowID: w.ID,
			OrderItemIDs: []types.ID{1}}, manager)
		Expect(err).To(BeNil())

		_, err = GenerateTasks(ctx, b.ID, GenerationOptions{}, manager)
		Expect(err).To(Equal(&bizerror.ErrNoStage{BatchID: b.ID}))

		_, err = GenerateTasks(ctx, b.ID, GenerationOptions{StageOverride: "paint"}, manager)
		Expect(err).To(Equal(&bizerror.ErrStageNotFound{Stage: "paint", WorkflowID: w.ID}))

		_, err = GenerateTasks(ctx, 404, GenerationOptions{}, manager)
		Expect(err).To(Equal(&bizerror.ErrNotFound{Resource: "batch", ID: 404}))

		_, err = GenerateTasks(ctx, b.ID, GenerationOptions{AssignmentRule: "fastest"}, manager)
		Expect(err).To(Equal(&bizerror.ErrInvalidEnum{Field: "assignmentRule", Value: "fastest", Accepted: domain.AutoAssignRules}))

		_, err = GenerateTasks(ctx, b.ID, GenerationOptions{}, testinfra.BuildSession(2, session.RoleWorker))
		Expect(err).To(Equal(bizerror.ErrForbidden))
	})

	t.Run("execution log failures do not fail the generation", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		persistCreate := event.EventPersistCreateFunc
		event.EventPersistCreateFunc = func(record *event.EventRecord, db *gorm.DB) error {
			return errors.New("log unavailable")
		}
		defer func() { event.EventPersistCreateFunc = persistCreate }()

		w := createWorkflow()
		b := createBatchAt(w.ID, "sanding", 1, 2)
		result, err := GenerateTasks(ctx, b.ID, GenerationOptions{}, manager)
		Expect(err).To(BeNil())
		Expect(result.TasksCreated).To(Equal(2))
		Expect(len(stageTasks(b.ID, "sanding"))).To(Equal(2))
	})
}
