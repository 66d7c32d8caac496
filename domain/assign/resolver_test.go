package assign

import (
	"context"
	"math/rand"
	"shopfloor/bizerror"
	"shopfloor/domain"
	"shopfloor/persistence"
	"shopfloor/session"
	"shopfloor/testinfra"
	"testing"
	"time"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

var testDatabase *testinfra.TestDatabase

func setup(t *testing.T) {
	testDatabase = testinfra.StartTestDatabase("shopfloor")
	assert.Nil(t, testDatabase.DS.GormDB(context.Background()).AutoMigrate(&domain.Worker{}, &domain.Task{}).Error)
	persistence.ActiveDataSourceManager = testDatabase.DS
}

func teardown(t *testing.T) {
	if testDatabase != nil {
		testinfra.StopTestDatabase(testDatabase)
	}
}

func createWorker(id types.ID, active bool, skills ...string) domain.Worker {
	w := domain.Worker{ID: id, Name: "w" + id.String(), Role: session.RoleWorker, Skills: skills, IsActive: active,
		CreateTime: time.Now().Round(time.Microsecond)}
	if w.Skills == nil {
		w.Skills = domain.StringList{}
	}
	Expect(testDatabase.DS.GormDB(context.Background()).Create(&w).Error).To(BeNil())
	return w
}

func createTasks(workerID types.ID, status domain.TaskStatus, n int) {
	for i := 0; i < n; i++ {
		task := domain.Task{ID: idgenNext(), BatchID: 1, Stage: "sanding", TaskType: "sanding", AssignedTo: workerID,
			Status: status, Priority: domain.DefaultTaskPriority}
		Expect(testDatabase.DS.GormDB(context.Background()).Create(&task).Error).To(BeNil())
	}
}

var taskSeq types.ID = 10000

func idgenNext() types.ID {
	taskSeq++
	return taskSeq
}

func TestResolve(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()

	t.Run("should return nil only when there is no active worker", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		createWorker(1, false, "sanding")
		w, err := Resolve(ctx, domain.AutoAssignRoundRobin, "sanding", []string{"sanding"})
		Expect(err).To(BeNil())
		Expect(w).To(BeNil())
	})

	t.Run("should filter by skills honoring the all_stages wildcard", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		createWorker(1, true, "sanding")
		createWorker(2, true, "all_stages")
		createWorker(3, true, "paint")
		createWorker(4, false, "qc")

		var poolSizes []int
		pickIndexFunc = func(n int) int {
			poolSizes = append(poolSizes, n)
			return n - 1
		}
		defer func() { pickIndexFunc = rand.Intn }()

		w, err := Resolve(ctx, domain.AutoAssignRoundRobin, "qc", []string{"qc"})
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(2)))

		w, err = Resolve(ctx, domain.AutoAssignRoundRobin, "sanding", []string{"sanding"})
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(2)))

		w, err = Resolve(ctx, domain.AutoAssignRoundRobin, "glue", []string{"glue"})
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(2)))

		w, err = Resolve(ctx, domain.AutoAssignRoundRobin, "any", nil)
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(3)))

		Expect(poolSizes).To(Equal([]int{1, 2, 1, 3}))
	})

	t.Run("should fall back to all active workers when nobody has the skill", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		createWorker(1, true, "sanding")
		createWorker(2, true, "paint")

		pickIndexFunc = func(n int) int {
			Expect(n).To(Equal(2))
			return 0
		}
		defer func() { pickIndexFunc = rand.Intn }()

		w, err := Resolve(ctx, domain.AutoAssignRoundRobin, "glue", []string{"glue"})
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(1)))
	})

	t.Run("least_busy picks the fewest assigned and in progress tasks with first in list tie break", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		createWorker(1, true, "sanding")
		createWorker(2, true, "sanding")
		createWorker(3, true, "sanding")
		createTasks(1, domain.TaskAssigned, 2)
		createTasks(2, domain.TaskInProgress, 1)
		createTasks(2, domain.TaskCompleted, 5)
		createTasks(3, domain.TaskAssigned, 1)

		w, err := Resolve(ctx, domain.AutoAssignLeastBusy, "sanding", []string{"sanding"})
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(2)))

		createTasks(2, domain.TaskAssigned, 1)
		w, err = Resolve(ctx, domain.AutoAssignLeastBusy, "sanding", []string{"sanding"})
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(3)))

		loads, err := CountBusyTasks(ctx, []types.ID{1, 2, 3})
		Expect(err).To(BeNil())
		Expect(loads).To(Equal(map[types.ID]int{1: 2, 2: 2, 3: 1}))
	})

	t.Run("should reject rules it cannot resolve", func(t *testing.T) {
		_, err := Resolve(ctx, domain.AutoAssignSpecificWorker, "sanding", nil)
		Expect(bizerror.KindOf(err)).To(Equal(bizerror.KindValidation))
		_, err = Resolve(ctx, "fastest", "sanding", nil)
		Expect(err).To(Equal(&bizerror.ErrInvalidEnum{Field: "assignmentRule", Value: "fastest", Accepted: ResolvableRules}))
	})
}

func TestResolveSpecificWorker(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()

	t.Run("specific workers must exist and be active", func(t *testing.T) {
		defer teardown(t)
		setup(t)

		createWorker(1, true)
		createWorker(2, false)

		w, err := ResolveSpecificWorker(ctx, 1)
		Expect(err).To(BeNil())
		Expect(w.ID).To(Equal(types.ID(1)))

		_, err = ResolveSpecificWorker(ctx, 2)
		Expect(err).To(Equal(&bizerror.ErrValidation{Message: "worker 2 is not active"}))
		_, err = ResolveSpecificWorker(ctx, 3)
		Expect(err).To(Equal(&bizerror.ErrValidation{Message: "worker 3 does not exist"}))
		_, err = ResolveSpecificWorker(ctx, 0)
		Expect(bizerror.KindOf(err)).To(Equal(bizerror.KindValidation))
	})
}
