package automation_test

import (
	"encoding/json"
	"shopfloor/domain"
	"shopfloor/domain/automation"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Compare", func() {
	It("should compare numbers regardless of their representation", func() {
		Expect(automation.Compare(3, domain.OpEquals, 3.0)).To(BeTrue())
		Expect(automation.Compare(3, domain.OpEquals, "3")).To(BeTrue())
		Expect(automation.Compare(3, domain.OpEquals, json.Number("3"))).To(BeTrue())
		Expect(automation.Compare("sanding", domain.OpEquals, "sanding")).To(BeTrue())
		Expect(automation.Compare("sanding", domain.OpEquals, "qc")).To(BeFalse())
	})

	It("should apply ordering operators", func() {
		Expect(automation.Compare(10, domain.OpGreaterThan, 5)).To(BeTrue())
		Expect(automation.Compare(5, domain.OpGreaterThan, 5)).To(BeFalse())
		Expect(automation.Compare(5, domain.OpGreaterThanOrEqual, 5)).To(BeTrue())
		Expect(automation.Compare(4, domain.OpLessThan, 5)).To(BeTrue())
		Expect(automation.Compare(5, domain.OpLessThanOrEqual, 5)).To(BeTrue())
		Expect(automation.Compare(6, domain.OpLessThanOrEqual, 5)).To(BeFalse())

		_, err := automation.Compare(6, domain.OpLessThan, "many")
		Expect(err).To(MatchError("value 'many' is not a number"))
	})

	It("should test substrings on the string forms", func() {
		Expect(automation.Compare("rough_sanding", domain.OpContains, "sand")).To(BeTrue())
		Expect(automation.Compare(1234, domain.OpContains, 23)).To(BeTrue())
		Expect(automation.Compare("qc", domain.OpContains, "sand")).To(BeFalse())
	})

	It("should treat between as an inclusive range", func() {
		Expect(automation.Compare(8, domain.OpBetween, []interface{}{8.0, 17.0})).To(BeTrue())
		Expect(automation.Compare(17, domain.OpBetween, []int{8, 17})).To(BeTrue())
		Expect(automation.Compare(18, domain.OpBetween, []interface{}{8.0, 17.0})).To(BeFalse())

		_, err := automation.Compare(8, domain.OpBetween, []interface{}{8.0})
		Expect(err).To(MatchError("between expects a [low, high] pair, got [8]"))
		_, err = automation.Compare(8, domain.OpBetween, 8)
		Expect(err).ToNot(BeNil())
	})

	It("should reject unknown operators", func() {
		_, err := automation.Compare(1, domain.Operator("near"), 1)
		Expect(err).To(MatchError("unsupported operator 'near'"))
	})
})

var _ = Describe("EvaluateConditions", func() {
	var (
		ec  automation.ExecutionContext
		now time.Time
	)

	BeforeEach(func() {
		ec = automation.ExecutionContext{Batch: &domain.Batch{OrderItemIDs: domain.IDList{1, 2, 3, 4, 5}}}
		now = time.Date(2026, 5, 6, 14, 30, 0, 0, time.Local)
	})

	It("should evaluate every condition without stopping at a failing one", func() {
		evaluated, met := automation.EvaluateConditions([]domain.Condition{
			{Type: domain.ConditionBatchSize, Operator: domain.OpGreaterThan, Value: 10.0},
			{Type: domain.ConditionTimeOfDay, Operator: domain.OpBetween, Value: []interface{}{8.0, 17.0}},
			{Type: domain.ConditionWorkerAvailable},
		}, ec, now)

		Expect(len(evaluated)).To(Equal(3))
		Expect(evaluated[0].Result).To(BeFalse())
		Expect(evaluated[0].Details).To(Equal("batch size 5 greater_than 10: false"))
		Expect(evaluated[1].Result).To(BeTrue())
		Expect(evaluated[1].Details).To(Equal("hour 14 between [8,17]: true"))
		Expect(evaluated[2].Result).To(BeTrue())
		Expect(len(met)).To(Equal(2))
		Expect(met[0].ConditionType).To(Equal(domain.ConditionTimeOfDay))
	})

	It("should return empty trails for an empty condition set", func() {
		evaluated, met := automation.EvaluateConditions(nil, ec, now)
		Expect(evaluated).ToNot(BeNil())
		Expect(met).ToNot(BeNil())
		Expect(len(evaluated)).To(BeZero())
		Expect(len(met)).To(BeZero())
	})

	It("should default unknown condition types to true with a visible note", func() {
		r := automation.EvaluateCondition(domain.Condition{Type: "moon_phase", Operator: domain.OpEquals, Value: "full"}, ec, now)
		Expect(r.Result).To(BeTrue())
		Expect(r.Details).To(Equal("unknown condition type 'moon_phase', defaulted to true"))
	})

	It("should fail batch size conditions without a batch", func() {
		r := automation.EvaluateCondition(domain.Condition{Type: domain.ConditionBatchSize, Operator: domain.OpEquals, Value: 0},
			automation.ExecutionContext{}, now)
		Expect(r.Result).To(BeFalse())
		Expect(r.Details).To(Equal("no batch in execution context"))
	})

	It("should report operator errors in the details", func() {
		r := automation.EvaluateCondition(domain.Condition{Type: domain.ConditionTimeOfDay, Operator: domain.OpBetween, Value: "morning"}, ec, now)
		Expect(r.Result).To(BeFalse())
		Expect(r.Details).To(Equal(`between expects a [low, high] pair, got "morning"`))
	})
})
