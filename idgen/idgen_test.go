package idgen_test

import (
	"shopfloor/idgen"
	"testing"

	. "github.com/onsi/gomega"
)

func TestNextID(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should generate increasing ids", func(t *testing.T) {
		worker := idgen.NewWorker()
		Expect(worker).ToNot(BeNil())

		id1 := idgen.NextID(worker)
		id2 := idgen.NextID(worker)
		Expect(id1).ToNot(BeZero())
		Expect(uint64(id2) > uint64(id1)).To(BeTrue())
	})

	t.Run("should honor MACHINE_ID", func(t *testing.T) {
		t.Setenv("MACHINE_ID", "42")
		Expect(idgen.NewWorker()).ToNot(BeNil())

		t.Setenv("MACHINE_ID", "not-a-number")
		Expect(idgen.NewWorker()).To(BeNil())
	})
}
