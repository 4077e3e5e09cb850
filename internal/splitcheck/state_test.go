package splitcheck_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dividircuenta/split-check/internal/splitcheck"
)

var _ = Describe("SplitState", func() {
	var engine *splitcheck.Engine

	BeforeEach(func() {
		engine = splitcheck.NewEngine(breakfastItems())
	})

	Describe("Snapshot and Restore", func() {
		It("round-trips assignments, people and tip", func() {
			engine.AddPerson("Ana")
			engine.AssignItem("item-0", 1)
			engine.AssignItem("item-2", 3)
			engine.SetTipPercentage(15)
			engine.SelectPerson(3)

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(engine.Snapshot())

			Expect(restored.People()).To(HaveLen(3))
			Expect(restored.SelectedPersonID()).To(Equal(3))
			Expect(restored.TipPercentage()).To(Equal(15.0))
			Expect(restored.Rows()[0].AssignedTo).To(Equal(1))
			Expect(restored.Rows()[2].AssignedTo).To(Equal(3))
		})

		It("round-trips divided items with their part assignments", func() {
			engine.DivideItem("item-3", 2)
			engine.AssignItem("item-3-part-1", 1)
			engine.AssignItem("item-3-part-2", 2)

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(engine.Snapshot())

			rows := restored.Rows()
			Expect(rows).To(HaveLen(6))
			Expect(rows[3].Divided).To(BeTrue())
			Expect(rows[3].Price).To(BeZero())
			Expect(rows[3].OriginalPrice).To(Equal(39.90))
			Expect(rows[4].ID).To(Equal("item-3-part-1"))
			Expect(rows[4].AssignedTo).To(Equal(1))
			Expect(rows[5].AssignedTo).To(Equal(2))

			// A restored divided item can still be undone.
			Expect(restored.Undivide("item-3")).To(BeTrue())
			Expect(restored.Rows()[3].Price).To(Equal(39.90))
		})

		It("preserves totals across a round-trip", func() {
			engine.AssignGroup(engine.Rows()[0].Group, 1)
			engine.DivideEqually("item-2")

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(engine.Snapshot())

			want, wantUnassigned := engine.ComputeTotals(10)
			got, gotUnassigned := restored.ComputeTotals(10)
			Expect(got).To(Equal(want))
			Expect(gotUnassigned).To(Equal(wantUnassigned))
		})

		It("continues person ids from the saved counter", func() {
			engine.AddPerson("Ana")

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(engine.Snapshot())

			p := restored.AddPerson("")
			Expect(p.ID).To(Equal(4))
		})

		It("is a no-op on a nil state", func() {
			engine.Restore(nil)
			Expect(engine.People()).To(HaveLen(2))
			Expect(engine.SelectedPersonID()).To(Equal(1))
		})
	})

	Describe("Restore with partial or stale state", func() {
		It("falls selection back to the first person when the saved one is gone", func() {
			state := engine.Snapshot()
			state.SelectedPersonID = 42

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(state)
			Expect(restored.SelectedPersonID()).To(Equal(1))
		})

		It("drops assignments to people missing from the state", func() {
			state := engine.Snapshot()
			state.Assignments = map[string]int{"item-0": 42}

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(state)
			Expect(restored.Rows()[0].AssignedTo).To(Equal(0))
		})

		It("drops assignments to rows that no longer exist", func() {
			state := engine.Snapshot()
			state.Assignments = map[string]int{"item-9": 1}

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(state)
			_, unassigned := restored.ComputeTotals(0)
			Expect(unassigned).To(BeNumerically("~", 348.90, 0.001))
		})

		It("keeps the default tip when the state carries none", func() {
			state := engine.Snapshot()
			state.TipPercentage = nil

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(state)
			Expect(restored.TipPercentage()).To(Equal(10.0))
		})

		It("clamps an out-of-range saved tip", func() {
			tip := 300.0
			state := engine.Snapshot()
			state.TipPercentage = &tip

			restored := splitcheck.NewEngine(breakfastItems())
			restored.Restore(state)
			Expect(restored.TipPercentage()).To(Equal(100.0))
		})
	})

	Describe("JSON shape", func() {
		It("serializes with snake_case keys and ignores unknown fields", func() {
			engine.AssignItem("item-0", 2)
			engine.DivideItem("item-3", 2)

			data, err := json.Marshal(engine.Snapshot())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"selected_person_id"`))
			Expect(string(data)).To(ContainSubstring(`"next_person_id"`))
			Expect(string(data)).To(ContainSubstring(`"divided_items"`))
			Expect(string(data)).To(ContainSubstring(`"original_price":39.9`))

			var state splitcheck.SplitState
			raw := `{"people":[{"id":1,"name":"Yo","color_index":0}],"assignments":{"item-0":1},"future_field":true}`
			Expect(json.Unmarshal([]byte(raw), &state)).To(Succeed())
			Expect(state.Assignments).To(HaveKeyWithValue("item-0", 1))
		})
	})
})
