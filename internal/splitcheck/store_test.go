package splitcheck_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dividircuenta/split-check/internal/splitcheck"
)

var _ = Describe("BoltDB", func() {
	var (
		db     *splitcheck.BoltDB
		dbPath string
	)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "split-check-test")
		Expect(err).NotTo(HaveOccurred())
		dbPath = filepath.Join(dir, "test.db")

		db, err = splitcheck.NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		db.Close()
		os.RemoveAll(filepath.Dir(dbPath))
	})

	Describe("sessions", func() {
		It("saves and retrieves a session", func() {
			total := 348.90
			session := &splitcheck.Session{
				ID:             "abc-123",
				Items:          breakfastItems(),
				ReceiptTotal:   &total,
				RestaurantName: "Wild Rooster",
				CreatedAt:      time.Now().UTC(),
				UpdatedAt:      time.Now().UTC(),
			}
			Expect(db.SaveSession(session)).To(Succeed())

			got, err := db.GetSession("abc-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Items).To(HaveLen(4))
			Expect(got.RestaurantName).To(Equal("Wild Rooster"))
			Expect(*got.ReceiptTotal).To(Equal(348.90))
		})

		It("errors on a missing session", func() {
			_, err := db.GetSession("nope")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("session not found"))
		})

		It("deletes a session and its state", func() {
			session := &splitcheck.Session{ID: "abc-123", Items: breakfastItems()}
			Expect(db.SaveSession(session)).To(Succeed())

			engine := splitcheck.NewEngine(session.Items)
			Expect(db.SaveState("abc-123", engine.Snapshot())).To(Succeed())

			Expect(db.DeleteSession("abc-123")).To(Succeed())

			_, err := db.GetSession("abc-123")
			Expect(err).To(HaveOccurred())

			state, err := db.GetState("abc-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})
	})

	Describe("split states", func() {
		It("saves and retrieves a state", func() {
			engine := splitcheck.NewEngine(breakfastItems())
			engine.AssignItem("item-0", 2)
			engine.DivideItem("item-3", 2)

			Expect(db.SaveState("abc-123", engine.Snapshot())).To(Succeed())

			state, err := db.GetState("abc-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Assignments).To(HaveKeyWithValue("item-0", 2))
			Expect(state.DividedItems).To(HaveLen(1))
			Expect(state.DividedItems[0].Parts).To(HaveLen(2))
		})

		It("returns nil for a session without saved state", func() {
			state, err := db.GetState("fresh")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("overwrites a previous state", func() {
			engine := splitcheck.NewEngine(breakfastItems())
			Expect(db.SaveState("abc-123", engine.Snapshot())).To(Succeed())

			engine.AssignItem("item-0", 1)
			Expect(db.SaveState("abc-123", engine.Snapshot())).To(Succeed())

			state, err := db.GetState("abc-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Assignments).To(HaveKeyWithValue("item-0", 1))
		})
	})
})
