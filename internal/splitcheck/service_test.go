package splitcheck_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dividircuenta/split-check/internal/extraction"
	"github.com/dividircuenta/split-check/internal/splitcheck"
)

type mockDB struct {
	sessions map[string]*splitcheck.Session
	states   map[string]*splitcheck.SplitState

	saveSessionErr error
	saveStateErr   error
	getStateErr    error
}

func newMockDB() *mockDB {
	return &mockDB{
		sessions: make(map[string]*splitcheck.Session),
		states:   make(map[string]*splitcheck.SplitState),
	}
}

func (m *mockDB) SaveSession(session *splitcheck.Session) error {
	if m.saveSessionErr != nil {
		return m.saveSessionErr
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *mockDB) GetSession(id string) (*splitcheck.Session, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return session, nil
}

func (m *mockDB) DeleteSession(id string) error {
	delete(m.sessions, id)
	delete(m.states, id)
	return nil
}

func (m *mockDB) SaveState(sessionID string, state *splitcheck.SplitState) error {
	if m.saveStateErr != nil {
		return m.saveStateErr
	}
	m.states[sessionID] = state
	return nil
}

func (m *mockDB) GetState(sessionID string) (*splitcheck.SplitState, error) {
	if m.getStateErr != nil {
		return nil, m.getStateErr
	}
	return m.states[sessionID], nil
}

func (m *mockDB) Close() error { return nil }

type mockParser struct {
	result *extraction.Result
	calls  int
}

func (m *mockParser) Extract(ctx context.Context, image []byte, mimeType string) *extraction.Result {
	m.calls++
	return m.result
}

type fixedIDGenerator struct{ id string }

func (g *fixedIDGenerator) Generate() string { return g.id }

type fixedTimeSource struct{ now time.Time }

func (t *fixedTimeSource) Now() time.Time { return t.now }

func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

var _ = Describe("Service", func() {
	var (
		db      *mockDB
		parser  *mockParser
		service *splitcheck.Service
		now     time.Time
	)

	BeforeEach(func() {
		db = newMockDB()
		parser = &mockParser{result: &extraction.Result{Items: breakfastItems()}}
		now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
		service = splitcheck.NewServiceWithDeps(db, parser, 0, 0,
			&fixedIDGenerator{id: "check-1"}, &fixedTimeSource{now: now})
	})

	Describe("CreateCheck", func() {
		It("stores a session from the extraction result", func() {
			total := 348.90
			parser.result.ReceiptTotal = &total
			parser.result.RestaurantName = "Wild Rooster"

			session, err := service.CreateCheck(context.Background(), "receipt.png", testPNG(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.ID).To(Equal("check-1"))
			Expect(session.Items).To(HaveLen(4))
			Expect(session.RestaurantName).To(Equal("Wild Rooster"))
			Expect(session.CreatedAt).To(Equal(now))
			Expect(db.sessions).To(HaveKey("check-1"))
			Expect(parser.calls).To(Equal(1))
		})

		It("returns ErrServiceBusy when extraction was rate limited", func() {
			parser.result = &extraction.Result{RateLimited: true}

			_, err := service.CreateCheck(context.Background(), "receipt.png", testPNG(), "image/png")
			Expect(err).To(MatchError(splitcheck.ErrServiceBusy))
			Expect(db.sessions).To(BeEmpty())
		})

		It("returns ErrNoItems on a clean but empty parse", func() {
			parser.result = &extraction.Result{}

			_, err := service.CreateCheck(context.Background(), "receipt.png", testPNG(), "image/png")
			Expect(err).To(MatchError(splitcheck.ErrNoItems))
		})

		It("surfaces a DecodeError for unreadable files without calling the parser", func() {
			_, err := service.CreateCheck(context.Background(), "receipt.pdf", []byte("not a pdf"), "application/pdf")

			var decodeErr *extraction.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(parser.calls).To(Equal(0))
		})

		It("propagates session save failures", func() {
			db.saveSessionErr = errors.New("disk full")
			_, err := service.CreateCheck(context.Background(), "receipt.png", testPNG(), "image/png")
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})
	})

	Describe("CreateDemoCheck", func() {
		It("stores a session with the sample receipt", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())
			Expect(session.Items).To(HaveLen(9))
			Expect(session.Items[0].Name).To(Equal("Pumpkin Hot Cakes"))
			Expect(db.sessions).To(HaveKey("check-1"))
		})
	})

	Describe("GetCheck", func() {
		It("restores the saved state into the engine", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())

			_, _, err = service.Apply(session.ID, func(e *splitcheck.Engine) {
				e.AssignItem("item-0", 2)
			})
			Expect(err).NotTo(HaveOccurred())

			engine, got, err := service.GetCheck(session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(session.ID))
			Expect(engine.Rows()[0].AssignedTo).To(Equal(2))
		})

		It("errors on an unknown id", func() {
			_, _, err := service.GetCheck("nope")
			Expect(err).To(HaveOccurred())
		})

		It("drops a corrupt state instead of failing", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())
			db.getStateErr = errors.New("unexpected end of JSON input")

			engine, _, err := service.GetCheck(session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Rows()[0].AssignedTo).To(Equal(0))
		})
	})

	Describe("Apply", func() {
		It("persists the engine state after the operation", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())

			_, _, err = service.Apply(session.ID, func(e *splitcheck.Engine) {
				e.AddPerson("Ana")
			})
			Expect(err).NotTo(HaveOccurred())

			state := db.states[session.ID]
			Expect(state).NotTo(BeNil())
			Expect(state.People).To(HaveLen(3))
		})

		It("still returns the engine when persistence fails", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())
			db.saveStateErr = errors.New("disk full")

			engine, _, err := service.Apply(session.ID, func(e *splitcheck.Engine) {
				e.AssignItem("item-0", 1)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Rows()[0].AssignedTo).To(Equal(1))
		})
	})

	Describe("SaveState", func() {
		It("replaces the stored state", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())

			engine := splitcheck.NewEngine(session.Items)
			engine.AssignItem("item-0", 2)
			Expect(service.SaveState(session.ID, engine.Snapshot())).To(Succeed())

			Expect(db.states[session.ID].Assignments).To(HaveKeyWithValue("item-0", 2))
		})

		It("rejects unknown sessions", func() {
			Expect(service.SaveState("nope", &splitcheck.SplitState{})).To(HaveOccurred())
		})
	})

	Describe("Summary", func() {
		It("uses the stored tip when none is given", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())

			text, err := service.Summary(session.ID, nil, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("Con 10% de propina"))
		})

		It("overrides the tip when given", func() {
			session, err := service.CreateDemoCheck()
			Expect(err).NotTo(HaveOccurred())

			tip := 15.0
			text, err := service.Summary(session.ID, &tip, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("Con 15% de propina"))
		})
	})
})
