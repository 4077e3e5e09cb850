package splitcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dividircuenta/split-check/internal/extraction"
)

// ErrServiceBusy means both extraction providers were rate limited:
// the upload can be retried later, the image itself is fine.
var ErrServiceBusy = errors.New("extraction service busy")

// ErrNoItems means extraction completed but produced no line items.
var ErrNoItems = errors.New("no items parsed from receipt")

// Parser is what the service needs from the extraction pipeline.
type Parser interface {
	Extract(ctx context.Context, image []byte, mimeType string) *extraction.Result
}

// IDGenerator generates unique ids for sessions.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service ties the extraction pipeline to stored check sessions and
// runs engine operations against their persisted state.
type Service struct {
	db           DB
	parser       Parser
	maxImageSize int
	maxDimension int
	idGenerator  IDGenerator
	timeSource   TimeSource
}

// NewService creates a Service with uuid session ids and wall-clock
// time.
func NewService(db DB, parser Parser, maxImageSize, maxDimension int) *Service {
	return NewServiceWithDeps(db, parser, maxImageSize, maxDimension, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for
// testing.
func NewServiceWithDeps(db DB, parser Parser, maxImageSize, maxDimension int, idGen IDGenerator, timeSrc TimeSource) *Service {
	if maxImageSize <= 0 {
		maxImageSize = extraction.DefaultMaxImageSize
	}
	if maxDimension <= 0 {
		maxDimension = extraction.DefaultMaxDimension
	}
	return &Service{
		db:           db,
		parser:       parser,
		maxImageSize: maxImageSize,
		maxDimension: maxDimension,
		idGenerator:  idGen,
		timeSource:   timeSrc,
	}
}

// sampleItems seeds demo sessions with a known receipt.
var sampleItems = []extraction.Item{
	{Name: "Pumpkin Hot Cakes", Quantity: 1, Price: 159.00},
	{Name: "Latte (2)", Quantity: 1, Price: 130.00},
	{Name: "Leche Deslactosada", Quantity: 1, Price: 10.00, IsModifier: true},
	{Name: "Leche Coco", Quantity: 1, Price: 10.00, IsModifier: true},
	{Name: "Esencia Vainilla (2.0x)", Quantity: 1, Price: 20.00, IsModifier: true},
	{Name: "Machaca", Quantity: 1, Price: 169.00},
	{Name: "Bebida 39.90", Quantity: 1, Price: 39.90},
	{Name: "Leche Coco", Quantity: 1, Price: 10.00, IsModifier: true},
	{Name: "Esencia Vainilla", Quantity: 1, Price: 10.00, IsModifier: true},
}

// CreateCheck normalizes an uploaded receipt image, runs it through
// the extraction pipeline and stores the resulting session. Unreadable
// images surface a DecodeError; a rate-limited pipeline yields
// ErrServiceBusy and a cleanly empty parse yields ErrNoItems, so the
// caller can tell "service busy, retry later" from "could not read
// receipt".
func (s *Service) CreateCheck(ctx context.Context, filename string, data []byte, contentType string) (*Session, error) {
	data, mimeType, err := extraction.Prepare(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	data, compressed, err := extraction.Normalize(data, s.maxImageSize, s.maxDimension)
	if err != nil {
		return nil, fmt.Errorf("normalizing image: %w", err)
	}
	if compressed {
		mimeType = "image/jpeg"
		slog.Info("Compressed oversized receipt image", "filename", filename, "size", len(data))
	}

	result := s.parser.Extract(ctx, data, mimeType)
	if result.RateLimited {
		return nil, ErrServiceBusy
	}
	if len(result.Items) == 0 {
		return nil, ErrNoItems
	}

	now := s.timeSource.Now()
	session := &Session{
		ID:             s.idGenerator.Generate(),
		Items:          result.Items,
		ReceiptTotal:   result.ReceiptTotal,
		RestaurantName: result.RestaurantName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.SaveSession(session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	slog.Info("Created check session",
		"id", session.ID,
		"items", len(session.Items),
		"restaurant", session.RestaurantName,
	)
	return session, nil
}

// CreateDemoCheck stores a session seeded with the sample receipt.
func (s *Service) CreateDemoCheck() (*Session, error) {
	now := s.timeSource.Now()
	session := &Session{
		ID:        s.idGenerator.Generate(),
		Items:     sampleItems,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.SaveSession(session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return session, nil
}

// loadEngine rebuilds the engine for a session from its items and any
// persisted state.
func (s *Service) loadEngine(id string) (*Engine, *Session, error) {
	session, err := s.db.GetSession(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting session: %w", err)
	}

	engine := NewEngine(session.Items)
	state, err := s.db.GetState(id)
	if err != nil {
		// A corrupt state is dropped rather than blocking the check.
		slog.Warn("Failed to load split state", "id", id, "error", err)
	}
	engine.Restore(state)
	return engine, session, nil
}

// saveState persists the engine snapshot. Persistence is best-effort:
// a write failure is logged and the operation continues.
func (s *Service) saveState(id string, engine *Engine) {
	if err := s.db.SaveState(id, engine.Snapshot()); err != nil {
		slog.Warn("Failed to save split state", "id", id, "error", err)
	}
}

// GetCheck loads a session with its restored engine.
func (s *Service) GetCheck(id string) (*Engine, *Session, error) {
	return s.loadEngine(id)
}

// SaveState replaces the persisted split state wholesale, as sent by a
// client that ran the engine locally.
func (s *Service) SaveState(id string, state *SplitState) error {
	if _, err := s.db.GetSession(id); err != nil {
		return fmt.Errorf("getting session: %w", err)
	}
	if err := s.db.SaveState(id, state); err != nil {
		slog.Warn("Failed to save split state", "id", id, "error", err)
	}
	return nil
}

// Apply runs an engine operation against a session's state and
// persists the result.
func (s *Service) Apply(id string, op func(*Engine)) (*Engine, *Session, error) {
	engine, session, err := s.loadEngine(id)
	if err != nil {
		return nil, nil, err
	}
	op(engine)
	s.saveState(id, engine)
	return engine, session, nil
}

// Summary renders the shareable text for a session. A nil tip uses the
// tip percentage stored in the session's state.
func (s *Service) Summary(id string, tip *float64, detailed bool) (string, error) {
	engine, _, err := s.loadEngine(id)
	if err != nil {
		return "", err
	}
	tipPercentage := engine.TipPercentage()
	if tip != nil {
		tipPercentage = *tip
	}
	return FormatSummary(engine, tipPercentage, detailed), nil
}
