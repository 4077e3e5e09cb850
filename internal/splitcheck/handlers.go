package splitcheck

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dividircuenta/split-check/internal/extraction"
)

// maxUploadSize bounds the multipart form; high-resolution phone
// photos can be large before normalization.
const maxUploadSize = int64(50 << 20) // 50MB

// setCORSHeaders sets CORS headers on a response.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set.
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set.
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// checkView is the wire shape for a check session plus its current
// allocation state. Totals is keyed by person id.
type checkView struct {
	ID                 string         `json:"id"`
	RestaurantName     string         `json:"restaurant_name,omitempty"`
	ReceiptTotal       *float64       `json:"receipt_total,omitempty"`
	Rows               []*Row         `json:"rows"`
	People             []*Person      `json:"people"`
	SelectedPersonID   int            `json:"selected_person_id"`
	TipPercentage      float64        `json:"tip_percentage"`
	Totals             map[int]Totals `json:"totals"`
	UnassignedSubtotal float64        `json:"unassigned_subtotal"`
}

func newCheckView(engine *Engine, session *Session) *checkView {
	totals, unassigned := engine.ComputeTotals(engine.TipPercentage())
	return &checkView{
		ID:                 session.ID,
		RestaurantName:     session.RestaurantName,
		ReceiptTotal:       session.ReceiptTotal,
		Rows:               engine.Rows(),
		People:             engine.People(),
		SelectedPersonID:   engine.SelectedPersonID(),
		TipPercentage:      engine.TipPercentage(),
		Totals:             totals,
		UnassignedSubtotal: unassigned,
	}
}

// contentTypeForUpload falls back to the file extension when the part
// header carries no content type.
func contentTypeForUpload(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleCreateCheck handles the receipt upload. The two failure modes
// the UI distinguishes get their own statuses: 429 when both providers
// are rate limited, 422 when extraction cleanly found nothing.
func (s *Server) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("receipt_image")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		jsonError(w, "File is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := contentTypeForUpload(header.Header.Get("Content-Type"), header.Filename)

	session, err := s.service.CreateCheck(r.Context(), header.Filename, data, contentType)
	if err != nil {
		var decodeErr *extraction.DecodeError
		switch {
		case errors.Is(err, ErrServiceBusy):
			jsonError(w, "Service is busy. Please wait about a minute and try again.", http.StatusTooManyRequests)
		case errors.Is(err, ErrNoItems):
			jsonError(w, "Could not parse receipt. Please try again with a clearer image.", http.StatusUnprocessableEntity)
		case errors.As(err, &decodeErr):
			jsonError(w, "Could not read the image file.", http.StatusBadRequest)
		default:
			slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
			jsonError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	engine := NewEngine(session.Items)
	writeJSON(w, http.StatusCreated, newCheckView(engine, session))
}

// handleCreateDemoCheck creates a session with the sample receipt.
func (s *Server) handleCreateDemoCheck(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.CreateDemoCheck()
	if err != nil {
		slog.Error("Error creating demo check", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, newCheckView(NewEngine(session.Items), session))
}

// handleGetCheck returns a session with its restored state.
func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	engine, session, err := s.service.GetCheck(r.PathValue("id"))
	if err != nil {
		corsError(w, "Check not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newCheckView(engine, session))
}

// handleSaveState replaces the persisted split state wholesale.
func (s *Server) handleSaveState(w http.ResponseWriter, r *http.Request) {
	var state SplitState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.service.SaveState(r.PathValue("id"), &state); err != nil {
		corsError(w, "Check not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apply runs an engine operation and responds with the updated view.
func (s *Server) apply(w http.ResponseWriter, id string, op func(*Engine)) {
	engine, session, err := s.service.Apply(id, op)
	if err != nil {
		corsError(w, "Check not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newCheckView(engine, session))
}

func (s *Server) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		e.AddPerson(strings.TrimSpace(req.Name))
	})
}

func (s *Server) handleRenamePerson(w http.ResponseWriter, r *http.Request) {
	personID, err := strconv.Atoi(r.PathValue("personId"))
	if err != nil {
		corsError(w, "Invalid person ID", http.StatusBadRequest)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		e.RenamePerson(personID, strings.TrimSpace(req.Name))
	})
}

func (s *Server) handleRemovePerson(w http.ResponseWriter, r *http.Request) {
	personID, err := strconv.Atoi(r.PathValue("personId"))
	if err != nil {
		corsError(w, "Invalid person ID", http.StatusBadRequest)
		return
	}
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		e.RemovePerson(personID)
	})
}

func (s *Server) handleSelectPerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID int `json:"person_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		e.SelectPerson(req.PersonID)
	})
}

func (s *Server) handleAssignRemainder(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		e.AssignRemainderToNewPerson()
	})
}

// handleAssign toggles a row or a whole group. A group id applies
// group toggle semantics; a row id toggles just that row, which is how
// modifier rows and divided parts are assigned individually.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RowID    string `json:"row_id"`
		GroupID  string `json:"group_id"`
		PersonID int    `json:"person_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		personID := req.PersonID
		if personID == 0 {
			personID = e.SelectedPersonID()
		}
		if req.GroupID != "" {
			e.AssignGroup(req.GroupID, personID)
		} else {
			e.AssignItem(req.RowID, personID)
		}
	})
}

func (s *Server) handleDivide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RowID string `json:"row_id"`
		Parts int    `json:"parts"`
		Equal bool   `json:"equal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		if req.Equal {
			e.DivideEqually(req.RowID)
		} else {
			e.DivideItem(req.RowID, req.Parts)
		}
	})
}

func (s *Server) handleUndivide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RowID string `json:"row_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		e.Undivide(req.RowID)
	})
}

func (s *Server) handleSetTip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TipPercentage float64 `json:"tip_percentage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.apply(w, r.PathValue("id"), func(e *Engine) {
		e.SetTipPercentage(clampTip(req.TipPercentage))
	})
}

// handleSummary renders the shareable text export.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var tip *float64
	if raw := r.URL.Query().Get("tip"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			corsError(w, "Invalid tip percentage", http.StatusBadRequest)
			return
		}
		tip = &parsed
	}
	detailed := r.URL.Query().Get("detailed") == "true"

	text, err := s.service.Summary(r.PathValue("id"), tip, detailed)
	if err != nil {
		corsError(w, "Check not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}
