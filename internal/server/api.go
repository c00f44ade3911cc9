// ABOUTME: JSON HTTP handlers for participants, settings, history, and spins
// ABOUTME: Validates request bodies at the boundary and delegates to the app shell

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/2389/spinwheel/internal/history"
	"github.com/2389/spinwheel/internal/participants"
	"github.com/2389/spinwheel/internal/selector"
	"github.com/2389/spinwheel/internal/settings"
)

// AddParticipantRequest is the JSON request body for POST /api/participants.
type AddParticipantRequest struct {
	Name string `json:"name"`
}

// AddParticipantsRequest is the JSON request body for POST /api/participants/bulk.
type AddParticipantsRequest struct {
	Names []string `json:"names"`
}

// AddParticipantsResponse is the JSON response for POST /api/participants/bulk.
type AddParticipantsResponse struct {
	Added        []participants.Participant `json:"added"`
	Participants []participants.Participant `json:"participants"`
}

// SelectionTypeRequest is the JSON request body for PUT /api/settings/selection-type.
type SelectionTypeRequest struct {
	SelectionType string `json:"selectionType"`
}

// AnimationDurationRequest is the JSON request body for PUT /api/settings/animation-duration.
type AnimationDurationRequest struct {
	AnimationDuration int `json:"animationDuration"`
}

// SettingsResponse is the JSON response for settings endpoints.
type SettingsResponse struct {
	settings.AppSettings
	Theme string `json:"theme"`
}

// writeJSON writes v as a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody decodes a size-limited JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// handleListParticipants handles GET /api/participants.
func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Participants().List())
}

// handleAddParticipant handles POST /api/participants.
func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, ok := s.app.Participants().Add(req.Name)
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

// handleAddParticipants handles POST /api/participants/bulk.
// Blank names are skipped; a request with only blank names adds nothing.
func (s *Server) handleAddParticipants(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	added := s.app.Participants().AddMany(req.Names)
	status := http.StatusCreated
	if len(added) == 0 {
		added = []participants.Participant{}
		status = http.StatusOK
	}
	s.writeJSON(w, status, AddParticipantsResponse{
		Added:        added,
		Participants: s.app.Participants().List(),
	})
}

// handleReplaceParticipants handles PUT /api/participants.
func (s *Server) handleReplaceParticipants(w http.ResponseWriter, r *http.Request) {
	var list []participants.Participant
	if err := decodeBody(w, r, &list); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.app.Participants().ReplaceAll(list)
	s.writeJSON(w, http.StatusOK, s.app.Participants().List())
}

// handleClearParticipants handles DELETE /api/participants.
func (s *Server) handleClearParticipants(w http.ResponseWriter, r *http.Request) {
	s.app.Participants().Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveParticipant handles DELETE /api/participants/{id}.
func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	if !s.app.Participants().Remove(r.PathValue("id")) {
		s.sendJSONError(w, http.StatusNotFound, "participant not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) settingsResponse() SettingsResponse {
	return SettingsResponse{
		AppSettings: s.app.Settings().Settings(),
		Theme:       s.app.Theme().ClassName(),
	}
}

// handleGetSettings handles GET /api/settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settingsResponse())
}

// handleSetSelectionType handles PUT /api/settings/selection-type.
func (s *Server) handleSetSelectionType(w http.ResponseWriter, r *http.Request) {
	var req SelectionTypeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := settings.ParseSelectionType(req.SelectionType)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "selectionType must be wheel or dartboard")
		return
	}

	s.app.Settings().ChangeSelectionType(r.Context(), t)
	s.writeJSON(w, http.StatusOK, s.settingsResponse())
}

// handleToggleExclude handles POST /api/settings/exclude-previous-winners/toggle.
func (s *Server) handleToggleExclude(w http.ResponseWriter, r *http.Request) {
	s.app.Settings().ToggleExcludePreviousWinners(r.Context())
	s.writeJSON(w, http.StatusOK, s.settingsResponse())
}

// handleSetAnimationDuration handles PUT /api/settings/animation-duration.
func (s *Server) handleSetAnimationDuration(w http.ResponseWriter, r *http.Request) {
	var req AnimationDurationRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AnimationDuration <= 0 {
		s.sendJSONError(w, http.StatusBadRequest, "animationDuration must be a positive number of milliseconds")
		return
	}

	s.app.Settings().SetAnimationDuration(r.Context(), req.AnimationDuration)
	s.writeJSON(w, http.StatusOK, s.settingsResponse())
}

// handleToggleDarkMode handles POST /api/settings/dark-mode/toggle.
func (s *Server) handleToggleDarkMode(w http.ResponseWriter, r *http.Request) {
	s.app.Settings().ToggleDarkMode(r.Context())
	s.writeJSON(w, http.StatusOK, s.settingsResponse())
}

// handleListHistory handles GET /api/history.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.History().History())
}

// handleClearHistory handles DELETE /api/history.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.app.History().ClearHistory(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveHistory handles DELETE /api/history/{id}.
func (s *Server) handleRemoveHistory(w http.ResponseWriter, r *http.Request) {
	if !s.app.History().RemoveFromHistory(r.Context(), r.PathValue("id")) {
		s.sendJSONError(w, http.StatusNotFound, "history entry not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePreviousWinners handles GET /api/history/winners.
func (s *Server) handlePreviousWinners(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.History().PreviousWinners())
}

// handleExportHistory handles GET /api/history/export?format=markdown|html.
func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.app.History().History()

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "markdown", "md":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(history.Markdown(entries)))
	case "html":
		out, err := history.HTML(entries)
		if err != nil {
			s.logger.Error("failed to render history", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(out))
	default:
		s.sendJSONError(w, http.StatusBadRequest, "format must be markdown or html")
	}
}

// handleSpin handles POST /api/spin.
func (s *Server) handleSpin(w http.ResponseWriter, r *http.Request) {
	entry, err := s.app.Spin(r.Context())
	if errors.Is(err, selector.ErrNoCandidates) {
		s.sendJSONError(w, http.StatusConflict, "no eligible participants")
		return
	}
	if err != nil {
		s.logger.Error("spin failed", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}
