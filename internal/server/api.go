// ABOUTME: HTTP API handlers for receiving, listing and pruning pushes
// ABOUTME: Also serves the storage window setting, attributes and payload action results

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/2389/debugkit/internal/actions"
	"github.com/2389/debugkit/internal/retention"
	"github.com/2389/debugkit/internal/store"
)

// maxPushBodyBytes caps the size of a received push.
const maxPushBodyBytes = 1 << 20

// CreatePushRequest is the JSON request body for POST /api/pushes.
type CreatePushRequest struct {
	ID         string          `json:"id,omitempty"`
	Alert      *string         `json:"alert,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt *time.Time      `json:"received_at,omitempty"`
	Situation  string          `json:"situation,omitempty"`
}

// PushResponse is the JSON form of a stored push.
type PushResponse struct {
	ID         string          `json:"id"`
	Alert      *string         `json:"alert,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ActionResponse reports one payload action run for a received push.
type ActionResponse struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CreatePushResponse is the JSON response for POST /api/pushes.
type CreatePushResponse struct {
	Inserted bool             `json:"inserted"`
	ID       string           `json:"id"`
	Push     *PushResponse    `json:"push,omitempty"`
	Actions  []ActionResponse `json:"actions,omitempty"`
}

// ListPushesResponse is the JSON response for GET /api/pushes.
type ListPushesResponse struct {
	Pushes []PushResponse `json:"pushes"`
}

// PruneResponse is the JSON response for POST /api/prune.
type PruneResponse struct {
	Deleted     int64     `json:"deleted"`
	Cutoff      time.Time `json:"cutoff"`
	StorageDays int       `json:"storage_days"`
}

// StorageDaysBody is the JSON body for the storage window setting.
type StorageDaysBody struct {
	StorageDays int `json:"storage_days"`
}

// AttributeResponse is the JSON form of a stored attribute.
type AttributeResponse struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pushes", s.handleCreatePush)
	mux.HandleFunc("GET /api/pushes", s.handleListPushes)
	mux.HandleFunc("GET /api/pushes/stream", s.handleStream)
	mux.HandleFunc("GET /api/pushes/{id}", s.handleGetPush)
	mux.HandleFunc("GET /api/pushes/{id}/exists", s.handlePushExists)
	mux.HandleFunc("POST /api/prune", s.handlePrune)
	mux.HandleFunc("GET /api/settings/storage-days", s.handleGetStorageDays)
	mux.HandleFunc("PUT /api/settings/storage-days", s.handleSetStorageDays)
	mux.HandleFunc("GET /api/attributes/{scope}", s.handleListAttributes)
}

func toPushResponse(rec store.PushRecord) PushResponse {
	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return PushResponse{
		ID:         rec.ID,
		Alert:      rec.Alert,
		Payload:    payload,
		ReceivedAt: rec.ReceivedAt,
	}
}

// handleCreatePush handles POST /api/pushes.
func (s *Server) handleCreatePush(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPushBodyBytes)

	var req CreatePushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	situation, err := actions.ParseSituation(req.Situation)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	// The cache only knows about this process. A prune run elsewhere can
	// delete a cached ID, so a hit is confirmed against the store.
	if s.dedupe.Seen(req.ID) {
		if s.retention.Exists(r.Context(), req.ID) {
			s.logger.Debug("push redelivered", "push_id", req.ID)
			s.sendJSON(w, http.StatusOK, CreatePushResponse{Inserted: false, ID: req.ID})
			return
		}
		s.dedupe.Forget(req.ID)
	}

	rec := store.PushRecord{
		ID:         req.ID,
		Alert:      req.Alert,
		Payload:    req.Payload,
		ReceivedAt: s.now(),
	}
	if req.ReceivedAt != nil {
		rec.ReceivedAt = *req.ReceivedAt
	}
	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage(`{}`)
	}

	if !s.retention.Insert(r.Context(), rec) {
		if s.retention.Exists(r.Context(), rec.ID) {
			s.dedupe.Remember(rec.ID)
			s.sendJSON(w, http.StatusOK, CreatePushResponse{Inserted: false, ID: rec.ID})
			return
		}
		s.sendJSONError(w, http.StatusInternalServerError, "push not stored")
		return
	}
	s.dedupe.Remember(rec.ID)

	push := toPushResponse(rec)
	s.sendJSON(w, http.StatusCreated, CreatePushResponse{
		Inserted: true,
		ID:       rec.ID,
		Push:     &push,
		Actions:  s.runPayloadActions(r, rec, situation),
	})
}

// runPayloadActions runs the actions named by top-level payload keys.
// Payloads that are not JSON objects carry no actions.
func (s *Server) runPayloadActions(r *http.Request, rec store.PushRecord, situation actions.Situation) []ActionResponse {
	var payload map[string]any
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return nil
	}

	results := s.actions.RunPayload(r.Context(), payload, situation)
	if len(results) == 0 {
		return nil
	}

	out := make([]ActionResponse, 0, len(results))
	for _, res := range results {
		ar := ActionResponse{Name: res.Name, OK: res.Err == nil}
		if res.Err != nil {
			ar.Error = res.Err.Error()
		}
		out = append(out, ar)
	}
	return out
}

// handleListPushes handles GET /api/pushes.
func (s *Server) handleListPushes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs := s.retention.List(r.Context(), limit)
	resp := ListPushesResponse{Pushes: make([]PushResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Pushes = append(resp.Pushes, toPushResponse(rec))
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleGetPush handles GET /api/pushes/{id}.
func (s *Server) handleGetPush(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.retention.Get(r.Context(), r.PathValue("id"))
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "push not found")
		return
	}
	s.sendJSON(w, http.StatusOK, toPushResponse(rec))
}

// handlePushExists handles GET /api/pushes/{id}/exists.
func (s *Server) handlePushExists(w http.ResponseWriter, r *http.Request) {
	exists := s.retention.Exists(r.Context(), r.PathValue("id"))
	s.sendJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// handlePrune handles POST /api/prune.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	policy := s.retention.Policy(r.Context())
	deleted := s.retention.Prune(r.Context(), now)

	// Pruned IDs may be redelivered and must be stored again.
	if deleted > 0 {
		s.dedupe.Reset()
	}

	s.sendJSON(w, http.StatusOK, PruneResponse{
		Deleted:     deleted,
		Cutoff:      policy.Cutoff(now),
		StorageDays: policy.WindowDays,
	})
}

// handleGetStorageDays handles GET /api/settings/storage-days.
func (s *Server) handleGetStorageDays(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, StorageDaysBody{StorageDays: s.retention.StorageDays(r.Context())})
}

// handleSetStorageDays handles PUT /api/settings/storage-days.
// Values below the floor are accepted and the effective window is returned.
func (s *Server) handleSetStorageDays(w http.ResponseWriter, r *http.Request) {
	var body StorageDaysBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	effective, saved := s.retention.SetStorageDays(r.Context(), body.StorageDays)
	if !saved {
		s.sendJSONError(w, http.StatusInternalServerError, "storage days not saved")
		return
	}
	if body.StorageDays < retention.DefaultStorageDays {
		s.logger.Info("storage days below floor, using default",
			"requested", body.StorageDays,
			"effective", effective)
	}
	s.sendJSON(w, http.StatusOK, StorageDaysBody{StorageDays: effective})
}

// handleListAttributes handles GET /api/attributes/{scope}.
func (s *Server) handleListAttributes(w http.ResponseWriter, r *http.Request) {
	scope := store.AttributeScope(r.PathValue("scope"))
	if !scope.Valid() {
		s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown scope %q", scope))
		return
	}

	attrs, err := s.store.ListAttributes(r.Context(), scope)
	if err != nil {
		s.logger.Error("listing attributes", "scope", scope, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]AttributeResponse, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, AttributeResponse{Name: a.Name, Value: a.Value, UpdatedAt: a.UpdatedAt})
	}
	s.sendJSON(w, http.StatusOK, map[string]any{"scope": scope, "attributes": out})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
