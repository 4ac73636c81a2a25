package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/streams", Handler: m.handleListStreams},
		{Method: "POST", Path: "/streams", Handler: m.handleCreateStream},
		{Method: "GET", Path: "/streams/{id}", Handler: m.handleGetStream},
		{Method: "PUT", Path: "/streams/{id}", Handler: m.handleUpdateStream},
		{Method: "DELETE", Path: "/streams/{id}", Handler: m.handleDeleteStream},
		{Method: "POST", Path: "/streams/{id}/enable", Handler: m.handleEnableStream},
		{Method: "POST", Path: "/streams/{id}/disable", Handler: m.handleDisableStream},
		{Method: "POST", Path: "/streams/{id}/samples", Handler: m.handleIngest},
	}
}

// handleListStreams returns all registered streams.
//
//	@Summary		List streams
//	@Description	Returns all registered streams, oldest first.
//	@Tags			source
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200 {array} stream.StreamInfo
//	@Failure		500 {object} map[string]any
//	@Router			/source/streams [get]
func (m *Module) handleListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := m.store.ListStreams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list streams")
		return
	}
	if streams == nil {
		streams = []stream.StreamInfo{}
	}
	writeJSON(w, http.StatusOK, streams)
}

// createStreamRequest registers a new stream. Kind defaults to synthetic;
// params is the kind-specific JSON blob.
type createStreamRequest struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Params  json.RawMessage `json:"params,omitempty"`
	Enabled *bool           `json:"enabled,omitempty"`
}

// handleCreateStream registers a new stream.
//
//	@Summary		Create stream
//	@Description	Registers a new sample stream. Kind is synthetic, probe or push.
//	@Tags			source
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body createStreamRequest true "Stream definition"
//	@Success		201 {object} stream.StreamInfo
//	@Failure		400 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/source/streams [post]
func (m *Module) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = KindSynthetic
	}
	params := string(req.Params)
	if err := validateStreamParams(kind, params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	info := &stream.StreamInfo{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Kind:      kind,
		Params:    params,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.InsertStream(r.Context(), info); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create stream")
		return
	}

	m.logger.Info("stream registered",
		zap.String("stream_id", info.ID),
		zap.String("name", info.Name),
		zap.String("kind", info.Kind),
	)
	writeJSON(w, http.StatusCreated, info)
}

// handleGetStream returns a single stream.
//
//	@Summary		Get stream
//	@Description	Returns a stream registration by ID.
//	@Tags			source
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Stream ID"
//	@Success		200 {object} stream.StreamInfo
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/source/streams/{id} [get]
func (m *Module) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	info, err := m.store.GetStream(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stream")
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// updateStreamRequest is a partial update; omitted fields are unchanged.
type updateStreamRequest struct {
	Name   *string          `json:"name,omitempty"`
	Params *json.RawMessage `json:"params,omitempty"`
}

// handleUpdateStream updates a stream's name or params. A params change
// rebuilds the stream's generator; the step counter carries on.
//
//	@Summary		Update stream
//	@Description	Updates a stream's name or params. Omitted fields are unchanged.
//	@Tags			source
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Stream ID"
//	@Param			request body updateStreamRequest true "Fields to update"
//	@Success		200 {object} stream.StreamInfo
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/source/streams/{id} [put]
func (m *Module) handleUpdateStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	var req updateStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	info, err := m.store.GetStream(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stream")
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			writeError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		info.Name = *req.Name
	}
	if req.Params != nil {
		params := string(*req.Params)
		if err := validateStreamParams(info.Kind, params); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		info.Params = params
	}
	info.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdateStream(r.Context(), info); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update stream")
		return
	}
	m.resetGenerator(id)
	writeJSON(w, http.StatusOK, info)
}

// handleDeleteStream removes a stream and announces the removal so
// downstream state is discarded.
//
//	@Summary		Delete stream
//	@Description	Removes a stream registration and discards its runtime state.
//	@Tags			source
//	@Security		BearerAuth
//	@Param			id path string true "Stream ID"
//	@Success		204
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/source/streams/{id} [delete]
func (m *Module) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	info, err := m.store.GetStream(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stream")
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}

	if _, err := m.store.DeleteStream(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete stream")
		return
	}
	m.removeEmitter(id)

	if m.bus != nil {
		// Synchronous: downstream state is gone before the response returns.
		if err := m.bus.Publish(r.Context(), plugin.Event{
			Topic:     TopicStreamRemoved,
			Source:    "source",
			Timestamp: time.Now().UTC(),
			Payload:   *info,
		}); err != nil {
			m.logger.Warn("failed to publish stream removal",
				zap.String("stream_id", id),
				zap.Error(err),
			)
		}
	}

	m.logger.Info("stream removed", zap.String("stream_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// handleEnableStream resumes scheduling for a stream.
//
//	@Summary		Enable stream
//	@Description	Resumes sample emission for a stream.
//	@Tags			source
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Stream ID"
//	@Success		200 {object} stream.StreamInfo
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/source/streams/{id}/enable [post]
func (m *Module) handleEnableStream(w http.ResponseWriter, r *http.Request) {
	m.setEnabled(w, r, true)
}

// handleDisableStream pauses scheduling for a stream. Runtime state is kept,
// so re-enabling continues the series where it stopped.
//
//	@Summary		Disable stream
//	@Description	Pauses sample emission for a stream without discarding state.
//	@Tags			source
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Stream ID"
//	@Success		200 {object} stream.StreamInfo
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/source/streams/{id}/disable [post]
func (m *Module) handleDisableStream(w http.ResponseWriter, r *http.Request) {
	m.setEnabled(w, r, false)
}

func (m *Module) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	ok, err := m.store.SetEnabled(r.Context(), id, enabled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update stream")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	info, err := m.store.GetStream(r.Context(), id)
	if err != nil || info == nil {
		writeError(w, http.StatusInternalServerError, "failed to load stream")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ingestRequest carries pushed samples, applied in order.
type ingestRequest struct {
	Values []float64 `json:"values"`
}

type ingestResponse struct {
	StreamID string `json:"stream_id"`
	Accepted int    `json:"accepted"`
}

// maxIngestBatch bounds the work a single request can demand.
const maxIngestBatch = 10000

// handleIngest accepts pushed samples for a push stream and emits them
// through the normal pipeline.
//
//	@Summary		Push samples
//	@Description	Appends a batch of values to a push stream, in order.
//	@Tags			source
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Stream ID"
//	@Param			request body ingestRequest true "Values to append"
//	@Success		202 {object} ingestResponse
//	@Failure		400 {object} map[string]any
//	@Failure		404 {object} map[string]any
//	@Failure		409 {object} map[string]any
//	@Router			/source/streams/{id}/samples [post]
func (m *Module) handleIngest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	info, err := m.store.GetStream(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stream")
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	if info.Kind != KindPush {
		writeError(w, http.StatusBadRequest, "stream does not accept pushed samples")
		return
	}
	if !info.Enabled {
		writeError(w, http.StatusConflict, "stream is disabled")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values is required")
		return
	}
	if len(req.Values) > maxIngestBatch {
		writeError(w, http.StatusBadRequest, "too many values in one batch")
		return
	}
	// Reject the whole batch before emitting anything: sources only ever
	// produce finite values, and downstream consumers rely on that.
	for i, v := range req.Values {
		if !isFinite(v) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("values[%d] is not a finite number", i))
			return
		}
	}

	for _, v := range req.Values {
		m.publishSample(r.Context(), *info, v)
	}
	writeJSON(w, http.StatusAccepted, ingestResponse{
		StreamID: info.ID,
		Accepted: len(req.Values),
	})
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	slug := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "-"))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   "https://driftwatch.io/problems/" + slug,
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
