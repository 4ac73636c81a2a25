package detect

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/driftwatch/driftwatch/internal/detect/anomaly"
	"github.com/driftwatch/driftwatch/pkg/plugin"
	"github.com/driftwatch/driftwatch/pkg/stream"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/anomalies", Handler: m.handleAnomalies},
		{Method: "GET", Path: "/anomalies/{stream_id}", Handler: m.handleAnomaliesByStream},
		{Method: "POST", Path: "/anomalies/{id}/resolve", Handler: m.handleAnomalyResolve},
		{Method: "DELETE", Path: "/anomalies/{id}", Handler: m.handleAnomalyDelete},
		{Method: "GET", Path: "/baselines/{stream_id}", Handler: m.handleBaselines},
		{Method: "GET", Path: "/alerts", Handler: m.handleAlerts},
		{Method: "POST", Path: "/alerts/{id}/ack", Handler: m.handleAlertAck},
		{Method: "POST", Path: "/classify", Handler: m.handleClassify},
	}
}

// handleAnomalies returns all detected anomalies.
//
//	@Summary		Recent anomalies
//	@Description	Returns detected anomalies across all streams, newest first.
//	@Tags			detect
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit query int false "Maximum results" default(50)
//	@Success		200 {array} stream.Anomaly
//	@Failure		500 {object} map[string]any
//	@Router			/detect/anomalies [get]
func (m *Module) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	anomalies, err := m.db.ListAnomalies(r.Context(), "", pageSize(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "anomaly listing failed")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(anomalies))
}

// handleAnomaliesByStream returns anomalies for a specific stream.
//
//	@Summary		Stream anomalies
//	@Description	Returns anomalies for a specific stream, newest first.
//	@Tags			detect
//	@Produce		json
//	@Security		BearerAuth
//	@Param			stream_id path string true "Stream ID"
//	@Param			limit query int false "Maximum results" default(50)
//	@Success		200 {array} stream.Anomaly
//	@Failure		500 {object} map[string]any
//	@Router			/detect/anomalies/{stream_id} [get]
func (m *Module) handleAnomaliesByStream(w http.ResponseWriter, r *http.Request) {
	streamID, ok := pathID(w, r, "stream_id")
	if !ok {
		return
	}
	anomalies, err := m.db.ListAnomalies(r.Context(), streamID, pageSize(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "anomaly listing failed")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(anomalies))
}

// handleAnomalyResolve marks an anomaly as resolved.
//
//	@Summary		Resolve anomaly
//	@Description	Marks an anomaly record as resolved.
//	@Tags			detect
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Anomaly ID"
//	@Success		200 {object} stream.Anomaly
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/detect/anomalies/{id}/resolve [post]
func (m *Module) handleAnomalyResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ok, err := m.db.ResolveAnomaly(r.Context(), id, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "anomaly not found or already resolved")
		return
	}
	a, err := m.db.GetAnomaly(r.Context(), id)
	if err != nil || a == nil {
		writeError(w, http.StatusInternalServerError, "could not reload anomaly")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleAnomalyDelete removes an anomaly record.
//
//	@Summary		Delete anomaly
//	@Description	Deletes an anomaly record permanently.
//	@Tags			detect
//	@Security		BearerAuth
//	@Param			id path string true "Anomaly ID"
//	@Success		204
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/detect/anomalies/{id} [delete]
func (m *Module) handleAnomalyDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ok, err := m.db.DeleteAnomaly(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "anomaly not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBaselines returns the stream's current running estimates. When the
// stream is live its in-memory state is snapshotted directly; otherwise the
// last persisted snapshot is returned.
//
//	@Summary		Stream baselines
//	@Description	Returns the current baseline estimates for a stream.
//	@Tags			detect
//	@Produce		json
//	@Security		BearerAuth
//	@Param			stream_id path string true "Stream ID"
//	@Success		200 {array} stream.Baseline
//	@Failure		500 {object} map[string]any
//	@Router			/detect/baselines/{stream_id} [get]
func (m *Module) handleBaselines(w http.ResponseWriter, r *http.Request) {
	streamID, ok := pathID(w, r, "stream_id")
	if !ok {
		return
	}

	if st, ok := m.states.get(streamID); ok {
		writeJSON(w, http.StatusOK, liveBaselines(streamID, st))
		return
	}

	baselines, err := m.db.GetBaselines(r.Context(), streamID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "baseline lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(baselines))
}

// liveBaselines snapshots the running estimates of an active stream.
func liveBaselines(streamID string, st *streamState) []stream.Baseline {
	now := time.Now().UTC()
	st.mu.Lock()
	defer st.mu.Unlock()

	baselines := []stream.Baseline{{
		StreamID:  streamID,
		Algorithm: "ewma",
		Mean:      st.Detector.Baseline(),
		StdDev:    st.Detector.Spread(),
		Samples:   st.Detector.Samples(),
		UpdatedAt: now,
	}}
	if st.Seasonal != nil && st.Seasonal.Ready() {
		baselines = append(baselines, stream.Baseline{
			StreamID:  streamID,
			Algorithm: "holt_winters",
			Mean:      st.Seasonal.Level(),
			StdDev:    st.Seasonal.ResidualStdDev(),
			Samples:   uint64(st.Seasonal.Samples()),
			UpdatedAt: now,
		})
	}
	return baselines
}

// handleAlerts returns alerts, optionally filtered by state.
//
//	@Summary		Recent alerts
//	@Description	Returns alerts, newest first. Filter with ?state=open or ?state=resolved.
//	@Tags			detect
//	@Produce		json
//	@Security		BearerAuth
//	@Param			state query string false "Alert state filter" Enums(open, resolved)
//	@Param			limit query int false "Maximum results" default(50)
//	@Success		200 {array} stream.Alert
//	@Failure		400 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/detect/alerts [get]
func (m *Module) handleAlerts(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	switch state {
	case "", "open", "resolved":
	default:
		writeError(w, http.StatusBadRequest, "state must be open or resolved")
		return
	}
	alerts, err := m.db.ListAlerts(r.Context(), state, pageSize(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "alert listing failed")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(alerts))
}

// handleAlertAck records an acknowledgement on an alert.
//
//	@Summary		Acknowledge alert
//	@Description	Marks an alert as acknowledged by an operator.
//	@Tags			detect
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id path string true "Alert ID"
//	@Success		200 {object} stream.Alert
//	@Failure		404 {object} map[string]any
//	@Failure		500 {object} map[string]any
//	@Router			/detect/alerts/{id}/ack [post]
func (m *Module) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ok, err := m.db.AckAlert(r.Context(), id, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ack failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "alert not found or already acked")
		return
	}
	alert, err := m.db.GetAlert(r.Context(), id)
	if err != nil || alert == nil {
		writeError(w, http.StatusInternalServerError, "could not reload alert")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// classifyRequest is a one-shot batch of values to classify without touching
// any live stream state.
type classifyRequest struct {
	Values []float64       `json:"values"`
	Config *anomaly.Config `json:"config,omitempty"`
}

type classifyResponse struct {
	Results   []stream.Classification `json:"results"`
	Anomalies int                     `json:"anomalies"`
}

// maxClassifyBatch bounds the work a single request can demand.
const maxClassifyBatch = 10000

// handleClassify runs a throwaway detector over a batch of values.
//
//	@Summary		Classify a batch
//	@Description	Feeds a value series through a fresh detector and returns per-sample verdicts. Stream state is untouched.
//	@Tags			detect
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request body classifyRequest true "Values and optional detector parameters"
//	@Success		200 {object} classifyResponse
//	@Failure		400 {object} map[string]any
//	@Router			/detect/classify [post]
func (m *Module) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Values) == 0 {
		writeError(w, http.StatusBadRequest, "values is required")
		return
	}
	if len(req.Values) > maxClassifyBatch {
		writeError(w, http.StatusBadRequest, "too many values in one batch")
		return
	}

	cfg := m.cfg.Detector
	if req.Config != nil {
		cfg = *req.Config
	}
	det, err := anomaly.New(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := classifyResponse{Results: make([]stream.Classification, 0, len(req.Values))}
	for i, v := range req.Values {
		c, err := det.Process(v)
		if err != nil {
			if errors.Is(err, anomaly.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, "values["+strconv.Itoa(i)+"] is not a finite number")
				return
			}
			writeError(w, http.StatusInternalServerError, "classification failed")
			return
		}
		if c.IsAnomaly {
			resp.Anomalies++
		}
		resp.Results = append(resp.Results, c)
	}
	writeJSON(w, http.StatusOK, resp)
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

// pathID pulls a path parameter and answers 400 when it is empty.
func pathID(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := r.PathValue(key)
	if v == "" {
		writeError(w, http.StatusBadRequest, key+" is required")
		return "", false
	}
	return v, true
}

// pageSize reads the limit query parameter, defaulting to 50 and capping
// at 1000.
func pageSize(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return 50
}

// orEmpty turns a nil slice into an empty one so listings encode as [].
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
