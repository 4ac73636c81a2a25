package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/driftwatch/driftwatch/pkg/stream"
)

func TestAnomaliesEndpointEmpty(t *testing.T) {
	m, _ := testModule(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/anomalies", http.NoBody)
	w := httptest.NewRecorder()

	m.handleAnomalies(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got []stream.Anomaly
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty array, got %d items", len(got))
	}
}

func TestAnomaliesByStreamMissingID(t *testing.T) {
	m, _ := testModule(t, nil)

	// No SetPathValue -- simulates missing path parameter.
	req := httptest.NewRequest(http.MethodGet, "/anomalies/", http.NoBody)
	w := httptest.NewRecorder()

	m.handleAnomaliesByStream(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got["detail"] != "stream_id is required" {
		t.Errorf("detail = %q, want %q", got["detail"], "stream_id is required")
	}
}

func TestAnomalyResolveEndpoint(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	a := &stream.Anomaly{
		ID: "anom-001", StreamID: "stream-a", Index: 5,
		Severity: "warning", Kind: "spike",
		Value: 95, Expected: 50, ZScore: 3.4,
		DetectedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := m.db.InsertAnomaly(ctx, a); err != nil {
		t.Fatalf("InsertAnomaly: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/anomalies/anom-001/resolve", http.NoBody)
	req.SetPathValue("id", "anom-001")
	w := httptest.NewRecorder()

	m.handleAnomalyResolve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got stream.Anomaly
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ResolvedAt == nil {
		t.Error("ResolvedAt = nil, want non-nil after resolve")
	}
}

func TestAnomalyResolveNotFound(t *testing.T) {
	m, _ := testModule(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/anomalies/nope/resolve", http.NoBody)
	req.SetPathValue("id", "nope")
	w := httptest.NewRecorder()

	m.handleAnomalyResolve(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAnomalyDeleteEndpoint(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	a := &stream.Anomaly{
		ID: "anom-001", StreamID: "stream-a", Index: 2,
		Severity: "critical", Kind: "drop",
		Value: 1, Expected: 50, ZScore: 8.0,
		DetectedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := m.db.InsertAnomaly(ctx, a); err != nil {
		t.Fatalf("InsertAnomaly: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/anomalies/anom-001", http.NoBody)
	req.SetPathValue("id", "anom-001")
	w := httptest.NewRecorder()

	m.handleAnomalyDelete(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}

	// Deleting again reports not found.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/anomalies/anom-001", http.NoBody)
	req.SetPathValue("id", "anom-001")
	m.handleAnomalyDelete(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestBaselinesLiveState(t *testing.T) {
	m, _ := testModule(t, nil)

	emit(m, "stream-a", 1, 10)
	emit(m, "stream-a", 2, 10)

	req := httptest.NewRequest(http.MethodGet, "/baselines/stream-a", http.NoBody)
	req.SetPathValue("stream_id", "stream-a")
	w := httptest.NewRecorder()

	m.handleBaselines(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got []stream.Baseline
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 live baseline, got %d", len(got))
	}
	if got[0].Algorithm != "ewma" {
		t.Errorf("Algorithm = %q, want %q", got[0].Algorithm, "ewma")
	}
	if got[0].Mean != 10.0 {
		t.Errorf("Mean = %f, want 10.0", got[0].Mean)
	}
	if got[0].Samples != 2 {
		t.Errorf("Samples = %d, want 2", got[0].Samples)
	}
}

func TestBaselinesPersistedFallback(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	// Persisted snapshot but no live state (e.g. after restart).
	b := &stream.Baseline{
		StreamID:  "stream-a",
		Algorithm: "ewma",
		Mean:      42.0,
		StdDev:    2.5,
		Samples:   500,
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := m.db.UpsertBaseline(ctx, b); err != nil {
		t.Fatalf("UpsertBaseline: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/baselines/stream-a", http.NoBody)
	req.SetPathValue("stream_id", "stream-a")
	w := httptest.NewRecorder()

	m.handleBaselines(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got []stream.Baseline
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 persisted baseline, got %d", len(got))
	}
	if got[0].Mean != 42.0 {
		t.Errorf("Mean = %f, want 42.0", got[0].Mean)
	}
}

func TestAlertsBadStateFilter(t *testing.T) {
	m, _ := testModule(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/alerts?state=bogus", http.NoBody)
	w := httptest.NewRecorder()

	m.handleAlerts(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAlertsStateFilter(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	open := &stream.Alert{
		ID: "alert-open", StreamID: "stream-a", State: "open",
		Consecutive: 3, LastValue: 99, LastZScore: 3.6, OpenedAt: now,
	}
	if err := m.db.InsertAlert(ctx, open); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/alerts?state=open", http.NoBody)
	w := httptest.NewRecorder()

	m.handleAlerts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got []stream.Alert
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "alert-open" {
		t.Errorf("got %v, want only alert-open", got)
	}
}

func TestAlertAckEndpoint(t *testing.T) {
	m, _ := testModule(t, nil)
	ctx := context.Background()

	a := &stream.Alert{
		ID: "alert-001", StreamID: "stream-a", State: "open",
		Consecutive: 3, LastValue: 90, LastZScore: 3.3,
		OpenedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := m.db.InsertAlert(ctx, a); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/alerts/alert-001/ack", http.NoBody)
	req.SetPathValue("id", "alert-001")
	w := httptest.NewRecorder()

	m.handleAlertAck(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var got stream.Alert
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.AckedAt == nil {
		t.Error("AckedAt = nil, want non-nil after ack")
	}
}

func TestAlertAckNotFound(t *testing.T) {
	m, _ := testModule(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/alerts/nope/ack", http.NoBody)
	req.SetPathValue("id", "nope")
	w := httptest.NewRecorder()

	m.handleAlertAck(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestClassifyBatch(t *testing.T) {
	m, _ := testModule(t, nil)

	body := strings.NewReader(`{"values":[10,10,10,10,100]}`)
	req := httptest.NewRequest(http.MethodPost, "/classify", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	m.handleClassify(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var got classifyResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Results) != 5 {
		t.Fatalf("Results length = %d, want 5", len(got.Results))
	}
	if got.Anomalies != 1 {
		t.Errorf("Anomalies = %d, want 1", got.Anomalies)
	}
	if !got.Results[4].IsAnomaly {
		t.Error("Results[4].IsAnomaly = false, want true (spike)")
	}
	for i := 0; i < 4; i++ {
		if got.Results[i].IsAnomaly {
			t.Errorf("Results[%d].IsAnomaly = true, want false", i)
		}
	}
}

func TestClassifyCustomConfig(t *testing.T) {
	m, _ := testModule(t, nil)

	// A generous threshold turns the same spike into a normal sample.
	body := strings.NewReader(`{
		"values": [10, 10, 10, 10, 100],
		"config": {"alpha": 0.2, "threshold": 1000000, "window_size": 10, "epsilon": 1}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/classify", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	m.handleClassify(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var got classifyResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Anomalies != 0 {
		t.Errorf("Anomalies = %d, want 0 with huge threshold", got.Anomalies)
	}
}

func TestClassifyBadConfig(t *testing.T) {
	m, _ := testModule(t, nil)

	body := strings.NewReader(`{
		"values": [1, 2, 3],
		"config": {"alpha": 2.0, "threshold": 3, "window_size": 10, "epsilon": 0.001}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/classify", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	m.handleClassify(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	detail, _ := got["detail"].(string)
	if !strings.Contains(detail, "alpha") {
		t.Errorf("detail = %q, want mention of alpha", detail)
	}
}

func TestClassifyEmptyValues(t *testing.T) {
	m, _ := testModule(t, nil)

	body := strings.NewReader(`{"values":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/classify", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	m.handleClassify(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestClassifyBadJSON(t *testing.T) {
	m, _ := testModule(t, nil)

	body := strings.NewReader(`{not json`)
	req := httptest.NewRequest(http.MethodPost, "/classify", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	m.handleClassify(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRouteTable(t *testing.T) {
	m := New()
	routes := m.Routes()
	if len(routes) != 8 {
		t.Fatalf("Routes() returned %d, want 8", len(routes))
	}
	for _, r := range routes {
		if r.Handler == nil {
			t.Errorf("route %s %s has nil handler", r.Method, r.Path)
		}
	}
}
