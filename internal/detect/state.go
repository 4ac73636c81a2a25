package detect

import (
	"maps"
	"sync"

	"github.com/driftwatch/driftwatch/internal/detect/anomaly"
	"github.com/driftwatch/driftwatch/internal/detect/baseline"
)

// streamState holds the in-memory detector state for a single stream. The
// detector itself is not goroutine safe; mu serializes sample processing so
// each stream's state mutates strictly one sample at a time no matter which
// transport delivered the sample.
type streamState struct {
	mu       sync.Mutex
	Detector *anomaly.Detector
	Drift    *anomaly.CUSUM
	Seasonal *baseline.HoltWinters // nil unless hw_enabled
}

// stateTable tracks detector state per stream, building detectors lazily on
// first contact. All methods are safe for concurrent use.
type stateTable struct {
	mu       sync.RWMutex
	byStream map[string]*streamState
	cfg      Config // validated before the table is built
}

func newStateTable(cfg Config) *stateTable {
	return &stateTable{
		byStream: make(map[string]*streamState),
		cfg:      cfg,
	}
}

// get returns the state for a stream without creating it.
func (t *stateTable) get(streamID string) (*streamState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ss, ok := t.byStream[streamID]
	return ss, ok
}

// getOrCreate returns the state for a stream, creating it on first contact.
func (t *stateTable) getOrCreate(streamID string) (*streamState, error) {
	if ss, ok := t.get(streamID); ok {
		return ss, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Another goroutine may have won the race between the read and here.
	if ss, ok := t.byStream[streamID]; ok {
		return ss, nil
	}

	det, err := anomaly.New(t.cfg.Detector)
	if err != nil {
		return nil, err
	}
	ss := &streamState{
		Detector: det,
		Drift:    anomaly.NewCUSUM(t.cfg.CUSUMSlack, t.cfg.CUSUMThreshold),
	}
	if t.cfg.HWEnabled {
		ss.Seasonal = baseline.NewHoltWinters(t.cfg.HWAlpha, t.cfg.HWBeta, t.cfg.HWGamma, t.cfg.HWPeriod)
	}
	t.byStream[streamID] = ss
	return ss, nil
}

// remove discards a stream's state. The next sample on that stream starts a
// fresh detector.
func (t *stateTable) remove(streamID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byStream, streamID)
}

// count returns the number of tracked streams.
func (t *stateTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byStream)
}

// snapshot copies the table so callers can iterate without holding the lock
// during database writes.
func (t *stateTable) snapshot() map[string]*streamState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.byStream)
}
