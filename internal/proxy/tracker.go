package proxy

import (
	"sort"
	"sync"
)

// OutcomeRecord counts attempt results for one endpoint. Counters only grow.
type OutcomeRecord struct {
	SuccessCount int64
	FailureCount int64
}

// EndpointStats is a derived view of an OutcomeRecord.
type EndpointStats struct {
	EndpointID   string  `json:"endpoint_id"`
	SuccessCount int64   `json:"success_count"`
	FailureCount int64   `json:"failure_count"`
	Total        int64   `json:"total_attempts"`
	SuccessRate  float64 `json:"success_rate"`
}

// Tracker records per-endpoint success and failure counts in process memory.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*OutcomeRecord
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*OutcomeRecord)}
}

// Record increments the success or failure counter of endpointID.
func (t *Tracker) Record(endpointID string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[endpointID]
	if !ok {
		rec = &OutcomeRecord{}
		t.records[endpointID] = rec
	}
	if success {
		rec.SuccessCount++
	} else {
		rec.FailureCount++
	}
}

// Stats returns the derived stats of endpointID; unknown endpoints report zeros.
func (t *Tracker) Stats(endpointID string) EndpointStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked(endpointID)
}

func (t *Tracker) statsLocked(id string) EndpointStats {
	s := EndpointStats{EndpointID: id}
	rec, ok := t.records[id]
	if !ok {
		return s
	}
	s.SuccessCount = rec.SuccessCount
	s.FailureCount = rec.FailureCount
	s.Total = rec.SuccessCount + rec.FailureCount
	if s.Total > 0 {
		s.SuccessRate = float64(rec.SuccessCount) / float64(s.Total)
	}
	return s
}

// BestEndpoints returns endpoint IDs with at least minAttempts samples,
// ordered by success rate, then by sample size, then by ID.
func (t *Tracker) BestEndpoints(minAttempts int) []string {
	stats := t.Snapshot()

	qualified := stats[:0]
	for _, s := range stats {
		if s.Total >= int64(minAttempts) {
			qualified = append(qualified, s)
		}
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.EndpointID < b.EndpointID
	})

	ids := make([]string, len(qualified))
	for i, s := range qualified {
		ids[i] = s.EndpointID
	}
	return ids
}

// Snapshot returns the stats of every tracked endpoint sorted by ID.
func (t *Tracker) Snapshot() []EndpointStats {
	t.mu.Lock()
	out := make([]EndpointStats, 0, len(t.records))
	for id := range t.records {
		out = append(out, t.statsLocked(id))
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndpointID < out[j].EndpointID })
	return out
}
