package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/careagent/internal/policy"
)

const decisionMetricsFileName = "kernel_metrics.json"

var latencyBucketUpperBoundsUs = []int64{
	50, 100, 250, 500, 1000, 2500, 5000, 10000, 50000, 250000,
}

// DecisionSnapshot contains aggregated policy decision metrics.
type DecisionSnapshot struct {
	UpdatedAt   time.Time        `json:"updated_at"`
	Checks      CheckStats       `json:"checks"`
	DeniedBy    map[string]int64 `json:"denied_by,omitempty"`
	Activations ActivationStats  `json:"activations"`
}

// CheckStats tracks engine checks.
type CheckStats struct {
	Total             int64 `json:"total"`
	Allowed           int64 `json:"allowed"`
	Denied            int64 `json:"denied"`
	TotalLatencyUs    int64 `json:"total_latency_us"`
	MaxLatencyUs      int64 `json:"max_latency_us"`
	LastLatencyUs     int64 `json:"last_latency_us"`
	P95ProxyLatencyUs int64 `json:"p95_proxy_latency_us"`
}

// DenyRatio returns denied/total in [0,1].
func (c CheckStats) DenyRatio() float64 {
	if c.Total <= 0 {
		return 0
	}
	return float64(c.Denied) / float64(c.Total)
}

// AvgLatencyUs returns average check latency in microseconds.
func (c CheckStats) AvgLatencyUs() float64 {
	if c.Total <= 0 {
		return 0
	}
	return float64(c.TotalLatencyUs) / float64(c.Total)
}

// ActivationStats tracks gate outcomes.
type ActivationStats struct {
	Active   int64 `json:"active"`
	Inactive int64 `json:"inactive"`
}

// HasData reports whether any metrics were recorded.
func (s DecisionSnapshot) HasData() bool {
	return s.Checks.Total > 0 || s.Activations.Active > 0 || s.Activations.Inactive > 0
}

// DecisionMetrics records and persists decision metrics. It implements
// policy.Observer.
type DecisionMetrics struct {
	path string

	mu      sync.Mutex
	snap    DecisionSnapshot
	buckets []int64
}

// NewDecisionMetrics creates a recorder persisting to <stateDir>/kernel_metrics.json,
// seeded with any snapshot already on disk.
func NewDecisionMetrics(stateDir string) *DecisionMetrics {
	m := &DecisionMetrics{
		path:    decisionMetricsPath(stateDir),
		buckets: make([]int64, len(latencyBucketUpperBoundsUs)+1),
	}
	if snap, err := ReadDecisionSnapshot(stateDir); err == nil {
		m.snap = snap
	} else {
		slog.Warn("ignoring unreadable decision metrics", "path", m.path, "error", err)
	}
	return m
}

// Snapshot returns a copy of the in-memory snapshot.
func (m *DecisionMetrics) Snapshot() DecisionSnapshot {
	if m == nil {
		return DecisionSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.snap)
}

// RecordCheck implements policy.Observer. Persistence failures are logged;
// metrics never block enforcement.
func (m *DecisionMetrics) RecordCheck(decision policy.Decision, elapsed time.Duration) {
	if m == nil {
		return
	}
	latencyUs := elapsed.Microseconds()
	if latencyUs < 0 {
		latencyUs = 0
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Checks.Total++
	if decision.Allowed {
		m.snap.Checks.Allowed++
	} else {
		m.snap.Checks.Denied++
		layer := strings.TrimSpace(decision.Layer)
		if layer == "" {
			layer = "unknown"
		}
		if m.snap.DeniedBy == nil {
			m.snap.DeniedBy = make(map[string]int64)
		}
		m.snap.DeniedBy[layer]++
	}
	m.snap.Checks.TotalLatencyUs += latencyUs
	m.snap.Checks.LastLatencyUs = latencyUs
	if latencyUs > m.snap.Checks.MaxLatencyUs {
		m.snap.Checks.MaxLatencyUs = latencyUs
	}
	m.buckets[latencyBucketIndex(latencyUs)]++
	m.snap.Checks.P95ProxyLatencyUs = p95ProxyFromBuckets(m.buckets)
	snapshot := cloneSnapshot(m.snap)
	m.mu.Unlock()

	if err := persistDecisionSnapshot(m.path, snapshot); err != nil {
		slog.Warn("failed to persist decision metrics", "path", m.path, "error", err)
	}
}

// RecordActivation counts one gate outcome and persists the snapshot.
func (m *DecisionMetrics) RecordActivation(active bool) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	if active {
		m.snap.Activations.Active++
	} else {
		m.snap.Activations.Inactive++
	}
	snapshot := cloneSnapshot(m.snap)
	m.mu.Unlock()

	return persistDecisionSnapshot(m.path, snapshot)
}

// ReadDecisionSnapshot reads the persisted snapshot from stateDir.
// If no file exists yet, it returns a zero-value snapshot and nil error.
func ReadDecisionSnapshot(stateDir string) (DecisionSnapshot, error) {
	raw, err := os.ReadFile(decisionMetricsPath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return DecisionSnapshot{}, nil
		}
		return DecisionSnapshot{}, fmt.Errorf("read decision metrics: %w", err)
	}

	var snap DecisionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return DecisionSnapshot{}, fmt.Errorf("decode decision metrics: %w", err)
	}
	return snap, nil
}

func decisionMetricsPath(stateDir string) string {
	return filepath.Join(stateDir, decisionMetricsFileName)
}

func persistDecisionSnapshot(path string, snapshot DecisionSnapshot) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create decision metrics dir: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode decision metrics: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write decision metrics temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename decision metrics file: %w", err)
	}
	return nil
}

func cloneSnapshot(s DecisionSnapshot) DecisionSnapshot {
	if s.DeniedBy != nil {
		denied := make(map[string]int64, len(s.DeniedBy))
		for k, v := range s.DeniedBy {
			denied[k] = v
		}
		s.DeniedBy = denied
	}
	return s
}

func latencyBucketIndex(latencyUs int64) int {
	for i, upper := range latencyBucketUpperBoundsUs {
		if latencyUs <= upper {
			return i
		}
	}
	return len(latencyBucketUpperBoundsUs)
}

// p95ProxyFromBuckets estimates p95 from this process's buckets only.
func p95ProxyFromBuckets(buckets []int64) int64 {
	var total int64
	for _, count := range buckets {
		total += count
	}
	if total <= 0 {
		return 0
	}
	target := int64(float64(total) * 0.95)
	if target <= 0 {
		target = 1
	}

	var cumulative int64
	for i, count := range buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		if i >= len(latencyBucketUpperBoundsUs) {
			return latencyBucketUpperBoundsUs[len(latencyBucketUpperBoundsUs)-1]
		}
		return latencyBucketUpperBoundsUs[i]
	}
	return latencyBucketUpperBoundsUs[len(latencyBucketUpperBoundsUs)-1]
}
