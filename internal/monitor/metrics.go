package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks overall system performance.
type SystemMetrics struct {
	// Latency histograms
	APILatency    *LatencyHistogram
	RecalcLatency *LatencyHistogram

	// Counters
	apiRequests       uint64
	apiErrors         uint64
	webhookProcessed  uint64
	webhookDuplicates uint64

	lastUpdate time.Time
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		APILatency:    NewLatencyHistogram(1000),
		RecalcLatency: NewLatencyHistogram(1000),
		lastUpdate:    time.Now(),
	}
}

func (m *SystemMetrics) IncrementAPI()       { atomic.AddUint64(&m.apiRequests, 1) }
func (m *SystemMetrics) IncrementAPIErrors() { atomic.AddUint64(&m.apiErrors, 1) }

// IncrementWebhook counts a processed billing event; duplicate marks replays.
func (m *SystemMetrics) IncrementWebhook(duplicate bool) {
	if duplicate {
		atomic.AddUint64(&m.webhookDuplicates, 1)
		return
	}
	atomic.AddUint64(&m.webhookProcessed, 1)
}

// Snapshot returns a point-in-time view for the metrics endpoint.
func (m *SystemMetrics) Snapshot() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return Snapshot{
		APIRequests:       atomic.LoadUint64(&m.apiRequests),
		APIErrors:         atomic.LoadUint64(&m.apiErrors),
		WebhookProcessed:  atomic.LoadUint64(&m.webhookProcessed),
		WebhookDuplicates: atomic.LoadUint64(&m.webhookDuplicates),
		APILatency:        m.APILatency.Stats(),
		RecalcLatency:     m.RecalcLatency.Stats(),
		Goroutines:        runtime.NumGoroutine(),
		HeapAllocBytes:    ms.HeapAlloc,
	}
}

// Snapshot is the serializable metrics view.
type Snapshot struct {
	APIRequests       uint64       `json:"api_requests"`
	APIErrors         uint64       `json:"api_errors"`
	WebhookProcessed  uint64       `json:"webhook_processed"`
	WebhookDuplicates uint64       `json:"webhook_duplicates"`
	APILatency        LatencyStats `json:"api_latency_ms"`
	RecalcLatency     LatencyStats `json:"recalc_latency_ms"`
	Goroutines        int          `json:"goroutines"`
	HeapAllocBytes    uint64       `json:"heap_alloc_bytes"`
}

// LatencyHistogram tracks latency samples with a sliding window and lazy
// stats computation.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// LatencyStats summarizes a histogram window.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Shift window: remove oldest
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99. Recomputes only when samples
// have changed since the last call.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	p95 := int(float64(n) * 0.95)
	p99 := int(float64(n) * 0.99)
	if p95 >= n {
		p95 = n - 1
	}
	if p99 >= n {
		p99 = n - 1
	}

	h.cachedStats = LatencyStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[p95],
		P99:   sorted[p99],
	}
	h.dirty = false
	return h.cachedStats
}
