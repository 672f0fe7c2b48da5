// Package monitoring tracks pipeline health counters and delivers alert
// events to an optional webhook.
package monitoring

import (
	"sync"
	"time"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Ingest counters since startup.
	Batches            int            `json:"batches"`
	RawByStatus        map[string]int `json:"raw_by_status"`
	NormalizedByStatus map[string]int `json:"normalized_by_status"`
	Quarantined        int            `json:"quarantined"`

	// Window outcomes.
	DriftAlerts int            `json:"drift_alerts"`
	Tiers       map[string]int `json:"tiers"`

	// Estimated model spend in dollars.
	CostUSD     float64            `json:"cost_usd"`
	CostByModel map[string]float64 `json:"cost_by_model"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector accumulates health counters across pipeline stages.
// Safe for concurrent use.
type Collector struct {
	mu          sync.Mutex
	batches     int
	raw         map[string]int
	normalized  map[string]int
	quarantined int
	driftAlerts int
	tiers       map[string]int
	cost        map[string]float64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		raw:        make(map[string]int),
		normalized: make(map[string]int),
		tiers:      make(map[string]int),
		cost:       make(map[string]float64),
	}
}

// AddBatch records one executed query batch.
func (c *Collector) AddBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
}

// AddRaw records raw record outcomes by status.
func (c *Collector) AddRaw(status string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw[status] += n
}

// AddNormalized records normalized record outcomes by validity class.
func (c *Collector) AddNormalized(status string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.normalized[status] += n
}

// AddQuarantined records legacy rows diverted to quarantine.
func (c *Collector) AddQuarantined(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quarantined += n
}

// AddDriftAlerts records raised drift alerts.
func (c *Collector) AddDriftAlerts(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driftAlerts += n
}

// AddTier records the coverage tier of a closed run window.
func (c *Collector) AddTier(tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tiers[tier]++
}

// AddCost records estimated spend for one model call.
func (c *Collector) AddCost(model string, usd float64) {
	if usd <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cost[model] += usd
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &MetricsSnapshot{
		Batches:            c.batches,
		RawByStatus:        make(map[string]int, len(c.raw)),
		NormalizedByStatus: make(map[string]int, len(c.normalized)),
		Quarantined:        c.quarantined,
		DriftAlerts:        c.driftAlerts,
		Tiers:              make(map[string]int, len(c.tiers)),
		CostByModel:        make(map[string]float64, len(c.cost)),
		CollectedAt:        time.Now().UTC(),
	}
	for k, v := range c.raw {
		snap.RawByStatus[k] = v
	}
	for k, v := range c.normalized {
		snap.NormalizedByStatus[k] = v
	}
	for k, v := range c.tiers {
		snap.Tiers[k] = v
	}
	for k, v := range c.cost {
		snap.CostByModel[k] = v
		snap.CostUSD += v
	}
	return snap
}
