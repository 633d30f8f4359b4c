package performance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Tracker manages performance markers and raises alerts on slow operations
type Tracker struct {
	markers    map[string]*Marker
	alerts     []*PerformanceAlert
	thresholds *AlertThresholds
	config     *TrackerConfig
	mu         sync.RWMutex
	started    time.Time
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers   int           `json:"maxMarkers"`
	MaxAlerts    int           `json:"maxAlerts"`
	Retention    time.Duration `json:"retention"` // completed markers older than this are dropped by Cleanup
	EnableAlerts bool          `json:"enableAlerts"`
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:   10000,
		MaxAlerts:    500,
		Retention:    10 * time.Minute,
		EnableAlerts: true,
	}
}

// AlertThresholds defines performance thresholds for generating alerts
type AlertThresholds struct {
	VerySlowResponseThreshold time.Duration `json:"verySlowResponseThreshold"`
	CriticalResponseThreshold time.Duration `json:"criticalResponseThreshold"`
	APICallThreshold          time.Duration `json:"apiCallThreshold"`
	StoreOperationThreshold   time.Duration `json:"storeOperationThreshold"`
}

// DefaultAlertThresholds returns sensible default alert thresholds
func DefaultAlertThresholds() *AlertThresholds {
	return &AlertThresholds{
		VerySlowResponseThreshold: 2 * time.Second,
		CriticalResponseThreshold: 10 * time.Second,
		APICallThreshold:          3 * time.Second,
		StoreOperationThreshold:   50 * time.Millisecond,
	}
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		markers:    make(map[string]*Marker),
		thresholds: DefaultAlertThresholds(),
		config:     config,
		started:    time.Now(),
	}
}

// SetThresholds replaces the alert thresholds
func (t *Tracker) SetThresholds(thresholds *AlertThresholds) {
	t.mu.Lock()
	t.thresholds = thresholds
	t.mu.Unlock()
}

// StartOperation creates and tracks a new performance marker for an operation
func (t *Tracker) StartOperation(operation, siret string) *Marker {
	marker := &Marker{
		Operation: operation,
		Siret:     siret,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true,
	}

	markerID := fmt.Sprintf("%s_%s_%d", siret, operation, marker.StartTime.UnixNano())

	t.mu.Lock()
	if len(t.markers) >= t.config.MaxMarkers {
		t.evictCompletedLocked()
	}
	t.markers[markerID] = marker
	t.mu.Unlock()

	return marker
}

// StartOperationWithContext creates a marker that fails and completes when ctx
// ends before the operation does. The watcher exits on either event.
func (t *Tracker) StartOperationWithContext(ctx context.Context, operation, siret string) (*Marker, func()) {
	marker := t.StartOperation(operation, siret)
	finished := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case <-ctx.Done():
			if !marker.isCompleted() {
				marker.SetError(ctx.Err())
				t.CompleteOperation(marker)
			}
		case <-finished:
		}
	}()

	return marker, func() {
		once.Do(func() {
			close(finished)
			t.CompleteOperation(marker)
		})
	}
}

// CompleteOperation completes an operation and checks for alerts
func (t *Tracker) CompleteOperation(marker *Marker) {
	if marker == nil || marker.isCompleted() {
		return
	}
	marker.Complete()

	if t.config.EnableAlerts {
		t.checkForAlerts(marker)
	}
}

func (t *Tracker) checkForAlerts(marker *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, alert := range t.evaluateThresholds(marker) {
		t.alerts = append(t.alerts, alert)
	}
	if len(t.alerts) > t.config.MaxAlerts {
		t.alerts = t.alerts[len(t.alerts)-t.config.MaxAlerts:]
	}
}

func (t *Tracker) evaluateThresholds(marker *Marker) []*PerformanceAlert {
	var alerts []*PerformanceAlert
	duration := marker.Elapsed()

	switch {
	case duration > t.thresholds.CriticalResponseThreshold:
		alerts = append(alerts, t.createAlert(marker, AlertCritical, t.thresholds.CriticalResponseThreshold,
			"Operation exceeded critical response time threshold"))
	case duration > t.thresholds.VerySlowResponseThreshold:
		alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.VerySlowResponseThreshold,
			"Operation exceeded slow response time threshold"))
	}

	switch {
	case strings.HasPrefix(marker.Operation, "api:"):
		if duration > t.thresholds.APICallThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.APICallThreshold,
				"Declarations API call exceeded threshold"))
		}
	case strings.HasPrefix(marker.Operation, "store:"):
		if duration > t.thresholds.StoreOperationThreshold {
			alerts = append(alerts, t.createAlert(marker, AlertWarning, t.thresholds.StoreOperationThreshold,
				"Correction store operation exceeded threshold"))
		}
	}

	return alerts
}

func (t *Tracker) createAlert(marker *Marker, severity AlertSeverity, threshold time.Duration, message string) *PerformanceAlert {
	return &PerformanceAlert{
		Timestamp: time.Now(),
		Siret:     marker.Siret,
		Severity:  severity,
		Operation: marker.Operation,
		Threshold: threshold,
		Actual:    marker.Elapsed(),
		Message:   message,
	}
}

// GetAlerts returns a copy of the recorded alerts
func (t *Tracker) GetAlerts() []*PerformanceAlert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*PerformanceAlert, len(t.alerts))
	copy(out, t.alerts)
	return out
}

// Stats summarizes tracked operations
type Stats struct {
	Uptime    time.Duration `json:"uptime"`
	Active    int           `json:"active"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Alerts    int           `json:"alerts"`
}

// GetStats returns counters over the retained markers
func (t *Tracker) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Stats{Uptime: time.Since(t.started), Alerts: len(t.alerts)}
	for _, m := range t.markers {
		m.mu.Lock()
		switch {
		case !m.Completed:
			stats.Active++
		case !m.Success:
			stats.Completed++
			stats.Failed++
		default:
			stats.Completed++
		}
		m.mu.Unlock()
	}
	return stats
}

// Cleanup drops completed markers older than the configured retention
func (t *Tracker) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.config.Retention)
	removed := 0
	for id, m := range t.markers {
		m.mu.Lock()
		stale := m.Completed && m.EndTime.Before(cutoff)
		m.mu.Unlock()
		if stale {
			delete(t.markers, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) evictCompletedLocked() {
	for id, m := range t.markers {
		if m.isCompleted() {
			delete(t.markers, id)
		}
	}
}
