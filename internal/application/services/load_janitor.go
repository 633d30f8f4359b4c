package services

import (
	"context"
	"time"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
)

// DefaultJanitorInterval is used when JanitorConfig.Interval is not positive.
const DefaultJanitorInterval = 30 * time.Second

// JanitorConfig controls the background sweep of the load registry.
type JanitorConfig struct {
	Interval     time.Duration
	AbandonTTL   time.Duration
	RetentionTTL time.Duration
}

// Janitor periodically cancels abandoned loads and evicts settled ones. It
// also trims completed performance markers.
type Janitor struct {
	registry *LoadRegistry
	perf     *performance.Tracker
	config   JanitorConfig
	logger   *logging.ChanneledLogger

	alertsSeen time.Time
}

// NewJanitor creates a janitor for registry.
func NewJanitor(registry *LoadRegistry, perf *performance.Tracker, config JanitorConfig, logger *logging.ChanneledLogger) *Janitor {
	return &Janitor{registry: registry, perf: perf, config: config, logger: logger}
}

// Start runs until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	interval := j.config.Interval
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.System().Info("Load janitor started",
		"interval", interval, "abandonTTL", j.config.AbandonTTL, "retentionTTL", j.config.RetentionTTL)

	for {
		select {
		case <-ctx.Done():
			j.logger.System().Info("Load janitor stopping")
			return
		case now := <-ticker.C:
			j.RunOnce(now)
		}
	}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(now time.Time) {
	j.registry.Sweep(now, j.config.AbandonTTL, j.config.RetentionTTL)
	if j.perf != nil {
		j.reportAlerts()
		if removed := j.perf.Cleanup(); removed > 0 {
			j.logger.Perf().Debug("Performance markers cleaned", "removed", removed)
		}
	}
}

// reportAlerts logs the performance alerts raised since the previous sweep.
func (j *Janitor) reportAlerts() int {
	reported := 0
	for _, alert := range j.perf.GetAlerts() {
		if !alert.Timestamp.After(j.alertsSeen) {
			continue
		}
		j.logger.Alert().Warn(alert.Message,
			"severity", alert.Severity,
			"operation", alert.Operation,
			"siret", alert.Siret,
			"threshold", alert.Threshold,
			"actual", alert.Actual)
		j.alertsSeen = alert.Timestamp
		reported++
	}
	return reported
}
