// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/SocialGouv/champollion-go/internal/application/services"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/api"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/i18n"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/persistence/kv"
	"github.com/SocialGouv/champollion-go/pkg/config"
	"go.opentelemetry.io/otel"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Synthesis Services
	IdentityService    *services.IdentityService
	CorrectionsService *services.CorrectionsService
	SynthesisService   *services.SynthesisService
	LoadRegistry       *services.LoadRegistry
	Janitor            *services.Janitor

	// Infrastructure Dependencies
	Config      *config.Config
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
	Store       kv.Store
	APIClient   *api.Client
	Localizer   *i18n.Localizer
}

// NewContainer creates and wires all singleton services. The store is opened
// by the caller, which also owns closing it.
func NewContainer(cfg *config.Config, logger *logging.ChanneledLogger, store kv.Store) (*Container, error) {
	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig())
	thresholds := performance.DefaultAlertThresholds()
	thresholds.StoreOperationThreshold = cfg.SlowQueryThreshold
	thresholds.CriticalResponseThreshold = cfg.APITimeout
	perfTracker.SetThresholds(thresholds)
	localizer := i18n.French()

	client := api.New(cfg.APIURL,
		api.WithToken(cfg.APIToken),
		api.WithTimeout(cfg.APITimeout),
		api.WithRateLimit(cfg.APIRateLimit, cfg.APIRateBurst),
		api.WithTracerProvider(otel.GetTracerProvider()),
		api.WithLogger(logger),
		api.WithTracker(perfTracker),
		api.WithLocalizer(localizer),
	)

	registry := services.NewLoadRegistry(logger)
	identityService := services.NewIdentityService(client, localizer, logger)
	correctionsService := services.NewCorrectionsService(store, logger, perfTracker)

	synthesisService, err := services.NewSynthesisService(client, identityService, correctionsService, registry,
		cfg.MinDataDate, logger, perfTracker)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis service: %w", err)
	}

	janitor := services.NewJanitor(registry, perfTracker, services.JanitorConfig{
		Interval:     cfg.JanitorInterval,
		AbandonTTL:   cfg.LoadAbandonTTL,
		RetentionTTL: cfg.LoadRetentionTTL,
	}, logger)

	return &Container{
		IdentityService:    identityService,
		CorrectionsService: correctionsService,
		SynthesisService:   synthesisService,
		LoadRegistry:       registry,
		Janitor:            janitor,

		Config:      cfg,
		Logger:      logger,
		PerfTracker: perfTracker,
		Store:       store,
		APIClient:   client,
		Localizer:   localizer,
	}, nil
}
