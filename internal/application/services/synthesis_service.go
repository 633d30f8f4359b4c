package services

import (
	"context"
	"fmt"
	"time"

	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/domain/entities/establishment"
	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/api"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/security"
	"golang.org/x/sync/errgroup"
)

// SynthesisService runs the synthesis loader: identity, corrections, the fast
// tier, then the deferred tier.
type SynthesisService struct {
	api         DeclarationsAPI
	identity    *IdentityService
	corrections *CorrectionsService
	registry    *LoadRegistry
	logger      *logging.ChanneledLogger
	perf        *performance.Tracker
	minDataDate time.Time
}

// NewSynthesisService wires the loader. minDataDate anchors the one-year
// public holiday window and must be a DateLayout day.
func NewSynthesisService(
	client DeclarationsAPI,
	identity *IdentityService,
	correctionsService *CorrectionsService,
	registry *LoadRegistry,
	minDataDate string,
	logger *logging.ChanneledLogger,
	perf *performance.Tracker,
) (*SynthesisService, error) {
	anchor, err := time.Parse(corrections.DateLayout, minDataDate)
	if err != nil {
		return nil, fmt.Errorf("synthesis: min data date: %w", err)
	}
	return &SynthesisService{
		api:         client,
		identity:    identity,
		corrections: correctionsService,
		registry:    registry,
		logger:      logger,
		perf:        perf,
		minDataDate: anchor,
	}, nil
}

// HolidayWindow returns the half-open [start, end) window of public holidays
// fetched by the fast tier.
func (s *SynthesisService) HolidayWindow() (corrections.Date, corrections.Date) {
	start := s.minDataDate
	end := start.AddDate(1, 0, 0)
	return corrections.Date(start.Format(corrections.DateLayout)), corrections.Date(end.Format(corrections.DateLayout))
}

type identityOutcome struct {
	identity establishment.Identity
	err      *results.PageError
}

// Load resolves siret and runs the fast tier. It returns as soon as the fast
// tier has settled; the deferred tier keeps running in the returned load.
// The only error is a *results.PageError from identity resolution, in which
// case no other call was issued.
//
// The deferred tier does not inherit ctx cancellation: it outlives the
// request that started it and ends through SynthesisLoad.Cancel. When ctx
// ends before the fast tier settles, the deferred tier is never started, its
// indicators are returned canceled and the load is not registered.
func (s *SynthesisService) Load(ctx context.Context, siret string) (*SynthesisLoad, error) {
	marker := s.perf.StartOperation("synthesis_load", siret)
	defer s.perf.CompleteOperation(marker)
	logger := s.logger.WithContext(logging.ChannelSynthesis, ctx).With("siret", siret)

	identityCh := make(chan identityOutcome, 1)
	go func() {
		identity, err := s.identity.Resolve(ctx, siret)
		identityCh <- identityOutcome{identity: identity, err: err}
	}()
	localCorrections := s.corrections.Read(ctx, siret)
	outcome := <-identityCh
	if outcome.err != nil {
		marker.SetError(outcome.err)
		return nil, outcome.err
	}
	identity := outcome.identity

	fastStart := time.Now()
	fast := s.loadFast(ctx, identity, localCorrections)
	logger.Debug("Fast tier settled",
		"duration", time.Since(fastStart),
		"establishmentInfoError", fast.EstablishmentInfo.IsError(),
		"lastHeadcountError", fast.LastKnownHeadcount.IsError(),
		"publicHolidaysError", fast.PublicHolidayDates.IsError())

	deferredCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	load := &SynthesisLoad{
		ID:          security.GenerateULID(),
		Identity:    identity,
		Corrections: localCorrections,
		Fast:        fast,
		StartedAt:   time.Now(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if ctx.Err() != nil {
		// Nobody is left to read the indicators.
		cancel()
		load.Deferred = canceledIndicators()
		go load.watch()
		logger.Info("Request ended during fast tier, deferred tier not started", "loadId", load.ID)
		return load, nil
	}
	load.Deferred = s.startDeferred(deferredCtx, identity, localCorrections)
	go load.watch()

	if s.registry != nil {
		s.registry.Add(load)
	}
	logger.Info("Synthesis load started", "loadId", load.ID, "establishmentId", identity.InternalID)
	return load, nil
}

func (s *SynthesisService) loadFast(ctx context.Context, identity establishment.Identity, c corrections.LocalCorrections) FastLoadResult {
	var fast FastLoadResult
	start, end := s.HolidayWindow()

	var g errgroup.Group
	g.Go(func() error {
		fast.EstablishmentInfo = capture(func() (establishment.Info, *results.ErrorResult) {
			return s.api.EstablishmentInfo(ctx, identity.InternalID)
		})
		return nil
	})
	g.Go(func() error {
		fast.LastKnownHeadcount = capture(func() (establishment.HeadcountSample, *results.ErrorResult) {
			return s.api.LastHeadcount(ctx, identity.InternalID, c.CorrectedContractDates)
		})
		return nil
	})
	g.Go(func() error {
		fast.PublicHolidayDates = capture(func() ([]corrections.Date, *results.ErrorResult) {
			return s.api.PublicHolidays(ctx, start, end)
		})
		return nil
	})
	_ = g.Wait()

	return fast
}

func (s *SynthesisService) startDeferred(ctx context.Context, identity establishment.Identity, c corrections.LocalCorrections) DeferredIndicators {
	params := api.IndicatorParams{
		EstablishmentID:        identity.InternalID,
		OpenDaysCodes:          c.OpenDaysCodes,
		ExceptionalOpenDates:   c.ExceptionalOpenDates,
		ExceptionalClosedDates: c.ExceptionalClosedDates,
		PublicHolidays:         c.PublicHolidays,
	}
	jobParams := params
	jobParams.MergedJobTitleGroups = c.MergedJobTitleGroups

	return DeferredIndicators{
		Headcount: results.Start(ctx, IndicatorHeadcount, func(ctx context.Context) (establishment.HeadcountSeries, *results.ErrorResult) {
			return s.api.HeadcountOverTime(ctx, params)
		}),
		ContractNature: results.Start(ctx, IndicatorContractNature, func(ctx context.Context) (establishment.ContractNatureBreakdown, *results.ErrorResult) {
			return s.api.ContractNatures(ctx, params)
		}),
		JobProportion: results.Start(ctx, IndicatorJobProportion, func(ctx context.Context) (establishment.JobProportion, *results.ErrorResult) {
			return s.api.JobProportions(ctx, jobParams)
		}),
	}
}

func canceledIndicators() DeferredIndicators {
	return DeferredIndicators{
		Headcount: results.Settled(IndicatorHeadcount,
			results.Fail[establishment.HeadcountSeries](results.NewCanceled(IndicatorHeadcount+" canceled"))),
		ContractNature: results.Settled(IndicatorContractNature,
			results.Fail[establishment.ContractNatureBreakdown](results.NewCanceled(IndicatorContractNature+" canceled"))),
		JobProportion: results.Settled(IndicatorJobProportion,
			results.Fail[establishment.JobProportion](results.NewCanceled(IndicatorJobProportion+" canceled"))),
	}
}

// capture turns a call into a Result, converting panics into unknown errors.
func capture[T any](call func() (T, *results.ErrorResult)) (r results.Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			r = results.Fail[T](results.NewUnknown(fmt.Errorf("panic: %v", p)))
		}
	}()
	value, errResult := call()
	if errResult != nil {
		return results.Fail[T](errResult)
	}
	return results.Ok(value)
}
