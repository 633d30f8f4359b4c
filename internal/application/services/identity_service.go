// Package services contains the synthesis use cases: identity resolution,
// local corrections, and the fast/deferred loader.
package services

import (
	"context"

	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/domain/entities/establishment"
	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/api"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/i18n"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
)

// DeclarationsAPI is the part of the declarations API the loader calls.
type DeclarationsAPI interface {
	ResolveSiret(ctx context.Context, siret string) (establishment.Identity, *results.ErrorResult)
	EstablishmentInfo(ctx context.Context, id int64) (establishment.Info, *results.ErrorResult)
	LastHeadcount(ctx context.Context, id int64, corrected map[string]corrections.DateRange) (establishment.HeadcountSample, *results.ErrorResult)
	PublicHolidays(ctx context.Context, start, end corrections.Date) ([]corrections.Date, *results.ErrorResult)
	HeadcountOverTime(ctx context.Context, params api.IndicatorParams) (establishment.HeadcountSeries, *results.ErrorResult)
	ContractNatures(ctx context.Context, params api.IndicatorParams) (establishment.ContractNatureBreakdown, *results.ErrorResult)
	JobProportions(ctx context.Context, params api.IndicatorParams) (establishment.JobProportion, *results.ErrorResult)
}

// IdentityService resolves a SIRET to the establishment's identity.
type IdentityService struct {
	api       DeclarationsAPI
	localizer *i18n.Localizer
	logger    *logging.ChanneledLogger
}

// NewIdentityService creates the resolver.
func NewIdentityService(client DeclarationsAPI, localizer *i18n.Localizer, logger *logging.ChanneledLogger) *IdentityService {
	return &IdentityService{api: client, localizer: localizer, logger: logger}
}

// Resolve issues exactly one lookup. A failure is fatal for the page and comes
// back as a PageError carrying the status (503 when the failure had none).
func (s *IdentityService) Resolve(ctx context.Context, siret string) (establishment.Identity, *results.PageError) {
	identity, errResult := s.api.ResolveSiret(ctx, siret)
	if errResult == nil {
		if identity.Siret == "" {
			identity.Siret = siret
		}
		return identity, nil
	}

	status := errResult.StatusOrDefault()
	s.localizer.Localize(errResult)
	s.logger.WithContext(logging.ChannelSynthesis, ctx).Info("Identity resolution failed",
		"siret", siret, "status", status, "kind", errResult.Kind, "code", errResult.Code)

	return establishment.Identity{}, &results.PageError{
		Status:     status,
		StatusText: s.localizer.StatusText(status),
		Cause:      errResult,
	}
}
