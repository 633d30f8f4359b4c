package handlers

import (
	"github.com/SocialGouv/champollion-go/internal/application/services"
	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/i18n"
	"github.com/gin-gonic/gin"
)

// IndicatorResponse is one deferred indicator as sent to the browser.
type IndicatorResponse struct {
	results.View
	Message string `json:"message,omitempty"`
}

// SynthesisResponse is the JSON body of a synthesis load or snapshot.
type SynthesisResponse struct {
	services.LoadSnapshot
	Deferred map[string]IndicatorResponse `json:"deferred"`
}

// localizerFor picks the response language from Accept-Language.
func localizerFor(c *gin.Context) *i18n.Localizer {
	return i18n.FromAcceptLanguage(c.GetHeader("Accept-Language"))
}

// localizeError returns a copy of e with LocalizedMessage in l's language.
// Settled results are shared between requests and must not be mutated.
func localizeError(e *results.ErrorResult, l *i18n.Localizer) *results.ErrorResult {
	if e == nil {
		return nil
	}
	localized := *e
	localized.LocalizedMessage = ""
	return l.Localize(&localized)
}

func localizeResult[T any](r results.Result[T], l *i18n.Localizer) results.Result[T] {
	if e := r.Err(); e != nil {
		return results.Fail[T](localizeError(e, l))
	}
	return r
}

func indicatorResponse(v results.View, l *i18n.Localizer) IndicatorResponse {
	out := IndicatorResponse{View: v}
	if v.Error != nil {
		out.Error = localizeError(v.Error, l)
		out.Message = out.Error.LocalizedMessage
	}
	return out
}

func synthesisResponse(snapshot services.LoadSnapshot, l *i18n.Localizer) SynthesisResponse {
	snapshot.Fast.EstablishmentInfo = localizeResult(snapshot.Fast.EstablishmentInfo, l)
	snapshot.Fast.LastKnownHeadcount = localizeResult(snapshot.Fast.LastKnownHeadcount, l)
	snapshot.Fast.PublicHolidayDates = localizeResult(snapshot.Fast.PublicHolidayDates, l)

	deferred := make(map[string]IndicatorResponse, len(snapshot.Deferred))
	for label, v := range snapshot.Deferred {
		deferred[label] = indicatorResponse(v, l)
	}
	return SynthesisResponse{LoadSnapshot: snapshot, Deferred: deferred}
}

// pageErrorBody renders an identity failure the way the error page shows it.
func pageErrorBody(pageErr *results.PageError, l *i18n.Localizer) gin.H {
	return gin.H{
		"error":      l.StatusText(pageErr.Status),
		"status":     pageErr.Status,
		"statusText": l.StatusText(pageErr.Status),
		"cause":      localizeError(pageErr.Cause, l),
	}
}
