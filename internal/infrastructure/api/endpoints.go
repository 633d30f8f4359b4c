package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/domain/entities/establishment"
	"github.com/SocialGouv/champollion-go/internal/domain/results"
)

// IndicatorParams is the body shared by the three indicator endpoints.
type IndicatorParams struct {
	EstablishmentID        int64                        `json:"etablissementId"`
	OpenDaysCodes          []corrections.WeekdayCode    `json:"joursOuverts"`
	ExceptionalOpenDates   []corrections.Date           `json:"joursExceptionnelsOuverts"`
	ExceptionalClosedDates []corrections.Date           `json:"joursExceptionnelsFermes"`
	PublicHolidays         corrections.HolidayTreatment `json:"joursFeries"`
	MergedJobTitleGroups   [][]int64                    `json:"postesFusionnes,omitempty"`
}

type lastHeadcountRequest struct {
	CorrectedContractDates map[string]corrections.DateRange `json:"datesContratsCorrigees"`
}

// ResolveSiret calls GET /etablissements/siret/{siret}.
func (c *Client) ResolveSiret(ctx context.Context, siret string) (establishment.Identity, *results.ErrorResult) {
	var out establishment.Identity
	errResult := c.call(ctx, "resolve_siret", http.MethodGet, "/etablissements/siret/"+url.PathEscape(siret), nil, nil, &out)
	return out, errResult
}

// EstablishmentInfo calls GET /etablissements/{id}.
func (c *Client) EstablishmentInfo(ctx context.Context, id int64) (establishment.Info, *results.ErrorResult) {
	var out establishment.Info
	errResult := c.call(ctx, "establishment_info", http.MethodGet, fmt.Sprintf("/etablissements/%d", id), nil, nil, &out)
	return out, errResult
}

// LastHeadcount calls POST /etablissements/{id}/dernier-effectif.
func (c *Client) LastHeadcount(ctx context.Context, id int64, corrected map[string]corrections.DateRange) (establishment.HeadcountSample, *results.ErrorResult) {
	var out establishment.HeadcountSample
	body := lastHeadcountRequest{CorrectedContractDates: corrected}
	errResult := c.call(ctx, "last_headcount", http.MethodPost, fmt.Sprintf("/etablissements/%d/dernier-effectif", id), nil, body, &out)
	return out, errResult
}

// PublicHolidays calls GET /jours-feries?debut=&fin= for the half-open window [start, end).
func (c *Client) PublicHolidays(ctx context.Context, start, end corrections.Date) ([]corrections.Date, *results.ErrorResult) {
	var out []corrections.Date
	query := url.Values{"debut": {string(start)}, "fin": {string(end)}}
	errResult := c.call(ctx, "public_holidays", http.MethodGet, "/jours-feries", query, nil, &out)
	if errResult == nil && out == nil {
		out = []corrections.Date{}
	}
	return out, errResult
}

// HeadcountOverTime calls POST /indicateurs/effectifs.
func (c *Client) HeadcountOverTime(ctx context.Context, params IndicatorParams) (establishment.HeadcountSeries, *results.ErrorResult) {
	var out establishment.HeadcountSeries
	errResult := c.call(ctx, "headcount_over_time", http.MethodPost, "/indicateurs/effectifs", nil, params, &out)
	return out, errResult
}

// ContractNatures calls POST /indicateurs/natures-contrat.
func (c *Client) ContractNatures(ctx context.Context, params IndicatorParams) (establishment.ContractNatureBreakdown, *results.ErrorResult) {
	var out establishment.ContractNatureBreakdown
	errResult := c.call(ctx, "contract_natures", http.MethodPost, "/indicateurs/natures-contrat", nil, params, &out)
	return out, errResult
}

// JobProportions calls POST /indicateurs/postes.
func (c *Client) JobProportions(ctx context.Context, params IndicatorParams) (establishment.JobProportion, *results.ErrorResult) {
	var out establishment.JobProportion
	errResult := c.call(ctx, "job_proportions", http.MethodPost, "/indicateurs/postes", nil, params, &out)
	return out, errResult
}
