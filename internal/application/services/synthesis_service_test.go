package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSiret = "12345678901234"

func waitSettled(t *testing.T, load *SynthesisLoad) {
	t.Helper()
	select {
	case <-load.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("load did not settle")
	}
}

func TestLoad_IssuesFastTierBeforeDeferredTier(t *testing.T) {
	f := newFixture(t)
	f.api.gate = make(chan struct{})

	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)

	calls := f.api.calls()
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, "resolveSiret", calls[0])
	assert.ElementsMatch(t, []string{fastInfo, fastHeadcount, fastHolidays}, calls[1:4])

	close(f.api.gate)
	waitSettled(t, load)

	calls = f.api.calls()
	require.Len(t, calls, 7)
	assert.ElementsMatch(t, IndicatorLabels, calls[4:])

	info, ok := load.Fast.EstablishmentInfo.Value()
	require.True(t, ok)
	assert.Equal(t, "ACME", info.DisplayName)
	for _, h := range load.Deferred.Handles() {
		assert.Equal(t, results.StateResolved, h.State(), h.Label())
	}
}

func TestLoad_IdentityFailureIsFatal(t *testing.T) {
	tests := []struct {
		name       string
		failure    *results.ErrorResult
		wantStatus int
		wantText   string
	}{
		{
			name:       "not found",
			failure:    &results.ErrorResult{IsError: true, Kind: results.KindNotFound, Code: results.CodeBadRequest, Status: results.StatusPtr(http.StatusNotFound), Message: "not found"},
			wantStatus: http.StatusNotFound,
			wantText:   "Page non trouvée",
		},
		{
			name:       "no status defaults to 503",
			failure:    &results.ErrorResult{IsError: true, Kind: results.KindNetworkUnreachable, Code: results.CodeNetwork, Message: "dial tcp: refused"},
			wantStatus: http.StatusServiceUnavailable,
			wantText:   "Service indisponible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.api.identityErr = tt.failure

			load, err := f.synthesis.Load(context.Background(), "00000000000000")
			require.Nil(t, load)
			require.Error(t, err)

			var pageErr *results.PageError
			require.ErrorAs(t, err, &pageErr)
			assert.Equal(t, tt.wantStatus, pageErr.Status)
			assert.Equal(t, tt.wantText, pageErr.StatusText)
			assert.Equal(t, []string{"resolveSiret"}, f.api.calls())
			assert.Equal(t, 0, f.registry.Len())
		})
	}
}

func TestLoad_TempWorkAgencyProceedsNormally(t *testing.T) {
	f := newFixture(t)

	load, err := f.synthesis.Load(context.Background(), tempWorkAgencySiret)
	require.NoError(t, err)
	waitSettled(t, load)

	assert.True(t, load.Identity.IsTempWorkAgency)
	assert.Equal(t, tempWorkAgencySiret, load.Identity.Siret)
	assert.Len(t, f.api.calls(), 7)
}

func TestLoad_UnknownSiretCarriesBackendMessage(t *testing.T) {
	f := newFixture(t)
	f.api.identityErr = &results.ErrorResult{
		IsError:   true,
		Kind:      results.KindNotFound,
		Code:      results.CodeBadRequest,
		Status:    results.StatusPtr(http.StatusNotFound),
		Message:   "Établissement introuvable",
		ErrorType: "not_found",
	}

	_, err := f.synthesis.Load(context.Background(), "123456789")

	var pageErr *results.PageError
	require.ErrorAs(t, err, &pageErr)
	assert.Equal(t, http.StatusNotFound, pageErr.Status)
	require.NotNil(t, pageErr.Cause)
	assert.Equal(t, "Établissement introuvable", pageErr.Cause.Message)
	assert.Equal(t, "not_found", pageErr.Cause.ErrorType)
	assert.NotEmpty(t, pageErr.Cause.LocalizedMessage)
	assert.Equal(t, []string{"resolveSiret"}, f.api.calls())
}

func TestLoad_PartialFastFailureStillStartsDeferredTier(t *testing.T) {
	f := newFixture(t)
	f.api.infoErr = &results.ErrorResult{IsError: true, Kind: results.KindNetworkUnreachable, Code: results.CodeNetwork, Message: "network down"}

	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)
	waitSettled(t, load)

	assert.True(t, load.Fast.EstablishmentInfo.IsError())
	assert.Equal(t, results.CodeNetwork, load.Fast.EstablishmentInfo.Err().Code)
	assert.False(t, load.Fast.LastKnownHeadcount.IsError())
	assert.False(t, load.Fast.PublicHolidayDates.IsError())
	assert.Len(t, f.api.calls(), 7)
}

func TestLoad_DeferredFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.api.jobErr = &results.ErrorResult{IsError: true, Kind: results.KindRateLimited, Code: results.CodeBadRequest, Status: results.StatusPtr(http.StatusTooManyRequests), Message: "slow down"}

	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)
	waitSettled(t, load)

	assert.Equal(t, results.StateResolved, load.Deferred.Headcount.State())
	assert.Equal(t, results.StateResolved, load.Deferred.ContractNature.State())
	assert.Equal(t, results.StateErrored, load.Deferred.JobProportion.State())
}

func TestLoad_CancelBeforeSettleCancelsAllIndicators(t *testing.T) {
	f := newFixture(t)
	f.api.gate = make(chan struct{})
	defer close(f.api.gate)

	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)
	assert.False(t, load.Settled())

	load.Cancel()
	waitSettled(t, load)

	for _, h := range load.Deferred.Handles() {
		view := h.View()
		assert.Equal(t, results.StateCanceled, view.State, h.Label())
		require.NotNil(t, view.Error)
		assert.Equal(t, results.CodeCanceled, view.Error.Code)
	}
}

func TestLoad_CancelAfterSettleIsNoOp(t *testing.T) {
	f := newFixture(t)

	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)
	waitSettled(t, load)

	load.Cancel()
	load.Cancel()

	for _, h := range load.Deferred.Handles() {
		assert.Equal(t, results.StateResolved, h.State(), h.Label())
	}
}

func TestLoad_RequestCancellationDoesNotCancelDeferredTier(t *testing.T) {
	f := newFixture(t)
	f.api.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	load, err := f.synthesis.Load(ctx, testSiret)
	require.NoError(t, err)
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, load.Settled())

	close(f.api.gate)
	waitSettled(t, load)
	assert.Equal(t, results.StateResolved, load.Deferred.Headcount.State())
}

func TestLoad_RequestEndedDuringFastTierSkipsDeferredTier(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.api.onFast = cancel

	load, err := f.synthesis.Load(ctx, testSiret)
	require.NoError(t, err)
	waitSettled(t, load)

	for _, h := range load.Deferred.Handles() {
		assert.Equal(t, results.StateCanceled, h.State(), h.Label())
	}
	assert.NotContains(t, f.api.calls(), IndicatorHeadcount)
	assert.NotContains(t, f.api.calls(), IndicatorContractNature)
	assert.NotContains(t, f.api.calls(), IndicatorJobProportion)
	assert.Zero(t, f.registry.Len())
}

func TestLoad_PassesCorrectionsToCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved := corrections.LocalCorrections{
		OpenDaysCodes:          []corrections.WeekdayCode{"5", "1"},
		ExceptionalOpenDates:   []corrections.Date{"2023-12-24"},
		ExceptionalClosedDates: []corrections.Date{},
		PublicHolidays:         corrections.HolidaysTreatedAsOpen,
		MergedJobTitleGroups:   [][]int64{{3, 4}},
		CorrectedContractDates: map[string]corrections.DateRange{"77": {Start: "2022-02-01", End: "2022-03-31"}},
	}
	require.NoError(t, f.corrections.Save(ctx, testSiret, saved))

	load, err := f.synthesis.Load(ctx, testSiret)
	require.NoError(t, err)
	waitSettled(t, load)

	f.api.mu.Lock()
	defer f.api.mu.Unlock()

	assert.Equal(t, saved.CorrectedContractDates, f.api.corrected)
	assert.Equal(t, corrections.Date("2022-01-01"), f.api.holidayStart)
	assert.Equal(t, corrections.Date("2023-01-01"), f.api.holidayEnd)

	headcount := f.api.indicatorArgs[IndicatorHeadcount]
	assert.Equal(t, int64(42), headcount.EstablishmentID)
	assert.Equal(t, []corrections.WeekdayCode{"1", "5"}, headcount.OpenDaysCodes)
	assert.Equal(t, corrections.HolidaysTreatedAsOpen, headcount.PublicHolidays)
	assert.Nil(t, headcount.MergedJobTitleGroups)
	assert.Nil(t, f.api.indicatorArgs[IndicatorContractNature].MergedJobTitleGroups)
	assert.Equal(t, [][]int64{{3, 4}}, f.api.indicatorArgs[IndicatorJobProportion].MergedJobTitleGroups)
}

func TestLoad_MalformedOpenDaysReadAsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, corrections.Key(testSiret, corrections.FieldOpenDays), `"not-an-array"`))
	require.NoError(t, f.store.Set(ctx, corrections.Key(testSiret, corrections.FieldHolidays), `"treatedAsOpen"`))

	load, err := f.synthesis.Load(ctx, testSiret)
	require.NoError(t, err)
	waitSettled(t, load)

	assert.Empty(t, load.Corrections.OpenDaysCodes)
	assert.Equal(t, corrections.HolidaysTreatedAsOpen, load.Corrections.PublicHolidays)
}

func TestLoad_UpdatesEmitsEveryIndicator(t *testing.T) {
	f := newFixture(t)

	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)

	var labels []string
	for view := range load.Updates(context.Background()) {
		assert.NotEqual(t, results.StatePending, view.State)
		labels = append(labels, view.Label)
	}
	assert.ElementsMatch(t, IndicatorLabels, labels)

	snapshot := load.Snapshot()
	assert.True(t, snapshot.Settled)
	assert.Len(t, snapshot.Deferred, 3)
}

func TestLoad_RegistersLoad(t *testing.T) {
	f := newFixture(t)

	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)
	waitSettled(t, load)

	got, ok := f.registry.Get(load.ID)
	require.True(t, ok)
	assert.Same(t, load, got)
}

func TestNewSynthesisService_RejectsBadMinDate(t *testing.T) {
	_, err := NewSynthesisService(nil, nil, nil, nil, "2022/01/01", nil, nil)
	assert.Error(t, err)
}
