package services

import (
	"context"
	"sync"
	"time"

	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/domain/entities/establishment"
	"github.com/SocialGouv/champollion-go/internal/domain/results"
)

// Indicator labels carried by the deferred handles.
const (
	IndicatorHeadcount      = "headcount"
	IndicatorContractNature = "contractNature"
	IndicatorJobProportion  = "jobProportion"
)

// IndicatorLabels lists the deferred indicators in display order.
var IndicatorLabels = []string{IndicatorHeadcount, IndicatorContractNature, IndicatorJobProportion}

// FastLoadResult holds the three fast-tier outcomes, each settled on its own.
type FastLoadResult struct {
	EstablishmentInfo  results.Result[establishment.Info]            `json:"establishmentInfo"`
	LastKnownHeadcount results.Result[establishment.HeadcountSample] `json:"lastKnownHeadcount"`
	PublicHolidayDates results.Result[[]corrections.Date]            `json:"publicHolidayDates"`
}

// DeferredIndicators are the three slow indicators. They share one
// cancellation context owned by the load.
type DeferredIndicators struct {
	Headcount      *results.Deferred[establishment.HeadcountSeries]
	ContractNature *results.Deferred[establishment.ContractNatureBreakdown]
	JobProportion  *results.Deferred[establishment.JobProportion]
}

// Handles returns the indicators in display order.
func (d DeferredIndicators) Handles() []results.Handle {
	return []results.Handle{d.Headcount, d.ContractNature, d.JobProportion}
}

// Handle returns the indicator with label, or nil.
func (d DeferredIndicators) Handle(label string) results.Handle {
	for _, h := range d.Handles() {
		if h.Label() == label {
			return h
		}
	}
	return nil
}

// SynthesisLoad is one in-flight synthesis for an establishment.
type SynthesisLoad struct {
	ID          string
	Identity    establishment.Identity
	Corrections corrections.LocalCorrections
	Fast        FastLoadResult
	Deferred    DeferredIndicators
	StartedAt   time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
	settledAt time.Time
}

// Cancel aborts every deferred indicator that has not settled yet. Settled
// indicators keep their outcome; calling Cancel again is harmless.
func (l *SynthesisLoad) Cancel() {
	l.cancel()
}

// Done is closed once all three deferred indicators have settled.
func (l *SynthesisLoad) Done() <-chan struct{} {
	return l.done
}

// Settled reports whether every deferred indicator has settled.
func (l *SynthesisLoad) Settled() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// SettledAt returns when the last deferred indicator settled.
func (l *SynthesisLoad) SettledAt() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.settledAt, !l.settledAt.IsZero()
}

// watch closes done once every handle has settled, then releases the
// shared context.
func (l *SynthesisLoad) watch() {
	for _, h := range l.Deferred.Handles() {
		<-h.Done()
	}
	l.mu.Lock()
	l.settledAt = time.Now()
	l.mu.Unlock()
	close(l.done)
	l.cancel()
}

// Updates emits one view per indicator as it settles, then closes. It stops
// early when ctx ends; the indicators are unaffected.
func (l *SynthesisLoad) Updates(ctx context.Context) <-chan results.View {
	handles := l.Deferred.Handles()
	out := make(chan results.View, len(handles))

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h results.Handle) {
			defer wg.Done()
			select {
			case <-h.Done():
				out <- h.View()
			case <-ctx.Done():
			}
		}(h)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// LoadSnapshot is the JSON view of a load at one instant.
type LoadSnapshot struct {
	LoadID      string                       `json:"loadId"`
	Identity    establishment.Identity       `json:"identity"`
	Corrections corrections.LocalCorrections `json:"corrections"`
	Fast        FastLoadResult               `json:"fast"`
	Deferred    map[string]results.View      `json:"deferred"`
	Settled     bool                         `json:"settled"`
	StartedAt   time.Time                    `json:"startedAt"`
}

// Snapshot captures the current state of the load.
func (l *SynthesisLoad) Snapshot() LoadSnapshot {
	deferred := make(map[string]results.View, 3)
	for _, h := range l.Deferred.Handles() {
		deferred[h.Label()] = h.View()
	}
	return LoadSnapshot{
		LoadID:      l.ID,
		Identity:    l.Identity,
		Corrections: l.Corrections,
		Fast:        l.Fast,
		Deferred:    deferred,
		Settled:     l.Settled(),
		StartedAt:   l.StartedAt,
	}
}
