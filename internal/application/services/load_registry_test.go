package services

import (
	"context"
	"testing"
	"time"

	"github.com/SocialGouv/champollion-go/internal/domain/results"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_CancelUnknownLoad(t *testing.T) {
	registry := NewLoadRegistry(logging.NewDiscardLogger())

	assert.False(t, registry.Cancel("missing"))
	_, ok := registry.Get("missing")
	assert.False(t, ok)
}

func TestLoadRegistry_SweepCancelsAbandonedAndEvictsSettled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	settled, err := f.synthesis.Load(ctx, testSiret)
	require.NoError(t, err)
	waitSettled(t, settled)

	f.api.gate = make(chan struct{})
	defer close(f.api.gate)
	pending, err := f.synthesis.Load(ctx, testSiret)
	require.NoError(t, err)
	require.Equal(t, 2, f.registry.Len())

	canceled, evicted := f.registry.Sweep(time.Now(), time.Hour, time.Hour)
	assert.Zero(t, canceled)
	assert.Zero(t, evicted)

	later := time.Now().Add(2 * time.Minute)
	canceled, evicted = f.registry.Sweep(later, time.Minute, time.Minute)
	assert.Equal(t, 1, canceled)
	assert.Equal(t, 1, evicted)

	waitSettled(t, pending)
	assert.Equal(t, results.StateCanceled, pending.Deferred.Headcount.State())
	_, ok := f.registry.Get(settled.ID)
	assert.False(t, ok)
	_, ok = f.registry.Get(pending.ID)
	assert.True(t, ok, "canceled load stays until its retention expires")
}

func TestLoadRegistry_CancelAll(t *testing.T) {
	f := newFixture(t)
	f.api.gate = make(chan struct{})
	defer close(f.api.gate)

	var loads []*SynthesisLoad
	for i := 0; i < 3; i++ {
		load, err := f.synthesis.Load(context.Background(), testSiret)
		require.NoError(t, err)
		loads = append(loads, load)
	}

	assert.Equal(t, 3, f.registry.CancelAll())
	for _, load := range loads {
		waitSettled(t, load)
		assert.Equal(t, results.StateCanceled, load.Deferred.JobProportion.State())
	}
}

func TestJanitor_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	janitor := NewJanitor(f.registry, performance.NewTracker(nil), JanitorConfig{
		Interval:     5 * time.Millisecond,
		AbandonTTL:   0,
		RetentionTTL: time.Hour,
	}, logging.NewDiscardLogger())

	f.api.gate = make(chan struct{})
	defer close(f.api.gate)
	load, err := f.synthesis.Load(context.Background(), testSiret)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		janitor.Start(ctx)
		close(stopped)
	}()

	waitSettled(t, load)
	assert.Equal(t, results.StateCanceled, load.Deferred.ContractNature.State())

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_NonPositiveIntervalUsesDefault(t *testing.T) {
	registry := NewLoadRegistry(logging.NewDiscardLogger())
	janitor := NewJanitor(registry, nil, JanitorConfig{Interval: 0}, logging.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		janitor.Start(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestJanitor_ReportsEachAlertOnce(t *testing.T) {
	perf := performance.NewTracker(nil)
	perf.SetThresholds(&performance.AlertThresholds{
		VerySlowResponseThreshold: time.Hour,
		CriticalResponseThreshold: time.Hour,
		APICallThreshold:          time.Nanosecond,
		StoreOperationThreshold:   time.Hour,
	})
	janitor := NewJanitor(NewLoadRegistry(logging.NewDiscardLogger()), perf, JanitorConfig{Interval: time.Hour}, logging.NewDiscardLogger())

	marker := perf.StartOperation("api:establishment_info", testSiret)
	time.Sleep(time.Millisecond)
	perf.CompleteOperation(marker)

	assert.Equal(t, 1, janitor.reportAlerts())
	assert.Zero(t, janitor.reportAlerts())
}
