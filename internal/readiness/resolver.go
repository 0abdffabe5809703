package readiness

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"clip-flow/internal/domain"
)

// Probes are the external availability signals the resolver queries. Each
// probe is independently failable; a probe error degrades that one signal
// to its negative default.
type Probes interface {
	CheckEngineAvailable(ctx context.Context) (bool, error)
	ListInstalledModels(ctx context.Context) ([]string, error)
	APIKeyStatus(ctx context.Context) (domain.APIKeyStatus, error)
}

// Resolver computes whether the currently selected transcription pipeline
// can execute, with automatic fallback to the other provider. It owns no
// job state; the cached report is replaced atomically on each recheck.
type Resolver struct {
	probes Probes
	logger logrus.FieldLogger

	mu       sync.Mutex
	inflight int
	report   domain.ReadinessReport
}

// NewResolver creates a resolver over the given probe set.
func NewResolver(probes Probes, logger logrus.FieldLogger) *Resolver {
	if logger == nil {
		base := logrus.New()
		logger = base.WithField("component", "readiness")
	}
	return &Resolver{probes: probes, logger: logger}
}

// Resolve issues the three probes concurrently and computes a fresh verdict
// from the given settings. It is a pure function of its inputs plus the
// probe results and does not touch the cached report.
func (r *Resolver) Resolve(ctx context.Context, settings domain.Settings) domain.ReadinessReport {
	var (
		wg        sync.WaitGroup
		available bool
		models    []string
		keys      domain.APIKeyStatus
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		ok, err := r.probes.CheckEngineAvailable(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("engine availability probe failed")
			return
		}
		available = ok
	}()
	go func() {
		defer wg.Done()
		list, err := r.probes.ListInstalledModels(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("installed models probe failed")
			return
		}
		models = list
	}()
	go func() {
		defer wg.Done()
		status, err := r.probes.APIKeyStatus(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("api key status probe failed")
			return
		}
		keys = status
	}()
	wg.Wait()

	return buildReport(settings, available, models, keys)
}

// Recheck re-runs the full probe set and replaces the cached report
// atomically. Consumers polling Report never see a torn mix of old and new
// fields: IsChecking flips true for the duration, then the whole report
// swaps at once.
func (r *Resolver) Recheck(ctx context.Context, settings domain.Settings) domain.ReadinessReport {
	// Overlapping rechecks are counted, not flagged: the report stays in
	// the checking state until the last in-flight probe set finishes.
	r.mu.Lock()
	r.inflight++
	r.mu.Unlock()

	report := r.Resolve(ctx, settings)

	r.mu.Lock()
	r.inflight--
	r.report = report
	r.mu.Unlock()

	return report
}

// Report returns the last computed verdict. While a recheck is in flight the
// report shows IsChecking true and IsReady false.
func (r *Resolver) Report() domain.ReadinessReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := r.report
	if r.inflight > 0 {
		report.IsChecking = true
		report.IsReady = false
	}
	return report
}

// buildReport derives all readiness fields from the raw probe signals.
func buildReport(settings domain.Settings, engineAvailable bool, models []string, keys domain.APIKeyStatus) domain.ReadinessReport {
	report := domain.ReadinessReport{
		GeneratedAt:        time.Now().UTC(),
		WhisperAvailable:   engineAvailable,
		HasInstalledModels: len(models) > 0,
		InstalledModels:    models,
		HasOpenAIKey:       keys.OpenAI,
		HasClaudeKey:       keys.Claude,
	}

	for _, id := range models {
		if id == settings.ModelID {
			report.SelectedModelInstalled = true
			break
		}
	}

	localReady := report.WhisperAvailable && report.HasInstalledModels
	openAIReady := report.HasOpenAIKey

	// The verdict is usable if any viable path exists, even when the
	// selected provider is broken. The stored preference is never changed.
	switch settings.Provider {
	case domain.ProviderOpenAI:
		report.IsReady = openAIReady || localReady
	default:
		report.IsReady = localReady || openAIReady
	}

	return report
}
