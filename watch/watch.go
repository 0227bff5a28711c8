// Package watch runs the full watcher lifecycle: load state, scrape every
// site, reconcile, persist, notify and mirror.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/mirror"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/orchestrator"
	"github.com/aluiziolira/stockwatch/reconcile"
	"github.com/aluiziolira/stockwatch/scraper"
	"github.com/aluiziolira/stockwatch/state"
)

// ErrNoSites is returned when a run is started without any configured site.
var ErrNoSites = errors.New("watch: no sites configured")

// Runner runs all sites and merges their observations.
type Runner interface {
	RunAll(ctx context.Context, sites []*config.SiteConfig) orchestrator.RunResult
}

// Dispatcher delivers notifying transitions and reports how many went out.
type Dispatcher interface {
	Dispatch(ctx context.Context, transitions []models.Transition) (int, []error)
}

// DefaultDispatchTimeout bounds notification delivery once state is saved.
const DefaultDispatchTimeout = 5 * time.Minute

// Watcher owns the single-writer phase of a run. It is not safe for
// concurrent RunOnce calls.
type Watcher struct {
	store       *state.Store
	runner      Runner
	dispatcher  Dispatcher
	mirror      mirror.Sink
	metrics     *scraper.Metrics
	sweepAbsent bool

	dispatchTimeout time.Duration
}

// Options wires a Watcher. Dispatcher, Mirror and Metrics are optional.
// DispatchTimeout defaults to DefaultDispatchTimeout.
type Options struct {
	Store       *state.Store
	Runner      Runner
	Dispatcher  Dispatcher
	Mirror      mirror.Sink
	Metrics     *scraper.Metrics
	SweepAbsent bool

	DispatchTimeout time.Duration
}

// New creates a Watcher.
func New(opts Options) *Watcher {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	return &Watcher{
		store:       opts.Store,
		runner:      opts.Runner,
		dispatcher:  opts.Dispatcher,
		mirror:      opts.Mirror,
		metrics:     opts.Metrics,
		sweepAbsent: opts.SweepAbsent,

		dispatchTimeout: opts.DispatchTimeout,
	}
}

// RunOnce performs one complete run. Only a failure to persist state (or an
// empty site list) is returned as an error; everything else is reported.
// State is always saved before any notification goes out.
func (w *Watcher) RunOnce(ctx context.Context, sites []*config.SiteConfig) (*models.RunReport, error) {
	report := &models.RunReport{
		StartTime:       time.Now(),
		SitesConfigured: len(sites),
		ErrorsByKind:    make(map[string]int),
		Transitions:     make(map[models.TransitionKind]int),
	}
	if len(sites) == 0 {
		report.EndTime = time.Now()
		return report, ErrNoSites
	}

	prior := w.store.Load()
	run := w.runner.RunAll(ctx, sites)

	result := reconcile.Reconcile(prior, run.Observation)
	if w.sweepAbsent && run.Complete() {
		result = reconcile.SweepAbsent(result, run.Observation)
		report.Swept = true
	}

	w.fillReport(report, run, result)

	if err := w.store.Save(result.Next); err != nil {
		report.EndTime = time.Now()
		return report, fmt.Errorf("persist state: %w", err)
	}

	// transitions are persisted now, so an interrupt must not drop them
	notifiable := result.Notifiable()
	if w.dispatcher != nil && len(notifiable) > 0 {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.dispatchTimeout)
		sent, errs := w.dispatcher.Dispatch(dctx, notifiable)
		cancel()
		report.NotificationsSent = sent
		report.NotificationsFailed = len(errs)
	}

	if w.mirror != nil {
		rows := mirror.BuildRows(result.Next, run.Observation, result.Transitions)
		if err := w.mirror.Sync(ctx, rows); err != nil {
			slog.Warn("mirror sync failed", slog.Any("error", err))
		}
	}

	report.EndTime = time.Now()
	if report.TimedOut {
		slog.Warn("run timed out; persisted partial results",
			slog.Int("sites_completed", report.SitesCompleted),
			slog.Int("sites_abandoned", report.SitesAbandoned),
		)
	}
	return report, nil
}

func (w *Watcher) fillReport(report *models.RunReport, run orchestrator.RunResult, result reconcile.Result) {
	report.SitesCompleted, report.SitesAbandoned, report.SitesFailed = run.Counts()
	report.TimedOut = run.TimedOut
	report.Observed = len(run.Observation)

	for _, s := range run.Sites {
		report.PageCount += s.Result.Pages
	}
	report.TaskErrors = run.TaskErrors()
	for _, e := range report.TaskErrors {
		report.ErrorsByKind[e.Kind]++
	}

	for kind, n := range result.Counts() {
		report.Transitions[kind] = n
		w.metrics.AddTransitions(kind.String(), n)
	}
}
