// Package orchestrator runs every configured site concurrently under a global
// deadline and merges what they observed.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/scraper"
)

// SiteRunner runs a single site to completion.
type SiteRunner interface {
	RunSite(ctx context.Context, site *config.SiteConfig) scraper.SiteResult
}

// SiteOutcome is the fate of one configured site in a run.
type SiteOutcome struct {
	Site      string
	Result    scraper.SiteResult
	Abandoned bool
}

// RunResult is the merged outcome of all sites.
type RunResult struct {
	Observation models.RunObservation
	// Sites follows configuration order.
	Sites    []SiteOutcome
	TimedOut bool
}

// Complete reports whether every site reported back without a single task
// error. Only a complete run can tell that a product vanished everywhere.
func (r RunResult) Complete() bool {
	if r.TimedOut {
		return false
	}
	for _, s := range r.Sites {
		if s.Abandoned || len(s.Result.Errors) > 0 {
			return false
		}
	}
	return true
}

// TaskErrors flattens the errors of all reported sites in configuration order.
func (r RunResult) TaskErrors() []models.TaskError {
	var out []models.TaskError
	for _, s := range r.Sites {
		out = append(out, s.Result.Errors...)
	}
	return out
}

// Counts returns how many sites completed, were abandoned and failed.
func (r RunResult) Counts() (completed, abandoned, failed int) {
	for _, s := range r.Sites {
		switch {
		case s.Abandoned:
			abandoned++
		case s.Result.Failed:
			failed++
		default:
			completed++
		}
	}
	return completed, abandoned, failed
}

// Orchestrator fans sites out to a SiteRunner.
type Orchestrator struct {
	runner        SiteRunner
	globalTimeout time.Duration
	metrics       *scraper.Metrics
}

// New creates an orchestrator. A zero globalTimeout leaves the run bounded
// only by ctx.
func New(runner SiteRunner, globalTimeout time.Duration, metrics *scraper.Metrics) *Orchestrator {
	return &Orchestrator{runner: runner, globalTimeout: globalTimeout, metrics: metrics}
}

type siteDone struct {
	index  int
	result scraper.SiteResult
}

// RunAll runs every site concurrently and drains results as they finish.
// When the deadline passes (or ctx is cancelled) the sites still running are
// abandoned and contribute nothing, while finished sites are kept.
func (o *Orchestrator) RunAll(ctx context.Context, sites []*config.SiteConfig) RunResult {
	runCtx := ctx
	if o.globalTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.globalTimeout)
		defer cancel()
	}
	runCtx, cancelSites := context.WithCancel(runCtx)
	defer cancelSites()

	// buffered so abandoned sites can still deliver and exit
	done := make(chan siteDone, len(sites))
	for i, site := range sites {
		go func(i int, site *config.SiteConfig) {
			done <- siteDone{index: i, result: o.runner.RunSite(runCtx, site)}
		}(i, site)
	}

	results, timedOut := collect(runCtx, done, len(sites))

	out := RunResult{
		Observation: make(models.RunObservation),
		Sites:       make([]SiteOutcome, len(sites)),
		TimedOut:    timedOut,
	}
	for i, site := range sites {
		res := results[i]
		if res == nil {
			slog.Warn("site abandoned at run deadline", slog.String("site", site.Name))
			o.metrics.IncSite("abandoned")
			out.Sites[i] = SiteOutcome{Site: site.Name, Abandoned: true}
			continue
		}
		out.Sites[i] = SiteOutcome{Site: site.Name, Result: *res}
		for id, rec := range res.Observations {
			out.Observation[id] = rec
		}
	}

	if timedOut {
		completed, abandoned, _ := out.Counts()
		slog.Warn("run deadline reached",
			slog.Int("sites_reported", len(sites)-abandoned),
			slog.Int("sites_completed", completed),
			slog.Int("sites_abandoned", abandoned),
		)
	}
	return out
}

// collect receives up to n site results until ctx is done. Results already
// buffered when ctx fires are kept; it reports whether ctx ended the wait.
func collect(ctx context.Context, done <-chan siteDone, n int) ([]*scraper.SiteResult, bool) {
	results := make([]*scraper.SiteResult, n)
	for received := 0; received < n; {
		select {
		case d := <-done:
			results[d.index] = &d.result
			received++
		case <-ctx.Done():
			for {
				select {
				case d := <-done:
					results[d.index] = &d.result
				default:
					return results, true
				}
			}
		}
	}
	return results, false
}
