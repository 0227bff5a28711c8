// Package scraper fetches configured sites and turns their pages into product
// observations.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/identity"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/parser"
)

// RunnerConfig holds the run-wide defaults a site may override.
type RunnerConfig struct {
	MaxParallelURLs int
	SiteTimeout     time.Duration
	URLTimeout      time.Duration
	Retry           RetryPolicy
}

// SiteResult is everything one site contributed to a run.
type SiteResult struct {
	Site         string
	Observations models.RunObservation
	Errors       []models.TaskError
	// Pages counts pages extracted successfully out of URLs expanded.
	Pages    int
	URLs     int
	Failed   bool
	TimedOut bool
}

// SiteRunner fetches every page of a site with bounded concurrency.
type SiteRunner struct {
	cfg     RunnerConfig
	html    Extractor
	feed    Extractor
	filter  *parser.KeywordFilter
	metrics *Metrics
}

// NewSiteRunner wires a runner. A nil filter accepts every record and nil
// metrics disables instrumentation.
func NewSiteRunner(cfg RunnerConfig, html, feed Extractor, filter *parser.KeywordFilter, metrics *Metrics) *SiteRunner {
	if cfg.MaxParallelURLs <= 0 {
		cfg.MaxParallelURLs = 1
	}
	return &SiteRunner{
		cfg:     cfg,
		html:    html,
		feed:    feed,
		filter:  filter,
		metrics: metrics,
	}
}

type pageResult struct {
	records []models.RecordResult
	err     error
}

// RunSite expands the site's URLs, extracts them concurrently and merges the
// records in expansion order. It never returns an error; failures are
// reported as task errors on the result.
func (r *SiteRunner) RunSite(ctx context.Context, site *config.SiteConfig) SiteResult {
	res := SiteResult{Site: site.Name, Observations: make(models.RunObservation)}
	logger := slog.With(slog.String("site", site.Name))

	urls, err := site.Expand()
	if err != nil {
		logger.Warn("site configuration rejected", slog.Any("error", err))
		res.Errors = append(res.Errors, models.TaskError{Site: site.Name, Kind: "config", Err: err})
		res.Failed = true
		r.metrics.IncError("config")
		r.metrics.IncSite("failed")
		return res
	}
	res.URLs = len(urls)

	extractor := r.html
	parallel := r.cfg.MaxParallelURLs
	if site.MaxParallelURLs > 0 {
		parallel = site.MaxParallelURLs
	}
	if site.IsFeed() {
		extractor = r.feed
		parallel = 1
	}
	if extractor == nil {
		err := errors.New("no extractor available for site")
		res.Errors = append(res.Errors, models.TaskError{Site: site.Name, Kind: "config", Err: err})
		res.Failed = true
		r.metrics.IncError("config")
		r.metrics.IncSite("failed")
		return res
	}

	siteTimeout := r.cfg.SiteTimeout
	if site.Timeout > 0 {
		siteTimeout = site.Timeout
	}
	siteCtx := ctx
	if siteTimeout > 0 {
		var cancel context.CancelFunc
		siteCtx, cancel = context.WithTimeout(ctx, siteTimeout)
		defer cancel()
	}

	pages := make([]pageResult, len(urls))
	sem := make(chan struct{}, parallel)
	var wg sync.WaitGroup
	for i, pageURL := range urls {
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-siteCtx.Done():
				pages[i] = pageResult{err: classifyError(siteCtx.Err(), 0)}
				return
			}
			defer func() { <-sem }()
			pages[i] = r.fetchPage(siteCtx, extractor, site, pageURL)
		}(i, pageURL)
	}
	wg.Wait()

	for i, page := range pages {
		if page.err != nil {
			kind := errorTypeLabel(page.err)
			logger.Warn("page failed",
				slog.String("url", urls[i]),
				slog.String("error_type", kind),
				slog.Any("error", page.err),
			)
			res.Errors = append(res.Errors, models.TaskError{Site: site.Name, URL: urls[i], Kind: kind, Err: page.err})
			r.metrics.IncError(kind)
			continue
		}
		res.Pages++
		r.mergeRecords(site, urls[i], page.records, res.Observations)
	}

	res.TimedOut = errors.Is(siteCtx.Err(), context.DeadlineExceeded)
	res.Failed = res.Pages == 0

	outcome := "success"
	switch {
	case res.Failed:
		outcome = "failed"
	case len(res.Errors) > 0:
		outcome = "partial"
	}
	r.metrics.IncSite(outcome)

	logger.Info("site finished",
		slog.Int("urls", res.URLs),
		slog.Int("pages", res.Pages),
		slog.Int("products", len(res.Observations)),
		slog.Int("errors", len(res.Errors)),
	)
	return res
}

// fetchPage runs the extractor with a per-attempt timeout and retries
// transient failures while the site context is alive.
func (r *SiteRunner) fetchPage(ctx context.Context, extractor Extractor, site *config.SiteConfig, pageURL string) pageResult {
	urlTimeout := r.cfg.URLTimeout
	if site.URLTimeout > 0 {
		urlTimeout = site.URLTimeout
	}

	for retries := 0; ; retries++ {
		start := time.Now()
		records, err := r.attempt(ctx, extractor, site, pageURL, urlTimeout)
		r.metrics.ObserveDuration(time.Since(start))
		if err == nil {
			r.metrics.IncPage("success")
			return pageResult{records: records}
		}

		err = classifyError(err, 0)
		if ctx.Err() != nil || !r.cfg.Retry.ShouldRetry(err, retries) {
			r.metrics.IncPage("failure")
			return pageResult{err: err}
		}

		r.metrics.IncRetries()
		slog.Debug("retrying page",
			slog.String("site", site.Name),
			slog.String("url", pageURL),
			slog.Int("attempt", retries+1),
			slog.Any("error", err),
		)
		if werr := r.cfg.Retry.Wait(ctx, retries+1); werr != nil {
			r.metrics.IncPage("failure")
			return pageResult{err: err}
		}
	}
}

func (r *SiteRunner) attempt(ctx context.Context, extractor Extractor, site *config.SiteConfig, pageURL string, timeout time.Duration) ([]models.RecordResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return extractor.Extract(ctx, site, pageURL)
}

func (r *SiteRunner) mergeRecords(site *config.SiteConfig, pageURL string, records []models.RecordResult, into models.RunObservation) {
	for _, result := range records {
		rec, err := result.Unwrap()
		if err == nil {
			err = parser.ValidateRecord(&rec)
		}
		if err != nil {
			slog.Debug("skipping record",
				slog.String("site", site.Name),
				slog.String("url", pageURL),
				slog.Any("error", err),
			)
			r.metrics.IncSkipped("invalid")
			continue
		}

		if !site.SkipKeywords && !r.filter.Match(rec.Name) {
			r.metrics.IncSkipped("keyword")
			continue
		}
		if site.ForceAvailable {
			rec.ForcedAvailable = true
		}

		into[identity.ForRecord(rec, site.LinkIdentity)] = rec
		r.metrics.IncRecords()
	}
}
