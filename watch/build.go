package watch

import (
	"fmt"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/mirror"
	"github.com/aluiziolira/stockwatch/notify"
	"github.com/aluiziolira/stockwatch/orchestrator"
	"github.com/aluiziolira/stockwatch/parser"
	"github.com/aluiziolira/stockwatch/scraper"
	"github.com/aluiziolira/stockwatch/state"
)

// Build wires a Watcher from run configuration. Without a webhook,
// notifications go to the log.
func Build(cfg *config.Config, metrics *scraper.Metrics) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	filter, err := parser.NewKeywordFilter(cfg.Keywords, cfg.BlockedKeywords)
	if err != nil {
		return nil, fmt.Errorf("keyword filter: %w", err)
	}

	transport := scraper.NewTransport(cfg.URLTimeout)
	runner := scraper.NewSiteRunner(
		scraper.RunnerConfig{
			MaxParallelURLs: cfg.MaxParallelURLs,
			SiteTimeout:     cfg.SiteTimeout,
			URLTimeout:      cfg.URLTimeout,
			Retry: scraper.RetryPolicy{
				MaxRetries: cfg.MaxRetries,
				Backoff:    cfg.RetryBackoff,
				BackoffMax: cfg.RetryBackoffMax,
			},
		},
		scraper.NewHTMLExtractor(cfg.UserAgent, transport),
		scraper.NewFeedExtractor(cfg.UserAgent, transport),
		filter,
		metrics,
	)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewDiscord(cfg.WebhookURL)
	}
	dispatcher, err := notify.NewDispatcher(notifier, cfg.NotifySpacing, cfg.NotifyDedupeSize, metrics)
	if err != nil {
		return nil, err
	}

	sink, err := mirror.New(cfg.MirrorFormat, cfg.MirrorFile)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Store:       state.NewStore(cfg.StateDir),
		Runner:      orchestrator.New(runner, cfg.GlobalTimeout, metrics),
		Dispatcher:  dispatcher,
		Mirror:      sink,
		Metrics:     metrics,
		SweepAbsent: cfg.SweepAbsent,
	}), nil
}
