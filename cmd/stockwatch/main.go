package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/stockwatch/config"
	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/scraper"
	"github.com/aluiziolira/stockwatch/watch"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	once, err := parseFlags(cfg, args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	metrics := scraper.NewMetrics()
	w, err := watch.Build(cfg, metrics)
	if err != nil {
		slog.Error("initialising watcher", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics)
	defer shutdownMetricsServer(metricsServer)

	if once || cfg.Schedule == "" {
		if err := runOnce(ctx, w, cfg); err != nil {
			slog.Error("run failed", slog.Any("error", err))
			return 1
		}
		return 0
	}

	return schedule(ctx, w, cfg)
}

// runOnce reloads the site list so edits apply on the next scheduled run.
func runOnce(ctx context.Context, w *watch.Watcher, cfg *config.Config) error {
	loaded, err := config.LoadSites(cfg.SitesFile, cfg.SitesSheet)
	if err != nil {
		return fmt.Errorf("load sites: %w", err)
	}
	sites := make([]*config.SiteConfig, len(loaded))
	for i := range loaded {
		sites[i] = &loaded[i]
	}

	slog.Info("starting run",
		slog.String("sites_file", cfg.SitesFile),
		slog.Int("sites", len(sites)),
		slog.Duration("global_timeout", cfg.GlobalTimeout),
	)

	report, err := w.RunOnce(ctx, sites)
	if report != nil {
		printSummary(os.Stdout, report)
	}
	return err
}

func schedule(ctx context.Context, w *watch.Watcher, cfg *config.Config) int {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	_, err := c.AddFunc(cfg.Schedule, func() {
		if err := runOnce(ctx, w, cfg); err != nil {
			slog.Error("scheduled run failed", slog.Any("error", err))
		}
	})
	if err != nil {
		slog.Error("invalid schedule", slog.String("schedule", cfg.Schedule), slog.Any("error", err))
		return 1
	}

	slog.Info("scheduler started", slog.String("schedule", cfg.Schedule))
	c.Start()
	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for the current run to finish")
	<-c.Stop().Done()
	return 0
}

func applyEnv(cfg *config.Config) error {
	if v, ok := config.EnvString("STOCKWATCH_SITES_FILE"); ok {
		cfg.SitesFile = v
	}
	if v, ok := config.EnvString("STOCKWATCH_SITES_SHEET"); ok {
		cfg.SitesSheet = v
	}
	if v, ok := config.EnvString("STOCKWATCH_STATE_DIR"); ok {
		cfg.StateDir = v
	}
	if v, ok := config.EnvString("STOCKWATCH_USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	if v, ok := config.EnvString("DISCORD_WEBHOOK"); ok {
		cfg.WebhookURL = v
	}
	if v, ok := config.EnvString("STOCKWATCH_MIRROR_FILE"); ok {
		cfg.MirrorFile = v
	}
	if v, ok := config.EnvString("STOCKWATCH_MIRROR_FORMAT"); ok {
		cfg.MirrorFormat = strings.ToLower(v)
	}
	if v, ok := config.EnvString("STOCKWATCH_SCHEDULE"); ok {
		cfg.Schedule = v
	}
	if v, ok := config.EnvString("STOCKWATCH_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := config.EnvList("STOCKWATCH_KEYWORDS"); ok {
		cfg.Keywords = v
	}
	if v, ok := config.EnvList("STOCKWATCH_BLOCKED_KEYWORDS"); ok {
		cfg.BlockedKeywords = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"STOCKWATCH_GLOBAL_TIMEOUT", &cfg.GlobalTimeout},
		{"STOCKWATCH_SITE_TIMEOUT", &cfg.SiteTimeout},
		{"STOCKWATCH_URL_TIMEOUT", &cfg.URLTimeout},
		{"STOCKWATCH_RETRY_BACKOFF", &cfg.RetryBackoff},
		{"STOCKWATCH_RETRY_BACKOFF_MAX", &cfg.RetryBackoffMax},
		{"STOCKWATCH_NOTIFY_SPACING", &cfg.NotifySpacing},
	}
	for _, d := range durations {
		v, ok, err := config.EnvDuration(d.key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if ok {
			*d.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"STOCKWATCH_MAX_PARALLEL_URLS", &cfg.MaxParallelURLs},
		{"STOCKWATCH_MAX_RETRIES", &cfg.MaxRetries},
		{"STOCKWATCH_NOTIFY_DEDUPE_SIZE", &cfg.NotifyDedupeSize},
	}
	for _, n := range ints {
		v, ok, err := config.EnvInt(n.key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", n.key, err)
		}
		if ok {
			*n.dst = v
		}
	}

	if v, ok, err := config.EnvBool("STOCKWATCH_SWEEP_ABSENT"); err != nil {
		return fmt.Errorf("invalid STOCKWATCH_SWEEP_ABSENT: %w", err)
	} else if ok {
		cfg.SweepAbsent = v
	}
	if v, ok, err := config.EnvBool("STOCKWATCH_VERBOSE"); err != nil {
		return fmt.Errorf("invalid STOCKWATCH_VERBOSE: %w", err)
	} else if ok {
		cfg.Verbose = v
	}
	return nil
}

// parseFlags binds flags to cfg, whose current values become the defaults.
// It reports whether -once was given.
func parseFlags(cfg *config.Config, args []string, output io.Writer) (bool, error) {
	fs := flag.NewFlagSet("stockwatch", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&cfg.SitesFile, "sites", cfg.SitesFile, "Site list (.yaml, .yml, .json or .xlsx)")
	fs.StringVar(&cfg.SitesSheet, "sites-sheet", cfg.SitesSheet, "Worksheet holding the site list when -sites is a workbook")
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "Directory for persisted state")
	fs.DurationVar(&cfg.GlobalTimeout, "timeout", cfg.GlobalTimeout, "Deadline for a whole run")
	fs.DurationVar(&cfg.SiteTimeout, "site-timeout", cfg.SiteTimeout, "Default per-site deadline (0 disables)")
	fs.DurationVar(&cfg.URLTimeout, "url-timeout", cfg.URLTimeout, "Per-request deadline")
	fs.IntVar(&cfg.MaxParallelURLs, "parallel", cfg.MaxParallelURLs, "Concurrent page fetches per site")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts per URL")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header for requests")
	fs.StringVar(&cfg.WebhookURL, "webhook", cfg.WebhookURL, "Discord webhook URL (empty logs notifications)")
	fs.DurationVar(&cfg.NotifySpacing, "notify-spacing", cfg.NotifySpacing, "Minimum gap between notifications")
	fs.IntVar(&cfg.NotifyDedupeSize, "notify-dedupe", cfg.NotifyDedupeSize, "Recently sent notifications remembered")
	fs.StringVar(&cfg.MirrorFile, "mirror", cfg.MirrorFile, "Mirror output path")
	fs.StringVar(&cfg.MirrorFormat, "mirror-format", cfg.MirrorFormat, "Mirror format: csv, json, xlsx, dual, or empty")
	fs.BoolVar(&cfg.SweepAbsent, "sweep", cfg.SweepAbsent, "Drop available products missing from a complete run")
	fs.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "Cron schedule; empty runs once")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	keywords := fs.String("keywords", strings.Join(cfg.Keywords, ","), "Comma separated include keywords")
	blocked := fs.String("blocked", strings.Join(cfg.BlockedKeywords, ","), "Comma separated blocked keywords")
	once := fs.Bool("once", false, "Run once and exit even when a schedule is set")

	if err := fs.Parse(args); err != nil {
		return false, err
	}

	cfg.MirrorFormat = strings.ToLower(cfg.MirrorFormat)
	cfg.Keywords = splitList(*keywords)
	cfg.BlockedKeywords = splitList(*blocked)
	return *once, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return srv
}

func shutdownMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(out io.Writer, r *models.RunReport) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	if r.TimedOut {
		fmt.Fprintln(out, "Run timed out (partial results saved)")
	} else {
		fmt.Fprintln(out, "Run complete")
	}

	fmt.Fprintf(out, "  Sites:         %d configured, %d completed, %d abandoned, %d failed\n",
		r.SitesConfigured, r.SitesCompleted, r.SitesAbandoned, r.SitesFailed)
	fmt.Fprintf(out, "  Pages:         %d\n", r.PageCount)
	fmt.Fprintf(out, "  Products:      %d observed\n", r.Observed)
	if len(r.Transitions) > 0 {
		kinds := make([]string, 0, len(r.Transitions))
		for k, n := range r.Transitions {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(out, "  Transitions:   %s\n", strings.Join(kinds, " "))
	}
	fmt.Fprintf(out, "  Notifications: %d sent, %d failed\n", r.NotificationsSent, r.NotificationsFailed)
	fmt.Fprintf(out, "  Errors:        %d\n", len(r.TaskErrors))
	if len(r.ErrorsByKind) > 0 {
		fmt.Fprintf(out, "  Error types:   %v\n", r.ErrorsByKind)
	}
	fmt.Fprintf(out, "  Swept:         %v\n", r.Swept)
	fmt.Fprintf(out, "  Duration:      %v\n", r.Duration())
	fmt.Fprintln(out, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
