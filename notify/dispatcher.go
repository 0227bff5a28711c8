package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/stockwatch/models"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Metrics receives delivery outcomes.
type Metrics interface {
	IncNotification(outcome string)
}

// Dispatcher delivers notifying transitions one at a time with a minimum
// spacing between deliveries.
type Dispatcher struct {
	notifier Notifier
	limiter  *rate.Limiter
	recent   *lru.Cache[string, struct{}]
	metrics  Metrics
}

// NewDispatcher builds a dispatcher. A zero spacing disables pacing and a
// zero dedupeSize disables duplicate suppression.
func NewDispatcher(notifier Notifier, spacing time.Duration, dedupeSize int, metrics Metrics) (*Dispatcher, error) {
	limit := rate.Inf
	if spacing > 0 {
		limit = rate.Every(spacing)
	}

	d := &Dispatcher{
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, 1),
		metrics:  metrics,
	}
	if dedupeSize > 0 {
		cache, err := lru.New[string, struct{}](dedupeSize)
		if err != nil {
			return nil, fmt.Errorf("notify: dedupe cache: %w", err)
		}
		d.recent = cache
	}
	return d, nil
}

func dedupeKey(t models.Transition) string {
	return t.Kind.String() + "|" + string(t.Identity)
}

// Dispatch sends every notifying transition in order and returns how many
// were delivered. Failures are logged and returned without stopping later
// deliveries. A done ctx ends the batch early with one error for each
// transition left undelivered.
func (d *Dispatcher) Dispatch(ctx context.Context, transitions []models.Transition) (int, []error) {
	var errs []error
	sent := 0
	for i, t := range transitions {
		if !t.Kind.Notifies() {
			continue
		}

		key := dedupeKey(t)
		if d.recent != nil && d.recent.Contains(key) {
			slog.Debug("notification suppressed", slog.String("key", key), slog.String("name", t.Name))
			d.inc("duplicate")
			continue
		}

		if err := d.limiter.Wait(ctx); err != nil {
			left := 0
			for _, rest := range transitions[i:] {
				if rest.Kind.Notifies() {
					errs = append(errs, fmt.Errorf("notify %s %q: wait: %w", rest.Kind, rest.Name, err))
					d.inc("failed")
					left++
				}
			}
			slog.Warn("notification batch abandoned", slog.Int("undelivered", left), slog.Any("error", err))
			return sent, errs
		}

		if err := d.notifier.Notify(ctx, t); err != nil {
			slog.Warn("notification failed",
				slog.String("kind", t.Kind.String()),
				slog.String("name", t.Name),
				slog.String("site", t.Record.SiteName),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("notify %s %q: %w", t.Kind, t.Name, err))
			d.inc("failed")
			continue
		}

		if d.recent != nil {
			d.recent.Add(key, struct{}{})
		}
		d.inc("sent")
		sent++
	}
	return sent, errs
}

func (d *Dispatcher) inc(outcome string) {
	if d.metrics != nil {
		d.metrics.IncNotification(outcome)
	}
}
