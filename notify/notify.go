// Package notify delivers product transitions to an external channel.
package notify

import (
	"context"
	"log/slog"

	"github.com/aluiziolira/stockwatch/models"
)

// Notifier delivers one transition.
type Notifier interface {
	Notify(ctx context.Context, t models.Transition) error
}

// Category is the presentation label of a notifying transition kind.
func Category(kind models.TransitionKind) string {
	switch kind {
	case models.NewProduct:
		return "New product"
	case models.BackInStock:
		return "Back in stock"
	case models.BecamePreorderable:
		return "Pre-orderable"
	default:
		return ""
	}
}

// LogNotifier writes transitions to the structured log. It stands in when no
// webhook is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs t.
func (n LogNotifier) Notify(_ context.Context, t models.Transition) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("product update",
		slog.String("status", Category(t.Kind)),
		slog.String("name", t.Name),
		slog.String("site", t.Record.SiteName),
		slog.String("price", t.Record.Price),
		slog.String("url", t.Record.URL),
	)
	return nil
}
