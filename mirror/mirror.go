// Package mirror keeps an external table of currently available products in
// step with the persisted state.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aluiziolira/stockwatch/models"
	"github.com/aluiziolira/stockwatch/notify"
	"github.com/aluiziolira/stockwatch/state"
)

// Header is the column order shared by every sink.
var Header = []string{"hash", "product_name", "price", "url", "store", "status"}

// Row is one available product.
type Row struct {
	Hash        string `json:"hash"`
	ProductName string `json:"product_name"`
	Price       string `json:"price"`
	URL         string `json:"url"`
	Store       string `json:"store"`
	Status      string `json:"status"`
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{r.Hash, r.ProductName, r.Price, r.URL, r.Store, r.Status}
}

// Sink receives the full set of rows after every run.
type Sink interface {
	Sync(ctx context.Context, rows []Row) error
}

// BuildRows produces one row per identity in next.Available, sorted by hash.
// Details come from this run's observation when the product was seen;
// otherwise only the name is known.
func BuildRows(next state.PersistedState, obs models.RunObservation, transitions []models.Transition) []Row {
	status := make(map[models.Identity]string, len(transitions))
	for _, t := range transitions {
		if t.Kind.Notifies() {
			status[t.Identity] = notify.Category(t.Kind)
		}
	}

	rows := make([]Row, 0, len(next.Available))
	for id, name := range next.Available {
		row := Row{Hash: string(id), ProductName: name}
		if rec, ok := obs[id]; ok {
			row.Price = rec.Price
			row.URL = rec.URL
			row.Store = rec.SiteName
			row.Status = availabilityStatus(rec)
		}
		if s, ok := status[id]; ok {
			row.Status = s
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Hash < rows[j].Hash })
	return rows
}

func availabilityStatus(rec models.RawProductRecord) string {
	switch {
	case rec.Availability == models.Preorderable:
		return "Pre-orderable"
	case rec.Purchasable():
		return "In stock"
	default:
		return ""
	}
}

// MultiSink fans a sync out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks; nil entries are ignored.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Sync runs every sink and joins their errors.
func (m *MultiSink) Sync(ctx context.Context, rows []Row) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sync(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("%T sync failed: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// New builds the sink for a configured format. An empty format disables the
// mirror and returns a nil sink.
func New(format, path string) (Sink, error) {
	switch format {
	case "":
		return nil, nil
	case "csv":
		return CSVSink{Path: path}, nil
	case "json":
		return JSONSink{Path: path}, nil
	case "xlsx":
		return NewXLSXSink(path, DefaultSheet), nil
	case "dual":
		base := strings.TrimSuffix(path, filepath.Ext(path))
		return NewMultiSink(CSVSink{Path: base + ".csv"}, JSONSink{Path: base + ".jsonl"}), nil
	default:
		return nil, fmt.Errorf("mirror: unknown format %q", format)
	}
}
