// Package models defines data structures shared by the watcher packages.
package models

import "fmt"

// Availability is the raw stock signal an extractor read for one product.
type Availability int

const (
	Unknown Availability = iota
	InStock
	SoldOut
	Preorderable
)

func (a Availability) String() string {
	switch a {
	case InStock:
		return "in_stock"
	case SoldOut:
		return "sold_out"
	case Preorderable:
		return "preorderable"
	default:
		return "unknown"
	}
}

// Identity is the hex encoded fingerprint of a product.
type Identity string

// RawProductRecord is one product as extracted from one page.
type RawProductRecord struct {
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	Price        string       `json:"price,omitempty"`
	Availability Availability `json:"availability"`
	SiteName     string       `json:"site_name"`
	// ForcedAvailable is set when the site is configured to treat every
	// listed product as purchasable.
	ForcedAvailable bool `json:"forced_available,omitempty"`
}

// Purchasable reports whether the record can be bought right now.
func (r RawProductRecord) Purchasable() bool {
	return r.ForcedAvailable || r.Availability == InStock
}

// RunObservation maps every identity seen during a run to its latest record.
type RunObservation map[Identity]RawProductRecord

// TransitionKind classifies how a product changed between two runs.
type TransitionKind int

const (
	Unchanged TransitionKind = iota
	NewProduct
	BackInStock
	BecamePreorderable
	RemovedSoldOut
	RemovedMissing
)

func (k TransitionKind) String() string {
	switch k {
	case NewProduct:
		return "new_product"
	case BackInStock:
		return "back_in_stock"
	case BecamePreorderable:
		return "preorderable"
	case RemovedSoldOut:
		return "removed_sold_out"
	case RemovedMissing:
		return "removed_missing"
	default:
		return "unchanged"
	}
}

// Notifies reports whether the kind is delivered to the notifier.
func (k TransitionKind) Notifies() bool {
	return k == NewProduct || k == BackInStock || k == BecamePreorderable
}

// Transition is the classified change for one identity in one run.
type Transition struct {
	Kind     TransitionKind
	Identity Identity
	Name     string
	Record   RawProductRecord
}

// TaskError records a failure isolated to one site or one URL.
type TaskError struct {
	Site string
	URL  string
	Kind string
	Err  error
}

func (e TaskError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("site %s: %s: %v", e.Site, e.Kind, e.Err)
	}
	return fmt.Sprintf("site %s url %s: %s: %v", e.Site, e.URL, e.Kind, e.Err)
}

func (e TaskError) Unwrap() error {
	return e.Err
}
