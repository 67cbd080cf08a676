// Package reconcile classifies harvested records against the signatures of
// the previous run and persists the new signatures.
package reconcile

import (
	"context"
	"fmt"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
	"github.com/02loveslollipop/sensorthings-metadata/internal/signature"
)

// Status is the classification of one record against prior state.
type Status string

const (
	Created   Status = "created"
	Updated   Status = "updated"
	Unchanged Status = "unchanged"
)

// Outcome is the result of comparing a record set with prior state.
type Outcome struct {
	// Records is the full current set, unchanged records included.
	Records  []models.Record
	Statuses map[string]Status
	Summary  models.Summary
	// State is the state to persist: exactly the current records.
	State State
	// Duplicates lists keys that appeared more than once in the input.
	// Only the first record with a given key is kept.
	Duplicates []string
}

// Reconcile classifies records against prior. Ids present in prior but not in
// records are left out of the new state. Repeated ids are classified once, on
// their first occurrence. It performs no I/O.
func Reconcile(prior State, records []models.Record) Outcome {
	out := Outcome{
		Records:  make([]models.Record, 0, len(records)),
		Statuses: make(map[string]Status, len(records)),
		State:    make(State, len(records)),
	}

	for _, rec := range records {
		key := rec.Key()
		if _, dup := out.Statuses[key]; dup {
			out.Duplicates = append(out.Duplicates, key)
			continue
		}
		sig := signature.Of(rec)

		previous, seen := prior[key]
		var status Status
		switch {
		case !seen:
			status = Created
			out.Summary.Created++
		case previous != sig:
			status = Updated
			out.Summary.Updated++
		default:
			status = Unchanged
			out.Summary.Unchanged++
		}

		out.Statuses[key] = status
		out.State[key] = sig
		out.Records = append(out.Records, rec)
	}
	out.Summary.Total = len(out.Records)
	return out
}

// Run loads prior state from store, reconciles records and saves the new
// state. Nothing is saved when ctx is done before the save. A StateWriteError
// is returned together with a valid Outcome.
func Run(ctx context.Context, store Store, records []models.Record) (Outcome, error) {
	prior, err := store.Load()
	if err != nil {
		return Outcome{}, err
	}

	out := Reconcile(prior, records)

	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("reconcile: %w", err)
	}
	if err := store.Save(out.State); err != nil {
		return out, err
	}
	return out, nil
}
