// Package output writes harvest results to JSON files.
package output

import (
	"context"
	"fmt"

	"github.com/02loveslollipop/sensorthings-metadata/internal/atomicfile"
	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
)

// Files writes the records, STAC and DCAT views of every run that produced a
// snapshot. Empty paths are skipped.
type Files struct {
	Records string
	STAC    string
	DCAT    string
}

// Enabled reports whether any path is set.
func (f Files) Enabled() bool {
	return f.Records != "" || f.STAC != "" || f.DCAT != ""
}

func (f Files) Name() string { return "files" }

// Publish implements harvest.Publisher.
func (f Files) Publish(_ context.Context, run harvest.Run) error {
	snap := run.Snapshot
	if snap == nil {
		return nil
	}

	targets := []struct {
		path string
		v    any
	}{
		{f.Records, snap.Records},
		{f.STAC, snap.STAC},
		{f.DCAT, snap.DCAT},
	}
	for _, t := range targets {
		if t.path == "" {
			continue
		}
		if err := atomicfile.WriteJSON(t.path, t.v); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}
