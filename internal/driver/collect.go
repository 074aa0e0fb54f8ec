package driver

import (
	"context"
	"fmt"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/facts"
	"github.com/robert-at-pretension-io/hdl-force/internal/force"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// Snapshot holds the fact tables of the designs under a path before and
// after lowering. Nothing is written to disk.
type Snapshot struct {
	Before facts.Tables
	After  facts.Tables
}

// Collect lowers every design under rootPath in memory and returns its fact
// tables. The first design that cannot be read, decoded or lowered stops
// the collection.
func (d *Driver) Collect(ctx context.Context, rootPath string) (*Snapshot, error) {
	files, _, err := d.scan(rootPath)
	if err != nil {
		return nil, err
	}
	cfg := d.Config
	var before, after []facts.Tables
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := netlist.ReadDocument(file)
		if err != nil {
			return nil, err
		}
		nl, err := netlist.Decode(doc, file)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", file, err)
		}
		before = append(before, facts.BuildTables(nl, file, nil))

		sink := diag.NewCollector(func(code diag.Code, def string) string {
			return cfg.GetRuleSeverity(string(code), def)
		})
		if _, err := force.Run(nl, sink, force.Options{Logger: d.Logger, Verify: cfg.OwnershipEnabled()}); err != nil {
			return nil, fmt.Errorf("lowering %s: %w", file, err)
		}
		after = append(after, facts.BuildTables(nl, file, sink.Diagnostics()))
	}
	return &Snapshot{Before: facts.Merge(before...), After: facts.Merge(after...)}, nil
}

// Delta reports what lowering added and removed.
func (s *Snapshot) Delta() facts.Delta {
	return facts.ComputeDelta(s.Before, s.After)
}
