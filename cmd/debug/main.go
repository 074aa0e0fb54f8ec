package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/force"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// debug prints a design document as text before and after force lowering,
// with the pass's debug log on stderr.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: debug <design.json>")
		os.Exit(1)
	}
	path := os.Args[1]

	doc, err := netlist.ReadDocument(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	nl, err := netlist.Decode(doc, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	fmt.Printf("=== Before ===\n%s", nl.Dump())

	sink := diag.NewCollector(nil)
	pass := force.NewPass(nl, sink, force.Options{Logger: logger})
	if err := pass.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := nl.Check(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: netlist check: %v\n", err)
		os.Exit(1)
	}
	stats := pass.Stats()

	fmt.Printf("\n=== After ===\n%s", nl.Dump())
	fmt.Printf("\n=== Shadow Sets ===\n")
	for _, set := range pass.ShadowSets() {
		fmt.Printf("  %s: rd=%s en=%s val=%s\n", nl.VarScopeName(set.Original),
			nl.VarScopeName(set.ReadAlias), nl.VarScopeName(set.Enable), nl.VarScopeName(set.Value))
	}
	fmt.Printf("\n=== Stats ===\n")
	fmt.Printf("  skipped=%v shadowed=%d sets=%d forces=%d releases=%d reads=%d\n",
		stats.Skipped, stats.ShadowedSignals, stats.ShadowSets,
		stats.ForcesLowered, stats.ReleasesLowered, stats.ReadsRedirected)
	for _, d := range sink.Diagnostics() {
		fmt.Printf("  %s\n", d)
	}
}
