package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/validator"
)

func severityIcon(severity string) string {
	switch severity {
	case diag.SeverityError:
		return "✗"
	case diag.SeverityWarning:
		return "⚠"
	default:
		return "ℹ"
	}
}

// WriteText prints the human readable report.
func WriteText(w io.Writer, res *Result) {
	var failed []DesignResult
	for _, d := range res.Designs {
		if d.Error != "" {
			failed = append(failed, d)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(w, "\n=== Failed Designs ===\n")
		for _, d := range failed {
			fmt.Fprintf(w, "  %s: %s\n", d.File, d.Error)
		}
	}

	if len(res.Diagnostics) > 0 {
		fmt.Fprintf(w, "\n=== Diagnostics ===\n")
		for _, d := range res.Diagnostics {
			fmt.Fprintf(w, "%s [%s] %s:%d - %s\n", severityIcon(d.Severity), d.Code, d.File, d.Line, d.Message)
		}
	}

	if len(res.Violations) > 0 {
		fmt.Fprintf(w, "\n=== Contract Violations ===\n")
		for _, v := range res.Violations {
			fmt.Fprintf(w, "%s [%s] %s:%d - %s\n", severityIcon(v.Severity), v.Rule, v.File, v.Line, v.Message)
		}
	}

	var lowered []DesignResult
	for _, d := range res.Designs {
		if d.Error == "" && !d.Stats.Skipped {
			lowered = append(lowered, d)
		}
	}
	if len(lowered) > 0 {
		fmt.Fprintf(w, "\n=== Lowered Designs ===\n")
		for _, d := range lowered {
			suffix := ""
			if d.Cached {
				suffix = " (cached)"
			}
			fmt.Fprintf(w, "  %s -> %s%s\n", d.File, d.Output, suffix)
			fmt.Fprintf(w, "    signals=%d sets=%d forces=%d releases=%d reads=%d\n",
				d.Stats.ShadowedSignals, d.Stats.ShadowSets, d.Stats.ForcesLowered,
				d.Stats.ReleasesLowered, d.Stats.ReadsRedirected)
		}
	}

	fmt.Fprintf(w, "\n=== Lowering Summary ===\n")
	fmt.Fprintf(w, "  Designs:    %d\n", res.Summary.Designs)
	fmt.Fprintf(w, "  Lowered:    %d\n", res.Summary.Lowered)
	fmt.Fprintf(w, "  Skipped:    %d\n", res.Summary.Skipped)
	fmt.Fprintf(w, "  Cached:     %d\n", res.Summary.Cached)
	fmt.Fprintf(w, "  Failed:     %d\n", res.Summary.Failed)
	fmt.Fprintf(w, "  Errors:     %d\n", res.Summary.Errors)
	fmt.Fprintf(w, "  Warnings:   %d\n", res.Summary.Warnings)
	fmt.Fprintf(w, "  Violations: %d\n", res.Summary.Violations)
}

// WriteFactCounts prints the row count of every merged fact relation.
func WriteFactCounts(w io.Writer, res *Result) {
	counts := res.Tables.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\n=== Fact Tables ===\n")
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %d\n", name+":", counts[name])
	}
}

// WriteJSON encodes res after checking it against the output contract.
func WriteJSON(w io.Writer, res *Result) error {
	v, err := validator.NewOutputValidator()
	if err != nil {
		return fmt.Errorf("CRITICAL: failed to initialize output validator: %w", err)
	}
	if err := v.Validate(res); err != nil {
		return fmt.Errorf("CRITICAL: output contract violation: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
