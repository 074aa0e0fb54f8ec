package facts

import "testing"

func TestFilterTablesByFiles(t *testing.T) {
	tables := Tables{
		Designs: []DesignRow{
			{Name: "a", File: "a.json"},
			{Name: "b", File: "b.json"},
		},
		Signals: []SignalRow{
			{Module: "a", Name: "clk", File: "a.json"},
			{Module: "b", Name: "rst", File: "b.json"},
		},
		Diagnostics: []DiagnosticRow{
			{Code: "force-primary-io", File: "a.json"},
			{Code: "force-primary-io", File: "b.json"},
		},
	}

	files := map[string]bool{"a.json": true}
	filtered := FilterTablesByFiles(tables, files)

	if len(filtered.Designs) != 1 || filtered.Designs[0].File != "a.json" {
		t.Fatalf("expected only a.json design row, got %#v", filtered.Designs)
	}
	if len(filtered.Signals) != 1 || filtered.Signals[0].File != "a.json" {
		t.Fatalf("expected only a.json signal rows, got %#v", filtered.Signals)
	}
	if len(filtered.Diagnostics) != 1 || filtered.Diagnostics[0].File != "a.json" {
		t.Fatalf("expected only a.json diagnostics, got %#v", filtered.Diagnostics)
	}
}

func TestFilterTablesByScopes(t *testing.T) {
	tables := Tables{
		Signals: []SignalRow{
			{Module: "core", Name: "x"},
			{Module: "bus", Name: "y"},
		},
		Instances: []InstanceRow{
			{Scope: "top.core0", Module: "core", Signal: "x"},
			{Scope: "top.bus", Module: "bus", Signal: "y"},
		},
		References: []ReferenceRow{
			{Scope: "top.core0", Signal: "x"},
			{Scope: "top.bus", Signal: "y"},
		},
		Diagnostics: []DiagnosticRow{
			{Code: "internal-invariant"},
			{Code: "force-primary-io", Scope: "top.bus"},
		},
	}

	filtered := FilterTablesByScopes(tables, map[string]bool{"top.core0": true})

	if len(filtered.Signals) != 1 || filtered.Signals[0].Module != "core" {
		t.Fatalf("expected only core signals, got %#v", filtered.Signals)
	}
	if len(filtered.References) != 1 || filtered.References[0].Scope != "top.core0" {
		t.Fatalf("expected only core0 references, got %#v", filtered.References)
	}
	if len(filtered.Diagnostics) != 1 || filtered.Diagnostics[0].Code != "internal-invariant" {
		t.Fatalf("expected only the design-wide diagnostic, got %#v", filtered.Diagnostics)
	}
}

func TestFilterDeltaByFilesEmpty(t *testing.T) {
	delta := Delta{
		Added: Tables{
			Designs: []DesignRow{{File: "a.json"}},
		},
		Removed: Tables{
			Designs: []DesignRow{{File: "b.json"}},
		},
	}

	filtered := FilterDeltaByFiles(delta, map[string]bool{})
	if len(filtered.Added.Designs) != 0 || len(filtered.Removed.Designs) != 0 {
		t.Fatalf("expected empty delta, got %#v", filtered)
	}
}
