package facts

import (
	"testing"

	"github.com/robert-at-pretension-io/hdl-force/internal/force"
)

func TestComputeDeltaAddsAndRemoves(t *testing.T) {
	prev := Tables{
		Signals: []SignalRow{
			{Module: "m", Name: "a", File: "f.json", Line: 1},
		},
		Statements: []StatementRow{
			{Scope: "top", Kind: "force", Targets: "a", File: "f.json", Line: 2},
		},
	}
	next := Tables{
		Signals: []SignalRow{
			{Module: "m", Name: "a", File: "f.json", Line: 1},
			{Module: "m", Name: "a__VforceEn", File: "f.json", Line: 1},
		},
		Statements: []StatementRow{
			{Scope: "top", Kind: "assign", Targets: "a__VforceEn", File: "f.json", Line: 2},
		},
	}

	delta := ComputeDelta(prev, next)

	if len(delta.Added.Signals) != 1 || delta.Added.Signals[0].Name != "a__VforceEn" {
		t.Fatalf("expected a__VforceEn added, got %+v", delta.Added.Signals)
	}
	if len(delta.Removed.Signals) != 0 {
		t.Fatalf("expected no signal removed, got %+v", delta.Removed.Signals)
	}
	if len(delta.Removed.Statements) != 1 || delta.Removed.Statements[0].Kind != "force" {
		t.Fatalf("expected force statement removed, got %+v", delta.Removed.Statements)
	}
	if delta.Empty() {
		t.Fatal("delta should not be empty")
	}
}

func TestComputeDeltaCountsDuplicates(t *testing.T) {
	ref := ReferenceRow{Scope: "top", Signal: "a", Access: "read"}
	delta := ComputeDelta(Tables{References: []ReferenceRow{ref}}, Tables{References: []ReferenceRow{ref, ref}})
	if len(delta.Added.References) != 1 {
		t.Fatalf("expected one duplicate reference added, got %+v", delta.Added.References)
	}
}

func TestLoweringDelta(t *testing.T) {
	nl := forcedDesign()
	before := BuildTables(nl, "dut.json", nil)
	if _, err := force.Run(nl, nil, force.Options{}); err != nil {
		t.Fatal(err)
	}
	after := BuildTables(nl, "dut.json", nil)
	delta := ComputeDelta(before, after)

	if len(delta.Added.Signals) != 3 {
		t.Errorf("expected three shadow declarations added, got %+v", delta.Added.Signals)
	}
	if len(delta.Removed.Signals) != 0 || len(delta.Removed.Instances) != 0 {
		t.Errorf("lowering must not remove declarations: %+v", delta.Removed)
	}
	if len(delta.Added.ShadowSets) != 1 {
		t.Errorf("expected one shadow set added, got %+v", delta.Added.ShadowSets)
	}
	removedForce := false
	for _, st := range delta.Removed.Statements {
		if st.Kind == "force" {
			removedForce = true
		}
	}
	if !removedForce {
		t.Errorf("force statement not reported removed: %+v", delta.Removed.Statements)
	}
}
