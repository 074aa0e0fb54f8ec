package validator

import (
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

const minimalDesign = `{
  "name": "m",
  "has_forceable_signals": true,
  "modules": [{"name": "m", "vars": [
    {"name": "a", "kind": "net", "width": 4, "ranged": true, "forceable": true}
  ]}],
  "scopes": [{"name": "top", "module": "m", "blocks": [
    {"kind": "process", "stmts": [
      {"op": "force", "lhs": {"op": "ref", "signal": "a"}, "rhs": {"op": "const", "width": 4, "value": 3}, "line": 7},
      {"op": "if", "cond": {"op": "ref", "signal": "a"}, "then": [
        {"op": "release", "lhs": {"op": "sel", "lsb": 1, "width": 2, "args": [{"op": "ref", "signal": "a"}]}}
      ]}
    ]}
  ]}]
}`

// TestDesignContract checks that malformed design documents are rejected
// before they reach the decoder.
func TestDesignContract(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	tests := []struct {
		name    string
		json    string
		wantErr string
	}{
		{name: "valid_design", json: minimalDesign},
		{
			name:    "unknown_signal_kind",
			json:    strings.Replace(minimalDesign, `"kind": "net"`, `"kind": "latch"`, 1),
			wantErr: "kind",
		},
		{
			name:    "width_too_large",
			json:    strings.Replace(minimalDesign, `"width": 4, "ranged"`, `"width": 65, "ranged"`, 1),
			wantErr: "width",
		},
		{
			name:    "unknown_statement_op",
			json:    strings.Replace(minimalDesign, `"op": "force"`, `"op": "deposit"`, 1),
			wantErr: "op",
		},
		{
			name:    "force_without_rhs",
			json:    strings.Replace(minimalDesign, `, "rhs": {"op": "const", "width": 4, "value": 3}`, ``, 1),
			wantErr: "rhs",
		},
		{
			name:    "misspelled_field",
			json:    strings.Replace(minimalDesign, `"forceable": true`, `"forcable": true`, 1),
			wantErr: "forcable",
		},
		{
			name:    "missing_gate_flag",
			json:    strings.Replace(minimalDesign, `"has_forceable_signals": true,`, ``, 1),
			wantErr: "has_forceable_signals",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateJSON([]byte(tt.json))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateJSON() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateJSON() succeeded, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEncodedDesignSatisfiesContract(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatal(err)
	}
	nl := netlist.New("enc")
	mod := nl.AddModule("m")
	scope := nl.AddScope("top", mod)
	x := nl.AddVarScope(scope, nl.AddVar(mod, "x", netlist.DType{Width: 8, Ranged: true, Elements: 2}, netlist.VarVariable, netlist.FlagForceable, netlist.Loc{Line: 1}))
	nl.AddBlock(scope, netlist.SenseProcess, "p", netlist.Loc{},
		nl.NewAssign(nl.NewArraySel(nl.NewVarRef(x, netlist.AccessWrite, netlist.Loc{}), nl.NewConst(32, 1, netlist.Loc{}), netlist.Loc{}),
			nl.NewConst(8, 0xff, netlist.Loc{}), netlist.Loc{}))

	if errs := v.ValidationErrors(netlist.Encode(nl)); len(errs) > 0 {
		t.Fatalf("encoded design violates the contract:\n%s", strings.Join(errs, "\n"))
	}
}

func TestValidationErrorsListsEachProblem(t *testing.T) {
	v, err := New()
	if err != nil {
		t.Fatal(err)
	}
	doc := netlist.Document{
		Modules: []netlist.ModuleDoc{{Name: "m", Vars: []netlist.VarDoc{
			{Name: "a", Kind: "latch", Width: 1},
			{Name: "9bad", Kind: "net", Width: 1},
		}}},
		Scopes: []netlist.ScopeDoc{},
	}
	if errs := v.ValidationErrors(doc); len(errs) < 2 {
		t.Errorf("expected at least two errors, got %v", errs)
	}
}
