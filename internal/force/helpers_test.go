package force

import (
	"strings"
	"testing"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
	"github.com/robert-at-pretension-io/hdl-force/internal/sim"
)

// design builds a single-module, single-scope netlist for tests.
type design struct {
	t     *testing.T
	nl    *netlist.Netlist
	mod   netlist.NodeID
	scope netlist.NodeID
	line  int
}

func newDesign(t *testing.T, name string) *design {
	t.Helper()
	nl := netlist.New(name)
	nl.HasForceableSignals = true
	mod := nl.AddModule("top")
	return &design{t: t, nl: nl, mod: mod, scope: nl.AddScope("top", mod)}
}

func (d *design) loc() netlist.Loc {
	d.line++
	return netlist.Loc{File: d.nl.Name + ".json", Line: d.line}
}

func (d *design) signal(name string, dtype netlist.DType, kind netlist.VarKind, flags netlist.Flags) {
	v := d.nl.AddVar(d.mod, name, dtype, kind, flags, d.loc())
	d.nl.AddVarScope(d.scope, v)
}

func (d *design) vscp(name string) netlist.NodeID {
	d.t.Helper()
	vs, ok := d.nl.FindVarScope(d.scope, name)
	if !ok {
		d.t.Fatalf("no signal %q", name)
	}
	return vs
}

func (d *design) rd(name string) netlist.NodeID {
	return d.nl.NewVarRef(d.vscp(name), netlist.AccessRead, d.loc())
}

func (d *design) wr(name string) netlist.NodeID {
	return d.nl.NewVarRef(d.vscp(name), netlist.AccessWrite, d.loc())
}

func (d *design) k(width int, value uint64) netlist.NodeID {
	return d.nl.NewConst(width, value, d.loc())
}

func (d *design) elem(ref netlist.NodeID, i int) netlist.NodeID {
	return d.nl.NewArraySel(ref, d.k(32, uint64(i)), d.loc())
}

func (d *design) sel(ref netlist.NodeID, lsb, width int) netlist.NodeID {
	return d.nl.NewSel(ref, lsb, width, d.loc())
}

func (d *design) assign(lhs, rhs netlist.NodeID) netlist.NodeID {
	return d.nl.NewAssign(lhs, rhs, d.loc())
}

func (d *design) assignW(lhs, rhs netlist.NodeID) netlist.NodeID {
	return d.nl.NewAssignW(lhs, rhs, d.loc())
}

func (d *design) force(lhs, rhs netlist.NodeID) netlist.NodeID {
	return d.nl.NewForce(lhs, rhs, d.loc())
}

func (d *design) release(lhs netlist.NodeID) netlist.NodeID {
	return d.nl.NewRelease(lhs, d.loc())
}

func (d *design) comb(label string, stmts ...netlist.NodeID) {
	d.nl.AddBlock(d.scope, netlist.SenseCombo, label, d.loc(), stmts...)
}

func (d *design) process(label string, stmts ...netlist.NodeID) {
	d.nl.AddBlock(d.scope, netlist.SenseProcess, label, d.loc(), stmts...)
}

// lower runs the pass with ownership verification and returns the
// collected diagnostics.
func lower(t *testing.T, nl *netlist.Netlist) (Stats, []diag.Diagnostic) {
	t.Helper()
	sink := diag.NewCollector(nil)
	stats, err := Run(nl, sink, Options{Verify: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return stats, sink.Diagnostics()
}

// lowerClean lowers and requires that no diagnostics were reported.
func lowerClean(t *testing.T, nl *netlist.Netlist) Stats {
	t.Helper()
	stats, diags := lower(t, nl)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	return stats
}

func startSim(t *testing.T, nl *netlist.Netlist) *sim.Simulator {
	t.Helper()
	s, err := sim.New(nl, sim.Options{})
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func exec(t *testing.T, s *sim.Simulator, label string) {
	t.Helper()
	if err := s.Exec("top", label); err != nil {
		t.Fatalf("Exec(%s): %v", label, err)
	}
}

func expectPeek(t *testing.T, s *sim.Simulator, name string, want uint64) {
	t.Helper()
	got, err := s.Peek("top", name)
	if err != nil {
		t.Fatalf("Peek(%s): %v", name, err)
	}
	if got != want {
		t.Errorf("%s = %#x, want %#x", name, got, want)
	}
}

func expectElem(t *testing.T, s *sim.Simulator, name string, index int, want uint64) {
	t.Helper()
	got, err := s.PeekElem("top", name, index)
	if err != nil {
		t.Fatalf("PeekElem(%s, %d): %v", name, index, err)
	}
	if got != want {
		t.Errorf("%s[%d] = %#x, want %#x", name, index, got, want)
	}
}

// blockLines returns the dumped statements of the first block with the
// given label.
func blockLines(t *testing.T, nl *netlist.Netlist, label string) []string {
	t.Helper()
	scope, _ := nl.FindScope("top")
	for _, b := range nl.Blocks(scope) {
		if nl.Node(b).Name != label {
			continue
		}
		var out []string
		for _, stmt := range nl.Children(b) {
			out = append(out, nl.StmtString(stmt))
		}
		return out
	}
	t.Fatalf("no block %q", label)
	return nil
}

// moduleVars lists declaration names of the module in order.
func moduleVars(nl *netlist.Netlist) []string {
	var out []string
	for _, m := range nl.Modules() {
		for _, v := range nl.Children(m) {
			out = append(out, nl.Node(v).Name)
		}
	}
	return out
}

func hasCode(diags []diag.Diagnostic, code diag.Code) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func dumpOf(nl *netlist.Netlist) string {
	return strings.TrimSpace(nl.Dump())
}
