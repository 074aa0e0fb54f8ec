package netlist

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// smallDesign returns a netlist with one scope holding x and y and a
// process block with two assignments.
func smallDesign(t *testing.T) (*Netlist, NodeID, NodeID, NodeID) {
	t.Helper()
	nl := New("small")
	mod := nl.AddModule("top")
	x := nl.AddVar(mod, "x", Logic(8), VarVariable, 0, Loc{Line: 1})
	y := nl.AddVar(mod, "y", Logic(8), VarVariable, 0, Loc{Line: 2})
	scope := nl.AddScope("top", mod)
	xs := nl.AddVarScope(scope, x)
	ys := nl.AddVarScope(scope, y)
	block := nl.AddBlock(scope, SenseProcess, "p", Loc{Line: 3},
		nl.NewAssign(nl.NewVarRef(xs, AccessWrite, Loc{Line: 4}), nl.NewConst(8, 1, Loc{Line: 4}), Loc{Line: 4}),
		nl.NewAssign(nl.NewVarRef(ys, AccessWrite, Loc{Line: 5}), nl.NewVarRef(xs, AccessRead, Loc{Line: 5}), Loc{Line: 5}),
	)
	if err := nl.Check(); err != nil {
		t.Fatalf("fresh design fails Check: %v", err)
	}
	return nl, scope, block, xs
}

func stmtStrings(nl *Netlist, block NodeID) []string {
	var out []string
	for _, s := range nl.Children(block) {
		out = append(out, nl.StmtString(s))
	}
	return out
}

// expectInvariant runs fn and requires an InvariantError panic whose
// message contains want.
func expectInvariant(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		ie, ok := r.(*InvariantError)
		if !ok {
			t.Fatalf("expected *InvariantError panic, got %v", r)
		}
		if !strings.Contains(ie.Error(), want) {
			t.Errorf("invariant %q does not mention %q", ie.Error(), want)
		}
	}()
	fn()
}

func TestUnlinkRelinkPreservesPosition(t *testing.T) {
	nl, _, block, xs := smallDesign(t)
	first := nl.Kid(block, 0)

	r := nl.Unlink(first)
	if nl.Node(first).Parent.IsValid() {
		t.Fatal("unlinked statement still has an owner")
	}
	a := nl.NewAssign(nl.NewVarRef(xs, AccessWrite, Loc{}), nl.NewConst(8, 2, Loc{}), Loc{})
	b := nl.NewAssign(nl.NewVarRef(xs, AccessWrite, Loc{}), nl.NewConst(8, 3, Loc{}), Loc{})
	nl.Relink(r, a, b)
	nl.DeleteTree(first)

	want := []string{"x = 8'h2;", "x = 8'h3;", "y = x;"}
	if diff := cmp.Diff(want, stmtStrings(nl, block)); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
	if err := nl.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestInsertAfter(t *testing.T) {
	nl, _, block, xs := smallDesign(t)
	extra := nl.NewAssign(nl.NewVarRef(xs, AccessWrite, Loc{}), nl.NewConst(8, 7, Loc{}), Loc{})
	nl.InsertAfter(nl.Kid(block, 0), extra)

	want := []string{"x = 8'h1;", "x = 8'h7;", "y = x;"}
	if diff := cmp.Diff(want, stmtStrings(nl, block)); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceDetachesOld(t *testing.T) {
	nl, _, block, _ := smallDesign(t)
	stmt := nl.Kid(block, 0)
	old := nl.Kid(stmt, 1)
	nl.Replace(old, nl.NewConst(8, 0x5a, Loc{}))

	if nl.Node(old).Parent.IsValid() {
		t.Fatal("replaced node still has an owner")
	}
	if err := nl.Check(); err == nil || !strings.Contains(err.Error(), "leaked") {
		t.Errorf("Check should report the detached node as leaked, got %v", err)
	}
	nl.DeleteTree(old)
	if err := nl.Check(); err != nil {
		t.Errorf("Check after DeleteTree: %v", err)
	}
	if got := nl.StmtString(stmt); got != "x = 8'h5a;" {
		t.Errorf("statement = %q", got)
	}
}

func TestDeleteTreeDestroysSubtree(t *testing.T) {
	nl, _, block, _ := smallDesign(t)
	stmt := nl.Kid(block, 1)
	kids := nl.Children(stmt)
	before := nl.LiveCount()

	nl.Unlink(stmt)
	nl.DeleteTree(stmt)

	if got := nl.LiveCount(); got != before-3 {
		t.Errorf("LiveCount = %d, want %d", got, before-3)
	}
	for _, k := range append(kids, stmt) {
		if nl.Live(k) {
			t.Errorf("node %d survived DeleteTree", k)
		}
	}
	expectInvariant(t, "destroyed", func() { nl.Node(stmt) })
}

func TestCloneTreeIsDetachedDeepCopy(t *testing.T) {
	nl, _, block, _ := smallDesign(t)
	stmt := nl.Kid(block, 1)
	cp := nl.CloneTree(stmt)

	if nl.Node(cp).Parent.IsValid() {
		t.Error("clone should be detached")
	}
	if nl.Kid(cp, 0) == nl.Kid(stmt, 0) {
		t.Error("clone shares a child with the original")
	}
	if nl.Node(nl.Kid(cp, 1)).Target != nl.Node(nl.Kid(stmt, 1)).Target {
		t.Error("clone should share cross references")
	}
	if got, want := nl.StmtString(cp), nl.StmtString(stmt); got != want {
		t.Errorf("clone = %q, want %q", got, want)
	}
	nl.Append(block, cp)
	if err := nl.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestOwnershipViolations(t *testing.T) {
	tests := []struct {
		name string
		want string
		run  func(nl *Netlist, block NodeID)
	}{
		{"unlink detached", "must have backlink", func(nl *Netlist, _ NodeID) {
			nl.Unlink(nl.NewConst(1, 0, Loc{}))
		}},
		{"adopt owned node", "already owned", func(nl *Netlist, block NodeID) {
			nl.Append(block, nl.Kid(block, 0))
		}},
		{"delete linked node", "delete of a linked node", func(nl *Netlist, block NodeID) {
			nl.DeleteTree(nl.Kid(block, 0))
		}},
		{"replace detached", "replace a detached node", func(nl *Netlist, _ NodeID) {
			nl.Replace(nl.NewConst(1, 0, Loc{}), nl.NewConst(1, 1, Loc{}))
		}},
		{"adopt root", "root cannot be adopted", func(nl *Netlist, block NodeID) {
			nl.Append(block, nl.Root())
		}},
		{"kid out of range", "out of range", func(nl *Netlist, block NodeID) {
			nl.Kid(block, 9)
		}},
		{"ref to non-varscope", "reference target must be a varscope", func(nl *Netlist, block NodeID) {
			nl.NewVarRef(block, AccessRead, Loc{})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nl, _, block, _ := smallDesign(t)
			expectInvariant(t, tt.want, func() { tt.run(nl, block) })
		})
	}
}

func TestCheckReportsDanglingReference(t *testing.T) {
	nl, _, _, xs := smallDesign(t)
	nl.Unlink(xs)
	nl.DeleteTree(xs)

	err := nl.Check()
	if err == nil {
		t.Fatal("Check accepted references to a destroyed varscope")
	}
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Errorf("Check error %v does not wrap *InvariantError", err)
	}
	if !strings.Contains(err.Error(), "is not live") {
		t.Errorf("Check error %q does not mention the dangling target", err)
	}
}

func TestWalkSkipsChildrenOnFalse(t *testing.T) {
	nl, scope, _, _ := smallDesign(t)
	var kinds []Kind
	nl.Walk(scope, func(id NodeID) bool {
		kinds = append(kinds, nl.Kind(id))
		return nl.Kind(id) != KindBlock
	})
	want := []Kind{KindScope, KindVarScope, KindVarScope, KindBlock}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}

	refs := 0
	nl.Foreach(nl.Root(), KindVarRef, func(NodeID) { refs++ })
	if refs != 3 {
		t.Errorf("Foreach found %d refs, want 3", refs)
	}
}

func TestCheckReportsMisplacedNodes(t *testing.T) {
	tests := []struct {
		name  string
		want  string
		build func(nl *Netlist, block, xs NodeID)
	}{
		{"expression in statement list", "want a statement", func(nl *Netlist, block, _ NodeID) {
			nl.Append(block, nl.NewConst(1, 0, Loc{}))
		}},
		{"statement as operand", "want an expression", func(nl *Netlist, block, xs NodeID) {
			nl.Append(block, nl.NewAssign(nl.NewVarRef(xs, AccessWrite, Loc{}), nl.NewBegin(Loc{}), Loc{}))
		}},
		{"bare if branch", "want begin", func(nl *Netlist, block, xs NodeID) {
			then := nl.NewAssign(nl.NewVarRef(xs, AccessWrite, Loc{}), nl.NewConst(8, 1, Loc{}), Loc{})
			nl.Append(block, nl.NewIf(nl.NewConst(1, 1, Loc{}), then, nl.NewBegin(Loc{}), Loc{}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nl, _, block, xs := smallDesign(t)
			tt.build(nl, block, xs)
			err := nl.Check()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Check = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestCheckAcceptsNestedConditionals(t *testing.T) {
	nl, _, block, xs := smallDesign(t)
	inner := nl.NewBegin(Loc{}, nl.NewAssign(nl.NewVarRef(xs, AccessWrite, Loc{}), nl.NewConst(8, 1, Loc{}), Loc{}))
	nl.Append(block, nl.NewIf(nl.NewVarRef(xs, AccessRead, Loc{}), nl.NewBegin(Loc{}, inner), nl.NewBegin(Loc{}), Loc{}))
	if err := nl.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
}
