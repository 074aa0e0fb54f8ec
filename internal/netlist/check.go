package netlist

import (
	"errors"
	"fmt"
)

// Check verifies the structural invariants of the whole arena:
//   - every live node except the root is reachable from the root exactly once
//   - every child's backlink names the parent that lists it
//   - cross references point at live nodes of the right kind
//   - fixed-arity nodes have the right number of children
//
// It returns the first violations found, joined, or nil.
func (nl *Netlist) Check() error {
	var errs []error
	report := func(id NodeID, format string, args ...any) {
		if len(errs) < 20 {
			errs = append(errs, &InvariantError{Node: id, Kind: nl.nodes[id].Kind, Msg: fmt.Sprintf(format, args...)})
		}
	}

	seen := make([]bool, len(nl.nodes))
	var visit func(id, parent NodeID)
	visit = func(id, parent NodeID) {
		n := nl.nodes[id]
		if n.dead {
			report(id, "destroyed node still linked under %d", parent)
			return
		}
		if seen[id] {
			report(id, "owned twice (again under %d)", parent)
			return
		}
		seen[id] = true
		if n.Parent != parent {
			report(id, "backlink %d, but listed under %d", n.Parent, parent)
		}
		nl.checkNode(id, report)
		for _, kid := range n.Kids {
			if !kid.IsValid() || int(kid) >= len(nl.nodes) {
				report(id, "invalid child id %d", kid)
				continue
			}
			visit(kid, id)
		}
	}
	visit(nl.root, NoNode)

	for i := 1; i < len(nl.nodes); i++ {
		if !nl.nodes[i].dead && !seen[i] {
			report(NodeID(i), "leaked: detached node neither relinked nor destroyed")
		}
	}
	return errors.Join(errs...)
}

func (nl *Netlist) checkNode(id NodeID, report func(NodeID, string, ...any)) {
	n := nl.nodes[id]
	ref := func(target NodeID, kind Kind, what string) {
		if !nl.Live(target) {
			report(id, "%s %d is not live", what, target)
			return
		}
		if nl.nodes[target].Kind != kind {
			report(id, "%s %d is a %s, want %s", what, target, nl.nodes[target].Kind, kind)
		}
	}
	arity := func(want int) {
		if len(n.Kids) != want {
			report(id, "has %d children, want %d", len(n.Kids), want)
		}
	}

	switch n.Kind {
	case KindNetlist, KindModule, KindBlock, KindBegin:
	case KindVar:
		arity(0)
		if n.DType.Width < 1 || n.DType.Width > MaxWidth {
			report(id, "width %d out of range", n.DType.Width)
		}
	case KindScope:
		ref(n.Module, KindModule, "module")
	case KindVarScope:
		arity(0)
		ref(n.Var, KindVar, "var")
		ref(n.Scope, KindScope, "scope")
	case KindIf:
		arity(3)
	case KindAssign, KindAssignW, KindAssignForce:
		arity(2)
	case KindRelease, KindSel, KindNot:
		arity(1)
	case KindVarRef:
		arity(0)
		ref(n.Target, KindVarScope, "target")
	case KindConst:
		arity(0)
	case KindArraySel, KindAnd, KindOr, KindXor:
		arity(2)
	case KindConcat:
		if len(n.Kids) == 0 {
			report(id, "empty concatenation")
		}
	case KindCond:
		arity(3)
	case KindInvalid:
		report(id, "invalid node kind")
	default:
		report(id, "unhandled kind %s", n.Kind)
	}
	nl.checkPositions(id, report)
}

// checkPositions verifies that statement lists hold statements, if branches
// are begin blocks and every operand is an expression.
func (nl *Netlist) checkPositions(id NodeID, report func(NodeID, string, ...any)) {
	n := nl.nodes[id]
	kindOf := func(kid NodeID) (Kind, bool) {
		if !kid.IsValid() || int(kid) >= len(nl.nodes) {
			return KindInvalid, false
		}
		return nl.nodes[kid].Kind, true
	}
	for i, kid := range n.Kids {
		k, ok := kindOf(kid)
		if !ok {
			continue
		}
		switch {
		case n.Kind == KindBlock || n.Kind == KindBegin:
			if !k.IsStmt() {
				report(id, "child %d is a %s, want a statement", i, k)
			}
		case n.Kind == KindIf && i > 0:
			if k != KindBegin {
				report(id, "branch %d is a %s, want begin", i, k)
			}
		case n.Kind.IsStmt() || n.Kind.IsExpr():
			if !k.IsExpr() {
				report(id, "operand %d is a %s, want an expression", i, k)
			}
		}
	}
}
