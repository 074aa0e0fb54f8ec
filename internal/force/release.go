package force

import (
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// lowerRelease replaces
//
//	release L;
//
// with a restoration followed by an enable reset:
//
//	L[rd] = L;            // net: the alias follows the true drive again
//	L     = L[mux];       // variable: keep the effective value
//	L[en] = '0;
//
// The restoration comes first so a released variable still sees its forced
// enable. A whole-array target is expanded element by element; an element
// target reuses its own index expression.
func (p *Pass) lowerRelease(stmt netlist.NodeID) {
	nl := p.nl
	loc := nl.Node(stmt).Loc
	p.checkLvalue(nl.Kid(stmt, 0), loc)

	relinker := nl.Unlink(stmt)
	lhs := nl.Kid(stmt, 0)
	nl.Unlink(lhs)
	nl.DeleteTree(stmt)

	targets := []netlist.NodeID{lhs}
	if dtype := nl.DTypeOf(lhs); dtype.IsArray() {
		targets = targets[:0]
		for i := 0; i < dtype.Elements; i++ {
			targets = append(targets, nl.NewArraySel(nl.CloneTree(lhs), p.index(i, loc), loc))
		}
		nl.DeleteTree(lhs)
	}

	var restore, resetEn []netlist.NodeID
	for _, t := range targets {
		restore = append(restore, p.restoreValue(t, loc))

		en := nl.NewAssign(t, nl.NewConst(1, 0, loc), loc)
		p.retarget(nl.Kid(en, 0), enableOf)
		placeholder := nl.Kid(en, 1)
		nl.Replace(placeholder, p.zeros(nl.Kid(en, 0), loc))
		nl.DeleteTree(placeholder)
		resetEn = append(resetEn, en)
	}

	out := append(restore, resetEn...)
	nl.Relink(relinker, out...)
	p.stats.ReleasesLowered++
	p.log.Debug("lowered release",
		zap.String("target", nl.ExprString(nl.Kid(resetEn[0], 0))),
		zap.Int("line", loc.Line),
		zap.Int("statements", len(out)))
}

// restoreValue builds the assignment that brings one released target back
// to ordinary behavior. Nets assign their read alias from the true drive;
// variables assign themselves their current effective value, so they keep a
// forced value until the next procedural write. target is not consumed.
func (p *Pass) restoreValue(target netlist.NodeID, loc netlist.Loc) netlist.NodeID {
	nl := p.nl
	assign := nl.NewAssign(nl.CloneTree(target), nl.CloneTree(target), loc)
	nl.Node(assign).Flags |= netlist.FlagNoBlkNblkWarn

	// Destination: nets write the alias, variables write themselves.
	var refs []netlist.NodeID
	nl.Foreach(nl.Kid(assign, 0), netlist.KindVarRef, func(id netlist.NodeID) {
		if nl.Node(id).Access != netlist.AccessRead {
			refs = append(refs, id)
		}
	})
	for _, ref := range refs {
		old := nl.Node(ref)
		dest := old.Target
		if nl.VarOf(ref).VarKind == netlist.VarNet {
			dest = p.shadow(dest).ReadAlias
		} else {
			p.shadow(dest)
		}
		nl.Replace(ref, nl.NewVarRef(dest, netlist.AccessWrite, old.Loc))
		nl.DeleteTree(ref)
	}

	// Source: the written references become reads of the true drive (nets)
	// or the inline override mux (variables).
	refs = refs[:0]
	nl.Foreach(nl.Kid(assign, 1), netlist.KindVarRef, func(id netlist.NodeID) {
		if nl.Node(id).Access != netlist.AccessRead {
			refs = append(refs, id)
		}
	})
	for _, ref := range refs {
		p.restoreSource(ref)
	}
	return assign
}

// restoreSource replaces one written reference inside a restoration source.
func (p *Pass) restoreSource(ref netlist.NodeID) {
	nl := p.nl
	old := nl.Node(ref)
	set := p.shadow(old.Target)

	if nl.VarOf(ref).VarKind == netlist.VarNet {
		orig := nl.NewVarRef(old.Target, netlist.AccessRead, old.Loc)
		p.keep[orig] = struct{}{}
		nl.Replace(ref, orig)
		nl.DeleteTree(ref)
		return
	}

	if !nl.VarOf(ref).DType.IsArray() {
		nl.Replace(ref, p.override(set, nil, old.Loc))
		nl.DeleteTree(ref)
		return
	}

	// An array variable is only restorable one element at a time: the mux
	// replaces the whole element select and reuses its index.
	sel := old.Parent
	if nl.Kind(sel) != netlist.KindArraySel || nl.Kid(sel, 0) != ref {
		p.report(diag.CodeUnsupported, old.Target, old.Loc,
			"Unsupported: release of array variable %q outside an element select", nl.VarOf(ref).Name)
		orig := nl.NewVarRef(old.Target, netlist.AccessRead, old.Loc)
		p.keep[orig] = struct{}{}
		nl.Replace(ref, orig)
		nl.DeleteTree(ref)
		return
	}
	idx := nl.Kid(sel, 1)
	mux := p.override(set, func() netlist.NodeID { return nl.CloneTree(idx) }, old.Loc)
	nl.Replace(sel, mux)
	nl.DeleteTree(sel)
}
