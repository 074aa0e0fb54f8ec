package force

import (
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// shadowPart selects one member of a shadow set.
type shadowPart func(*ShadowSet) netlist.NodeID

func readAliasOf(s *ShadowSet) netlist.NodeID { return s.ReadAlias }
func enableOf(s *ShadowSet) netlist.NodeID    { return s.Enable }
func valueOf(s *ShadowSet) netlist.NodeID     { return s.Value }

// lowerForce replaces
//
//	force L = R;
//
// with
//
//	L[en]  = '1;
//	L[val] = R;
//	L[rd]  = R;
//
// where L[x] is L with every written signal swapped for its x shadow. A
// whole-array target is expanded element by element.
func (p *Pass) lowerForce(stmt netlist.NodeID) {
	nl := p.nl
	loc := nl.Node(stmt).Loc
	p.checkLvalue(nl.Kid(stmt, 0), loc)

	relinker := nl.Unlink(stmt)
	lhs := nl.Kid(stmt, 0)
	nl.Unlink(lhs)
	rhs := nl.Kid(stmt, 0)
	nl.Unlink(rhs)
	nl.DeleteTree(stmt)

	targets := p.expandArray(lhs, rhs, loc)
	var setEn, setVal, setRd []netlist.NodeID
	for _, t := range targets {
		en := nl.NewAssign(nl.CloneTree(t.lhs), nl.NewConst(1, 0, loc), loc)
		p.retarget(nl.Kid(en, 0), enableOf)
		placeholder := nl.Kid(en, 1)
		nl.Replace(placeholder, p.ones(nl.Kid(en, 0), loc))
		nl.DeleteTree(placeholder)
		setEn = append(setEn, en)

		val := nl.NewAssign(nl.CloneTree(t.lhs), nl.CloneTree(t.rhs), loc)
		p.retarget(nl.Kid(val, 0), valueOf)
		setVal = append(setVal, val)

		rd := nl.NewAssign(t.lhs, t.rhs, loc)
		p.retarget(nl.Kid(rd, 0), readAliasOf)
		setRd = append(setRd, rd)
	}

	out := append(append(setEn, setVal...), setRd...)
	nl.Relink(relinker, out...)
	p.stats.ForcesLowered++
	p.log.Debug("lowered force",
		zap.String("target", nl.ExprString(nl.Kid(setRd[0], 0))),
		zap.Int("line", loc.Line),
		zap.Int("statements", len(out)))
}

// assignPair is one lvalue/value pair produced by array expansion.
type assignPair struct {
	lhs, rhs netlist.NodeID
}

// expandArray splits a whole-array assignment into one pair per element. A
// non-array value is assigned to every element. Pairs for plain targets are
// returned unchanged. The inputs are consumed.
func (p *Pass) expandArray(lhs, rhs netlist.NodeID, loc netlist.Loc) []assignPair {
	nl := p.nl
	dtype := nl.DTypeOf(lhs)
	if !dtype.IsArray() {
		return []assignPair{{lhs: lhs, rhs: rhs}}
	}
	arrayValue := nl.DTypeOf(rhs).IsArray()
	pairs := make([]assignPair, 0, dtype.Elements)
	for i := 0; i < dtype.Elements; i++ {
		l := nl.NewArraySel(nl.CloneTree(lhs), p.index(i, loc), loc)
		r := nl.CloneTree(rhs)
		if arrayValue {
			r = nl.NewArraySel(r, p.index(i, loc), loc)
		}
		pairs = append(pairs, assignPair{lhs: l, rhs: r})
	}
	nl.DeleteTree(lhs)
	nl.DeleteTree(rhs)
	return pairs
}

// retarget swaps every written signal reference below lvalue for the chosen
// shadow of that signal, allocating shadow state on demand. Reads (such as
// select indices) are untouched. lvalue must already be linked into its
// assignment, otherwise a replaced root reference would be lost.
func (p *Pass) retarget(lvalue netlist.NodeID, part shadowPart) {
	nl := p.nl
	var refs []netlist.NodeID
	nl.Foreach(lvalue, netlist.KindVarRef, func(id netlist.NodeID) {
		if nl.Node(id).Access != netlist.AccessRead {
			refs = append(refs, id)
		}
	})
	for _, ref := range refs {
		old := nl.Node(ref)
		repl := nl.NewVarRef(part(p.shadow(old.Target)), netlist.AccessWrite, old.Loc)
		nl.Replace(ref, repl)
		nl.DeleteTree(ref)
	}
}

// checkLvalue reports read-write references in a force or release target.
// They are lowered as writes.
func (p *Pass) checkLvalue(lvalue netlist.NodeID, loc netlist.Loc) {
	nl := p.nl
	nl.Foreach(lvalue, netlist.KindVarRef, func(id netlist.NodeID) {
		n := nl.Node(id)
		if n.Access == netlist.AccessReadWrite {
			p.report(diag.CodeReadWriteRef, n.Target, loc,
				"Unsupported: Signals used via read-write reference cannot be forced")
		}
	})
}

// ones returns an all-ones constant as wide as the given enable lvalue.
func (p *Pass) ones(lvalue netlist.NodeID, loc netlist.Loc) netlist.NodeID {
	width := p.nl.DTypeOf(lvalue).Width
	return p.nl.NewConst(width, netlist.WidthMask(width), loc)
}

// zeros returns an all-zero constant as wide as the given enable lvalue.
func (p *Pass) zeros(lvalue netlist.NodeID, loc netlist.Loc) netlist.NodeID {
	return p.nl.NewConst(p.nl.DTypeOf(lvalue).Width, 0, loc)
}
