package force

import (
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// Name suffixes of the synthesized shadow declarations.
const (
	SuffixReadAlias = "__VforceRd"
	SuffixEnable    = "__VforceEn"
	SuffixValue     = "__VforceVal"
)

// Block labels of the synthesized wiring.
const (
	LabelInit = "force-init"
	LabelComb = "force-comb"
)

// indexWidth is the width of synthesized constant array indices.
const indexWidth = 32

// shadowVars are the module-level declarations behind the shadow sets of one
// signal. Every scope instantiating the signal shares them.
type shadowVars struct {
	readAlias netlist.NodeID
	enable    netlist.NodeID
	value     netlist.NodeID
}

// ShadowSet is the per-instance state standing in for a forced signal:
//
//	ReadAlias == Enable ? Value : Original   (per bit or per element)
//
// All IDs are VarScopes.
type ShadowSet struct {
	Original  netlist.NodeID
	ReadAlias netlist.NodeID
	Enable    netlist.NodeID
	Value     netlist.NodeID
}

// shadow returns the shadow set of a signal instance, creating it on first
// use.
func (p *Pass) shadow(vscp netlist.NodeID) *ShadowSet {
	if set, ok := p.sets[vscp]; ok {
		return set
	}
	nl := p.nl
	vs := nl.Node(vscp)
	decls := p.shadowDecls(vscp)

	set := &ShadowSet{
		Original:  vscp,
		ReadAlias: nl.NewVarScope(vs.Scope, decls.readAlias),
		Enable:    nl.NewVarScope(vs.Scope, decls.enable),
		Value:     nl.NewVarScope(vs.Scope, decls.value),
	}
	nl.InsertAfter(vscp, set.ReadAlias, set.Enable, set.Value)
	p.sets[vscp] = set
	p.order = append(p.order, vscp)
	p.stats.ShadowSets++

	p.addEnableInit(set, vs.Loc)
	p.addOverride(set, vs.Loc)

	p.log.Debug("created shadow set",
		zap.String("signal", nl.VarScopeName(vscp)),
		zap.Stringer("shape", nl.VarOf(vscp).DType.Shape()))
	return set
}

// shadowDecls returns the shadow declarations of the signal behind vscp,
// declaring them directly after the signal on first use.
func (p *Pass) shadowDecls(vscp netlist.NodeID) *shadowVars {
	v := p.nl.Node(vscp).Var
	if decls, ok := p.vars[v]; ok {
		return decls
	}
	nl := p.nl
	n := nl.Node(v)
	decls := &shadowVars{
		readAlias: nl.NewVar(n.Name+SuffixReadAlias, n.DType, netlist.VarNet, 0, n.Loc),
		enable:    nl.NewVar(n.Name+SuffixEnable, n.DType.EnableDType(), netlist.VarVariable, 0, n.Loc),
		value:     nl.NewVar(n.Name+SuffixValue, n.DType, netlist.VarVariable, 0, n.Loc),
	}
	nl.InsertAfter(v, decls.readAlias, decls.enable, decls.value)
	p.vars[v] = decls
	p.stats.ShadowedSignals++

	if n.Flags.Has(netlist.FlagForceable) {
		nl.Node(decls.enable).Flags |= netlist.FlagPublicRW
		nl.Node(decls.value).Flags |= netlist.FlagPublicRW
	}
	if n.Flags.Has(netlist.FlagPrimaryIO) {
		p.report(diag.CodeForcePrimaryIO, vscp, n.Loc,
			"Unsupported: Force/Release on primary input/output net %q; assign it to/from a temporary net and force/release that",
			n.Name)
	}
	return decls
}

// elements returns the element count to iterate for a signal: its array
// length, or 1 for a plain signal together with false.
func elements(dtype netlist.DType) (int, bool) {
	if dtype.IsArray() {
		return dtype.Elements, true
	}
	return 1, false
}

// addEnableInit clears the enable before any procedural code runs.
func (p *Pass) addEnableInit(set *ShadowSet, loc netlist.Loc) {
	nl := p.nl
	dtype := nl.VarOf(set.Enable).DType
	count, array := elements(dtype)
	stmts := make([]netlist.NodeID, 0, count)
	for i := 0; i < count; i++ {
		lhs := nl.NewVarRef(set.Enable, netlist.AccessWrite, loc)
		if array {
			lhs = nl.NewArraySel(lhs, p.index(i, loc), loc)
		}
		stmts = append(stmts, nl.NewAssign(lhs, nl.NewConst(dtype.Width, 0, loc), loc))
	}
	nl.AddBlock(nl.Node(set.Original).Scope, netlist.SenseInitial, LabelInit, loc, stmts...)
}

// addOverride adds the standing combinational rule driving the read alias.
func (p *Pass) addOverride(set *ShadowSet, loc netlist.Loc) {
	nl := p.nl
	count, array := elements(nl.VarOf(set.Original).DType)
	stmts := make([]netlist.NodeID, 0, count)
	for i := 0; i < count; i++ {
		var index func() netlist.NodeID
		if array {
			index = func() netlist.NodeID { return p.index(i, loc) }
		}
		lhs := p.element(set.ReadAlias, netlist.AccessWrite, index, loc)
		stmts = append(stmts, nl.NewAssignW(lhs, p.override(set, index, loc), loc))
	}
	nl.AddBlock(nl.Node(set.Original).Scope, netlist.SenseCombo, LabelComb, loc, stmts...)
}

// override builds the effective value of one element of a shadowed signal
// from its shadow state and the true driven value:
//
//	opaque: en ? val : orig
//	ranged: (en & val) | (~en & orig)
//
// index yields a fresh index expression per use, or is nil for a plain
// signal. The reference to the original is kept out of phase 2.
func (p *Pass) override(set *ShadowSet, index func() netlist.NodeID, loc netlist.Loc) netlist.NodeID {
	nl := p.nl
	en := func() netlist.NodeID { return p.element(set.Enable, netlist.AccessRead, index, loc) }
	val := p.element(set.Value, netlist.AccessRead, index, loc)
	orig := p.element(set.Original, netlist.AccessRead, index, loc)
	p.keepOriginal(orig)

	if nl.VarOf(set.Original).DType.Ranged {
		return nl.NewOr(nl.NewAnd(en(), val, loc), nl.NewAnd(nl.NewNot(en(), loc), orig, loc), loc)
	}
	return nl.NewCond(en(), val, orig, loc)
}

// element references a signal instance, or one element of it when index is
// not nil.
func (p *Pass) element(vscp netlist.NodeID, access netlist.Access, index func() netlist.NodeID, loc netlist.Loc) netlist.NodeID {
	ref := p.nl.NewVarRef(vscp, access, loc)
	if index == nil {
		return ref
	}
	return p.nl.NewArraySel(ref, index(), loc)
}

func (p *Pass) index(i int, loc netlist.Loc) netlist.NodeID {
	return p.nl.NewConst(indexWidth, uint64(i), loc)
}

// keepOriginal marks the reference inside expr (a VarRef or an element
// select of one) as never redirected.
func (p *Pass) keepOriginal(expr netlist.NodeID) {
	if p.nl.Kind(expr) == netlist.KindArraySel {
		expr = p.nl.Kid(expr, 0)
	}
	p.keep[expr] = struct{}{}
}
