package force

import (
	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// redirectReads is phase 2. Every read of a shadowed signal now reads its
// alias, except the references phase 1 placed in the keep set. Writes keep
// targeting the original signal.
func (p *Pass) redirectReads() {
	nl := p.nl
	nl.Foreach(nl.Root(), netlist.KindVarRef, func(id netlist.NodeID) {
		n := nl.Node(id)
		set, ok := p.sets[n.Target]
		if !ok {
			return
		}
		switch n.Access {
		case netlist.AccessRead:
			if _, kept := p.keep[id]; kept {
				return
			}
			n.Target = set.ReadAlias
			p.stats.ReadsRedirected++
		case netlist.AccessWrite:
		case netlist.AccessReadWrite:
			p.report(diag.CodeReadWriteRef, n.Target, n.Loc,
				"Unsupported: Signals used via read-write reference cannot be forced")
		}
	})
}
