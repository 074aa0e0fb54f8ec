package force

// =============================================================================
// FORCE LOWERING: TWO PHASES OVER ONE NETLIST
// =============================================================================
//
// Phase 1 walks every scope. Forceable signal instances get their shadow set
// up front; every force and release statement is replaced in place by plain
// assignments against the shadow state (allocating it on demand).
//
// Phase 2 walks the whole graph once more and redirects every surviving read
// of a shadowed signal to its read alias. References synthesized in phase 1
// that must observe the true driven value are listed in the pass-local keep
// set and are left alone.
//
// All memo tables live on the Pass value. Nothing is stored on graph nodes.
// =============================================================================

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// Options configures a Run.
type Options struct {
	// Logger receives debug tracing. Nil disables logging.
	Logger *zap.Logger
	// Verify runs the netlist ownership check after lowering.
	Verify bool
}

// Stats summarizes what a Run changed.
type Stats struct {
	Skipped          bool `json:"skipped"`
	ShadowedSignals  int  `json:"shadowed_signals"`
	ShadowSets       int  `json:"shadow_sets"`
	ForcesLowered    int  `json:"forces_lowered"`
	ReleasesLowered  int  `json:"releases_lowered"`
	ReadsRedirected  int  `json:"reads_redirected"`
	DiagnosticsCount int  `json:"diagnostics"`
}

// Pass holds the state of one lowering run. It is not safe for concurrent
// use and must not be reused across netlists.
type Pass struct {
	nl   *netlist.Netlist
	sink diag.Sink
	log  *zap.Logger

	vars  map[netlist.NodeID]*shadowVars // keyed by Var
	sets  map[netlist.NodeID]*ShadowSet  // keyed by VarScope
	order []netlist.NodeID               // VarScopes in allocation order
	keep  map[netlist.NodeID]struct{}    // references never redirected

	stats Stats
}

// NewPass prepares a pass over nl. Diagnostics go to sink.
func NewPass(nl *netlist.Netlist, sink diag.Sink, opts Options) *Pass {
	if sink == nil {
		sink = diag.Discard
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pass{
		nl:   nl,
		sink: sink,
		log:  log.Named("force"),
		vars: make(map[netlist.NodeID]*shadowVars),
		sets: make(map[netlist.NodeID]*ShadowSet),
		keep: make(map[netlist.NodeID]struct{}),
	}
}

// Run lowers every force and release statement of nl and removes the need
// for forceable declarations. It is a no-op unless nl.HasForceableSignals
// is set. Unsupported constructs are reported to sink and do not stop the
// pass; a corrupted graph is returned as a *netlist.InvariantError.
func Run(nl *netlist.Netlist, sink diag.Sink, opts Options) (Stats, error) {
	p := NewPass(nl, sink, opts)
	if err := p.Run(); err != nil {
		return p.stats, err
	}
	if opts.Verify && !p.stats.Skipped {
		if err := nl.Check(); err != nil {
			return p.stats, fmt.Errorf("netlist check after force lowering: %w", err)
		}
	}
	return p.stats, nil
}

// Run executes both phases.
func (p *Pass) Run() (err error) {
	if !p.nl.HasForceableSignals {
		p.log.Debug("design has no forceable signals, skipping", zap.String("design", p.nl.Name))
		p.stats.Skipped = true
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*netlist.InvariantError)
			if !ok {
				panic(r)
			}
			err = ie
		}
	}()

	for _, scope := range p.nl.Scopes() {
		p.lowerScope(scope)
	}
	p.redirectReads()

	p.log.Debug("force lowering done",
		zap.String("design", p.nl.Name),
		zap.Int("shadow_sets", p.stats.ShadowSets),
		zap.Int("forces", p.stats.ForcesLowered),
		zap.Int("releases", p.stats.ReleasesLowered),
		zap.Int("reads_redirected", p.stats.ReadsRedirected))
	return nil
}

// Stats returns the counters collected so far.
func (p *Pass) Stats() Stats { return p.stats }

// ShadowSets returns the shadow sets in allocation order.
func (p *Pass) ShadowSets() []*ShadowSet {
	out := make([]*ShadowSet, 0, len(p.order))
	for _, vs := range p.order {
		out = append(out, p.sets[vs])
	}
	return out
}

// lowerScope runs phase 1 over one scope: declarations first, then the
// statements of the blocks that existed before the pass touched the scope.
func (p *Pass) lowerScope(scope netlist.NodeID) {
	for _, vs := range p.nl.VarScopes(scope) {
		if p.nl.VarOf(vs).Flags.Has(netlist.FlagForceable) {
			p.shadow(vs)
		}
	}

	for _, block := range p.nl.Blocks(scope) {
		var stmts []netlist.NodeID
		p.nl.Walk(block, func(id netlist.NodeID) bool {
			switch p.nl.Kind(id) {
			case netlist.KindAssignForce, netlist.KindRelease:
				stmts = append(stmts, id)
				return false
			}
			return p.nl.Kind(id) == netlist.KindBlock || p.nl.Kind(id).IsStmt()
		})
		for _, stmt := range stmts {
			switch p.nl.Kind(stmt) {
			case netlist.KindAssignForce:
				p.lowerForce(stmt)
			case netlist.KindRelease:
				p.lowerRelease(stmt)
			}
		}
	}
}

func (p *Pass) report(code diag.Code, vscp netlist.NodeID, loc netlist.Loc, format string, args ...any) {
	d := diag.Diagnostic{
		Code:     code,
		Severity: diag.SeverityError,
		File:     loc.File,
		Line:     loc.Line,
		Message:  fmt.Sprintf(format, args...),
	}
	if vscp.IsValid() {
		n := p.nl.Node(vscp)
		d.Signal = p.nl.VarOf(vscp).Name
		d.Scope = p.nl.Node(n.Scope).Name
	}
	p.stats.DiagnosticsCount++
	p.sink.Report(d)
}

// IsInvariant reports whether err carries a corrupted-graph condition.
func IsInvariant(err error) bool {
	var ie *netlist.InvariantError
	return errors.As(err, &ie)
}
