package facts

import (
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/hdl-force/internal/diag"
	"github.com/robert-at-pretension-io/hdl-force/internal/force"
	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// Tables is the relational fact model of one or more designs.
// Each slice is a relation (table) with flat rows.
type Tables struct {
	Designs     []DesignRow     `json:"designs"`
	Signals     []SignalRow     `json:"signals"`
	Instances   []InstanceRow   `json:"instances"`
	ShadowSets  []ShadowSetRow  `json:"shadow_sets"`
	Blocks      []BlockRow      `json:"blocks"`
	Statements  []StatementRow  `json:"statements"`
	References  []ReferenceRow  `json:"references"`
	Diagnostics []DiagnosticRow `json:"diagnostics"`
}

type DesignRow struct {
	Name                string `json:"name"`
	File                string `json:"file"`
	HasForceableSignals bool   `json:"has_forceable_signals"`
}

type SignalRow struct {
	Module    string `json:"module"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Shape     string `json:"shape"`
	Width     int    `json:"width"`
	Elements  int    `json:"elements"`
	Forceable bool   `json:"forceable"`
	PrimaryIO bool   `json:"primary_io"`
	PublicRW  bool   `json:"public_rw"`
	File      string `json:"file"`
	Line      int    `json:"line"`
}

type InstanceRow struct {
	Scope  string `json:"scope"`
	Module string `json:"module"`
	Signal string `json:"signal"`
	File   string `json:"file"`
}

// ShadowSetRow groups the shadow declarations found for one signal
// instance. Missing members are empty strings.
type ShadowSetRow struct {
	Scope     string `json:"scope"`
	Signal    string `json:"signal"`
	ReadAlias string `json:"read_alias"`
	Enable    string `json:"enable"`
	Value     string `json:"value"`
	File      string `json:"file"`
}

type BlockRow struct {
	Scope      string `json:"scope"`
	Label      string `json:"label"`
	Kind       string `json:"kind"`
	Statements int    `json:"statements"`
	File       string `json:"file"`
	Line       int    `json:"line"`
}

type StatementRow struct {
	Scope         string `json:"scope"`
	Block         string `json:"block"`
	Kind          string `json:"kind"`
	Targets       string `json:"targets"`
	Text          string `json:"text"`
	NoBlkNblkWarn bool   `json:"suppress_blkandnblk"`
	File          string `json:"file"`
	Line          int    `json:"line"`
}

type ReferenceRow struct {
	Scope  string `json:"scope"`
	Block  string `json:"block"`
	Signal string `json:"signal"`
	Access string `json:"access"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

type DiagnosticRow struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Signal   string `json:"signal"`
	Scope    string `json:"scope"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

func emptyTables() Tables {
	return Tables{
		Designs:     []DesignRow{},
		Signals:     []SignalRow{},
		Instances:   []InstanceRow{},
		ShadowSets:  []ShadowSetRow{},
		Blocks:      []BlockRow{},
		Statements:  []StatementRow{},
		References:  []ReferenceRow{},
		Diagnostics: []DiagnosticRow{},
	}
}

// BuildTables converts a netlist and the diagnostics reported against it
// into the relational model. file names the design document.
func BuildTables(nl *netlist.Netlist, file string, diags []diag.Diagnostic) Tables {
	tables := emptyTables()
	tables.Designs = append(tables.Designs, DesignRow{
		Name:                nl.Name,
		File:                file,
		HasForceableSignals: nl.HasForceableSignals,
	})

	for _, m := range nl.Modules() {
		mod := nl.Node(m).Name
		for _, v := range nl.Children(m) {
			n := nl.Node(v)
			tables.Signals = append(tables.Signals, SignalRow{
				Module:    mod,
				Name:      n.Name,
				Kind:      n.VarKind.String(),
				Shape:     n.DType.Shape().String(),
				Width:     n.DType.Width,
				Elements:  n.DType.Elements,
				Forceable: n.Flags.Has(netlist.FlagForceable),
				PrimaryIO: n.Flags.Has(netlist.FlagPrimaryIO),
				PublicRW:  n.Flags.Has(netlist.FlagPublicRW),
				File:      file,
				Line:      n.Loc.Line,
			})
		}
	}

	for _, s := range nl.Scopes() {
		scope := nl.Node(s)
		mod := nl.Node(scope.Module).Name

		present := make(map[string]bool)
		for _, vscp := range nl.VarScopes(s) {
			name := nl.VarOf(vscp).Name
			present[name] = true
			tables.Instances = append(tables.Instances, InstanceRow{
				Scope:  scope.Name,
				Module: mod,
				Signal: name,
				File:   file,
			})
		}
		tables.ShadowSets = append(tables.ShadowSets, shadowRows(scope.Name, file, present)...)

		for _, b := range nl.Blocks(s) {
			block := nl.Node(b)
			tables.Blocks = append(tables.Blocks, BlockRow{
				Scope:      scope.Name,
				Label:      block.Name,
				Kind:       block.Sense.String(),
				Statements: len(block.Kids),
				File:       file,
				Line:       block.Loc.Line,
			})
			nl.Walk(b, func(id netlist.NodeID) bool {
				n := nl.Node(id)
				switch {
				case n.Kind == netlist.KindBlock, n.Kind == netlist.KindBegin, n.Kind == netlist.KindIf:
					return true
				case n.Kind.IsStmt():
					tables.Statements = append(tables.Statements, StatementRow{
						Scope:         scope.Name,
						Block:         block.Name,
						Kind:          n.Kind.String(),
						Targets:       strings.Join(targets(nl, n.Kids[0]), ","),
						Text:          nl.StmtString(id),
						NoBlkNblkWarn: n.Flags.Has(netlist.FlagNoBlkNblkWarn),
						File:          file,
						Line:          n.Loc.Line,
					})
					return true
				case n.Kind == netlist.KindVarRef:
					tables.References = append(tables.References, ReferenceRow{
						Scope:  scope.Name,
						Block:  block.Name,
						Signal: nl.VarOf(id).Name,
						Access: n.Access.String(),
						File:   file,
						Line:   n.Loc.Line,
					})
				}
				return true
			})
		}
	}

	for _, d := range diags {
		tables.Diagnostics = append(tables.Diagnostics, DiagnosticRow{
			Code:     string(d.Code),
			Severity: d.Severity,
			Signal:   d.Signal,
			Scope:    d.Scope,
			File:     d.File,
			Line:     d.Line,
		})
	}

	return tables
}

// shadowRows finds the shadow declarations instantiated in one scope by
// their name suffixes. A set is reported when any member is present.
func shadowRows(scope, file string, present map[string]bool) []ShadowSetRow {
	bases := make(map[string]bool)
	for name := range present {
		for _, suffix := range []string{force.SuffixReadAlias, force.SuffixEnable, force.SuffixValue} {
			if base, ok := strings.CutSuffix(name, suffix); ok && base != "" {
				bases[base] = true
			}
		}
	}
	var rows []ShadowSetRow
	for base := range bases {
		member := func(suffix string) string {
			if present[base+suffix] {
				return base + suffix
			}
			return ""
		}
		rows = append(rows, ShadowSetRow{
			Scope:     scope,
			Signal:    base,
			ReadAlias: member(force.SuffixReadAlias),
			Enable:    member(force.SuffixEnable),
			Value:     member(force.SuffixValue),
			File:      file,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Signal < rows[j].Signal })
	return rows
}

// targets lists the signals written by an lvalue, in source order.
func targets(nl *netlist.Netlist, lvalue netlist.NodeID) []string {
	var names []string
	nl.Foreach(lvalue, netlist.KindVarRef, func(id netlist.NodeID) {
		if nl.Node(id).Access != netlist.AccessRead {
			names = append(names, nl.VarOf(id).Name)
		}
	})
	return names
}

// Merge concatenates the tables of several designs, ordering designs by
// file.
func Merge(all ...Tables) Tables {
	out := emptyTables()
	for _, t := range all {
		out.Designs = append(out.Designs, t.Designs...)
		out.Signals = append(out.Signals, t.Signals...)
		out.Instances = append(out.Instances, t.Instances...)
		out.ShadowSets = append(out.ShadowSets, t.ShadowSets...)
		out.Blocks = append(out.Blocks, t.Blocks...)
		out.Statements = append(out.Statements, t.Statements...)
		out.References = append(out.References, t.References...)
		out.Diagnostics = append(out.Diagnostics, t.Diagnostics...)
	}
	sort.SliceStable(out.Designs, func(i, j int) bool { return out.Designs[i].File < out.Designs[j].File })
	return out
}

// Counts returns the number of rows per relation, keyed by JSON name.
func (t Tables) Counts() map[string]int {
	return map[string]int{
		"designs":     len(t.Designs),
		"signals":     len(t.Signals),
		"instances":   len(t.Instances),
		"shadow_sets": len(t.ShadowSets),
		"blocks":      len(t.Blocks),
		"statements":  len(t.Statements),
		"references":  len(t.References),
		"diagnostics": len(t.Diagnostics),
	}
}
