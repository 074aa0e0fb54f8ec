package netlist

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is the serialized form of an elaborated design. It is the input
// contract of the lowering tools and is checked against #Design in
// internal/validator before decoding.
type Document struct {
	Name                string      `json:"name"`
	HasForceableSignals bool        `json:"has_forceable_signals"`
	Modules             []ModuleDoc `json:"modules"`
	Scopes              []ScopeDoc  `json:"scopes"`
}

// ModuleDoc is a structural unit with its declarations.
type ModuleDoc struct {
	Name string   `json:"name"`
	Vars []VarDoc `json:"vars"`
}

// VarDoc is one signal declaration.
type VarDoc struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Width     int    `json:"width"`
	Ranged    bool   `json:"ranged"`
	Elements  int    `json:"elements,omitempty"`
	Forceable bool   `json:"forceable,omitempty"`
	PrimaryIO bool   `json:"primary_io,omitempty"`
	PublicRW  bool   `json:"public_rw,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// ScopeDoc is one instantiation of a module. An omitted Vars list
// instantiates every declaration of the module.
type ScopeDoc struct {
	Name   string     `json:"name"`
	Module string     `json:"module"`
	Vars   []string   `json:"vars,omitempty"`
	Blocks []BlockDoc `json:"blocks"`
}

// BlockDoc is an initial, combinational or procedural block.
type BlockDoc struct {
	Kind  string    `json:"kind"`
	Label string    `json:"label,omitempty"`
	Stmts []StmtDoc `json:"stmts"`
	Line  int       `json:"line,omitempty"`
}

// StmtDoc is a statement. Op is one of assign, assignw, force, release,
// begin, if.
type StmtDoc struct {
	Op              string    `json:"op"`
	Lhs             *ExprDoc  `json:"lhs,omitempty"`
	Rhs             *ExprDoc  `json:"rhs,omitempty"`
	Cond            *ExprDoc  `json:"cond,omitempty"`
	Then            []StmtDoc `json:"then,omitempty"`
	Else            []StmtDoc `json:"else,omitempty"`
	Stmts           []StmtDoc `json:"stmts,omitempty"`
	SuppressBlkNblk bool      `json:"suppress_blkandnblk,omitempty"`
	Line            int       `json:"line,omitempty"`
}

// ExprDoc is an expression. Op is one of ref, const, sel, arraysel, concat,
// not, and, or, xor, cond.
type ExprDoc struct {
	Op     string    `json:"op"`
	Signal string    `json:"signal,omitempty"`
	Access string    `json:"access,omitempty"`
	Width  int       `json:"width,omitempty"`
	Value  uint64    `json:"value,omitempty"`
	Lsb    int       `json:"lsb,omitempty"`
	Args   []ExprDoc `json:"args,omitempty"`
	Line   int       `json:"line,omitempty"`
}

// ReadDocument loads a JSON document from disk.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading design: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing design: %w", err)
	}
	return &doc, nil
}

// decoder carries the name tables of one Decode call.
type decoder struct {
	nl   *Netlist
	file string
}

// Decode builds a netlist from a document. Unknown names and malformed
// nodes are reported as errors.
func Decode(doc *Document, file string) (*Netlist, error) {
	nl := New(doc.Name)
	nl.HasForceableSignals = doc.HasForceableSignals
	d := &decoder{nl: nl, file: file}

	for _, m := range doc.Modules {
		if _, dup := nl.FindModule(m.Name); dup {
			return nil, fmt.Errorf("duplicate module %q", m.Name)
		}
		mod := nl.AddModule(m.Name)
		seen := make(map[string]bool)
		for _, v := range m.Vars {
			if seen[v.Name] {
				return nil, fmt.Errorf("module %s: duplicate signal %q", m.Name, v.Name)
			}
			seen[v.Name] = true
			kind, err := parseVarKind(v.Kind)
			if err != nil {
				return nil, fmt.Errorf("module %s signal %s: %w", m.Name, v.Name, err)
			}
			if v.Width < 1 || v.Width > MaxWidth {
				return nil, fmt.Errorf("module %s signal %s: width %d out of range 1..%d", m.Name, v.Name, v.Width, MaxWidth)
			}
			var flags Flags
			if v.Forceable {
				flags |= FlagForceable
			}
			if v.PrimaryIO {
				flags |= FlagPrimaryIO
			}
			if v.PublicRW {
				flags |= FlagPublicRW
			}
			dtype := DType{Width: v.Width, Ranged: v.Ranged, Elements: v.Elements}
			nl.AddVar(mod, v.Name, dtype, kind, flags, d.loc(v.Line))
		}
	}

	for _, s := range doc.Scopes {
		if _, dup := nl.FindScope(s.Name); dup {
			return nil, fmt.Errorf("duplicate scope %q", s.Name)
		}
		mod, ok := nl.FindModule(s.Module)
		if !ok {
			return nil, fmt.Errorf("scope %s: unknown module %q", s.Name, s.Module)
		}
		scope := nl.AddScope(s.Name, mod)
		names := s.Vars
		if names == nil {
			for _, v := range nl.Children(mod) {
				names = append(names, nl.Node(v).Name)
			}
		}
		for _, name := range names {
			v, ok := d.findVar(mod, name)
			if !ok {
				return nil, fmt.Errorf("scope %s: module %s has no signal %q", s.Name, s.Module, name)
			}
			nl.AddVarScope(scope, v)
		}
		for i, b := range s.Blocks {
			sense, err := parseSense(b.Kind)
			if err != nil {
				return nil, fmt.Errorf("scope %s block %d: %w", s.Name, i, err)
			}
			block := nl.AddBlock(scope, sense, b.Label, d.loc(b.Line))
			for _, sd := range b.Stmts {
				stmt, err := d.stmt(scope, sd)
				if err != nil {
					return nil, fmt.Errorf("scope %s block %d: %w", s.Name, i, err)
				}
				nl.Append(block, stmt)
			}
		}
	}
	return nl, nil
}

func (d *decoder) loc(line int) Loc { return Loc{File: d.file, Line: line} }

func (d *decoder) findVar(mod NodeID, name string) (NodeID, bool) {
	for _, v := range d.nl.Children(mod) {
		if d.nl.Node(v).Name == name {
			return v, true
		}
	}
	return NoNode, false
}

func (d *decoder) stmt(scope NodeID, sd StmtDoc) (NodeID, error) {
	nl := d.nl
	loc := d.loc(sd.Line)
	switch sd.Op {
	case "assign", "assignw", "force":
		if sd.Lhs == nil || sd.Rhs == nil {
			return NoNode, fmt.Errorf("line %d: %s needs lhs and rhs", sd.Line, sd.Op)
		}
		lhs, err := d.expr(scope, *sd.Lhs, AccessWrite)
		if err != nil {
			return NoNode, err
		}
		rhs, err := d.expr(scope, *sd.Rhs, AccessRead)
		if err != nil {
			return NoNode, err
		}
		var id NodeID
		switch sd.Op {
		case "assign":
			id = nl.NewAssign(lhs, rhs, loc)
		case "assignw":
			id = nl.NewAssignW(lhs, rhs, loc)
		default:
			id = nl.NewForce(lhs, rhs, loc)
		}
		if sd.SuppressBlkNblk {
			nl.Node(id).Flags |= FlagNoBlkNblkWarn
		}
		return id, nil
	case "release":
		if sd.Lhs == nil {
			return NoNode, fmt.Errorf("line %d: release needs lhs", sd.Line)
		}
		lhs, err := d.expr(scope, *sd.Lhs, AccessWrite)
		if err != nil {
			return NoNode, err
		}
		return nl.NewRelease(lhs, loc), nil
	case "begin":
		stmts, err := d.stmts(scope, sd.Stmts)
		if err != nil {
			return NoNode, err
		}
		return nl.NewBegin(loc, stmts...), nil
	case "if":
		if sd.Cond == nil {
			return NoNode, fmt.Errorf("line %d: if needs cond", sd.Line)
		}
		cond, err := d.expr(scope, *sd.Cond, AccessRead)
		if err != nil {
			return NoNode, err
		}
		then, err := d.stmts(scope, sd.Then)
		if err != nil {
			return NoNode, err
		}
		els, err := d.stmts(scope, sd.Else)
		if err != nil {
			return NoNode, err
		}
		return nl.NewIf(cond, nl.NewBegin(loc, then...), nl.NewBegin(loc, els...), loc), nil
	}
	return NoNode, fmt.Errorf("line %d: unknown statement op %q", sd.Line, sd.Op)
}

func (d *decoder) stmts(scope NodeID, docs []StmtDoc) ([]NodeID, error) {
	out := make([]NodeID, 0, len(docs))
	for _, sd := range docs {
		id, err := d.stmt(scope, sd)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// expr decodes an expression. access is the default for references that
// do not state one: write on the left of an assignment, read elsewhere.
// Indices and conditions inside an lvalue are always reads.
func (d *decoder) expr(scope NodeID, ed ExprDoc, access Access) (NodeID, error) {
	nl := d.nl
	loc := d.loc(ed.Line)
	args := func(n int, accs ...Access) ([]NodeID, error) {
		if len(ed.Args) != n {
			return nil, fmt.Errorf("line %d: %s takes %d operands, got %d", ed.Line, ed.Op, n, len(ed.Args))
		}
		out := make([]NodeID, n)
		for i, a := range ed.Args {
			acc := AccessRead
			if i < len(accs) {
				acc = accs[i]
			}
			id, err := d.expr(scope, a, acc)
			if err != nil {
				return nil, err
			}
			out[i] = id
		}
		return out, nil
	}

	switch ed.Op {
	case "ref":
		vscp, ok := nl.FindVarScope(scope, ed.Signal)
		if !ok {
			return NoNode, fmt.Errorf("line %d: unknown signal %q in scope %s", ed.Line, ed.Signal, nl.Node(scope).Name)
		}
		acc := access
		if ed.Access != "" {
			parsed, err := parseAccess(ed.Access)
			if err != nil {
				return NoNode, fmt.Errorf("line %d: %w", ed.Line, err)
			}
			acc = parsed
		}
		return nl.NewVarRef(vscp, acc, loc), nil
	case "const":
		if ed.Width < 1 || ed.Width > MaxWidth {
			return NoNode, fmt.Errorf("line %d: constant width %d out of range", ed.Line, ed.Width)
		}
		return nl.NewConst(ed.Width, ed.Value, loc), nil
	case "sel":
		kids, err := args(1, access)
		if err != nil {
			return NoNode, err
		}
		from := nl.DTypeOf(kids[0])
		if ed.Width < 1 || ed.Lsb < 0 || ed.Lsb+ed.Width > from.Width || from.IsArray() {
			return NoNode, fmt.Errorf("line %d: bad part select [%d+:%d] of %s", ed.Line, ed.Lsb, ed.Width, from)
		}
		if !from.Ranged && access != AccessRead {
			return NoNode, fmt.Errorf("line %d: part select of opaque %s cannot be assigned", ed.Line, from)
		}
		return nl.NewSel(kids[0], ed.Lsb, ed.Width, loc), nil
	case "arraysel":
		kids, err := args(2, access, AccessRead)
		if err != nil {
			return NoNode, err
		}
		if !nl.DTypeOf(kids[0]).IsArray() {
			return NoNode, fmt.Errorf("line %d: element select of a non-array", ed.Line)
		}
		return nl.NewArraySel(kids[0], kids[1], loc), nil
	case "concat":
		if len(ed.Args) == 0 {
			return NoNode, fmt.Errorf("line %d: empty concatenation", ed.Line)
		}
		accs := make([]Access, len(ed.Args))
		for i := range accs {
			accs[i] = access
		}
		kids, err := args(len(ed.Args), accs...)
		if err != nil {
			return NoNode, err
		}
		return nl.NewConcat(loc, kids...), nil
	case "not":
		kids, err := args(1)
		if err != nil {
			return NoNode, err
		}
		return nl.NewNot(kids[0], loc), nil
	case "and", "or", "xor":
		kids, err := args(2)
		if err != nil {
			return NoNode, err
		}
		switch ed.Op {
		case "and":
			return nl.NewAnd(kids[0], kids[1], loc), nil
		case "or":
			return nl.NewOr(kids[0], kids[1], loc), nil
		}
		return nl.NewXor(kids[0], kids[1], loc), nil
	case "cond":
		kids, err := args(3)
		if err != nil {
			return NoNode, err
		}
		return nl.NewCond(kids[0], kids[1], kids[2], loc), nil
	}
	return NoNode, fmt.Errorf("line %d: unknown expression op %q", ed.Line, ed.Op)
}

// Encode serializes a netlist back into a document.
func Encode(nl *Netlist) *Document {
	doc := &Document{
		Name:                nl.Name,
		HasForceableSignals: nl.HasForceableSignals,
		Modules:             []ModuleDoc{},
		Scopes:              []ScopeDoc{},
	}
	for _, m := range nl.Modules() {
		md := ModuleDoc{Name: nl.Node(m).Name, Vars: []VarDoc{}}
		for _, v := range nl.Children(m) {
			n := nl.Node(v)
			md.Vars = append(md.Vars, VarDoc{
				Name:      n.Name,
				Kind:      n.VarKind.String(),
				Width:     n.DType.Width,
				Ranged:    n.DType.Ranged,
				Elements:  n.DType.Elements,
				Forceable: n.Flags.Has(FlagForceable),
				PrimaryIO: n.Flags.Has(FlagPrimaryIO),
				PublicRW:  n.Flags.Has(FlagPublicRW),
				Line:      n.Loc.Line,
			})
		}
		doc.Modules = append(doc.Modules, md)
	}
	for _, s := range nl.Scopes() {
		n := nl.Node(s)
		sd := ScopeDoc{Name: n.Name, Module: nl.Node(n.Module).Name, Vars: []string{}, Blocks: []BlockDoc{}}
		for _, vs := range nl.VarScopes(s) {
			sd.Vars = append(sd.Vars, nl.VarOf(vs).Name)
		}
		for _, b := range nl.Blocks(s) {
			bn := nl.Node(b)
			bd := BlockDoc{Kind: bn.Sense.String(), Label: bn.Name, Line: bn.Loc.Line, Stmts: []StmtDoc{}}
			for _, stmt := range bn.Kids {
				bd.Stmts = append(bd.Stmts, encodeStmt(nl, stmt))
			}
			sd.Blocks = append(sd.Blocks, bd)
		}
		doc.Scopes = append(doc.Scopes, sd)
	}
	return doc
}

func encodeStmt(nl *Netlist, id NodeID) StmtDoc {
	n := nl.Node(id)
	sd := StmtDoc{Op: n.Kind.String(), Line: n.Loc.Line, SuppressBlkNblk: n.Flags.Has(FlagNoBlkNblkWarn)}
	switch n.Kind {
	case KindAssign, KindAssignW, KindAssignForce:
		lhs, rhs := encodeExpr(nl, n.Kids[0]), encodeExpr(nl, n.Kids[1])
		sd.Lhs, sd.Rhs = &lhs, &rhs
	case KindRelease:
		lhs := encodeExpr(nl, n.Kids[0])
		sd.Lhs = &lhs
	case KindBegin:
		for _, kid := range n.Kids {
			sd.Stmts = append(sd.Stmts, encodeStmt(nl, kid))
		}
	case KindIf:
		cond := encodeExpr(nl, n.Kids[0])
		sd.Cond = &cond
		for _, kid := range nl.Node(n.Kids[1]).Kids {
			sd.Then = append(sd.Then, encodeStmt(nl, kid))
		}
		for _, kid := range nl.Node(n.Kids[2]).Kids {
			sd.Else = append(sd.Else, encodeStmt(nl, kid))
		}
	}
	return sd
}

func encodeExpr(nl *Netlist, id NodeID) ExprDoc {
	n := nl.Node(id)
	ed := ExprDoc{Op: n.Kind.String(), Line: n.Loc.Line}
	switch n.Kind {
	case KindVarRef:
		ed.Signal = nl.VarOf(id).Name
		ed.Access = n.Access.String()
	case KindConst:
		ed.Width, ed.Value = n.Width, n.Value
	case KindSel:
		ed.Width, ed.Lsb = n.Width, n.Lsb
	}
	for _, kid := range n.Kids {
		ed.Args = append(ed.Args, encodeExpr(nl, kid))
	}
	return ed
}

// WriteDocument writes a document as indented JSON.
func WriteDocument(path string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling design: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing design: %w", err)
	}
	return nil
}

func parseVarKind(s string) (VarKind, error) {
	switch s {
	case "net", "wire":
		return VarNet, nil
	case "variable", "var", "reg":
		return VarVariable, nil
	}
	return VarNet, fmt.Errorf("unknown signal kind %q", s)
}

func parseSense(s string) (Sense, error) {
	switch s {
	case "initial":
		return SenseInitial, nil
	case "comb", "combo":
		return SenseCombo, nil
	case "process", "always":
		return SenseProcess, nil
	}
	return SenseInitial, fmt.Errorf("unknown block kind %q", s)
}

func parseAccess(s string) (Access, error) {
	switch s {
	case "read":
		return AccessRead, nil
	case "write":
		return AccessWrite, nil
	case "readwrite":
		return AccessReadWrite, nil
	}
	return AccessRead, fmt.Errorf("unknown access %q", s)
}
