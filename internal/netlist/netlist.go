package netlist

// =============================================================================
// NETLIST: ARENA-OWNED, INDEX-ADDRESSED DESIGN GRAPH
// =============================================================================
//
// Every node lives in the Netlist arena and is addressed by a NodeID. A node
// is OWNED by exactly one parent (its Parent backlink) or is DETACHED
// (Parent == NoNode). The root is the only attached node without a parent.
//
// Ownership moves only through the operations in tree.go:
//   - Append / InsertAfter / Relink / Replace adopt a detached node
//   - Unlink / Replace detach a node from its owner
//   - DeleteTree destroys a detached subtree
//
// A detached node that is neither relinked nor destroyed is a leak. Check()
// reports leaks, double ownership and dangling references, so "every node is
// owned exactly once" is something a test can assert.
//
// Cross references (VarScope -> Var, VarRef -> VarScope, Scope -> Module) are
// NOT ownership. They are plain IDs and must point at live nodes.
// =============================================================================

import (
	"fmt"
)

// NodeID identifies a node within a Netlist. Zero is the invalid sentinel.
type NodeID uint32

// NoNode is the zero NodeID.
const NoNode NodeID = 0

// IsValid reports whether the ID is non-zero.
func (id NodeID) IsValid() bool { return id != NoNode }

// Kind is the closed set of node kinds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNetlist
	KindModule
	KindVar
	KindScope
	KindVarScope
	KindBlock
	KindBegin
	KindIf
	KindAssign
	KindAssignW
	KindAssignForce
	KindRelease
	KindVarRef
	KindConst
	KindSel
	KindArraySel
	KindConcat
	KindNot
	KindAnd
	KindOr
	KindXor
	KindCond
	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:     "invalid",
	KindNetlist:     "netlist",
	KindModule:      "module",
	KindVar:         "var",
	KindScope:       "scope",
	KindVarScope:    "varscope",
	KindBlock:       "block",
	KindBegin:       "begin",
	KindIf:          "if",
	KindAssign:      "assign",
	KindAssignW:     "assignw",
	KindAssignForce: "force",
	KindRelease:     "release",
	KindVarRef:      "ref",
	KindConst:       "const",
	KindSel:         "sel",
	KindArraySel:    "arraysel",
	KindConcat:      "concat",
	KindNot:         "not",
	KindAnd:         "and",
	KindOr:          "or",
	KindXor:         "xor",
	KindCond:        "cond",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsStmt reports whether nodes of this kind appear in statement lists.
func (k Kind) IsStmt() bool {
	switch k {
	case KindBegin, KindIf, KindAssign, KindAssignW, KindAssignForce, KindRelease:
		return true
	}
	return false
}

// IsExpr reports whether nodes of this kind are expressions.
func (k Kind) IsExpr() bool {
	switch k {
	case KindVarRef, KindConst, KindSel, KindArraySel, KindConcat,
		KindNot, KindAnd, KindOr, KindXor, KindCond:
		return true
	}
	return false
}

// Access is the direction of a variable reference.
type Access uint8

const (
	AccessRead Access = iota
	AccessWrite
	AccessReadWrite
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "readwrite"
	}
	return "unknown"
}

// VarKind distinguishes continuously driven nets from procedural variables.
type VarKind uint8

const (
	VarNet VarKind = iota
	VarVariable
)

func (k VarKind) String() string {
	if k == VarNet {
		return "net"
	}
	return "variable"
}

// Sense is the activation condition of a block.
type Sense uint8

const (
	// SenseInitial runs once before simulation starts.
	SenseInitial Sense = iota
	// SenseCombo is re-evaluated whenever its inputs change.
	SenseCombo
	// SenseProcess is procedural code executed in statement order.
	SenseProcess
)

func (s Sense) String() string {
	switch s {
	case SenseInitial:
		return "initial"
	case SenseCombo:
		return "comb"
	case SenseProcess:
		return "process"
	}
	return "unknown"
}

// Flags are boolean attributes of declarations and assignments.
type Flags uint8

const (
	// FlagForceable marks a signal that a host runtime may force.
	FlagForceable Flags = 1 << iota
	// FlagPrimaryIO marks a top-level boundary port.
	FlagPrimaryIO
	// FlagPublicRW exposes a signal for read/write from a host runtime.
	FlagPublicRW
	// FlagNoBlkNblkWarn suppresses mixed blocking/non-blocking diagnostics.
	FlagNoBlkNblkWarn
)

// Has reports whether all bits of f are set.
func (fl Flags) Has(f Flags) bool { return fl&f == f }

// Loc is a source location.
type Loc struct {
	File string
	Line int
}

func (l Loc) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Node is one arena slot. Which fields are meaningful depends on Kind:
//
//	Module    Name; Kids = Vars
//	Var       Name, DType, VarKind, Flags
//	Scope     Name, Module; Kids = VarScopes then Blocks
//	VarScope  Var, Scope
//	Block     Name (label), Sense; Kids = statements
//	Begin     Kids = statements
//	If        Kids = [cond, then Begin, else Begin]
//	Assign*   Kids = [lhs, rhs], Flags
//	Release   Kids = [lhs]
//	VarRef    Target (VarScope), Access
//	Const     Width, Value
//	Sel       Kids = [from], Lsb, Width
//	ArraySel  Kids = [from, index]
//	Concat    Kids = parts, most significant first
//	Not       Kids = [x]
//	And/Or/Xor Kids = [a, b]
//	Cond      Kids = [cond, then, else]
type Node struct {
	Kind   Kind
	Parent NodeID
	Loc    Loc
	Kids   []NodeID

	Name    string
	DType   DType
	VarKind VarKind
	Flags   Flags
	Sense   Sense

	Module NodeID
	Var    NodeID
	Scope  NodeID
	Target NodeID
	Access Access

	Value uint64
	Width int
	Lsb   int

	dead bool
}

// Netlist is the arena holding a whole design.
type Netlist struct {
	// Name identifies the design (usually its source document).
	Name string

	// HasForceableSignals gates the force lowering pass.
	HasForceableSignals bool

	nodes []*Node
	root  NodeID
}

// New creates an empty netlist with a root node.
func New(name string) *Netlist {
	nl := &Netlist{Name: name, nodes: []*Node{nil}}
	nl.root = nl.alloc(&Node{Kind: KindNetlist})
	return nl
}

// Root returns the root node ID.
func (nl *Netlist) Root() NodeID { return nl.root }

func (nl *Netlist) alloc(n *Node) NodeID {
	nl.nodes = append(nl.nodes, n)
	return NodeID(len(nl.nodes) - 1)
}

// Node returns the live node with the given ID. Asking for a destroyed or
// unknown node is an invariant violation.
func (nl *Netlist) Node(id NodeID) *Node {
	if !id.IsValid() || int(id) >= len(nl.nodes) {
		invariant(id, KindInvalid, "node %d does not exist", id)
	}
	n := nl.nodes[id]
	if n.dead {
		invariant(id, n.Kind, "use of destroyed node")
	}
	return n
}

// Live reports whether id names a node that has not been destroyed.
func (nl *Netlist) Live(id NodeID) bool {
	return id.IsValid() && int(id) < len(nl.nodes) && !nl.nodes[id].dead
}

// Kind returns the kind of a live node.
func (nl *Netlist) Kind(id NodeID) Kind { return nl.Node(id).Kind }

// Kid returns the i-th child of a node.
func (nl *Netlist) Kid(id NodeID, i int) NodeID {
	n := nl.Node(id)
	if i < 0 || i >= len(n.Kids) {
		invariant(id, n.Kind, "child %d out of range (%d children)", i, len(n.Kids))
	}
	return n.Kids[i]
}

// Children returns a copy of a node's child list, safe to iterate while the
// tree is being edited.
func (nl *Netlist) Children(id NodeID) []NodeID {
	kids := nl.Node(id).Kids
	out := make([]NodeID, len(kids))
	copy(out, kids)
	return out
}

// LiveCount returns the number of nodes that have not been destroyed.
func (nl *Netlist) LiveCount() int {
	count := 0
	for _, n := range nl.nodes[1:] {
		if !n.dead {
			count++
		}
	}
	return count
}

// Modules returns the module nodes in declaration order.
func (nl *Netlist) Modules() []NodeID { return nl.childrenOfKind(nl.root, KindModule) }

// Scopes returns the scope nodes in elaboration order.
func (nl *Netlist) Scopes() []NodeID { return nl.childrenOfKind(nl.root, KindScope) }

// VarScopes returns the variable instances of a scope in declaration order.
func (nl *Netlist) VarScopes(scope NodeID) []NodeID {
	return nl.childrenOfKind(scope, KindVarScope)
}

// Blocks returns the blocks of a scope.
func (nl *Netlist) Blocks(scope NodeID) []NodeID { return nl.childrenOfKind(scope, KindBlock) }

func (nl *Netlist) childrenOfKind(id NodeID, kind Kind) []NodeID {
	var out []NodeID
	for _, kid := range nl.Node(id).Kids {
		if nl.nodes[kid].Kind == kind {
			out = append(out, kid)
		}
	}
	return out
}

// VarOf returns the declaration behind a VarScope or VarRef.
func (nl *Netlist) VarOf(id NodeID) *Node {
	n := nl.Node(id)
	switch n.Kind {
	case KindVarScope:
		return nl.Node(n.Var)
	case KindVarRef:
		return nl.Node(nl.Node(n.Target).Var)
	case KindVar:
		return n
	}
	invariant(id, n.Kind, "node has no variable")
	return nil
}

// FindModule returns the module with the given name.
func (nl *Netlist) FindModule(name string) (NodeID, bool) {
	for _, m := range nl.Modules() {
		if nl.nodes[m].Name == name {
			return m, true
		}
	}
	return NoNode, false
}

// FindScope returns the scope with the given name.
func (nl *Netlist) FindScope(name string) (NodeID, bool) {
	for _, s := range nl.Scopes() {
		if nl.nodes[s].Name == name {
			return s, true
		}
	}
	return NoNode, false
}

// FindVarScope returns the instance of the named variable inside scope.
func (nl *Netlist) FindVarScope(scope NodeID, name string) (NodeID, bool) {
	for _, vs := range nl.VarScopes(scope) {
		if nl.Node(nl.nodes[vs].Var).Name == name {
			return vs, true
		}
	}
	return NoNode, false
}

// VarScopeName returns "scope.var" for diagnostics.
func (nl *Netlist) VarScopeName(vscp NodeID) string {
	n := nl.Node(vscp)
	return nl.Node(n.Scope).Name + "." + nl.Node(n.Var).Name
}
