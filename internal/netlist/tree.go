package netlist

import "fmt"

// InvariantError reports a corrupted graph. It is raised with panic from
// arena operations and recovered at pass boundaries.
type InvariantError struct {
	Node NodeID
	Kind Kind
	Msg  string
}

func (e *InvariantError) Error() string {
	if e.Node.IsValid() {
		return fmt.Sprintf("internal invariant violation at %s node %d: %s", e.Kind, e.Node, e.Msg)
	}
	return "internal invariant violation: " + e.Msg
}

func invariant(id NodeID, kind Kind, format string, args ...any) {
	panic(&InvariantError{Node: id, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// Relinker remembers where an unlinked node used to live.
type Relinker struct {
	parent NodeID
	index  int
}

func (nl *Netlist) adopt(parent, child NodeID) {
	c := nl.Node(child)
	if child == nl.root {
		invariant(child, c.Kind, "root cannot be adopted")
	}
	if c.Parent.IsValid() {
		invariant(child, c.Kind, "already owned by node %d", c.Parent)
	}
	c.Parent = parent
}

// Append links detached child as the last child of parent.
func (nl *Netlist) Append(parent, child NodeID) {
	p := nl.Node(parent)
	nl.adopt(parent, child)
	p.Kids = append(p.Kids, child)
}

// InsertAfter links the detached nodes directly after anchor, in order.
func (nl *Netlist) InsertAfter(anchor NodeID, ids ...NodeID) {
	a := nl.Node(anchor)
	if !a.Parent.IsValid() {
		invariant(anchor, a.Kind, "insert after a detached node")
	}
	nl.insertAt(a.Parent, nl.indexOf(a.Parent, anchor)+1, ids)
}

func (nl *Netlist) insertAt(parent NodeID, index int, ids []NodeID) {
	for _, id := range ids {
		nl.adopt(parent, id)
	}
	p := nl.Node(parent)
	kids := make([]NodeID, 0, len(p.Kids)+len(ids))
	kids = append(kids, p.Kids[:index]...)
	kids = append(kids, ids...)
	kids = append(kids, p.Kids[index:]...)
	p.Kids = kids
}

func (nl *Netlist) indexOf(parent, child NodeID) int {
	for i, kid := range nl.Node(parent).Kids {
		if kid == child {
			return i
		}
	}
	invariant(child, nl.Node(child).Kind, "missing from parent %d", parent)
	return -1
}

// Unlink detaches id from its owner and returns where it was. A node without
// a backlink cannot be unlinked: replacing it would lose it.
func (nl *Netlist) Unlink(id NodeID) Relinker {
	n := nl.Node(id)
	if !n.Parent.IsValid() {
		invariant(id, n.Kind, "must have backlink, otherwise will be lost if replaced")
	}
	parent := n.Parent
	index := nl.indexOf(parent, id)
	p := nl.Node(parent)
	p.Kids = append(p.Kids[:index:index], p.Kids[index+1:]...)
	n.Parent = NoNode
	return Relinker{parent: parent, index: index}
}

// Relink inserts the detached nodes where an unlinked node used to be.
func (nl *Netlist) Relink(r Relinker, ids ...NodeID) {
	if !r.parent.IsValid() {
		invariant(NoNode, KindInvalid, "relink with an empty relinker")
	}
	nl.insertAt(r.parent, r.index, ids)
}

// Replace puts detached repl into old's slot. old becomes detached and must
// be relinked or destroyed by the caller.
func (nl *Netlist) Replace(old, repl NodeID) {
	o := nl.Node(old)
	if !o.Parent.IsValid() {
		invariant(old, o.Kind, "replace a detached node")
	}
	parent := o.Parent
	index := nl.indexOf(parent, old)
	nl.adopt(parent, repl)
	nl.Node(parent).Kids[index] = repl
	o.Parent = NoNode
}

// DeleteTree destroys a detached subtree.
func (nl *Netlist) DeleteTree(id NodeID) {
	n := nl.Node(id)
	if n.Parent.IsValid() {
		invariant(id, n.Kind, "delete of a linked node (owner %d)", n.Parent)
	}
	nl.destroy(id)
}

func (nl *Netlist) destroy(id NodeID) {
	n := nl.Node(id)
	for _, kid := range n.Kids {
		nl.destroy(kid)
	}
	n.Kids = nil
	n.Parent = NoNode
	n.dead = true
}

// CloneTree deep-copies a subtree. The copy is detached; cross references
// are shared with the original.
func (nl *Netlist) CloneTree(id NodeID) NodeID {
	src := nl.Node(id)
	cp := *src
	cp.Parent = NoNode
	cp.Kids = nil
	cloned := nl.alloc(&cp)
	for _, kid := range src.Kids {
		nl.Append(cloned, nl.CloneTree(kid))
	}
	return cloned
}

// Walk visits the owned subtree rooted at id in pre-order. Returning false
// from fn skips the node's children.
func (nl *Netlist) Walk(id NodeID, fn func(id NodeID) bool) {
	if !fn(id) {
		return
	}
	for _, kid := range nl.Children(id) {
		if nl.Live(kid) && nl.nodes[kid].Parent == id {
			nl.Walk(kid, fn)
		}
	}
}

// Foreach calls fn for every node of the given kind below id.
func (nl *Netlist) Foreach(id NodeID, kind Kind, fn func(id NodeID)) {
	nl.Walk(id, func(n NodeID) bool {
		if nl.nodes[n].Kind == kind {
			fn(n)
		}
		return true
	})
}

func (nl *Netlist) newNode(n *Node, kids ...NodeID) NodeID {
	id := nl.alloc(n)
	for _, kid := range kids {
		nl.Append(id, kid)
	}
	return id
}

// AddModule creates a module under the root.
func (nl *Netlist) AddModule(name string) NodeID {
	id := nl.newNode(&Node{Kind: KindModule, Name: name})
	nl.Append(nl.root, id)
	return id
}

// NewVar creates a detached declaration.
func (nl *Netlist) NewVar(name string, dtype DType, kind VarKind, flags Flags, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindVar, Name: name, DType: dtype, VarKind: kind, Flags: flags, Loc: loc})
}

// AddVar declares a variable at the end of a module.
func (nl *Netlist) AddVar(module NodeID, name string, dtype DType, kind VarKind, flags Flags, loc Loc) NodeID {
	id := nl.NewVar(name, dtype, kind, flags, loc)
	nl.Append(module, id)
	return id
}

// AddScope creates an instantiation scope of module under the root.
func (nl *Netlist) AddScope(name string, module NodeID) NodeID {
	if nl.Kind(module) != KindModule {
		invariant(module, nl.Kind(module), "scope must reference a module")
	}
	id := nl.newNode(&Node{Kind: KindScope, Name: name, Module: module})
	nl.Append(nl.root, id)
	return id
}

// NewVarScope creates a detached instance of v in scope.
func (nl *Netlist) NewVarScope(scope, v NodeID) NodeID {
	if nl.Kind(v) != KindVar {
		invariant(v, nl.Kind(v), "varscope must reference a var")
	}
	return nl.newNode(&Node{Kind: KindVarScope, Var: v, Scope: scope, Loc: nl.Node(v).Loc})
}

// AddVarScope instantiates v in scope, after the existing instances.
func (nl *Netlist) AddVarScope(scope, v NodeID) NodeID {
	id := nl.NewVarScope(scope, v)
	blocks := nl.Blocks(scope)
	if len(blocks) == 0 {
		nl.Append(scope, id)
	} else {
		nl.insertAt(scope, nl.indexOf(scope, blocks[0]), []NodeID{id})
	}
	return id
}

// NewBlock creates a detached block.
func (nl *Netlist) NewBlock(sense Sense, label string, loc Loc, stmts ...NodeID) NodeID {
	return nl.newNode(&Node{Kind: KindBlock, Sense: sense, Name: label, Loc: loc}, stmts...)
}

// AddBlock creates a block at the end of scope.
func (nl *Netlist) AddBlock(scope NodeID, sense Sense, label string, loc Loc, stmts ...NodeID) NodeID {
	id := nl.NewBlock(sense, label, loc, stmts...)
	nl.Append(scope, id)
	return id
}

// NewBegin creates a statement list.
func (nl *Netlist) NewBegin(loc Loc, stmts ...NodeID) NodeID {
	return nl.newNode(&Node{Kind: KindBegin, Loc: loc}, stmts...)
}

// NewIf creates an if statement. then and els must be Begin nodes.
func (nl *Netlist) NewIf(cond, then, els NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindIf, Loc: loc}, cond, then, els)
}

// NewAssign creates a blocking procedural assignment.
func (nl *Netlist) NewAssign(lhs, rhs NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindAssign, Loc: loc}, lhs, rhs)
}

// NewAssignW creates a continuous assignment.
func (nl *Netlist) NewAssignW(lhs, rhs NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindAssignW, Loc: loc}, lhs, rhs)
}

// NewForce creates a force statement.
func (nl *Netlist) NewForce(lhs, rhs NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindAssignForce, Loc: loc}, lhs, rhs)
}

// NewRelease creates a release statement.
func (nl *Netlist) NewRelease(lhs NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindRelease, Loc: loc}, lhs)
}

// NewVarRef creates a reference to a variable instance.
func (nl *Netlist) NewVarRef(vscp NodeID, access Access, loc Loc) NodeID {
	if nl.Kind(vscp) != KindVarScope {
		invariant(vscp, nl.Kind(vscp), "reference target must be a varscope")
	}
	return nl.newNode(&Node{Kind: KindVarRef, Target: vscp, Access: access, Loc: loc})
}

// NewConst creates a constant, truncated to width bits.
func (nl *Netlist) NewConst(width int, value uint64, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindConst, Width: width, Value: value & WidthMask(width), Loc: loc})
}

// NewSel creates the part select from[lsb+width-1:lsb].
func (nl *Netlist) NewSel(from NodeID, lsb, width int, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindSel, Lsb: lsb, Width: width, Loc: loc}, from)
}

// NewArraySel creates the element select from[index].
func (nl *Netlist) NewArraySel(from, index NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindArraySel, Loc: loc}, from, index)
}

// NewConcat creates {parts...}, most significant part first.
func (nl *Netlist) NewConcat(loc Loc, parts ...NodeID) NodeID {
	return nl.newNode(&Node{Kind: KindConcat, Loc: loc}, parts...)
}

// NewNot creates ~x.
func (nl *Netlist) NewNot(x NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindNot, Loc: loc}, x)
}

// NewAnd creates a & b.
func (nl *Netlist) NewAnd(a, b NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindAnd, Loc: loc}, a, b)
}

// NewOr creates a | b.
func (nl *Netlist) NewOr(a, b NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindOr, Loc: loc}, a, b)
}

// NewXor creates a ^ b.
func (nl *Netlist) NewXor(a, b NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindXor, Loc: loc}, a, b)
}

// NewCond creates cond ? then : els.
func (nl *Netlist) NewCond(cond, then, els NodeID, loc Loc) NodeID {
	return nl.newNode(&Node{Kind: KindCond, Loc: loc}, cond, then, els)
}
