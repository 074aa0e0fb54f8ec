package netlist

import "fmt"

// MaxWidth is the widest packed value the netlist carries.
const MaxWidth = 64

// Shape classifies how a signal may be forced.
type Shape uint8

const (
	// ShapeOpaque signals are forced as a whole with a single enable bit.
	ShapeOpaque Shape = iota
	// ShapeRanged signals support independent per-bit enables.
	ShapeRanged
	// ShapeArray signals are unpacked arrays of opaque or ranged elements.
	ShapeArray
)

func (s Shape) String() string {
	switch s {
	case ShapeOpaque:
		return "opaque"
	case ShapeRanged:
		return "ranged"
	case ShapeArray:
		return "array"
	}
	return "unknown"
}

// DType is the data type of a declaration or expression.
type DType struct {
	// Width is the packed width of one element in bits.
	Width int
	// Ranged marks a packed bit-vector.
	Ranged bool
	// Elements is the unpacked array length, zero for non-arrays.
	Elements int
}

// Logic returns a packed bit-vector type.
func Logic(width int) DType { return DType{Width: width, Ranged: true} }

// Bit returns the single-bit opaque type.
func Bit() DType { return DType{Width: 1} }

// IsArray reports whether the type is an unpacked array.
func (d DType) IsArray() bool { return d.Elements > 0 }

// Elem returns the element type of an array, or d itself.
func (d DType) Elem() DType { return DType{Width: d.Width, Ranged: d.Ranged} }

// Shape classifies the type.
func (d DType) Shape() Shape {
	switch {
	case d.IsArray():
		return ShapeArray
	case d.Ranged:
		return ShapeRanged
	default:
		return ShapeOpaque
	}
}

// Mask returns the all-ones value of one element.
func (d DType) Mask() uint64 { return WidthMask(d.Width) }

// EnableDType returns the type of the force enable shadow for a signal of
// type d. Ranged elements get a full-width enable so individual bits can be
// forced; opaque elements get one bit. Arrays keep one enable per element.
func (d DType) EnableDType() DType {
	elem := d.Elem()
	if !elem.Ranged {
		elem = Bit()
	}
	elem.Elements = d.Elements
	return elem
}

func (d DType) String() string {
	base := "bit"
	if d.Ranged {
		base = fmt.Sprintf("logic[%d:0]", d.Width-1)
	} else if d.Width > 1 {
		base = fmt.Sprintf("opaque%d", d.Width)
	}
	if d.IsArray() {
		return fmt.Sprintf("%s [0:%d]", base, d.Elements-1)
	}
	return base
}

// WidthMask returns a mask with the low width bits set.
func WidthMask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	if width <= 0 {
		return 0
	}
	return (uint64(1) << uint(width)) - 1
}

// DTypeOf computes the type of an expression node.
func (nl *Netlist) DTypeOf(id NodeID) DType {
	n := nl.Node(id)
	switch n.Kind {
	case KindVarRef:
		return nl.VarOf(id).DType
	case KindConst:
		return DType{Width: n.Width, Ranged: n.Width > 1}
	case KindSel:
		return Logic(n.Width)
	case KindArraySel:
		return nl.DTypeOf(n.Kids[0]).Elem()
	case KindConcat:
		width := 0
		for _, part := range n.Kids {
			width += nl.DTypeOf(part).Width
		}
		return Logic(width)
	case KindNot:
		return nl.DTypeOf(n.Kids[0])
	case KindAnd, KindOr, KindXor:
		return widest(nl.DTypeOf(n.Kids[0]), nl.DTypeOf(n.Kids[1]))
	case KindCond:
		return widest(nl.DTypeOf(n.Kids[1]), nl.DTypeOf(n.Kids[2]))
	case KindInvalid, KindNetlist, KindModule, KindVar, KindScope, KindVarScope,
		KindBlock, KindBegin, KindIf, KindAssign, KindAssignW, KindAssignForce, KindRelease:
		invariant(id, n.Kind, "node is not an expression")
	}
	invariant(id, n.Kind, "unhandled kind in DTypeOf")
	return DType{}
}

func widest(a, b DType) DType {
	if a.IsArray() {
		return a
	}
	out := a
	if b.Width > out.Width {
		out.Width = b.Width
	}
	out.Ranged = a.Ranged || b.Ranged
	return out
}
