package sim

import (
	"fmt"

	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// execList runs the statements below a block or begin. With settle set,
// combinational logic is settled after every assignment.
func (s *Simulator) execList(id netlist.NodeID, settle bool) error {
	for _, stmt := range s.nl.Children(id) {
		if err := s.exec(stmt, settle); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) exec(id netlist.NodeID, settle bool) error {
	nl := s.nl
	n := nl.Node(id)
	switch n.Kind {
	case netlist.KindBegin:
		return s.execList(id, settle)
	case netlist.KindIf:
		cond, err := s.eval(n.Kids[0])
		if err != nil {
			return err
		}
		if cond != 0 {
			return s.execList(n.Kids[1], settle)
		}
		return s.execList(n.Kids[2], settle)
	case netlist.KindAssign, netlist.KindAssignW:
		v, err := s.eval(n.Kids[1])
		if err != nil {
			return err
		}
		if err := s.store(n.Kids[0], v); err != nil {
			return err
		}
		if settle {
			return s.Settle()
		}
		return nil
	case netlist.KindAssignForce, netlist.KindRelease:
		return fmt.Errorf("%w (%s at %s)", ErrUnlowered, n.Kind, n.Loc)
	}
	return fmt.Errorf("%s is not a statement", n.Kind)
}

// eval computes the value of an expression.
func (s *Simulator) eval(id netlist.NodeID) (uint64, error) {
	nl := s.nl
	n := nl.Node(id)
	switch n.Kind {
	case netlist.KindVarRef:
		if nl.VarOf(id).DType.IsArray() {
			return 0, fmt.Errorf("%s: whole-array value of %s", n.Loc, nl.VarOf(id).Name)
		}
		return s.values[n.Target][0], nil
	case netlist.KindConst:
		return n.Value, nil
	case netlist.KindSel:
		from, err := s.eval(n.Kids[0])
		if err != nil {
			return 0, err
		}
		return (from >> uint(n.Lsb)) & netlist.WidthMask(n.Width), nil
	case netlist.KindArraySel:
		vs, index, err := s.element(id)
		if err != nil {
			return 0, err
		}
		vals := s.values[vs]
		if index >= uint64(len(vals)) {
			return 0, nil
		}
		return vals[index], nil
	case netlist.KindConcat:
		var acc uint64
		for _, part := range n.Kids {
			v, err := s.eval(part)
			if err != nil {
				return 0, err
			}
			w := nl.DTypeOf(part).Width
			acc = acc<<uint(w) | v&netlist.WidthMask(w)
		}
		return acc, nil
	case netlist.KindNot:
		x, err := s.eval(n.Kids[0])
		if err != nil {
			return 0, err
		}
		return ^x & nl.DTypeOf(id).Mask(), nil
	case netlist.KindAnd, netlist.KindOr, netlist.KindXor:
		a, err := s.eval(n.Kids[0])
		if err != nil {
			return 0, err
		}
		b, err := s.eval(n.Kids[1])
		if err != nil {
			return 0, err
		}
		switch n.Kind {
		case netlist.KindAnd:
			return a & b, nil
		case netlist.KindOr:
			return a | b, nil
		}
		return a ^ b, nil
	case netlist.KindCond:
		c, err := s.eval(n.Kids[0])
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return s.eval(n.Kids[1])
		}
		return s.eval(n.Kids[2])
	}
	return 0, fmt.Errorf("%s is not an expression", n.Kind)
}

// element resolves an element select to its signal instance and index.
func (s *Simulator) element(id netlist.NodeID) (netlist.NodeID, uint64, error) {
	nl := s.nl
	n := nl.Node(id)
	from := nl.Node(n.Kids[0])
	if from.Kind != netlist.KindVarRef {
		return netlist.NoNode, 0, fmt.Errorf("%s: element select of a %s", n.Loc, from.Kind)
	}
	index, err := s.eval(n.Kids[1])
	if err != nil {
		return netlist.NoNode, 0, err
	}
	return from.Target, index, nil
}

// store writes v into an lvalue. Out-of-range element writes are dropped.
func (s *Simulator) store(id netlist.NodeID, v uint64) error {
	nl := s.nl
	n := nl.Node(id)
	switch n.Kind {
	case netlist.KindVarRef:
		d := nl.VarOf(id).DType
		if d.IsArray() {
			return fmt.Errorf("%s: whole-array assignment to %s", n.Loc, nl.VarOf(id).Name)
		}
		s.set(n.Target, 0, v&d.Mask())
		return nil
	case netlist.KindArraySel:
		vs, index, err := s.element(id)
		if err != nil {
			return err
		}
		if index < uint64(len(s.values[vs])) {
			s.set(vs, int(index), v&nl.VarOf(vs).DType.Mask())
		}
		return nil
	case netlist.KindSel:
		cur, err := s.eval(n.Kids[0])
		if err != nil {
			return err
		}
		mask := netlist.WidthMask(n.Width) << uint(n.Lsb)
		return s.store(n.Kids[0], cur&^mask|(v<<uint(n.Lsb))&mask)
	case netlist.KindConcat:
		for i := len(n.Kids) - 1; i >= 0; i-- {
			part := n.Kids[i]
			w := nl.DTypeOf(part).Width
			if err := s.store(part, v&netlist.WidthMask(w)); err != nil {
				return err
			}
			v >>= uint(w)
		}
		return nil
	}
	return fmt.Errorf("%s: %s is not assignable", n.Loc, n.Kind)
}
