package sim

// =============================================================================
// REFERENCE SIMULATOR FOR LOWERED NETLISTS
// =============================================================================
//
// A deliberately small evaluator used to observe the behavior of a netlist:
//   - Initialize runs every initial block once, then settles
//   - Settle re-evaluates combinational blocks until nothing changes
//   - Exec runs one procedural block, settling after every assignment
//   - Peek reads any signal, Poke writes public signals only
//
// There is no event queue and no time. Force and release statements are not
// executable: a netlist must be lowered first.
// =============================================================================

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdl-force/internal/netlist"
)

// DefaultMaxSettle bounds the combinational fixpoint iteration.
const DefaultMaxSettle = 64

var (
	// ErrUnlowered is returned for netlists that still contain force or
	// release statements.
	ErrUnlowered = errors.New("netlist contains force or release statements")
	// ErrNotPublic is returned when poking a signal without public access.
	ErrNotPublic = errors.New("signal is not public read/write")
	// ErrNoSettle is returned when combinational logic keeps changing.
	ErrNoSettle = errors.New("combinational logic did not settle")
)

// Options configures a Simulator.
type Options struct {
	Logger    *zap.Logger
	MaxSettle int
}

// Simulator holds the value of every signal instance.
type Simulator struct {
	nl        *netlist.Netlist
	log       *zap.Logger
	maxSettle int

	values  map[netlist.NodeID][]uint64 // VarScope -> elements
	changed bool
}

// New prepares a simulator. All signals start at zero.
func New(nl *netlist.Netlist, opts Options) (*Simulator, error) {
	var unlowered netlist.NodeID
	nl.Walk(nl.Root(), func(id netlist.NodeID) bool {
		switch nl.Kind(id) {
		case netlist.KindAssignForce, netlist.KindRelease:
			if !unlowered.IsValid() {
				unlowered = id
			}
		}
		return !unlowered.IsValid()
	})
	if unlowered.IsValid() {
		return nil, fmt.Errorf("%w (%s at %s)", ErrUnlowered, nl.Kind(unlowered), nl.Node(unlowered).Loc)
	}

	s := &Simulator{
		nl:        nl,
		log:       opts.Logger,
		maxSettle: opts.MaxSettle,
		values:    make(map[netlist.NodeID][]uint64),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.maxSettle <= 0 {
		s.maxSettle = DefaultMaxSettle
	}
	for _, scope := range nl.Scopes() {
		for _, vs := range nl.VarScopes(scope) {
			count, _ := elementCount(nl.VarOf(vs).DType)
			s.values[vs] = make([]uint64, count)
		}
	}
	return s, nil
}

func elementCount(d netlist.DType) (int, bool) {
	if d.IsArray() {
		return d.Elements, true
	}
	return 1, false
}

// Initialize runs the initial blocks of every scope, then settles.
func (s *Simulator) Initialize() error {
	for _, scope := range s.nl.Scopes() {
		for _, block := range s.nl.Blocks(scope) {
			if s.nl.Node(block).Sense != netlist.SenseInitial {
				continue
			}
			if err := s.execList(block, false); err != nil {
				return err
			}
		}
	}
	return s.Settle()
}

// Settle evaluates combinational blocks until a full round changes nothing.
func (s *Simulator) Settle() error {
	for round := 0; round < s.maxSettle; round++ {
		s.changed = false
		for _, scope := range s.nl.Scopes() {
			for _, block := range s.nl.Blocks(scope) {
				if s.nl.Node(block).Sense != netlist.SenseCombo {
					continue
				}
				if err := s.execList(block, false); err != nil {
					return err
				}
			}
		}
		if !s.changed {
			s.log.Debug("settled", zap.Int("rounds", round+1))
			return nil
		}
	}
	return fmt.Errorf("%w after %d rounds", ErrNoSettle, s.maxSettle)
}

// Exec runs the procedural block labeled label in the named scope, settling
// combinational logic after each assignment.
func (s *Simulator) Exec(scopeName, label string) error {
	scope, ok := s.nl.FindScope(scopeName)
	if !ok {
		return fmt.Errorf("unknown scope %q", scopeName)
	}
	for _, block := range s.nl.Blocks(scope) {
		n := s.nl.Node(block)
		if n.Sense == netlist.SenseProcess && n.Name == label {
			return s.execList(block, true)
		}
	}
	return fmt.Errorf("scope %s has no process block %q", scopeName, label)
}

// Peek returns the value of a plain signal.
func (s *Simulator) Peek(scope, name string) (uint64, error) {
	return s.PeekElem(scope, name, 0)
}

// PeekElem returns one element of a signal. Plain signals have element 0
// only.
func (s *Simulator) PeekElem(scope, name string, index int) (uint64, error) {
	vs, err := s.lookup(scope, name)
	if err != nil {
		return 0, err
	}
	vals := s.values[vs]
	if index < 0 || index >= len(vals) {
		return 0, fmt.Errorf("%s.%s has no element %d", scope, name, index)
	}
	return vals[index], nil
}

// Poke writes a public signal from outside the design, then settles.
func (s *Simulator) Poke(scope, name string, value uint64) error {
	return s.PokeElem(scope, name, 0, value)
}

// PokeElem writes one element of a public signal, then settles.
func (s *Simulator) PokeElem(scope, name string, index int, value uint64) error {
	vs, err := s.lookup(scope, name)
	if err != nil {
		return err
	}
	v := s.nl.VarOf(vs)
	if !v.Flags.Has(netlist.FlagPublicRW) {
		return fmt.Errorf("poke %s.%s: %w", scope, name, ErrNotPublic)
	}
	if index < 0 || index >= len(s.values[vs]) {
		return fmt.Errorf("%s.%s has no element %d", scope, name, index)
	}
	s.set(vs, index, value&v.DType.Mask())
	return s.Settle()
}

func (s *Simulator) lookup(scopeName, name string) (netlist.NodeID, error) {
	scope, ok := s.nl.FindScope(scopeName)
	if !ok {
		return netlist.NoNode, fmt.Errorf("unknown scope %q", scopeName)
	}
	vs, ok := s.nl.FindVarScope(scope, name)
	if !ok {
		return netlist.NoNode, fmt.Errorf("scope %s has no signal %q", scopeName, name)
	}
	return vs, nil
}

func (s *Simulator) set(vs netlist.NodeID, index int, value uint64) {
	vals := s.values[vs]
	if index < 0 || index >= len(vals) {
		return
	}
	if vals[index] != value {
		vals[index] = value
		s.changed = true
	}
}
