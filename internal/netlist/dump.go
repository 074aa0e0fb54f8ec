package netlist

import (
	"fmt"
	"strings"
)

// Dump renders the whole netlist as indented text, one declaration or
// statement per line.
func (nl *Netlist) Dump() string {
	var b strings.Builder
	for _, m := range nl.Modules() {
		fmt.Fprintf(&b, "module %s\n", nl.nodes[m].Name)
		for _, v := range nl.Children(m) {
			fmt.Fprintf(&b, "  %s\n", nl.declString(v))
		}
	}
	for _, s := range nl.Scopes() {
		n := nl.nodes[s]
		fmt.Fprintf(&b, "scope %s (module %s)\n", n.Name, nl.Node(n.Module).Name)
		for _, kid := range n.Kids {
			k := nl.nodes[kid]
			switch k.Kind {
			case KindVarScope:
				fmt.Fprintf(&b, "  varscope %s\n", nl.Node(k.Var).Name)
			case KindBlock:
				fmt.Fprintf(&b, "  %s %q\n", k.Sense, k.Name)
				for _, stmt := range k.Kids {
					nl.dumpStmt(&b, stmt, "    ")
				}
			}
		}
	}
	return b.String()
}

func (nl *Netlist) declString(id NodeID) string {
	n := nl.Node(id)
	var attrs []string
	attrs = append(attrs, n.VarKind.String())
	if n.Flags.Has(FlagForceable) {
		attrs = append(attrs, "forceable")
	}
	if n.Flags.Has(FlagPrimaryIO) {
		attrs = append(attrs, "primary_io")
	}
	if n.Flags.Has(FlagPublicRW) {
		attrs = append(attrs, "public_rw")
	}
	return fmt.Sprintf("var %s %s %s", n.DType, n.Name, strings.Join(attrs, " "))
}

func (nl *Netlist) dumpStmt(b *strings.Builder, id NodeID, indent string) {
	n := nl.Node(id)
	switch n.Kind {
	case KindBegin:
		fmt.Fprintf(b, "%sbegin\n", indent)
		for _, stmt := range n.Kids {
			nl.dumpStmt(b, stmt, indent+"  ")
		}
		fmt.Fprintf(b, "%send\n", indent)
	case KindIf:
		fmt.Fprintf(b, "%sif (%s)\n", indent, nl.ExprString(n.Kids[0]))
		nl.dumpStmt(b, n.Kids[1], indent)
		if len(nl.Node(n.Kids[2]).Kids) > 0 {
			fmt.Fprintf(b, "%selse\n", indent)
			nl.dumpStmt(b, n.Kids[2], indent)
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, nl.StmtString(id))
	}
}

// StmtString renders a single assignment-like statement.
func (nl *Netlist) StmtString(id NodeID) string {
	n := nl.Node(id)
	switch n.Kind {
	case KindAssign:
		return fmt.Sprintf("%s = %s;", nl.ExprString(n.Kids[0]), nl.ExprString(n.Kids[1]))
	case KindAssignW:
		return fmt.Sprintf("assign %s = %s;", nl.ExprString(n.Kids[0]), nl.ExprString(n.Kids[1]))
	case KindAssignForce:
		return fmt.Sprintf("force %s = %s;", nl.ExprString(n.Kids[0]), nl.ExprString(n.Kids[1]))
	case KindRelease:
		return fmt.Sprintf("release %s;", nl.ExprString(n.Kids[0]))
	case KindBegin:
		return fmt.Sprintf("begin /* %d statements */ end", len(n.Kids))
	case KindIf:
		return fmt.Sprintf("if (%s) ...", nl.ExprString(n.Kids[0]))
	}
	return fmt.Sprintf("<%s>", n.Kind)
}

// ExprString renders an expression in HDL-like syntax.
func (nl *Netlist) ExprString(id NodeID) string {
	n := nl.Node(id)
	switch n.Kind {
	case KindVarRef:
		return nl.VarOf(id).Name
	case KindConst:
		return fmt.Sprintf("%d'h%x", n.Width, n.Value)
	case KindSel:
		if n.Width == 1 {
			return fmt.Sprintf("%s[%d]", nl.ExprString(n.Kids[0]), n.Lsb)
		}
		return fmt.Sprintf("%s[%d:%d]", nl.ExprString(n.Kids[0]), n.Lsb+n.Width-1, n.Lsb)
	case KindArraySel:
		return fmt.Sprintf("%s[%s]", nl.ExprString(n.Kids[0]), nl.indexString(n.Kids[1]))
	case KindConcat:
		parts := make([]string, len(n.Kids))
		for i, part := range n.Kids {
			parts[i] = nl.ExprString(part)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindNot:
		return "~" + nl.ExprString(n.Kids[0])
	case KindAnd:
		return fmt.Sprintf("(%s & %s)", nl.ExprString(n.Kids[0]), nl.ExprString(n.Kids[1]))
	case KindOr:
		return fmt.Sprintf("(%s | %s)", nl.ExprString(n.Kids[0]), nl.ExprString(n.Kids[1]))
	case KindXor:
		return fmt.Sprintf("(%s ^ %s)", nl.ExprString(n.Kids[0]), nl.ExprString(n.Kids[1]))
	case KindCond:
		return fmt.Sprintf("(%s ? %s : %s)", nl.ExprString(n.Kids[0]), nl.ExprString(n.Kids[1]), nl.ExprString(n.Kids[2]))
	}
	return fmt.Sprintf("<%s>", n.Kind)
}

// indexString prints constant array indices as plain decimals.
func (nl *Netlist) indexString(id NodeID) string {
	n := nl.Node(id)
	if n.Kind == KindConst {
		return fmt.Sprintf("%d", n.Value)
	}
	return nl.ExprString(id)
}
