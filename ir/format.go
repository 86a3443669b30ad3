package ir

import (
	"fmt"
	"strings"
)

// Format renders a module as text. The output is stable for a given
// module and is meant for logs and diagnostics, not for parsing.
func Format(m *Module) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "module %s\n", m.Name)
	for _, fn := range m.Functions {
		sb.WriteByte('\n')
		formatFunction(&sb, fn)
	}
	return sb.String()
}

type namer struct {
	values map[Value]string
	blocks map[*Block]string
}

func newNamer(fn *Function) *namer {
	n := &namer{
		values: make(map[Value]string),
		blocks: make(map[*Block]string, len(fn.Blocks)),
	}
	for i, p := range fn.Params {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		n.values[p] = "%" + name
	}
	next := 0
	for i, blk := range fn.Blocks {
		name := blk.Name
		if name == "" {
			name = fmt.Sprintf("bb%d", i)
		}
		n.blocks[blk] = name
		for _, inst := range blk.Instrs {
			val, ok := inst.(Value)
			if !ok {
				continue
			}
			if l, ok := inst.(*Local); ok && l.Name != "" {
				n.values[val] = "%" + l.Name
				continue
			}
			n.values[val] = fmt.Sprintf("%%%d", next)
			next++
		}
	}
	return n
}

func (n *namer) value(v Value) string {
	if c, ok := v.(Constant); ok {
		return c.String()
	}
	if name, ok := n.values[v]; ok {
		return name
	}
	return "<undefined>"
}

func (n *namer) block(b *Block) string {
	if name, ok := n.blocks[b]; ok {
		return name
	}
	return "<foreign>"
}

func formatFunction(sb *strings.Builder, fn *Function) {
	n := newNamer(fn)
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s: %s", n.value(p), p.Typ)
	}
	fmt.Fprintf(sb, "fn %s(%s) -> %s {\n", fn.Name, strings.Join(params, ", "), fn.ResultType())
	for _, blk := range fn.Blocks {
		fmt.Fprintf(sb, "%s:", n.block(blk))
		if blk.Loop != nil {
			fmt.Fprintf(sb, " ; loop merge=%s continue=%s", n.block(blk.Loop.Merge), n.block(blk.Loop.Continue))
		}
		sb.WriteByte('\n')
		for _, inst := range blk.Instrs {
			sb.WriteString("  ")
			if val, ok := inst.(Value); ok {
				if _, void := val.Type().(VoidType); !void {
					fmt.Fprintf(sb, "%s = ", n.value(val))
				}
			}
			sb.WriteString(n.instruction(inst))
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
}

func (n *namer) instruction(inst Instruction) string {
	switch i := inst.(type) {
	case *Binary:
		return fmt.Sprintf("%s.%s %s, %s", i.Op, i.Domain, n.value(i.Left), n.value(i.Right))
	case *Compare:
		return fmt.Sprintf("cmp.%s.%s %s, %s", i.Pred, i.Domain, n.value(i.Left), n.value(i.Right))
	case *Negate:
		return fmt.Sprintf("neg.%s %s", i.Domain, n.value(i.Operand))
	case *Convert:
		return fmt.Sprintf("convert.%s %s to %s.%s", i.From, n.value(i.Value), i.To, i.ToDomain)
	case *Load:
		return fmt.Sprintf("load %s", n.value(i.Ptr))
	case *Store:
		return fmt.Sprintf("store %s, %s", n.value(i.Value), n.value(i.Ptr))
	case *ElementPtr:
		return fmt.Sprintf("elementptr %s, %s", n.value(i.Base), n.value(i.Index))
	case *Local:
		return fmt.Sprintf("local %s", i.Elem)
	case *Call:
		args := make([]string, len(i.Args))
		for k, a := range i.Args {
			args[k] = n.value(a)
		}
		return fmt.Sprintf("call %s(%s)", i.Callee.Name, strings.Join(args, ", "))
	case *Branch:
		return "br " + n.block(i.Target)
	case *CondBranch:
		s := fmt.Sprintf("condbr %s, %s, %s", n.value(i.Cond), n.block(i.True), n.block(i.False))
		if i.Merge != nil {
			s += " merge " + n.block(i.Merge)
		}
		return s
	case *Return:
		if i.Value == nil {
			return "ret"
		}
		return "ret " + n.value(i.Value)
	default:
		return fmt.Sprintf("<%T>", inst)
	}
}
