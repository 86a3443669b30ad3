package ir

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// WireModule is the serializable form of a Module. Values and blocks are
// referenced by name, so producers in other processes can hand modules
// over as YAML or msgpack.
//
// Operands are written as "%name" for parameters and instruction results,
// or as "<type> <literal>" for constants ("f32 2", "i32 -1", "bool true").
// Constants of unusual widths use a raw "0x" bit pattern.
type WireModule struct {
	Name      string         `yaml:"name" msgpack:"name"`
	Functions []WireFunction `yaml:"functions" msgpack:"functions"`
}

// WireFunction is the serializable form of a Function.
type WireFunction struct {
	Name   string      `yaml:"name" msgpack:"name"`
	Params []WireParam `yaml:"params,omitempty" msgpack:"params,omitempty"`
	Result string      `yaml:"result,omitempty" msgpack:"result,omitempty"`
	Blocks []WireBlock `yaml:"blocks" msgpack:"blocks"`
}

// WireParam is a named, typed parameter.
type WireParam struct {
	Name string `yaml:"name" msgpack:"name"`
	Type string `yaml:"type" msgpack:"type"`
}

// WireBlock is the serializable form of a Block.
type WireBlock struct {
	Name   string      `yaml:"name" msgpack:"name"`
	Loop   *WireLoop   `yaml:"loop,omitempty" msgpack:"loop,omitempty"`
	Instrs []WireInstr `yaml:"instrs" msgpack:"instrs"`
}

// WireLoop names a loop header's merge and continue blocks.
type WireLoop struct {
	Merge    string `yaml:"merge" msgpack:"merge"`
	Continue string `yaml:"continue" msgpack:"continue"`
}

// WireInstr is one instruction. Op is one of add, sub, mul, div, rem,
// cmp, neg, convert, load, store, elementptr, local, call, br, condbr, ret.
type WireInstr struct {
	Result   string   `yaml:"result,omitempty" msgpack:"result,omitempty"`
	Op       string   `yaml:"op" msgpack:"op"`
	Domain   string   `yaml:"domain,omitempty" msgpack:"domain,omitempty"`
	Pred     string   `yaml:"pred,omitempty" msgpack:"pred,omitempty"`
	Type     string   `yaml:"type,omitempty" msgpack:"type,omitempty"`
	ToDomain string   `yaml:"to_domain,omitempty" msgpack:"to_domain,omitempty"`
	Callee   string   `yaml:"callee,omitempty" msgpack:"callee,omitempty"`
	Args     []string `yaml:"args,omitempty" msgpack:"args,omitempty"`
	Targets  []string `yaml:"targets,omitempty" msgpack:"targets,omitempty"`
}

// ReadFile loads a module from a .yaml/.yml or .msgpack/.mp file.
func ReadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wire WireModule
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &wire)
	case ".msgpack", ".mp":
		err = msgpack.Unmarshal(data, &wire)
	default:
		return nil, fmt.Errorf("%s: unknown IR file extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m, err := Decode(&wire)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// MarshalYAML encodes m in the YAML wire form.
func MarshalYAML(m *Module) ([]byte, error) {
	return yaml.Marshal(Encode(m))
}

// MarshalMsgpack encodes m in the msgpack wire form. The encoding is
// canonical: equal modules produce equal bytes.
func MarshalMsgpack(m *Module) ([]byte, error) {
	return msgpack.Marshal(Encode(m))
}

// Encode converts m to its wire form.
func Encode(m *Module) *WireModule {
	wire := &WireModule{Name: m.Name}
	for _, fn := range m.Functions {
		wire.Functions = append(wire.Functions, encodeFunction(fn))
	}
	return wire
}

func encodeFunction(fn *Function) WireFunction {
	n := newNamer(fn)
	wf := WireFunction{Name: fn.Name}
	if _, void := fn.ResultType().(VoidType); !void {
		wf.Result = fn.Result.String()
	}
	for _, p := range fn.Params {
		wf.Params = append(wf.Params, WireParam{
			Name: strings.TrimPrefix(n.value(p), "%"),
			Type: p.Typ.String(),
		})
	}
	for _, blk := range fn.Blocks {
		wb := WireBlock{Name: n.block(blk)}
		if blk.Loop != nil {
			wb.Loop = &WireLoop{Merge: n.block(blk.Loop.Merge), Continue: n.block(blk.Loop.Continue)}
		}
		for _, inst := range blk.Instrs {
			wb.Instrs = append(wb.Instrs, encodeInstr(n, inst))
		}
		wf.Blocks = append(wf.Blocks, wb)
	}
	return wf
}

func (n *namer) operand(v Value) string {
	if c, ok := v.(Constant); ok {
		return encodeConstant(c)
	}
	return n.value(v)
}

func (n *namer) operands(vs ...Value) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = n.operand(v)
	}
	return out
}

//nolint:gocyclo,cyclop // one case per instruction kind
func encodeInstr(n *namer, inst Instruction) WireInstr {
	var w WireInstr
	if val, ok := inst.(Value); ok {
		if _, void := val.Type().(VoidType); !void {
			w.Result = strings.TrimPrefix(n.value(val), "%")
		}
	}
	switch i := inst.(type) {
	case *Binary:
		w.Op, w.Domain, w.Args = i.Op.String(), i.Domain.String(), n.operands(i.Left, i.Right)
	case *Compare:
		w.Op, w.Pred, w.Domain, w.Args = "cmp", i.Pred.String(), i.Domain.String(), n.operands(i.Left, i.Right)
	case *Negate:
		w.Op, w.Domain, w.Args = "neg", i.Domain.String(), n.operands(i.Operand)
	case *Convert:
		w.Op, w.Domain, w.Type, w.ToDomain = "convert", i.From.String(), i.To.String(), i.ToDomain.String()
		w.Args = n.operands(i.Value)
	case *Load:
		w.Op, w.Args = "load", n.operands(i.Ptr)
	case *Store:
		w.Op, w.Args = "store", n.operands(i.Value, i.Ptr)
	case *ElementPtr:
		w.Op, w.Args = "elementptr", n.operands(i.Base, i.Index)
	case *Local:
		w.Op, w.Type = "local", i.Elem.String()
	case *Call:
		w.Op, w.Callee, w.Args = "call", i.Callee.Name, n.operands(i.Args...)
	case *Branch:
		w.Op, w.Targets = "br", []string{n.block(i.Target)}
	case *CondBranch:
		w.Op, w.Args = "condbr", n.operands(i.Cond)
		w.Targets = []string{n.block(i.True), n.block(i.False)}
		if i.Merge != nil {
			w.Targets = append(w.Targets, n.block(i.Merge))
		}
	case *Return:
		w.Op = "ret"
		if i.Value != nil {
			w.Args = n.operands(i.Value)
		}
	}
	return w
}

func encodeConstant(c Constant) string {
	switch t := c.Typ.(type) {
	case BoolType, IntType:
		return c.String()
	case FloatType:
		switch t.Width {
		case 32:
			return t.String() + " " + strconv.FormatFloat(float64(math.Float32frombits(uint32(c.Bits))), 'g', -1, 32)
		case 64:
			return t.String() + " " + strconv.FormatFloat(math.Float64frombits(c.Bits), 'g', -1, 64)
		}
	}
	return fmt.Sprintf("%s 0x%x", c.Typ, c.Bits)
}

// ParseType parses the textual form produced by Type.String.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "void":
		return Void, nil
	case "bool":
		return Bool, nil
	}
	if strings.HasPrefix(s, "ptr<") && strings.HasSuffix(s, ">") {
		inner := s[len("ptr<") : len(s)-1]
		space, elem, ok := strings.Cut(inner, ",")
		if !ok {
			return nil, fmt.Errorf("malformed pointer type %q", s)
		}
		sp, err := ParseAddressSpace(strings.TrimSpace(space))
		if err != nil {
			return nil, err
		}
		et, err := ParseType(elem)
		if err != nil {
			return nil, err
		}
		return Ptr(et, sp), nil
	}
	if len(s) > 1 && (s[0] == 'i' || s[0] == 'f') {
		w, err := strconv.ParseUint(s[1:], 10, 32)
		if err == nil {
			if s[0] == 'i' {
				return IntType{Width: uint32(w)}, nil
			}
			return FloatType{Width: uint32(w)}, nil
		}
	}
	return nil, fmt.Errorf("unknown type %q", s)
}

// ParseConstant parses the "<type> <literal>" operand form.
func ParseConstant(s string) (Constant, error) {
	typStr, lit, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		if s == "true" || s == "false" {
			return BoolConst(s == "true"), nil
		}
		return Constant{}, fmt.Errorf("malformed constant %q", s)
	}
	t, err := ParseType(typStr)
	if err != nil {
		return Constant{}, err
	}
	lit = strings.TrimSpace(lit)
	if strings.HasPrefix(lit, "0x") {
		bits, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			return Constant{}, fmt.Errorf("constant %q: %w", s, err)
		}
		return Constant{Typ: t, Bits: bits}, nil
	}
	switch t := t.(type) {
	case BoolType:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return Constant{}, fmt.Errorf("constant %q: %w", s, err)
		}
		return BoolConst(b), nil
	case IntType:
		if v, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return Int(t.Width, v), nil
		}
		u, err := strconv.ParseUint(lit, 10, 64)
		if err != nil {
			return Constant{}, fmt.Errorf("constant %q: %w", s, err)
		}
		return Int(t.Width, int64(u)), nil
	case FloatType:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Constant{}, fmt.Errorf("constant %q: %w", s, err)
		}
		return FloatConst(t.Width, f), nil
	}
	return Constant{}, fmt.Errorf("constant %q: type %s has no literals", s, t)
}

// Decode resolves a wire module into a Module.
func Decode(wire *WireModule) (*Module, error) {
	m := &Module{Name: wire.Name}
	funcs := make(map[string]*Function, len(wire.Functions))

	// Signatures first so calls can reference any function.
	for _, wf := range wire.Functions {
		if _, dup := funcs[wf.Name]; dup {
			return nil, fmt.Errorf("duplicate function %q", wf.Name)
		}
		fn := &Function{Name: wf.Name}
		result, err := ParseType(wf.Result)
		if err != nil {
			return nil, fmt.Errorf("function %s: result: %w", wf.Name, err)
		}
		fn.Result = result
		for i, wp := range wf.Params {
			t, err := ParseType(wp.Type)
			if err != nil {
				return nil, fmt.Errorf("function %s: parameter %s: %w", wf.Name, wp.Name, err)
			}
			fn.Params = append(fn.Params, &Argument{Name: wp.Name, Typ: t, Index: i})
		}
		funcs[wf.Name] = fn
		m.Functions = append(m.Functions, fn)
	}

	for i := range wire.Functions {
		if err := decodeBody(&wire.Functions[i], m.Functions[i], funcs); err != nil {
			return nil, fmt.Errorf("function %s: %w", wire.Functions[i].Name, err)
		}
	}
	return m, nil
}

type decoder struct {
	funcs  map[string]*Function
	blocks map[string]*Block
	values map[string]Value
}

func decodeBody(wf *WireFunction, fn *Function, funcs map[string]*Function) error {
	d := &decoder{
		funcs:  funcs,
		blocks: make(map[string]*Block, len(wf.Blocks)),
		values: make(map[string]Value),
	}
	for _, p := range fn.Params {
		d.values[p.Name] = p
	}
	for _, wb := range wf.Blocks {
		if _, dup := d.blocks[wb.Name]; dup {
			return fmt.Errorf("duplicate block %q", wb.Name)
		}
		blk := &Block{Name: wb.Name}
		d.blocks[wb.Name] = blk
		fn.Blocks = append(fn.Blocks, blk)
	}
	for i, wb := range wf.Blocks {
		blk := fn.Blocks[i]
		if wb.Loop != nil {
			merge, err := d.block(wb.Loop.Merge)
			if err != nil {
				return err
			}
			cont, err := d.block(wb.Loop.Continue)
			if err != nil {
				return err
			}
			blk.Loop = &LoopMerge{Merge: merge, Continue: cont}
		}
		for k := range wb.Instrs {
			inst, err := d.instr(&wb.Instrs[k])
			if err != nil {
				return fmt.Errorf("block %s, instruction %d: %w", wb.Name, k, err)
			}
			blk.Instrs = append(blk.Instrs, inst)
			if wi := wb.Instrs[k]; wi.Result != "" {
				val, ok := inst.(Value)
				if !ok {
					return fmt.Errorf("block %s, instruction %d: %s produces no value", wb.Name, k, wi.Op)
				}
				if _, dup := d.values[wi.Result]; dup {
					return fmt.Errorf("block %s: duplicate value %%%s", wb.Name, wi.Result)
				}
				d.values[wi.Result] = val
			}
		}
	}
	return nil
}

func (d *decoder) block(name string) (*Block, error) {
	blk, ok := d.blocks[name]
	if !ok {
		return nil, fmt.Errorf("unknown block %q", name)
	}
	return blk, nil
}

func (d *decoder) value(s string) (Value, error) {
	if name, ok := strings.CutPrefix(s, "%"); ok {
		v, ok := d.values[name]
		if !ok {
			return nil, fmt.Errorf("undefined value %s", s)
		}
		return v, nil
	}
	return ParseConstant(s)
}

func (d *decoder) args(wi *WireInstr, n int) ([]Value, error) {
	if n >= 0 && len(wi.Args) != n {
		return nil, fmt.Errorf("%s takes %d operands, got %d", wi.Op, n, len(wi.Args))
	}
	out := make([]Value, len(wi.Args))
	for i, a := range wi.Args {
		v, err := d.value(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

//nolint:gocyclo,cyclop // one case per opcode
func (d *decoder) instr(wi *WireInstr) (Instruction, error) {
	switch wi.Op {
	case "add", "sub", "mul", "div", "rem":
		args, err := d.args(wi, 2)
		if err != nil {
			return nil, err
		}
		dom, err := ParseDomain(wi.Domain)
		if err != nil {
			return nil, err
		}
		op := map[string]BinaryOp{"add": Add, "sub": Sub, "mul": Mul, "div": Div, "rem": Rem}[wi.Op]
		return &Binary{Op: op, Domain: dom, Left: args[0], Right: args[1]}, nil
	case "cmp":
		args, err := d.args(wi, 2)
		if err != nil {
			return nil, err
		}
		dom, err := ParseDomain(wi.Domain)
		if err != nil {
			return nil, err
		}
		pred, err := parsePredicate(wi.Pred)
		if err != nil {
			return nil, err
		}
		return &Compare{Pred: pred, Domain: dom, Left: args[0], Right: args[1]}, nil
	case "neg":
		args, err := d.args(wi, 1)
		if err != nil {
			return nil, err
		}
		dom, err := ParseDomain(wi.Domain)
		if err != nil {
			return nil, err
		}
		return &Negate{Domain: dom, Operand: args[0]}, nil
	case "convert":
		args, err := d.args(wi, 1)
		if err != nil {
			return nil, err
		}
		from, err := ParseDomain(wi.Domain)
		if err != nil {
			return nil, err
		}
		to, err := ParseDomain(wi.ToDomain)
		if err != nil {
			return nil, err
		}
		t, err := ParseType(wi.Type)
		if err != nil {
			return nil, err
		}
		return &Convert{Value: args[0], From: from, To: t, ToDomain: to}, nil
	case "load":
		args, err := d.args(wi, 1)
		if err != nil {
			return nil, err
		}
		return &Load{Ptr: args[0]}, nil
	case "store":
		args, err := d.args(wi, 2)
		if err != nil {
			return nil, err
		}
		return &Store{Value: args[0], Ptr: args[1]}, nil
	case "elementptr":
		args, err := d.args(wi, 2)
		if err != nil {
			return nil, err
		}
		return &ElementPtr{Base: args[0], Index: args[1]}, nil
	case "local":
		t, err := ParseType(wi.Type)
		if err != nil {
			return nil, err
		}
		return &Local{Name: wi.Result, Elem: t}, nil
	case "call":
		callee, ok := d.funcs[wi.Callee]
		if !ok {
			return nil, fmt.Errorf("unknown callee %q", wi.Callee)
		}
		args, err := d.args(wi, -1)
		if err != nil {
			return nil, err
		}
		return &Call{Callee: callee, Args: args}, nil
	case "br":
		if len(wi.Targets) != 1 {
			return nil, fmt.Errorf("br takes one target, got %d", len(wi.Targets))
		}
		target, err := d.block(wi.Targets[0])
		if err != nil {
			return nil, err
		}
		return &Branch{Target: target}, nil
	case "condbr":
		args, err := d.args(wi, 1)
		if err != nil {
			return nil, err
		}
		if len(wi.Targets) != 2 && len(wi.Targets) != 3 {
			return nil, fmt.Errorf("condbr takes two or three targets, got %d", len(wi.Targets))
		}
		blocks := make([]*Block, len(wi.Targets))
		for i, name := range wi.Targets {
			if blocks[i], err = d.block(name); err != nil {
				return nil, err
			}
		}
		cb := &CondBranch{Cond: args[0], True: blocks[0], False: blocks[1]}
		if len(blocks) == 3 {
			cb.Merge = blocks[2]
		}
		return cb, nil
	case "ret":
		if len(wi.Args) == 0 {
			return &Return{}, nil
		}
		args, err := d.args(wi, 1)
		if err != nil {
			return nil, err
		}
		return &Return{Value: args[0]}, nil
	}
	return nil, fmt.Errorf("unknown op %q", wi.Op)
}

func parsePredicate(s string) (Predicate, error) {
	for i, name := range predicateNames {
		if name == s {
			return Predicate(i), nil
		}
	}
	return 0, fmt.Errorf("unknown predicate %q", s)
}
