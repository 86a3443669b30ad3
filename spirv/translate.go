package spirv

import (
	"fmt"

	"github.com/gogpu/parallax/ir"
)

// Translator lowers IR functions into the Functions section.
//
// Function ids for the whole module are allocated by DeclareFunctions
// before any body is translated, so calls may target functions that are
// emitted later.
type Translator struct {
	b       *ModuleBuilder
	types   *Interner
	debug   bool
	funcIDs map[*ir.Function]uint32
}

// NewTranslator creates a translator writing through b and types.
func NewTranslator(b *ModuleBuilder, types *Interner, debug bool) *Translator {
	return &Translator{
		b:       b,
		types:   types,
		debug:   debug,
		funcIDs: make(map[*ir.Function]uint32),
	}
}

// DeclareFunctions allocates an id for every function of the module.
func (t *Translator) DeclareFunctions(m *ir.Module) {
	for _, fn := range m.Functions {
		if _, ok := t.funcIDs[fn]; !ok {
			t.funcIDs[fn] = t.b.AllocID()
		}
	}
}

// FunctionID returns the id allocated for fn.
func (t *Translator) FunctionID(fn *ir.Function) (uint32, bool) {
	id, ok := t.funcIDs[fn]
	return id, ok
}

// loopFrame is an enclosing loop of the block being translated.
type loopFrame struct {
	header, merge, cont *ir.Block
}

// functionState is the per-function translation context.
type functionState struct {
	t  *Translator
	fn *ir.Function

	values map[ir.Value]uint32
	labels map[*ir.Block]uint32
	order  map[*ir.Block]int
	loops  []loopFrame

	block *ir.Block

	// Labels already claimed as the merge of a selection or loop.
	merges map[uint32]bool

	// Synthetic merge blocks, appended after the last IR block.
	unreachable []uint32
}

// TranslateFunction emits fn into the Functions section and returns its id.
func (t *Translator) TranslateFunction(fn *ir.Function) (uint32, error) {
	id, ok := t.funcIDs[fn]
	if !ok {
		id = t.b.AllocID()
		t.funcIDs[fn] = id
	}
	if len(fn.Blocks) == 0 {
		return 0, &Error{Kind: ErrStructural, Message: "function has no blocks", Function: fn.Name}
	}

	prev := t.b.SetSection(SectionFunctions)
	defer t.b.SetSection(prev)

	fs := &functionState{
		t:      t,
		fn:     fn,
		values: make(map[ir.Value]uint32),
		labels: make(map[*ir.Block]uint32, len(fn.Blocks)),
		order:  make(map[*ir.Block]int, len(fn.Blocks)),
		merges: make(map[uint32]bool),
	}
	if err := fs.emit(id); err != nil {
		return 0, err
	}
	return id, nil
}

func (fs *functionState) errorf(kind ErrorKind, format string, args ...any) *Error {
	e := errorf(kind, format, args...)
	e.Function = fs.fn.Name
	if fs.block != nil {
		e.Block = fs.block.Name
	}
	return e
}

func (fs *functionState) emit(id uint32) error {
	t := fs.t
	b := t.b

	// 1. Signature
	resultType, err := t.types.TypeID(fs.fn.ResultType())
	if err != nil {
		return fs.wrap(err)
	}
	paramTypes := make([]uint32, len(fs.fn.Params))
	for i, p := range fs.fn.Params {
		if paramTypes[i], err = t.types.TypeID(p.Typ); err != nil {
			return fs.wrap(err)
		}
	}
	funcType := t.types.FunctionTypeID(resultType, paramTypes...)

	// 2. Labels for every block up front, so branches can name later blocks
	for i, blk := range fs.fn.Blocks {
		fs.labels[blk] = b.AllocID()
		fs.order[blk] = i
	}

	// 3. Function header and parameters
	b.AddFunctionWithID(id, funcType, resultType, FunctionControlNone)
	for i, p := range fs.fn.Params {
		fs.values[p] = b.AddFunctionParameter(paramTypes[i])
	}

	if t.debug {
		b.AddName(id, fs.fn.Name)
		for _, p := range fs.fn.Params {
			if p.Name != "" {
				b.AddName(fs.values[p], p.Name)
			}
		}
		for _, blk := range fs.fn.Blocks {
			if blk.Name != "" {
				b.AddName(fs.labels[blk], blk.Name)
			}
		}
	}

	// 4. Blocks in IR order; locals hoisted into the entry block
	for i, blk := range fs.fn.Blocks {
		fs.block = blk
		b.AddLabelWithID(fs.labels[blk])
		if i == 0 {
			if err := fs.hoistLocals(); err != nil {
				return err
			}
		}
		if err := fs.emitBlock(blk); err != nil {
			return err
		}
	}
	fs.block = nil

	for _, label := range fs.unreachable {
		b.AddLabelWithID(label)
		b.AddUnreachable()
	}
	b.AddFunctionEnd()
	return nil
}

// wrap attaches the current IR location to err when it carries none.
func (fs *functionState) wrap(err error) error {
	e, ok := err.(*Error)
	if !ok || e.Function != "" {
		return err
	}
	located := *e
	located.Function = fs.fn.Name
	if fs.block != nil {
		located.Block = fs.block.Name
	}
	return &located
}

// hoistLocals declares every Local of the function as an OpVariable at
// the start of the entry block.
func (fs *functionState) hoistLocals() error {
	t := fs.t
	for _, blk := range fs.fn.Blocks {
		for _, inst := range blk.Instrs {
			local, ok := inst.(*ir.Local)
			if !ok {
				continue
			}
			ptrType, err := t.types.TypeID(local.Type())
			if err != nil {
				return fs.wrap(err)
			}
			id := t.b.AddLocalVariable(ptrType)
			fs.values[local] = id
			if t.debug && local.Name != "" {
				t.b.AddName(id, local.Name)
			}
		}
	}
	return nil
}

func (fs *functionState) emitBlock(blk *ir.Block) error {
	if len(blk.Instrs) == 0 || blk.Terminator() == nil {
		return fs.errorf(ErrStructural, "block does not end in a terminator")
	}
	for i, inst := range blk.Instrs {
		if ir.IsTerminator(inst) && i != len(blk.Instrs)-1 {
			return fs.errorf(ErrStructural, "terminator before the end of the block")
		}
		if err := fs.emitInstruction(inst); err != nil {
			return err
		}
	}
	return nil
}

// operand resolves v to an id: earlier results first, then constants.
func (fs *functionState) operand(v ir.Value) (uint32, error) {
	if v == nil {
		return 0, fs.errorf(ErrStructural, "missing operand")
	}
	if id, ok := fs.values[v]; ok {
		return id, nil
	}
	if c, ok := v.(ir.Constant); ok {
		id, err := fs.t.types.ConstantID(c)
		return id, fs.wrapNil(err)
	}
	return 0, fs.errorf(ErrStructural, "dangling value reference")
}

func (fs *functionState) wrapNil(err error) error {
	if err == nil {
		return nil
	}
	return fs.wrap(err)
}

func (fs *functionState) typeID(t ir.Type) (uint32, error) {
	id, err := fs.t.types.TypeID(t)
	return id, fs.wrapNil(err)
}

func (fs *functionState) label(blk *ir.Block) (uint32, error) {
	if blk == nil {
		return 0, fs.errorf(ErrStructural, "missing branch target")
	}
	id, ok := fs.labels[blk]
	if !ok {
		return 0, fs.errorf(ErrStructural, "branch to block %q outside the function", blk.Name)
	}
	return id, nil
}

func (fs *functionState) emitInstruction(inst ir.Instruction) error {
	b := fs.t.b
	for _, v := range ir.Operands(inst) {
		if v == nil {
			return fs.errorf(ErrStructural, "missing operand")
		}
	}
	switch i := inst.(type) {
	case *ir.Local:
		return nil // hoisted

	case *ir.Binary:
		op, err := fs.binaryOpcode(i)
		if err != nil {
			return err
		}
		return fs.emitBinary(i, op, i.Left, i.Right)

	case *ir.Compare:
		if err := fs.checkDomain(i.Domain, i.Left, i.Right); err != nil {
			return err
		}
		op, ok := compareOpcodes[i.Pred][i.Domain]
		if !ok {
			return fs.errorf(ErrStructural, "unknown comparison %s", i.Pred)
		}
		return fs.emitBinary(i, op, i.Left, i.Right)

	case *ir.Negate:
		if err := fs.checkDomain(i.Domain, i.Operand); err != nil {
			return err
		}
		op := OpSNegate
		if i.Domain == ir.Float {
			op = OpFNegate
		}
		return fs.emitUnary(i, op, i.Operand)

	case *ir.Convert:
		return fs.emitConvert(i)

	case *ir.Load:
		ptr, ok := i.Ptr.Type().(ir.PointerType)
		if !ok {
			return fs.errorf(ErrStructural, "load through non-pointer %s", i.Ptr.Type())
		}
		resultType, err := fs.typeID(ptr.Elem)
		if err != nil {
			return err
		}
		pointer, err := fs.operand(i.Ptr)
		if err != nil {
			return err
		}
		fs.values[i] = b.AddLoad(resultType, pointer)
		return nil

	case *ir.Store:
		ptr, ok := i.Ptr.Type().(ir.PointerType)
		if !ok {
			return fs.errorf(ErrStructural, "store through non-pointer %s", i.Ptr.Type())
		}
		if ptr.Elem != i.Value.Type() {
			return fs.errorf(ErrStructural, "store of %s through %s", i.Value.Type(), ptr)
		}
		pointer, err := fs.operand(i.Ptr)
		if err != nil {
			return err
		}
		value, err := fs.operand(i.Value)
		if err != nil {
			return err
		}
		b.AddStore(pointer, value)
		return nil

	case *ir.ElementPtr:
		return fs.emitElementPtr(i)

	case *ir.Call:
		return fs.emitCall(i)

	case *ir.Branch:
		target, err := fs.label(i.Target)
		if err != nil {
			return err
		}
		if err := fs.emitLoopHeader(); err != nil {
			return err
		}
		b.AddBranch(target)
		return nil

	case *ir.CondBranch:
		return fs.emitCondBranch(i)

	case *ir.Return:
		return fs.emitReturn(i)
	}
	return fs.errorf(ErrUnsupported, "instruction %T", inst)
}

var binaryOpcodes = [...][3]OpCode{
	ir.Add: {ir.Signed: OpIAdd, ir.Unsigned: OpIAdd, ir.Float: OpFAdd},
	ir.Sub: {ir.Signed: OpISub, ir.Unsigned: OpISub, ir.Float: OpFSub},
	ir.Mul: {ir.Signed: OpIMul, ir.Unsigned: OpIMul, ir.Float: OpFMul},
	ir.Div: {ir.Signed: OpSDiv, ir.Unsigned: OpUDiv, ir.Float: OpFDiv},
	ir.Rem: {ir.Signed: OpSRem, ir.Unsigned: OpUMod, ir.Float: OpFRem},
}

// compareOpcodes maps predicate and domain to an opcode. Float
// comparisons are ordered.
var compareOpcodes = map[ir.Predicate]map[ir.Domain]OpCode{
	ir.Eq: {ir.Signed: OpIEqual, ir.Unsigned: OpIEqual, ir.Float: OpFOrdEqual},
	ir.Ne: {ir.Signed: OpINotEqual, ir.Unsigned: OpINotEqual, ir.Float: OpFOrdNotEqual},
	ir.Lt: {ir.Signed: OpSLessThan, ir.Unsigned: OpULessThan, ir.Float: OpFOrdLessThan},
	ir.Le: {ir.Signed: OpSLessThanEqual, ir.Unsigned: OpULessThanEqual, ir.Float: OpFOrdLessThanEqual},
	ir.Gt: {ir.Signed: OpSGreaterThan, ir.Unsigned: OpUGreaterThan, ir.Float: OpFOrdGreaterThan},
	ir.Ge: {ir.Signed: OpSGreaterThanEqual, ir.Unsigned: OpUGreaterThanEqual, ir.Float: OpFOrdGreaterThanEqual},
}

func (fs *functionState) binaryOpcode(i *ir.Binary) (OpCode, error) {
	if err := fs.checkDomain(i.Domain, i.Left, i.Right); err != nil {
		return 0, err
	}
	if int(i.Op) >= len(binaryOpcodes) || int(i.Domain) > int(ir.Float) {
		return 0, fs.errorf(ErrStructural, "unknown arithmetic operator %s", i.Op)
	}
	return binaryOpcodes[i.Op][i.Domain], nil
}

// checkDomain verifies that all operands share one type belonging to d.
func (fs *functionState) checkDomain(d ir.Domain, operands ...ir.Value) error {
	var first ir.Type
	for _, v := range operands {
		if v == nil {
			return fs.errorf(ErrStructural, "missing operand")
		}
		t := v.Type()
		if !d.Accepts(t) {
			return fs.errorf(ErrStructural, "%s operand of type %s", d, t)
		}
		if first == nil {
			first = t
		} else if t != first {
			return fs.errorf(ErrStructural, "operand types %s and %s differ", first, t)
		}
	}
	return nil
}

func (fs *functionState) emitBinary(v ir.Value, op OpCode, left, right ir.Value) error {
	resultType, err := fs.typeID(v.Type())
	if err != nil {
		return err
	}
	l, err := fs.operand(left)
	if err != nil {
		return err
	}
	r, err := fs.operand(right)
	if err != nil {
		return err
	}
	fs.values[v] = fs.t.b.AddBinaryOp(op, resultType, l, r)
	return nil
}

func (fs *functionState) emitUnary(v ir.Value, op OpCode, operand ir.Value) error {
	resultType, err := fs.typeID(v.Type())
	if err != nil {
		return err
	}
	x, err := fs.operand(operand)
	if err != nil {
		return err
	}
	fs.values[v] = fs.t.b.AddUnaryOp(op, resultType, x)
	return nil
}

// emitConvert selects the conversion opcode from the source and
// destination kinds. A conversion to the identical declared type aliases
// the operand.
func (fs *functionState) emitConvert(i *ir.Convert) error {
	if i.Value == nil || i.To == nil {
		return fs.errorf(ErrStructural, "incomplete conversion")
	}
	from := fs.t.types.Normalize(i.Value.Type())
	to := fs.t.types.Normalize(i.To)

	var op OpCode
	switch {
	case ir.IsFloat(from) && ir.IsFloat(to):
		op = OpFConvert
	case ir.IsInt(from) && ir.IsInt(to):
		// width changes extend by the source's signedness
		op = OpUConvert
		if i.From == ir.Signed {
			op = OpSConvert
		}
	case ir.IsInt(from) && ir.IsFloat(to):
		op = OpConvertUToF
		if i.From == ir.Signed {
			op = OpConvertSToF
		}
	case ir.IsFloat(from) && ir.IsInt(to):
		op = OpConvertFToU
		if i.ToDomain == ir.Signed {
			op = OpConvertFToS
		}
	default:
		return fs.errorf(ErrStructural, "cannot convert %s to %s", i.Value.Type(), i.To)
	}

	if from == to {
		id, err := fs.operand(i.Value)
		if err != nil {
			return err
		}
		fs.values[i] = id
		return nil
	}
	return fs.emitUnary(i, op, i.Value)
}

func (fs *functionState) emitElementPtr(i *ir.ElementPtr) error {
	ptr, ok := i.Base.Type().(ir.PointerType)
	if !ok {
		return fs.errorf(ErrStructural, "element offset from non-pointer %s", i.Base.Type())
	}
	if ptr.Space != ir.SpaceBuffer {
		return fs.errorf(ErrStructural, "element offset requires a buffer pointer, got %s", ptr)
	}
	if !ir.IsInt(i.Index.Type()) {
		return fs.errorf(ErrStructural, "element index of type %s", i.Index.Type())
	}
	resultType, err := fs.t.types.StridedPointerID(ptr)
	if err != nil {
		return fs.wrap(err)
	}
	base, err := fs.operand(i.Base)
	if err != nil {
		return err
	}
	index, err := fs.operand(i.Index)
	if err != nil {
		return err
	}
	fs.values[i] = fs.t.b.AddPtrAccessChain(resultType, base, index)
	return nil
}

func (fs *functionState) emitCall(i *ir.Call) error {
	if i.Callee == nil {
		return fs.errorf(ErrStructural, "call without callee")
	}
	callee, ok := fs.t.funcIDs[i.Callee]
	if !ok {
		return fs.errorf(ErrStructural, "call to %q, which is not in the module", i.Callee.Name)
	}
	if len(i.Args) != len(i.Callee.Params) {
		return fs.errorf(ErrStructural, "call to %q with %d arguments, want %d",
			i.Callee.Name, len(i.Args), len(i.Callee.Params))
	}
	args := make([]uint32, len(i.Args))
	for n, arg := range i.Args {
		if arg == nil || arg.Type() != i.Callee.Params[n].Typ {
			return fs.errorf(ErrStructural, "argument %d of call to %q has the wrong type", n, i.Callee.Name)
		}
		id, err := fs.operand(arg)
		if err != nil {
			return err
		}
		args[n] = id
	}
	resultType, err := fs.typeID(i.Callee.ResultType())
	if err != nil {
		return err
	}
	fs.values[i] = fs.t.b.AddFunctionCall(resultType, callee, args...)
	return nil
}

func (fs *functionState) emitReturn(i *ir.Return) error {
	want := fs.fn.ResultType()
	if i.Value == nil {
		if want != ir.Void {
			return fs.errorf(ErrStructural, "return without value from function returning %s", want)
		}
		fs.t.b.AddReturn()
		return nil
	}
	if i.Value.Type() != want {
		return fs.errorf(ErrStructural, "return of %s from function returning %s", i.Value.Type(), want)
	}
	id, err := fs.operand(i.Value)
	if err != nil {
		return err
	}
	fs.t.b.AddReturnValue(id)
	return nil
}

// emitLoopHeader writes OpLoopMerge when the current block is a loop
// header and records the loop as enclosing the blocks up to its merge.
func (fs *functionState) emitLoopHeader() error {
	loop := fs.block.Loop
	if loop == nil {
		return nil
	}
	merge, err := fs.label(loop.Merge)
	if err != nil {
		return err
	}
	cont, err := fs.label(loop.Continue)
	if err != nil {
		return err
	}
	if err := fs.claimMerge(merge); err != nil {
		return err
	}
	fs.t.b.AddLoopMerge(merge, cont, LoopControlNone)
	return nil
}

// enclosingLoops returns the loops whose header precedes the current
// block and whose merge follows it, in IR order.
func (fs *functionState) enclosingLoops() []loopFrame {
	at := fs.order[fs.block]
	var frames []loopFrame
	for _, blk := range fs.fn.Blocks[:at] {
		if blk.Loop == nil || blk.Loop.Merge == nil {
			continue
		}
		if merge, ok := fs.order[blk.Loop.Merge]; ok && merge > at {
			frames = append(frames, loopFrame{header: blk, merge: blk.Loop.Merge, cont: blk.Loop.Continue})
		}
	}
	return frames
}

func (fs *functionState) emitCondBranch(i *ir.CondBranch) error {
	b := fs.t.b
	if i.Cond == nil || i.Cond.Type() != ir.Bool {
		return fs.errorf(ErrStructural, "branch condition is not bool")
	}
	cond, err := fs.operand(i.Cond)
	if err != nil {
		return err
	}
	trueLabel, err := fs.label(i.True)
	if err != nil {
		return err
	}
	falseLabel, err := fs.label(i.False)
	if err != nil {
		return err
	}

	switch {
	case fs.block.Loop != nil:
		if err := fs.emitLoopHeader(); err != nil {
			return err
		}
	case fs.breaksOrContinues(i):
		// break or continue out of an enclosing loop
	default:
		merge, err := fs.selectionMerge(i)
		if err != nil {
			return err
		}
		if err := fs.claimMerge(merge); err != nil {
			return err
		}
		b.AddSelectionMerge(merge, SelectionControlNone)
	}
	b.AddBranchConditional(cond, trueLabel, falseLabel)
	return nil
}

func (fs *functionState) breaksOrContinues(i *ir.CondBranch) bool {
	for _, loop := range fs.enclosingLoops() {
		for _, target := range []*ir.Block{i.True, i.False} {
			if target == loop.merge || target == loop.cont {
				return true
			}
		}
	}
	return false
}

// selectionMerge picks the merge block of a conditional branch: the
// producer's hint, else the earliest later block reachable from both
// targets, else a synthesized unreachable block.
func (fs *functionState) selectionMerge(i *ir.CondBranch) (uint32, error) {
	if i.Merge != nil {
		return fs.label(i.Merge)
	}
	at := fs.order[fs.block]
	fromTrue := fs.forwardReach(i.True, at)
	fromFalse := fs.forwardReach(i.False, at)

	var merge *ir.Block
	for blk := range fromTrue {
		if !fromFalse[blk] {
			continue
		}
		if merge == nil || fs.order[blk] < fs.order[merge] {
			merge = blk
		}
	}
	if merge != nil {
		return fs.labels[merge], nil
	}

	label := fs.t.b.AllocID()
	fs.unreachable = append(fs.unreachable, label)
	return label, nil
}

// claimMerge records label as a merge block. A block may merge only one
// construct.
func (fs *functionState) claimMerge(label uint32) error {
	if fs.merges[label] {
		name := fmt.Sprintf("%%%d", label)
		for blk, l := range fs.labels {
			if l == label && blk.Name != "" {
				name = blk.Name
			}
		}
		return fs.errorf(ErrStructural, "block %s already merges another construct; give the conditional an explicit merge block", name)
	}
	fs.merges[label] = true
	return nil
}

// forwardReach returns the blocks after index at reachable from start
// without following edges back to earlier blocks.
func (fs *functionState) forwardReach(start *ir.Block, at int) map[*ir.Block]bool {
	seen := make(map[*ir.Block]bool)
	if fs.order[start] <= at {
		return seen
	}
	stack := []*ir.Block{start}
	seen[start] = true
	for len(stack) > 0 {
		blk := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range blk.Successors() {
			pos, ok := fs.order[next]
			if !ok || seen[next] || pos <= fs.order[blk] {
				continue
			}
			seen[next] = true
			stack = append(stack, next)
		}
	}
	return seen
}
