package ir

import (
	"fmt"
)

// ValidationError represents a validation error.
type ValidationError struct {
	Message string
	// Optional context
	Function    string
	Block       string
	Instruction int
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function != "" {
		if e.Block != "" {
			if e.Instruction >= 0 {
				return fmt.Sprintf("in function %s, block %s, instruction %d: %s", e.Function, e.Block, e.Instruction, e.Message)
			}
			return fmt.Sprintf("in function %s, block %s: %s", e.Function, e.Block, e.Message)
		}
		return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
	}
	return e.Message
}

// Validator validates IR modules.
type Validator struct {
	module  *Module
	errors  []ValidationError
	context validationContext
}

// validationContext holds current validation context.
type validationContext struct {
	function  *Function
	block     *Block
	blockName string
	index     int
	blocks    map[*Block]bool
	defined   map[Value]bool
	owned     map[Value]bool
}

// Validate checks the IR module for correctness.
// Returns validation errors if any, or nil if module is valid.
func Validate(module *Module) ([]ValidationError, error) {
	if module == nil {
		return nil, fmt.Errorf("module is nil")
	}

	v := &Validator{
		module: module,
		errors: make([]ValidationError, 0),
	}

	v.ValidateModule()

	if len(v.errors) > 0 {
		return v.errors, nil
	}
	return nil, nil
}

// ValidateModule validates the complete module.
func (v *Validator) ValidateModule() {
	if len(v.module.Functions) == 0 {
		v.addModuleError("module has no functions")
		return
	}

	v.validateKernelSignature(v.module.Functions[0])

	for _, fn := range v.module.Functions {
		v.validateFunction(fn)
	}
}

// validateKernelSignature checks the per-element function contract:
// one pointer parameter into the data buffer and a void result.
func (v *Validator) validateKernelSignature(fn *Function) {
	if fn == nil {
		v.addModuleError("kernel function is nil")
		return
	}
	v.context = validationContext{function: fn, index: -1}
	if len(fn.Params) != 1 {
		v.addError(fmt.Sprintf("kernel function must take exactly one parameter, has %d", len(fn.Params)))
		return
	}
	ptr, ok := fn.Params[0].Typ.(PointerType)
	if !ok {
		v.addError(fmt.Sprintf("kernel parameter must be a pointer, got %s", fn.Params[0].Typ))
	} else if ptr.Space != SpaceBuffer {
		v.addError(fmt.Sprintf("kernel parameter must point into the %s space, got %s", SpaceBuffer, ptr.Space))
	}
	if _, ok := fn.ResultType().(VoidType); !ok {
		v.addError(fmt.Sprintf("kernel function must return void, returns %s", fn.Result))
	}
}

func (v *Validator) validateFunction(fn *Function) {
	if fn == nil {
		v.addModuleError("nil function in module")
		return
	}
	v.context = validationContext{
		function: fn,
		index:    -1,
		blocks:   make(map[*Block]bool, len(fn.Blocks)),
		defined:  make(map[Value]bool),
		owned:    make(map[Value]bool),
	}

	if len(fn.Blocks) == 0 {
		v.addError("function has no blocks")
		return
	}

	for i, p := range fn.Params {
		if p == nil {
			v.addError(fmt.Sprintf("parameter %d is nil", i))
			continue
		}
		if p.Typ == nil {
			v.addError(fmt.Sprintf("parameter %d has no type", i))
		}
		if _, ok := p.Typ.(VoidType); ok {
			v.addError(fmt.Sprintf("parameter %d has void type", i))
		}
		v.context.defined[p] = true
		v.context.owned[p] = true
	}

	for _, blk := range fn.Blocks {
		if blk == nil {
			v.addError("nil block in function")
			return
		}
		v.context.blocks[blk] = true
		for _, inst := range blk.Instrs {
			if val, ok := inst.(Value); ok {
				v.context.owned[val] = true
			}
		}
	}

	for i, blk := range fn.Blocks {
		v.validateBlock(i, blk)
	}
}

func (v *Validator) validateBlock(index int, blk *Block) {
	v.context.block = blk
	v.context.blockName = blk.Name
	if v.context.blockName == "" {
		v.context.blockName = fmt.Sprintf("#%d", index)
	}
	v.context.index = -1

	if len(blk.Instrs) == 0 {
		v.addError("block is empty")
		return
	}
	if blk.Terminator() == nil {
		v.addError("block does not end in a terminator")
	}

	if blk.Loop != nil {
		v.checkTarget("loop merge", blk.Loop.Merge)
		v.checkTarget("loop continue", blk.Loop.Continue)
	}

	for i, inst := range blk.Instrs {
		v.context.index = i
		if inst == nil {
			v.addError("nil instruction")
			continue
		}
		if IsTerminator(inst) && i != len(blk.Instrs)-1 {
			v.addError("terminator in the middle of a block")
		}
		for _, op := range Operands(inst) {
			v.checkOperand(op)
		}
		v.validateInstruction(inst)
		if val, ok := inst.(Value); ok {
			v.context.defined[val] = true
		}
	}
}

// checkOperand reports references that are nil, foreign to the function,
// or used before their defining instruction.
func (v *Validator) checkOperand(op Value) {
	switch op.(type) {
	case nil:
		v.addError("nil operand")
		return
	case Constant:
		return
	}
	if !v.context.owned[op] {
		v.addError(fmt.Sprintf("operand %T is not defined in this function", op))
		return
	}
	if !v.context.defined[op] {
		v.addError(fmt.Sprintf("operand %T is used before its definition", op))
	}
}

func (v *Validator) checkTarget(what string, blk *Block) {
	if blk == nil {
		v.addError(what + " target is nil")
		return
	}
	if !v.context.blocks[blk] {
		v.addError(fmt.Sprintf("%s target %q belongs to another function", what, blk.Name))
	}
}

//nolint:gocyclo,cyclop // one case per instruction kind
func (v *Validator) validateInstruction(inst Instruction) {
	if hasNilOperand(inst) {
		return
	}
	switch i := inst.(type) {
	case *Binary:
		v.checkNumeric(i.Domain, i.Left.Type(), i.Right.Type())
	case *Compare:
		v.checkNumeric(i.Domain, i.Left.Type(), i.Right.Type())
	case *Negate:
		if !i.Domain.Accepts(i.Operand.Type()) {
			v.addError(fmt.Sprintf("%s negate on %s operand", i.Domain, i.Operand.Type()))
		}
	case *Convert:
		if !i.From.Accepts(i.Value.Type()) {
			v.addError(fmt.Sprintf("conversion source %s is not in the %s domain", i.Value.Type(), i.From))
		}
		if i.To == nil || !i.ToDomain.Accepts(i.To) {
			v.addError(fmt.Sprintf("conversion target %v is not in the %s domain", i.To, i.ToDomain))
		}
	case *Load:
		if !IsPointer(i.Ptr.Type()) {
			v.addError(fmt.Sprintf("load through non-pointer %s", i.Ptr.Type()))
		}
	case *Store:
		ptr, ok := i.Ptr.Type().(PointerType)
		if !ok {
			v.addError(fmt.Sprintf("store through non-pointer %s", i.Ptr.Type()))
		} else if ptr.Elem != i.Value.Type() {
			v.addError(fmt.Sprintf("store of %s through %s", i.Value.Type(), ptr))
		}
	case *ElementPtr:
		if !IsPointer(i.Base.Type()) {
			v.addError(fmt.Sprintf("element pointer on non-pointer %s", i.Base.Type()))
		}
		if !IsInt(i.Index.Type()) {
			v.addError(fmt.Sprintf("element index must be an integer, got %s", i.Index.Type()))
		}
	case *Local:
		if i.Elem == nil {
			v.addError("local has no type")
		}
	case *Call:
		v.validateCall(i)
	case *Branch:
		v.checkTarget("branch", i.Target)
	case *CondBranch:
		if _, ok := i.Cond.Type().(BoolType); !ok {
			v.addError(fmt.Sprintf("branch condition must be bool, got %s", i.Cond.Type()))
		}
		v.checkTarget("true", i.True)
		v.checkTarget("false", i.False)
		if i.Merge != nil {
			v.checkTarget("merge", i.Merge)
		}
	case *Return:
		want := v.context.function.ResultType()
		if i.Value == nil {
			if _, ok := want.(VoidType); !ok {
				v.addError(fmt.Sprintf("missing return value of type %s", want))
			}
		} else if i.Value.Type() != want {
			v.addError(fmt.Sprintf("return of %s from function returning %s", i.Value.Type(), want))
		}
	}
}

func (v *Validator) checkNumeric(d Domain, left, right Type) {
	if left != right {
		v.addError(fmt.Sprintf("operand types differ: %s and %s", left, right))
		return
	}
	if !d.Accepts(left) {
		v.addError(fmt.Sprintf("%s operation on %s operands", d, left))
	}
}

func (v *Validator) validateCall(call *Call) {
	if call.Callee == nil {
		v.addError("call has no callee")
		return
	}
	found := false
	for _, fn := range v.module.Functions {
		if fn == call.Callee {
			found = true
			break
		}
	}
	if !found {
		v.addError(fmt.Sprintf("callee %q is not part of the module", call.Callee.Name))
		return
	}
	if len(call.Args) != len(call.Callee.Params) {
		v.addError(fmt.Sprintf("call to %s passes %d arguments, want %d", call.Callee.Name, len(call.Args), len(call.Callee.Params)))
		return
	}
	for i, arg := range call.Args {
		if want := call.Callee.Params[i].Typ; arg.Type() != want {
			v.addError(fmt.Sprintf("argument %d of call to %s has type %s, want %s", i, call.Callee.Name, arg.Type(), want))
		}
	}
}

func hasNilOperand(inst Instruction) bool {
	for _, op := range Operands(inst) {
		if op == nil {
			return true
		}
	}
	return false
}

func (v *Validator) addModuleError(msg string) {
	v.errors = append(v.errors, ValidationError{Message: msg, Instruction: -1})
}

func (v *Validator) addError(msg string) {
	fnName := ""
	if v.context.function != nil {
		fnName = v.context.function.Name
	}
	v.errors = append(v.errors, ValidationError{
		Message:     msg,
		Function:    fnName,
		Block:       v.context.blockName,
		Instruction: v.context.index,
	})
}
