package ir

// FunctionBuilder appends instructions to a function one block at a time.
// It performs no checking; run Validate on the finished module.
type FunctionBuilder struct {
	fn      *Function
	current *Block
}

// NewFunction starts a function with the given signature and an empty
// entry block named "entry".
func NewFunction(name string, result Type, params ...Type) *FunctionBuilder {
	fn := &Function{Name: name, Result: result}
	for i, t := range params {
		fn.Params = append(fn.Params, &Argument{Typ: t, Index: i})
	}
	b := &FunctionBuilder{fn: fn}
	b.current = b.NewBlock("entry")
	return b
}

// Function returns the function being built.
func (b *FunctionBuilder) Function() *Function { return b.fn }

// Param returns the i-th parameter.
func (b *FunctionBuilder) Param(i int) *Argument { return b.fn.Params[i] }

// NewBlock appends an empty block to the function without selecting it.
func (b *FunctionBuilder) NewBlock(name string) *Block {
	blk := &Block{Name: name}
	b.fn.Blocks = append(b.fn.Blocks, blk)
	return blk
}

// SetBlock selects the block subsequent instructions are appended to.
func (b *FunctionBuilder) SetBlock(blk *Block) { b.current = blk }

// Block returns the currently selected block.
func (b *FunctionBuilder) Block() *Block { return b.current }

func (b *FunctionBuilder) emit(inst Instruction) {
	b.current.Instrs = append(b.current.Instrs, inst)
}

// Binary appends an arithmetic instruction.
func (b *FunctionBuilder) Binary(op BinaryOp, d Domain, l, r Value) *Binary {
	inst := &Binary{Op: op, Domain: d, Left: l, Right: r}
	b.emit(inst)
	return inst
}

// Add appends l + r.
func (b *FunctionBuilder) Add(d Domain, l, r Value) *Binary { return b.Binary(Add, d, l, r) }

// Sub appends l - r.
func (b *FunctionBuilder) Sub(d Domain, l, r Value) *Binary { return b.Binary(Sub, d, l, r) }

// Mul appends l * r.
func (b *FunctionBuilder) Mul(d Domain, l, r Value) *Binary { return b.Binary(Mul, d, l, r) }

// Div appends l / r.
func (b *FunctionBuilder) Div(d Domain, l, r Value) *Binary { return b.Binary(Div, d, l, r) }

// Rem appends l % r.
func (b *FunctionBuilder) Rem(d Domain, l, r Value) *Binary { return b.Binary(Rem, d, l, r) }

// Compare appends a comparison.
func (b *FunctionBuilder) Compare(p Predicate, d Domain, l, r Value) *Compare {
	inst := &Compare{Pred: p, Domain: d, Left: l, Right: r}
	b.emit(inst)
	return inst
}

// Negate appends -v.
func (b *FunctionBuilder) Negate(d Domain, v Value) *Negate {
	inst := &Negate{Domain: d, Operand: v}
	b.emit(inst)
	return inst
}

// Convert appends a numeric conversion of v to type to.
func (b *FunctionBuilder) Convert(v Value, from Domain, to Type, toDomain Domain) *Convert {
	inst := &Convert{Value: v, From: from, To: to, ToDomain: toDomain}
	b.emit(inst)
	return inst
}

// Load appends a load through ptr.
func (b *FunctionBuilder) Load(ptr Value) *Load {
	inst := &Load{Ptr: ptr}
	b.emit(inst)
	return inst
}

// Store appends a store of v through ptr.
func (b *FunctionBuilder) Store(v, ptr Value) *Store {
	inst := &Store{Value: v, Ptr: ptr}
	b.emit(inst)
	return inst
}

// ElementPtr appends base + index.
func (b *FunctionBuilder) ElementPtr(base, index Value) *ElementPtr {
	inst := &ElementPtr{Base: base, Index: index}
	b.emit(inst)
	return inst
}

// Local appends a function-local variable declaration.
func (b *FunctionBuilder) Local(name string, elem Type) *Local {
	inst := &Local{Name: name, Elem: elem}
	b.emit(inst)
	return inst
}

// Call appends a call to callee.
func (b *FunctionBuilder) Call(callee *Function, args ...Value) *Call {
	inst := &Call{Callee: callee, Args: args}
	b.emit(inst)
	return inst
}

// Br terminates the current block with a jump to target.
func (b *FunctionBuilder) Br(target *Block) {
	b.emit(&Branch{Target: target})
}

// CondBr terminates the current block with a two-way branch.
func (b *FunctionBuilder) CondBr(cond Value, t, f *Block) *CondBranch {
	inst := &CondBranch{Cond: cond, True: t, False: f}
	b.emit(inst)
	return inst
}

// Ret terminates the current block. Pass nil for void functions.
func (b *FunctionBuilder) Ret(v Value) {
	b.emit(&Return{Value: v})
}

// MarkLoop marks the current block as a loop header.
func (b *FunctionBuilder) MarkLoop(merge, cont *Block) {
	b.current.Loop = &LoopMerge{Merge: merge, Continue: cont}
}
