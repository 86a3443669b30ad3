package ir

import "fmt"

// Instruction is the closed set of IR operations. Value-producing
// instructions also implement Value.
type Instruction interface {
	isInstruction()
}

// BinaryOp is an arithmetic operator.
type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Rem
)

var binaryOpNames = [...]string{Add: "add", Sub: "sub", Mul: "mul", Div: "div", Rem: "rem"}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("binop(%d)", uint8(op))
}

// Predicate is a comparison operator.
type Predicate uint8

const (
	Eq Predicate = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

var predicateNames = [...]string{Eq: "eq", Ne: "ne", Lt: "lt", Le: "le", Gt: "gt", Ge: "ge"}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return fmt.Sprintf("pred(%d)", uint8(p))
}

// Binary computes Left Op Right in the given domain. The result has the
// type of Left.
type Binary struct {
	Op          BinaryOp
	Domain      Domain
	Left, Right Value
}

// Compare evaluates Left Pred Right in the given domain, yielding bool.
type Compare struct {
	Pred        Predicate
	Domain      Domain
	Left, Right Value
}

// Negate computes the arithmetic negation of Operand.
type Negate struct {
	Domain  Domain
	Operand Value
}

// Convert changes the numeric representation of Value to type To.
// From and ToDomain give the signedness of the source and destination.
type Convert struct {
	Value    Value
	From     Domain
	To       Type
	ToDomain Domain
}

// Load reads the value Ptr points at.
type Load struct {
	Ptr Value
}

// Store writes Value through Ptr.
type Store struct {
	Value Value
	Ptr   Value
}

// ElementPtr offsets Base by Index elements.
type ElementPtr struct {
	Base  Value
	Index Value
}

// Local declares a function-local variable and yields its address.
type Local struct {
	Name string
	Elem Type
}

// Call invokes Callee with Args.
type Call struct {
	Callee *Function
	Args   []Value
}

// Branch jumps unconditionally to Target.
type Branch struct {
	Target *Block
}

// CondBranch jumps to True or False depending on Cond. Merge optionally
// names the block where both paths reconverge.
type CondBranch struct {
	Cond        Value
	True, False *Block
	Merge       *Block
}

// Return leaves the function, with Value nil for void functions.
type Return struct {
	Value Value
}

func (*Binary) isInstruction()     {}
func (*Compare) isInstruction()    {}
func (*Negate) isInstruction()     {}
func (*Convert) isInstruction()    {}
func (*Load) isInstruction()       {}
func (*Store) isInstruction()      {}
func (*ElementPtr) isInstruction() {}
func (*Local) isInstruction()      {}
func (*Call) isInstruction()       {}
func (*Branch) isInstruction()     {}
func (*CondBranch) isInstruction() {}
func (*Return) isInstruction()     {}

func (*Binary) isValue()     {}
func (*Compare) isValue()    {}
func (*Negate) isValue()     {}
func (*Convert) isValue()    {}
func (*Load) isValue()       {}
func (*ElementPtr) isValue() {}
func (*Local) isValue()      {}
func (*Call) isValue()       {}

func (i *Binary) Type() Type  { return i.Left.Type() }
func (*Compare) Type() Type   { return Bool }
func (i *Negate) Type() Type  { return i.Operand.Type() }
func (i *Convert) Type() Type { return i.To }

// Type returns the pointee of Ptr, or void if Ptr is not a pointer.
func (i *Load) Type() Type {
	if p, ok := i.Ptr.Type().(PointerType); ok {
		return p.Elem
	}
	return Void
}

func (i *ElementPtr) Type() Type { return i.Base.Type() }
func (i *Local) Type() Type      { return Ptr(i.Elem, SpaceFunction) }
func (i *Call) Type() Type       { return i.Callee.ResultType() }

// IsTerminator reports whether inst ends a block.
func IsTerminator(inst Instruction) bool {
	switch inst.(type) {
	case *Branch, *CondBranch, *Return:
		return true
	}
	return false
}

// Operands returns the values inst reads, in operand order.
func Operands(inst Instruction) []Value {
	switch i := inst.(type) {
	case *Binary:
		return []Value{i.Left, i.Right}
	case *Compare:
		return []Value{i.Left, i.Right}
	case *Negate:
		return []Value{i.Operand}
	case *Convert:
		return []Value{i.Value}
	case *Load:
		return []Value{i.Ptr}
	case *Store:
		return []Value{i.Value, i.Ptr}
	case *ElementPtr:
		return []Value{i.Base, i.Index}
	case *Call:
		return i.Args
	case *CondBranch:
		return []Value{i.Cond}
	case *Return:
		if i.Value != nil {
			return []Value{i.Value}
		}
	}
	return nil
}
