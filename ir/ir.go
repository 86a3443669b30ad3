package ir

import "fmt"

// Module is the sole container handed to the code generator.
type Module struct {
	// Name identifies the module in logs and diagnostics.
	Name string

	// Functions holds all functions. Functions[0] is the kernel function.
	Functions []*Function
}

// Kernel returns the per-element function, or nil for an empty module.
func (m *Module) Kernel() *Function {
	if m == nil || len(m.Functions) == 0 {
		return nil
	}
	return m.Functions[0]
}

// Function is a typed parameter list plus a list of basic blocks.
type Function struct {
	Name   string
	Params []*Argument
	Result Type

	// Blocks in emission order. Blocks[0] is the entry block.
	Blocks []*Block
}

// Entry returns the entry block, or nil if the function has no blocks.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// ResultType returns the declared result type, treating nil as void.
func (f *Function) ResultType() Type {
	if f.Result == nil {
		return VoidType{}
	}
	return f.Result
}

// Block is an ordered instruction sequence ending in a terminator.
// Blocks are referenced by identity; Name is informational only.
type Block struct {
	Name   string
	Instrs []Instruction

	// Loop marks this block as a structured loop header.
	Loop *LoopMerge
}

// LoopMerge names the merge and continue targets of a loop header.
type LoopMerge struct {
	Merge    *Block
	Continue *Block
}

// Terminator returns the last instruction if it is a terminator.
func (b *Block) Terminator() Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if IsTerminator(last) {
		return last
	}
	return nil
}

// Successors returns the blocks this block can branch to.
func (b *Block) Successors() []*Block {
	switch t := b.Terminator().(type) {
	case *Branch:
		return []*Block{t.Target}
	case *CondBranch:
		return []*Block{t.True, t.False}
	default:
		return nil
	}
}

// AddressSpace is the closed set of places a pointer's referent can live.
type AddressSpace uint8

const (
	// SpaceFunction is function-local storage.
	SpaceFunction AddressSpace = iota
	// SpaceBuffer is the large data buffer bound at dispatch.
	SpaceBuffer
	// SpaceConfig is the small uniform/config block.
	SpaceConfig
	// SpaceInput holds builtin inputs such as the invocation id.
	SpaceInput
)

var addressSpaceNames = [...]string{
	SpaceFunction: "function",
	SpaceBuffer:   "buffer",
	SpaceConfig:   "config",
	SpaceInput:    "input",
}

// String returns the wire name of the address space.
func (s AddressSpace) String() string {
	if int(s) < len(addressSpaceNames) {
		return addressSpaceNames[s]
	}
	return fmt.Sprintf("space(%d)", uint8(s))
}

// ParseAddressSpace is the inverse of AddressSpace.String.
func ParseAddressSpace(s string) (AddressSpace, error) {
	for i, name := range addressSpaceNames {
		if name == s {
			return AddressSpace(i), nil
		}
	}
	return 0, fmt.Errorf("unknown address space %q", s)
}

// Type is an IR type. Implementations are comparable values, so two types
// describing the same shape compare equal with ==.
type Type interface {
	fmt.Stringer
	isType()
}

// VoidType is the absence of a value.
type VoidType struct{}

// BoolType is a logical value.
type BoolType struct{}

// IntType is an integer of Width bits. Signedness is carried by the
// operations, not by the type.
type IntType struct {
	Width uint32
}

// FloatType is an IEEE-754 float of Width bits.
type FloatType struct {
	Width uint32
}

// PointerType points at Elem in the given address space.
type PointerType struct {
	Elem  Type
	Space AddressSpace
}

func (VoidType) isType()    {}
func (BoolType) isType()    {}
func (IntType) isType()     {}
func (FloatType) isType()   {}
func (PointerType) isType() {}

func (VoidType) String() string    { return "void" }
func (BoolType) String() string    { return "bool" }
func (t IntType) String() string   { return fmt.Sprintf("i%d", t.Width) }
func (t FloatType) String() string { return fmt.Sprintf("f%d", t.Width) }
func (t PointerType) String() string {
	return fmt.Sprintf("ptr<%s, %s>", t.Space, t.Elem)
}

// Common types.
var (
	Void = VoidType{}
	Bool = BoolType{}
	I8   = IntType{Width: 8}
	I16  = IntType{Width: 16}
	I32  = IntType{Width: 32}
	I64  = IntType{Width: 64}
	F16  = FloatType{Width: 16}
	F32  = FloatType{Width: 32}
	F64  = FloatType{Width: 64}
)

// Ptr is shorthand for PointerType{Elem: elem, Space: space}.
func Ptr(elem Type, space AddressSpace) PointerType {
	return PointerType{Elem: elem, Space: space}
}

// IsInt reports whether t is an integer type.
func IsInt(t Type) bool {
	_, ok := t.(IntType)
	return ok
}

// IsFloat reports whether t is a float type.
func IsFloat(t Type) bool {
	_, ok := t.(FloatType)
	return ok
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(PointerType)
	return ok
}

// Domain selects the numeric operation family of an arithmetic or
// comparison instruction. It is decided by the producer and never inferred
// from a bit width.
type Domain uint8

const (
	Signed Domain = iota
	Unsigned
	Float
)

var domainNames = [...]string{Signed: "signed", Unsigned: "unsigned", Float: "float"}

func (d Domain) String() string {
	if int(d) < len(domainNames) {
		return domainNames[d]
	}
	return fmt.Sprintf("domain(%d)", uint8(d))
}

// ParseDomain is the inverse of Domain.String.
func ParseDomain(s string) (Domain, error) {
	for i, name := range domainNames {
		if name == s {
			return Domain(i), nil
		}
	}
	return 0, fmt.Errorf("unknown domain %q", s)
}

// Accepts reports whether values of type t belong to the domain.
func (d Domain) Accepts(t Type) bool {
	if d == Float {
		return IsFloat(t)
	}
	return IsInt(t)
}
