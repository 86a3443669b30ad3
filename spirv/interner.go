package spirv

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/parallax/ir"
)

// pointerKey identifies a pointer type by pointee id and storage class.
type pointerKey struct {
	pointee uint32
	class   StorageClass
}

// vectorKey identifies a vector type.
type vectorKey struct {
	component uint32
	count     uint32
}

// constantKey identifies a constant by its declared type id and bits.
type constantKey struct {
	typeID uint32
	bits   uint64
}

// Interner hands out the id of each distinct type and constant, declaring
// it in the Types section the first time it is requested. All lookups are
// idempotent.
type Interner struct {
	b *ModuleBuilder

	scalars   map[ir.Type]uint32
	pointers  map[pointerKey]uint32
	vectors   map[vectorKey]uint32
	arrays    map[uint32]uint32
	functions map[string]uint32
	constants map[constantKey]uint32
	strides   map[uint32]bool

	reported    map[ir.Type]bool
	unsupported []*Error
}

// NewInterner creates an interner that declares into b.
func NewInterner(b *ModuleBuilder) *Interner {
	return &Interner{
		b:         b,
		scalars:   make(map[ir.Type]uint32),
		pointers:  make(map[pointerKey]uint32),
		vectors:   make(map[vectorKey]uint32),
		arrays:    make(map[uint32]uint32),
		functions: make(map[string]uint32),
		constants: make(map[constantKey]uint32),
		strides:   make(map[uint32]bool),
		reported:  make(map[ir.Type]bool),
	}
}

// Unsupported returns the fallback reports collected so far, one per
// distinct unsupported type.
func (in *Interner) Unsupported() []*Error { return in.unsupported }

// Normalize maps t onto the type actually declared for it. Unsupported
// integer and float widths become their 32-bit counterpart; pointers are
// normalized through their pointee.
func (in *Interner) Normalize(t ir.Type) ir.Type {
	switch t := t.(type) {
	case ir.IntType:
		switch t.Width {
		case 8, 16, 32, 64:
			return t
		}
		in.report(t, "integer width %d is not supported; declared as i32", t.Width)
		return ir.I32
	case ir.FloatType:
		switch t.Width {
		case 16, 32, 64:
			return t
		}
		in.report(t, "float width %d is not supported; declared as f32", t.Width)
		return ir.F32
	case ir.PointerType:
		return ir.Ptr(in.Normalize(t.Elem), t.Space)
	}
	return t
}

func (in *Interner) report(t ir.Type, format string, args ...any) {
	if in.reported[t] {
		return
	}
	in.reported[t] = true
	err := errorf(ErrUnsupported, format, args...)
	in.unsupported = append(in.unsupported, err)
	slogger().Warn("spirv: unsupported type, using fallback", "type", t.String(), "error", err.Message)
}

// StorageClassOf maps an IR address space to a SPIR-V storage class.
func StorageClassOf(space ir.AddressSpace) (StorageClass, error) {
	switch space {
	case ir.SpaceFunction:
		return StorageClassFunction, nil
	case ir.SpaceBuffer:
		return StorageClassStorageBuffer, nil
	case ir.SpaceConfig:
		return StorageClassPushConstant, nil
	case ir.SpaceInput:
		return StorageClassInput, nil
	}
	return 0, errorf(ErrStructural, "unknown address space %s", space)
}

// TypeID returns the id of the declared type for t.
func (in *Interner) TypeID(t ir.Type) (uint32, error) {
	if t == nil {
		return 0, errorf(ErrStructural, "missing type")
	}
	t = in.Normalize(t)

	if p, ok := t.(ir.PointerType); ok {
		pointee, err := in.TypeID(p.Elem)
		if err != nil {
			return 0, err
		}
		class, err := StorageClassOf(p.Space)
		if err != nil {
			return 0, err
		}
		return in.PointerID(class, pointee), nil
	}

	if id, ok := in.scalars[t]; ok {
		return id, nil
	}

	var id uint32
	switch t := t.(type) {
	case ir.VoidType:
		id = in.b.AddTypeVoid()
	case ir.BoolType:
		id = in.b.AddTypeBool()
	case ir.IntType:
		switch t.Width {
		case 8:
			in.b.AddCapability(CapabilityInt8)
		case 16:
			in.b.AddCapability(CapabilityInt16)
		case 64:
			in.b.AddCapability(CapabilityInt64)
		}
		id = in.b.AddTypeInt(t.Width, false)
	case ir.FloatType:
		switch t.Width {
		case 16:
			in.b.AddCapability(CapabilityFloat16)
		case 64:
			in.b.AddCapability(CapabilityFloat64)
		}
		id = in.b.AddTypeFloat(t.Width)
	default:
		return 0, errorf(ErrStructural, "unknown type %T", t)
	}
	in.scalars[t] = id
	return id, nil
}

// PointerID returns the id of a pointer to pointee in class.
func (in *Interner) PointerID(class StorageClass, pointee uint32) uint32 {
	key := pointerKey{pointee: pointee, class: class}
	if id, ok := in.pointers[key]; ok {
		return id
	}
	id := in.b.AddTypePointer(class, pointee)
	in.pointers[key] = id
	return id
}

// StridedPointerID returns the id of the pointer type for p and decorates
// it with the element stride OpPtrAccessChain needs. The decoration is
// written once per pointer type.
func (in *Interner) StridedPointerID(p ir.PointerType) (uint32, error) {
	id, err := in.TypeID(p)
	if err != nil {
		return 0, err
	}
	if in.strides[id] {
		return id, nil
	}
	size, err := in.ByteSize(p.Elem)
	if err != nil {
		return 0, err
	}
	in.b.AddDecorate(id, DecorationArrayStride, size)
	in.strides[id] = true
	return id, nil
}

// VectorID returns the id of a vector of count components.
func (in *Interner) VectorID(component, count uint32) uint32 {
	key := vectorKey{component: component, count: count}
	if id, ok := in.vectors[key]; ok {
		return id
	}
	id := in.b.AddTypeVector(component, count)
	in.vectors[key] = id
	return id
}

// RuntimeArrayID returns the id of a runtime array of elem, decorated with
// the given stride the first time it is declared.
func (in *Interner) RuntimeArrayID(elem, stride uint32) uint32 {
	if id, ok := in.arrays[elem]; ok {
		return id
	}
	id := in.b.AddTypeRuntimeArray(elem)
	in.b.AddDecorate(id, DecorationArrayStride, stride)
	in.arrays[elem] = id
	return id
}

// StructID declares a new struct type. Structs are never shared, so each
// block struct carries its own decorations.
func (in *Interner) StructID(members ...uint32) uint32 {
	return in.b.AddTypeStruct(members...)
}

// FunctionTypeID returns the id of a function type.
func (in *Interner) FunctionTypeID(result uint32, params ...uint32) uint32 {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(uint64(result), 10))
	for _, p := range params {
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatUint(uint64(p), 10))
	}
	key := sb.String()
	if id, ok := in.functions[key]; ok {
		return id
	}
	id := in.b.AddTypeFunction(result, params...)
	in.functions[key] = id
	return id
}

// ByteSize returns the storage size of a buffer element of type t.
func (in *Interner) ByteSize(t ir.Type) (uint32, error) {
	switch t := in.Normalize(t).(type) {
	case ir.IntType:
		return t.Width / 8, nil
	case ir.FloatType:
		return t.Width / 8, nil
	}
	return 0, errorf(ErrStructural, "type %s has no buffer layout", t)
}

// ConstantID returns the id of the declared constant for c.
func (in *Interner) ConstantID(c ir.Constant) (uint32, error) {
	typ := in.Normalize(c.Typ)
	typeID, err := in.TypeID(typ)
	if err != nil {
		return 0, err
	}

	var width uint32
	switch t := typ.(type) {
	case ir.BoolType:
		bits := uint64(0)
		if c.Bits != 0 {
			bits = 1
		}
		key := constantKey{typeID: typeID, bits: bits}
		if id, ok := in.constants[key]; ok {
			return id, nil
		}
		id := in.b.AddConstantBool(typeID, bits != 0)
		in.constants[key] = id
		return id, nil
	case ir.IntType:
		width = t.Width
	case ir.FloatType:
		width = t.Width
		if orig, ok := c.Typ.(ir.FloatType); ok && orig.Width != width {
			// ir.FloatConst stores unsupported widths as float64 bits.
			c.Bits = uint64(math.Float32bits(float32(math.Float64frombits(c.Bits))))
		}
	default:
		return 0, errorf(ErrStructural, "constant of type %s", c.Typ)
	}

	bits := c.Bits
	if width < 64 {
		bits &= (uint64(1) << width) - 1
	}
	key := constantKey{typeID: typeID, bits: bits}
	if id, ok := in.constants[key]; ok {
		return id, nil
	}
	var id uint32
	if width == 64 {
		id = in.b.AddConstant(typeID, uint32(bits), uint32(bits>>32))
	} else {
		id = in.b.AddConstant(typeID, uint32(bits))
	}
	in.constants[key] = id
	return id, nil
}

// String describes the interner contents for debug logging.
func (in *Interner) String() string {
	return fmt.Sprintf("types=%d pointers=%d constants=%d", len(in.scalars), len(in.pointers), len(in.constants))
}
