package ir

import (
	"fmt"
	"math"
)

// Value is anything an instruction can reference: a Constant, an
// Argument, or a value-producing Instruction.
type Value interface {
	Type() Type
	isValue()
}

// Constant is an immutable literal. Bits holds the integer bit pattern or
// the IEEE-754 encoding, zero-extended to 64 bits.
type Constant struct {
	Typ  Type
	Bits uint64
}

func (c Constant) Type() Type { return c.Typ }
func (Constant) isValue()     {}

// String renders the constant with its type, e.g. "f32 2".
func (c Constant) String() string {
	switch t := c.Typ.(type) {
	case BoolType:
		if c.Bits != 0 {
			return "true"
		}
		return "false"
	case FloatType:
		switch t.Width {
		case 32:
			return fmt.Sprintf("%s %g", t, math.Float32frombits(uint32(c.Bits)))
		case 64:
			return fmt.Sprintf("%s %g", t, math.Float64frombits(c.Bits))
		}
		return fmt.Sprintf("%s 0x%x", t, c.Bits)
	case IntType:
		v := int64(c.Bits)
		if t.Width > 0 && t.Width < 64 {
			shift := 64 - t.Width
			v = int64(c.Bits<<shift) >> shift
		}
		return fmt.Sprintf("%s %d", t, v)
	default:
		return fmt.Sprintf("%s %d", c.Typ, int64(c.Bits))
	}
}

// BoolConst returns a bool constant.
func BoolConst(v bool) Constant {
	if v {
		return Constant{Typ: Bool, Bits: 1}
	}
	return Constant{Typ: Bool}
}

// Int returns an integer constant of the given width. The value is
// truncated to width bits.
func Int(width uint32, v int64) Constant {
	bits := uint64(v)
	if width < 64 {
		bits &= (uint64(1) << width) - 1
	}
	return Constant{Typ: IntType{Width: width}, Bits: bits}
}

// I32Const returns a 32-bit integer constant.
func I32Const(v int32) Constant { return Int(32, int64(v)) }

// U32Const returns a 32-bit integer constant from an unsigned value.
func U32Const(v uint32) Constant { return Constant{Typ: I32, Bits: uint64(v)} }

// I64Const returns a 64-bit integer constant.
func I64Const(v int64) Constant { return Int(64, v) }

// F32Const returns a 32-bit float constant.
func F32Const(v float32) Constant {
	return Constant{Typ: F32, Bits: uint64(math.Float32bits(v))}
}

// F64Const returns a 64-bit float constant.
func F64Const(v float64) Constant {
	return Constant{Typ: F64, Bits: math.Float64bits(v)}
}

// FloatConst returns a float constant of the given width. Widths other
// than 16, 32 and 64 keep the float64 bits and are left to the
// generator's fallback handling.
func FloatConst(width uint32, v float64) Constant {
	switch width {
	case 16:
		return Constant{Typ: F16, Bits: uint64(halfBits(float32(v)))}
	case 32:
		return F32Const(float32(v))
	case 64:
		return F64Const(v)
	}
	return Constant{Typ: FloatType{Width: width}, Bits: math.Float64bits(v)}
}

// Argument is a function parameter.
type Argument struct {
	Name  string
	Typ   Type
	Index int
}

func (a *Argument) Type() Type { return a.Typ }
func (*Argument) isValue()     {}

// halfBits converts f to IEEE-754 binary16, rounding half away from zero.
func halfBits(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	rawExp := (b >> 23) & 0xff
	mant := b & 0x7fffff
	if rawExp == 0xff {
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}
	exp := int(rawExp) - 127 + 15
	switch {
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint(14 - exp)
		half := uint16(mant >> shift)
		if (mant>>(shift-1))&1 != 0 {
			half++
		}
		return sign | half
	}
	half := sign | uint16(exp)<<10 | uint16(mant>>13)
	if mant&0x1000 != 0 {
		half++
	}
	return half
}
