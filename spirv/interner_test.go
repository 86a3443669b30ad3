package spirv

import (
	"testing"

	"github.com/gogpu/parallax/ir"
)

func TestInternerTypeIdempotent(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	in := NewInterner(b)

	types := []ir.Type{
		ir.Void, ir.Bool, ir.I8, ir.I16, ir.I32, ir.I64, ir.F16, ir.F32, ir.F64,
		ir.Ptr(ir.F32, ir.SpaceBuffer), ir.Ptr(ir.F32, ir.SpaceFunction), ir.Ptr(ir.I32, ir.SpaceConfig),
	}
	first := make([]uint32, len(types))
	for i, typ := range types {
		id, err := in.TypeID(typ)
		if err != nil {
			t.Fatalf("TypeID(%s): %v", typ, err)
		}
		first[i] = id
	}
	words := b.SectionWords(SectionTypes)
	for i, typ := range types {
		id, err := in.TypeID(typ)
		if err != nil {
			t.Fatal(err)
		}
		if id != first[i] {
			t.Errorf("TypeID(%s): got %d then %d", typ, first[i], id)
		}
	}
	if b.SectionWords(SectionTypes) != words {
		t.Error("repeated TypeID calls declared new types")
	}
}

func TestInternerPointerKey(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	in := NewInterner(b)

	buf, _ := in.TypeID(ir.Ptr(ir.F32, ir.SpaceBuffer))
	fn, _ := in.TypeID(ir.Ptr(ir.F32, ir.SpaceFunction))
	if buf == fn {
		t.Error("pointers in different storage classes share an id")
	}
	f32, _ := in.TypeID(ir.F32)
	if got := in.PointerID(StorageClassStorageBuffer, f32); got != buf {
		t.Errorf("PointerID: got %d, want %d", got, buf)
	}
}

func TestInternerConstants(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	in := NewInterner(b)

	a, _ := in.ConstantID(ir.F32Const(3.14))
	c, _ := in.ConstantID(ir.F32Const(3.14))
	if a != c {
		t.Errorf("same constant got ids %d and %d", a, c)
	}
	one32, _ := in.ConstantID(ir.I32Const(1))
	one64, _ := in.ConstantID(ir.I64Const(1))
	if one32 == one64 {
		t.Error("constants of different widths share an id")
	}
	yes, _ := in.ConstantID(ir.BoolConst(true))
	no, _ := in.ConstantID(ir.BoolConst(false))
	if yes == no {
		t.Error("true and false share an id")
	}
	minus, _ := in.ConstantID(ir.I32Const(-1))
	max32, _ := in.ConstantID(ir.U32Const(0xFFFFFFFF))
	if minus != max32 {
		t.Error("-1 and 0xFFFFFFFF are the same i32 bit pattern")
	}

	words, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	_, insts, err := decodeModule(words)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range insts {
		switch {
		case d.result == yes && d.op != OpConstantTrue:
			t.Errorf("true declared with %s", d.op)
		case d.result == no && d.op != OpConstantFalse:
			t.Errorf("false declared with %s", d.op)
		case d.result == one64 && len(d.operands) != 2:
			t.Errorf("i64 constant has %d literal words, want 2", len(d.operands))
		case d.result == one32 && len(d.operands) != 1:
			t.Errorf("i32 constant has %d literal words, want 1", len(d.operands))
		}
	}
}

func TestInternerCapabilitiesOnDemand(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	in := NewInterner(b)
	if _, err := in.TypeID(ir.I32); err != nil {
		t.Fatal(err)
	}
	if b.HasCapability(CapabilityInt64) {
		t.Error("Int64 declared without a 64-bit type")
	}
	if _, err := in.TypeID(ir.I64); err != nil {
		t.Fatal(err)
	}
	if !b.HasCapability(CapabilityInt64) {
		t.Error("Int64 not declared for i64")
	}
}

func TestInternerFallback(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	in := NewInterner(b)

	odd, err := in.TypeID(ir.IntType{Width: 24})
	if err != nil {
		t.Fatal(err)
	}
	i32, _ := in.TypeID(ir.I32)
	if odd != i32 {
		t.Errorf("i24 fallback: got %d, want the i32 id %d", odd, i32)
	}
	if _, err := in.TypeID(ir.IntType{Width: 24}); err != nil {
		t.Fatal(err)
	}
	wide, _ := in.TypeID(ir.FloatType{Width: 128})
	f32, _ := in.TypeID(ir.F32)
	if wide != f32 {
		t.Errorf("f128 fallback: got %d, want the f32 id %d", wide, f32)
	}

	if got := len(in.Unsupported()); got != 2 {
		t.Fatalf("reports: got %d, want 2 (one per distinct type)", got)
	}
	for _, e := range in.Unsupported() {
		if !IsUnsupported(e) {
			t.Errorf("report kind: got %s", e.Kind)
		}
	}
}

func TestInternerStridedPointer(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	in := NewInterner(b)
	p := ir.Ptr(ir.F64, ir.SpaceBuffer)

	first, err := in.StridedPointerID(p)
	if err != nil {
		t.Fatal(err)
	}
	decorations := b.SectionWords(SectionDecorations)
	second, _ := in.StridedPointerID(p)
	if first != second {
		t.Errorf("got ids %d and %d", first, second)
	}
	if b.SectionWords(SectionDecorations) != decorations {
		t.Error("ArrayStride written twice")
	}
	if _, err := in.StridedPointerID(ir.Ptr(ir.Bool, ir.SpaceBuffer)); !IsStructural(err) {
		t.Errorf("bool stride: got %v, want structural error", err)
	}
}

func TestInternerIgnoresCursor(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	b.SetSection(SectionFunctions)
	in := NewInterner(b)
	if _, err := in.TypeID(ir.F32); err != nil {
		t.Fatal(err)
	}
	if b.SectionWords(SectionFunctions) != 0 {
		t.Error("type declared into the functions section")
	}
	if b.Err() != nil {
		t.Errorf("builder error: %v", b.Err())
	}
}
