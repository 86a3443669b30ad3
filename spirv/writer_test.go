package spirv

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestModuleBuilder_MinimalModule(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	// Add basic capability
	builder.AddCapability(CapabilityShader)

	// Build the module
	data, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Header, OpCapability, OpMemoryModel
	if len(data) != 40 {
		t.Fatalf("Module size: got %d bytes, want 40", len(data))
	}

	// Check magic number
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicNumber {
		t.Errorf("Invalid magic number: got 0x%08X, want 0x%08X", magic, MagicNumber)
	}

	// Check version
	version := binary.LittleEndian.Uint32(data[4:8])
	expectedVersion := uint32(1<<16 | 3<<8) // Version 1.3
	if version != expectedVersion {
		t.Errorf("Invalid version: got 0x%08X, want 0x%08X", version, expectedVersion)
	}

	// Check generator
	generator := binary.LittleEndian.Uint32(data[8:12])
	if generator != GeneratorID {
		t.Errorf("Invalid generator: got 0x%08X, want 0x%08X", generator, GeneratorID)
	}

	// No ids allocated, so the bound is 1
	bound := binary.LittleEndian.Uint32(data[12:16])
	if bound != 1 {
		t.Errorf("Bound: got %d, want 1", bound)
	}

	// Check schema (reserved, must be 0)
	schema := binary.LittleEndian.Uint32(data[16:20])
	if schema != 0 {
		t.Errorf("Schema should be 0, got %d", schema)
	}
}

func TestModuleBuilder_WithTypes(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)
	builder.AddCapability(CapabilityShader)

	// Add some types
	voidType := builder.AddTypeVoid()
	floatType := builder.AddTypeFloat(32)
	intType := builder.AddTypeInt(32, true)
	vec4Type := builder.AddTypeVector(floatType, 4)

	words, err := builder.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	// IDs are sequential from 1
	if voidType != 1 || floatType != 2 || intType != 3 || vec4Type != 4 {
		t.Errorf("Type IDs: void=%d float=%d int=%d vec4=%d", voidType, floatType, intType, vec4Type)
	}
	if words[3] != 5 {
		t.Errorf("Bound: got %d, want 5", words[3])
	}
	if err := Verify(words); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestModuleBuilder_SectionOrder(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	// Emit out of SPIR-V order; Finalize puts every section in place.
	voidType := builder.AddTypeVoid()
	funcType := builder.AddTypeFunction(voidType)
	funcID := builder.AddFunction(funcType, voidType, FunctionControlNone)
	builder.AddLabel()
	builder.AddReturn()
	builder.AddFunctionEnd()
	builder.AddDecorate(voidType, DecorationBlock)
	builder.AddName(funcID, "main")
	builder.AddEntryPoint(ExecutionModelGLCompute, funcID, "main", nil)
	builder.AddExecutionMode(funcID, ExecutionModeLocalSize, 1, 1, 1)
	builder.AddCapability(CapabilityShader)

	words, err := builder.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	_, insts, err := decodeModule(words)
	if err != nil {
		t.Fatal(err)
	}
	want := []OpCode{
		OpCapability, OpMemoryModel,
		OpEntryPoint, OpExecutionMode,
		OpName,
		OpDecorate,
		OpTypeVoid, OpTypeFunction,
		OpFunction, OpLabel, OpReturn, OpFunctionEnd,
	}
	if len(insts) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(insts), len(want))
	}
	for i, op := range want {
		if insts[i].op != op {
			t.Errorf("instruction %d: got %s, want %s", i, insts[i].op, op)
		}
	}
}

func TestModuleBuilder_PreambleSorted(t *testing.T) {
	builder := NewModuleBuilder(Version1_0)
	builder.AddCapability(CapabilityVariablePointersStorageBuffer)
	builder.AddExtension(ExtVariablePointers)
	builder.AddCapability(CapabilityShader)
	builder.AddExtension(ExtStorageBufferStorageClass)
	builder.AddCapability(CapabilityShader)

	words, err := builder.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	_, insts, err := decodeModule(words)
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 5 {
		t.Fatalf("got %d preamble instructions, want 5", len(insts))
	}
	if Capability(insts[0].operands[0].value) != CapabilityShader ||
		Capability(insts[1].operands[0].value) != CapabilityVariablePointersStorageBuffer {
		t.Error("capabilities not in ascending order")
	}
	if insts[2].operands[0].text != ExtStorageBufferStorageClass || insts[3].operands[0].text != ExtVariablePointers {
		t.Error("extensions not in lexical order")
	}
	if insts[4].op != OpMemoryModel {
		t.Errorf("last preamble instruction: got %s", insts[4].op)
	}
}

func TestModuleBuilder_SetMemoryModel(t *testing.T) {
	for _, mm := range []MemoryModel{MemoryModelGLSL450, MemoryModelSimple} {
		builder := NewModuleBuilder(Version1_3)
		builder.AddCapability(CapabilityShader)
		builder.SetMemoryModel(AddressingModelLogical, mm)
		words, err := builder.Finalize()
		if err != nil {
			t.Fatal(err)
		}
		_, insts, err := decodeModule(words)
		if err != nil {
			t.Fatal(err)
		}
		if len(insts) != 2 || insts[1].op != OpMemoryModel {
			t.Fatalf("preamble: got %d instructions", len(insts))
		}
		if got := insts[1].words; got[0] != uint32(AddressingModelLogical) || got[1] != uint32(mm) {
			t.Errorf("OpMemoryModel operands: got %v, want [0 %d]", got, mm)
		}
	}
}

func TestModuleBuilder_SectionDiscipline(t *testing.T) {
	tests := []struct {
		name string
		emit func(b *ModuleBuilder)
	}{
		{"type in functions", func(b *ModuleBuilder) {
			b.SetSection(SectionFunctions)
			b.Emit(OpTypeBool, b.AllocID())
		}},
		{"load in types", func(b *ModuleBuilder) {
			b.SetSection(SectionTypes)
			b.Emit(OpLoad, 1, b.AllocID(), 1)
		}},
		{"preamble write", func(b *ModuleBuilder) {
			b.EmitTo(SectionPreamble, OpCapability, uint32(CapabilityShader))
		}},
		{"local variable in types", func(b *ModuleBuilder) {
			b.EmitTo(SectionTypes, OpVariable, 1, b.AllocID(), uint32(StorageClassFunction))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewModuleBuilder(Version1_3)
			tt.emit(b)
			if _, err := b.Finalize(); !IsInternal(err) {
				t.Fatalf("got %v, want internal error", err)
			}
		})
	}
}

func TestModuleBuilder_FinalizeOnce(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	if _, err := b.Finalize(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Finalize(); !IsInternal(err) {
		t.Errorf("second Finalize: got %v, want internal error", err)
	}

	b = NewModuleBuilder(Version1_3)
	if _, err := b.Finalize(); err != nil {
		t.Fatal(err)
	}
	b.AddTypeVoid()
	if !IsInternal(b.Err()) {
		t.Errorf("emit after Finalize: got %v, want internal error", b.Err())
	}
}

func TestModuleBuilder_SetSectionReturnsPrevious(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	if prev := b.SetSection(SectionTypes); prev != SectionFunctions {
		t.Errorf("initial section: got %s, want functions", prev)
	}
	if prev := b.SetSection(SectionDecorations); prev != SectionTypes {
		t.Errorf("previous section: got %s, want types", prev)
	}
	// Typed helpers ignore the cursor.
	b.AddTypeVoid()
	if b.SectionWords(SectionTypes) != 2 || b.SectionWords(SectionDecorations) != 0 {
		t.Error("AddTypeVoid did not write to the types section")
	}
}

func TestInstructionBuilder_String(t *testing.T) {
	builder := NewInstructionBuilder()
	builder.AddString("hello")

	inst := builder.Build(OpName)
	encoded, err := inst.Encode()
	if err != nil {
		t.Fatal(err)
	}

	// First word is opcode
	opcodeWord := encoded[0]
	wordCount := opcodeWord >> 16
	opcode := OpCode(opcodeWord & 0xFFFF)

	if opcode != OpName {
		t.Errorf("Wrong opcode: got %d, want %d", opcode, OpName)
	}

	// "hello" = 5 chars + null = 6 bytes = 2 words
	if wordCount != 3 {
		t.Errorf("Wrong word count: got %d, want 3", wordCount)
	}
	if s, n := decodeString(encoded[1:]); s != "hello" || n != 2 {
		t.Errorf("decodeString: got %q in %d words", s, n)
	}
}

func TestInstructionBuilder_TooLong(t *testing.T) {
	inst := Instruction{Opcode: OpTypeStruct, Words: make([]uint32, math.MaxUint16)}
	if _, err := inst.Encode(); !IsInternal(err) {
		t.Fatalf("got %v, want internal error", err)
	}
}

func TestModuleBuilder_Constant64(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	f64 := b.AddTypeFloat(64)
	id := b.AddConstantFloat64(f64, 1.5)
	words, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	_, insts, err := decodeModule(words)
	if err != nil {
		t.Fatal(err)
	}
	c := insts[len(insts)-1]
	if c.op != OpConstant || c.result != id || len(c.operands) != 2 {
		t.Fatalf("got %s with %d literal words", c.op, len(c.operands))
	}
	bits := math.Float64bits(1.5)
	if c.operands[0].value != uint32(bits) || c.operands[1].value != uint32(bits>>32) {
		t.Error("64-bit constant words are not low word first")
	}
}

func TestModuleBuilder_IDAllocation(t *testing.T) {
	builder := NewModuleBuilder(Version1_3)

	ids := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		id := builder.AllocID()
		if ids[id] {
			t.Fatalf("Duplicate ID: %d", id)
		}
		if id == 0 {
			t.Fatal("ID 0 is reserved")
		}
		ids[id] = true
	}
	if builder.Bound() != 101 {
		t.Errorf("Bound: got %d, want 101", builder.Bound())
	}
}

func TestBytesWordsRoundTrip(t *testing.T) {
	words := []uint32{MagicNumber, 0x00010300, GeneratorID, 1, 0}
	back, err := BytesToWords(WordsToBytes(words))
	if err != nil {
		t.Fatal(err)
	}
	for i := range words {
		if back[i] != words[i] {
			t.Fatalf("word %d: got 0x%08X, want 0x%08X", i, back[i], words[i])
		}
	}
	if _, err := BytesToWords([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for a length that is not a multiple of 4")
	}
}
