package spirv

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"fortio.org/safecast"
)

// Instruction represents a SPIR-V instruction.
type Instruction struct {
	Opcode OpCode
	Words  []uint32 // result type ID, result ID, operands
}

// InstructionBuilder builds SPIR-V instructions.
type InstructionBuilder struct {
	words []uint32
}

// NewInstructionBuilder creates a new instruction builder.
func NewInstructionBuilder() *InstructionBuilder {
	return &InstructionBuilder{
		words: make([]uint32, 0, 8),
	}
}

// AddWord adds a word to the instruction.
func (b *InstructionBuilder) AddWord(word uint32) {
	b.words = append(b.words, word)
}

// AddWords adds several words to the instruction.
func (b *InstructionBuilder) AddWords(words ...uint32) {
	b.words = append(b.words, words...)
}

// AddString adds a null-terminated UTF-8 string.
func (b *InstructionBuilder) AddString(s string) {
	b.words = append(b.words, encodeString(s)...)
}

// Build builds the instruction with the given opcode.
func (b *InstructionBuilder) Build(opcode OpCode) Instruction {
	return Instruction{
		Opcode: opcode,
		Words:  b.words,
	}
}

// Encode encodes the instruction to binary. The word count must fit the
// 16-bit field of the first word.
func (i Instruction) Encode() ([]uint32, error) {
	wordCount, err := safecast.Conv[uint16](len(i.Words) + 1) // +1 for opcode word
	if err != nil {
		return nil, errorf(ErrInternal, "%s has %d operand words", i.Opcode, len(i.Words))
	}
	result := make([]uint32, 0, wordCount)
	result = append(result, uint32(wordCount)<<16|uint32(i.Opcode))
	result = append(result, i.Words...)
	return result, nil
}

// encodeString packs s as a null-terminated, word-padded literal string.
func encodeString(s string) []uint32 {
	bytes := []byte(s)
	bytes = append(bytes, 0)

	// Pad to word boundary
	for len(bytes)%4 != 0 {
		bytes = append(bytes, 0)
	}

	words := make([]uint32, 0, len(bytes)/4)
	for i := 0; i < len(bytes); i += 4 {
		words = append(words, binary.LittleEndian.Uint32(bytes[i:]))
	}
	return words
}

// decodeString reads a literal string from words and reports how many
// words it occupied.
func decodeString(words []uint32) (string, int) {
	var buf []byte
	for i, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf), i + 1
			}
			buf = append(buf, c)
		}
	}
	return string(buf), len(words)
}

// Section is a logical part of a SPIR-V module. Sections are written in
// declaration order.
type Section uint8

const (
	// SectionHeader holds the five header words.
	SectionHeader Section = iota
	// SectionPreamble holds capabilities, extensions and the memory model.
	SectionPreamble
	// SectionEntryPoints holds OpEntryPoint and OpExecutionMode.
	SectionEntryPoints
	// SectionDebug holds OpName; empty unless debug names are requested.
	SectionDebug
	// SectionDecorations holds OpDecorate and OpMemberDecorate.
	SectionDecorations
	// SectionTypes holds types, constants and global variables.
	SectionTypes
	// SectionFunctions holds function bodies.
	SectionFunctions

	sectionCount
)

var sectionNames = [...]string{
	SectionHeader:      "header",
	SectionPreamble:    "preamble",
	SectionEntryPoints: "entry-points",
	SectionDebug:       "debug",
	SectionDecorations: "decorations",
	SectionTypes:       "types",
	SectionFunctions:   "functions",
}

func (s Section) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return fmt.Sprintf("section(%d)", uint8(s))
}

// ModuleBuilder builds complete SPIR-V modules.
//
// Each section has its own append-only word buffer. Callers select the
// current section with SetSection and append with Emit; the typed
// helpers for types, decorations and entry points always write to their
// own section. Finalize concatenates the buffers exactly once.
type ModuleBuilder struct {
	// Header
	version   Version
	generator uint32
	schema    uint32

	sections [sectionCount][]uint32
	current  Section

	// Preamble state, written at Finalize in a canonical order
	capabilities map[Capability]bool
	extensions   map[string]bool
	addressing   AddressingModel
	memory       MemoryModel

	// ID allocation
	nextID uint32

	finalized bool
	err       error // first internal invariant violation
}

// NewModuleBuilder creates a new SPIR-V module builder.
func NewModuleBuilder(version Version) *ModuleBuilder {
	b := &ModuleBuilder{
		version:      version,
		generator:    GeneratorID,
		schema:       0,
		current:      SectionFunctions,
		capabilities: make(map[Capability]bool),
		extensions:   make(map[string]bool),
		addressing:   AddressingModelLogical,
		memory:       MemoryModelGLSL450,
		nextID:       1,
	}
	b.sections[SectionHeader] = []uint32{MagicNumber, versionToWord(version), b.generator, 0, b.schema}
	return b
}

// Version returns the target SPIR-V version.
func (b *ModuleBuilder) Version() Version { return b.version }

// AllocID allocates a new SPIR-V ID.
func (b *ModuleBuilder) AllocID() uint32 {
	id := b.nextID
	b.nextID++
	return id
}

// Bound returns one past the highest allocated id.
func (b *ModuleBuilder) Bound() uint32 { return b.nextID }

// SetSection selects the section Emit appends to and returns the
// previously selected one.
func (b *ModuleBuilder) SetSection(s Section) Section {
	prev := b.current
	b.current = s
	return prev
}

// Emit appends an instruction to the current section.
func (b *ModuleBuilder) Emit(op OpCode, operands ...uint32) {
	b.EmitTo(b.current, op, operands...)
}

// EmitTo appends an instruction to section s regardless of the cursor.
func (b *ModuleBuilder) EmitTo(s Section, op OpCode, operands ...uint32) {
	b.emit(s, Instruction{Opcode: op, Words: operands})
}

func (b *ModuleBuilder) emit(s Section, inst Instruction) {
	if b.finalized {
		b.fail(errorf(ErrInternal, "%s emitted after finalize", inst.Opcode))
		return
	}
	if s == SectionHeader || s == SectionPreamble {
		b.fail(errorf(ErrInternal, "%s written to the %s section, which the builder manages", inst.Opcode, s))
		return
	}
	if want, ok := sectionOf(inst.Opcode, inst.Words); ok && want != s {
		b.fail(errorf(ErrInternal, "%s written to the %s section, belongs in %s", inst.Opcode, s, want))
		return
	}
	words, err := inst.Encode()
	if err != nil {
		b.fail(err)
		return
	}
	b.sections[s] = append(b.sections[s], words...)
}

// fail records the first internal invariant violation. Finalize reports it.
func (b *ModuleBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first invariant violation recorded so far.
func (b *ModuleBuilder) Err() error { return b.err }

// SectionWords returns the number of words written to s so far.
func (b *ModuleBuilder) SectionWords(s Section) int { return len(b.sections[s]) }

// AddCapability declares a capability. Repeated declarations are merged.
func (b *ModuleBuilder) AddCapability(capability Capability) {
	b.capabilities[capability] = true
}

// HasCapability reports whether the capability has been declared.
func (b *ModuleBuilder) HasCapability(capability Capability) bool {
	return b.capabilities[capability]
}

// AddExtension declares an extension. Repeated declarations are merged.
func (b *ModuleBuilder) AddExtension(name string) {
	b.extensions[name] = true
}

// SetMemoryModel sets the memory model.
func (b *ModuleBuilder) SetMemoryModel(addressing AddressingModel, memory MemoryModel) {
	b.addressing = addressing
	b.memory = memory
}

// AddEntryPoint adds an entry point.
func (b *ModuleBuilder) AddEntryPoint(execModel ExecutionModel, funcID uint32, name string, interfaces []uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(uint32(execModel))
	builder.AddWord(funcID)
	builder.AddString(name)
	builder.AddWords(interfaces...)
	b.emit(SectionEntryPoints, builder.Build(OpEntryPoint))
}

// AddExecutionMode adds an execution mode.
func (b *ModuleBuilder) AddExecutionMode(entryPoint uint32, mode ExecutionMode, params ...uint32) {
	builder := NewInstructionBuilder()
	builder.AddWord(entryPoint)
	builder.AddWord(uint32(mode))
	builder.AddWords(params...)
	b.emit(SectionEntryPoints, builder.Build(OpExecutionMode))
}

// AddName adds a debug name.
func (b *ModuleBuilder) AddName(id uint32, name string) {
	builder := NewInstructionBuilder()
	builder.AddWord(id)
	builder.AddString(name)
	b.emit(SectionDebug, builder.Build(OpName))
}

// AddMemberName adds a debug member name.
func (b *ModuleBuilder) AddMemberName(structID, member uint32, name string) {
	builder := NewInstructionBuilder()
	builder.AddWord(structID)
	builder.AddWord(member)
	builder.AddString(name)
	b.emit(SectionDebug, builder.Build(OpMemberName))
}

// AddDecorate adds a decoration.
func (b *ModuleBuilder) AddDecorate(id uint32, decoration Decoration, params ...uint32) {
	b.EmitTo(SectionDecorations, OpDecorate, append([]uint32{id, uint32(decoration)}, params...)...)
}

// AddMemberDecorate adds a member decoration.
func (b *ModuleBuilder) AddMemberDecorate(structID, member uint32, decoration Decoration, params ...uint32) {
	b.EmitTo(SectionDecorations, OpMemberDecorate, append([]uint32{structID, member, uint32(decoration)}, params...)...)
}

// AddTypeVoid adds void type.
func (b *ModuleBuilder) AddTypeVoid() uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypeVoid, id)
	return id
}

// AddTypeBool adds bool type.
func (b *ModuleBuilder) AddTypeBool() uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypeBool, id)
	return id
}

// AddTypeInt adds an integer type.
func (b *ModuleBuilder) AddTypeInt(width uint32, signed bool) uint32 {
	id := b.AllocID()
	signedness := uint32(0)
	if signed {
		signedness = 1
	}
	b.EmitTo(SectionTypes, OpTypeInt, id, width, signedness)
	return id
}

// AddTypeFloat adds a float type.
func (b *ModuleBuilder) AddTypeFloat(width uint32) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypeFloat, id, width)
	return id
}

// AddTypeVector adds a vector type.
func (b *ModuleBuilder) AddTypeVector(componentType uint32, count uint32) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypeVector, id, componentType, count)
	return id
}

// AddTypeRuntimeArray adds a runtime-sized array type.
func (b *ModuleBuilder) AddTypeRuntimeArray(elementType uint32) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypeRuntimeArray, id, elementType)
	return id
}

// AddTypeStruct adds a struct type.
func (b *ModuleBuilder) AddTypeStruct(memberTypes ...uint32) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypeStruct, append([]uint32{id}, memberTypes...)...)
	return id
}

// AddTypePointer adds a pointer type.
func (b *ModuleBuilder) AddTypePointer(storageClass StorageClass, baseType uint32) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypePointer, id, uint32(storageClass), baseType)
	return id
}

// AddTypeFunction adds a function type.
func (b *ModuleBuilder) AddTypeFunction(returnType uint32, paramTypes ...uint32) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpTypeFunction, append([]uint32{id, returnType}, paramTypes...)...)
	return id
}

// AddConstant adds a constant whose value spans the given literal words,
// low-order word first.
func (b *ModuleBuilder) AddConstant(typeID uint32, values ...uint32) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpConstant, append([]uint32{typeID, id}, values...)...)
	return id
}

// AddConstantBool adds OpConstantTrue or OpConstantFalse.
func (b *ModuleBuilder) AddConstantBool(typeID uint32, value bool) uint32 {
	id := b.AllocID()
	op := OpConstantFalse
	if value {
		op = OpConstantTrue
	}
	b.EmitTo(SectionTypes, op, typeID, id)
	return id
}

// AddConstantFloat64 adds a 64-bit float constant.
func (b *ModuleBuilder) AddConstantFloat64(typeID uint32, value float64) uint32 {
	bits := math.Float64bits(value)
	return b.AddConstant(typeID, uint32(bits), uint32(bits>>32))
}

// AddVariable adds a module-scope variable.
func (b *ModuleBuilder) AddVariable(pointerType uint32, storageClass StorageClass) uint32 {
	id := b.AllocID()
	b.EmitTo(SectionTypes, OpVariable, pointerType, id, uint32(storageClass))
	return id
}

// AddLocalVariable adds a function-scope variable to the current section.
func (b *ModuleBuilder) AddLocalVariable(pointerType uint32) uint32 {
	id := b.AllocID()
	b.Emit(OpVariable, pointerType, id, uint32(StorageClassFunction))
	return id
}

// AddFunction begins a function with a freshly allocated id.
func (b *ModuleBuilder) AddFunction(funcType, returnType uint32, control FunctionControl) uint32 {
	id := b.AllocID()
	b.AddFunctionWithID(id, funcType, returnType, control)
	return id
}

// AddFunctionWithID begins a function whose id was allocated earlier.
func (b *ModuleBuilder) AddFunctionWithID(id, funcType, returnType uint32, control FunctionControl) {
	b.Emit(OpFunction, returnType, id, uint32(control), funcType)
}

// AddFunctionParameter adds a function parameter.
func (b *ModuleBuilder) AddFunctionParameter(typeID uint32) uint32 {
	id := b.AllocID()
	b.Emit(OpFunctionParameter, typeID, id)
	return id
}

// AddLabel adds a label with a freshly allocated id.
func (b *ModuleBuilder) AddLabel() uint32 {
	id := b.AllocID()
	b.AddLabelWithID(id)
	return id
}

// AddLabelWithID adds a label whose id was allocated earlier.
func (b *ModuleBuilder) AddLabelWithID(id uint32) {
	b.Emit(OpLabel, id)
}

// AddReturn adds a return instruction.
func (b *ModuleBuilder) AddReturn() {
	b.Emit(OpReturn)
}

// AddReturnValue adds a return with value instruction.
func (b *ModuleBuilder) AddReturnValue(valueID uint32) {
	b.Emit(OpReturnValue, valueID)
}

// AddUnreachable adds OpUnreachable.
func (b *ModuleBuilder) AddUnreachable() {
	b.Emit(OpUnreachable)
}

// AddFunctionEnd ends a function.
func (b *ModuleBuilder) AddFunctionEnd() {
	b.Emit(OpFunctionEnd)
}

// AddBinaryOp adds a binary operation.
func (b *ModuleBuilder) AddBinaryOp(opcode OpCode, resultType, left, right uint32) uint32 {
	id := b.AllocID()
	b.Emit(opcode, resultType, id, left, right)
	return id
}

// AddUnaryOp adds a unary operation.
func (b *ModuleBuilder) AddUnaryOp(opcode OpCode, resultType, operand uint32) uint32 {
	id := b.AllocID()
	b.Emit(opcode, resultType, id, operand)
	return id
}

// AddLoad adds a load instruction.
func (b *ModuleBuilder) AddLoad(resultType, pointer uint32) uint32 {
	id := b.AllocID()
	b.Emit(OpLoad, resultType, id, pointer)
	return id
}

// AddStore adds a store instruction.
func (b *ModuleBuilder) AddStore(pointer, value uint32) {
	b.Emit(OpStore, pointer, value)
}

// AddAccessChain adds an access chain instruction.
func (b *ModuleBuilder) AddAccessChain(resultType, base uint32, indices ...uint32) uint32 {
	id := b.AllocID()
	b.Emit(OpAccessChain, append([]uint32{resultType, id, base}, indices...)...)
	return id
}

// AddPtrAccessChain adds a pointer access chain instruction.
func (b *ModuleBuilder) AddPtrAccessChain(resultType, base, element uint32, indices ...uint32) uint32 {
	id := b.AllocID()
	b.Emit(OpPtrAccessChain, append([]uint32{resultType, id, base, element}, indices...)...)
	return id
}

// AddCompositeExtract adds an OpCompositeExtract.
func (b *ModuleBuilder) AddCompositeExtract(resultType, composite uint32, indices ...uint32) uint32 {
	id := b.AllocID()
	b.Emit(OpCompositeExtract, append([]uint32{resultType, id, composite}, indices...)...)
	return id
}

// AddFunctionCall adds a function call.
func (b *ModuleBuilder) AddFunctionCall(resultType, function uint32, args ...uint32) uint32 {
	id := b.AllocID()
	b.Emit(OpFunctionCall, append([]uint32{resultType, id, function}, args...)...)
	return id
}

// AddSelectionMerge declares the merge block of a selection construct.
func (b *ModuleBuilder) AddSelectionMerge(mergeLabel uint32, control SelectionControl) {
	b.Emit(OpSelectionMerge, mergeLabel, uint32(control))
}

// AddLoopMerge declares the merge and continue blocks of a loop.
func (b *ModuleBuilder) AddLoopMerge(mergeLabel, continueLabel uint32, control LoopControl) {
	b.Emit(OpLoopMerge, mergeLabel, continueLabel, uint32(control))
}

// AddBranch adds an unconditional branch.
func (b *ModuleBuilder) AddBranch(target uint32) {
	b.Emit(OpBranch, target)
}

// AddBranchConditional adds a conditional branch.
func (b *ModuleBuilder) AddBranchConditional(condition, trueLabel, falseLabel uint32) {
	b.Emit(OpBranchConditional, condition, trueLabel, falseLabel)
}

// Finalize writes the preamble, patches the header bound with the next
// unallocated id and returns the module words. The builder cannot be used
// afterwards.
func (b *ModuleBuilder) Finalize() ([]uint32, error) {
	if b.finalized {
		return nil, errorf(ErrInternal, "module finalized twice")
	}
	if b.err != nil {
		return nil, b.err
	}

	b.writePreamble()
	b.finalized = true
	if b.err != nil {
		return nil, b.err
	}

	b.sections[SectionHeader][3] = b.nextID

	total := 0
	for _, words := range b.sections {
		total += len(words)
	}
	out := make([]uint32, 0, total)
	for _, words := range b.sections {
		out = append(out, words...)
	}

	slogger().Debug("spirv: module finalized",
		"bound", b.nextID,
		"words", total,
		"types", len(b.sections[SectionTypes]),
		"functions", len(b.sections[SectionFunctions]))
	return out, nil
}

// writePreamble emits capabilities in ascending order, then extensions in
// lexical order, then the memory model.
func (b *ModuleBuilder) writePreamble() {
	caps := make([]Capability, 0, len(b.capabilities))
	for c := range b.capabilities {
		caps = append(caps, c)
	}
	slices.Sort(caps)
	exts := make([]string, 0, len(b.extensions))
	for e := range b.extensions {
		exts = append(exts, e)
	}
	slices.Sort(exts)

	var pre []uint32
	appendInst := func(inst Instruction) {
		words, err := inst.Encode()
		if err != nil {
			b.fail(err)
			return
		}
		pre = append(pre, words...)
	}
	for _, c := range caps {
		appendInst(Instruction{Opcode: OpCapability, Words: []uint32{uint32(c)}})
	}
	for _, e := range exts {
		appendInst(Instruction{Opcode: OpExtension, Words: encodeString(e)})
	}
	appendInst(Instruction{Opcode: OpMemoryModel, Words: []uint32{uint32(b.addressing), uint32(b.memory)}})
	b.sections[SectionPreamble] = pre
}

// Build finalizes the module and returns it as little-endian bytes.
func (b *ModuleBuilder) Build() ([]byte, error) {
	words, err := b.Finalize()
	if err != nil {
		return nil, err
	}
	return WordsToBytes(words), nil
}

// WordsToBytes serializes words in little-endian order.
func WordsToBytes(words []uint32) []byte {
	buffer := make([]byte, len(words)*4)
	for i, word := range words {
		binary.LittleEndian.PutUint32(buffer[i*4:], word)
	}
	return buffer
}

// BytesToWords reads little-endian words. The length must be a multiple
// of four.
func BytesToWords(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V binary length %d is not a multiple of 4", len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}

// versionToWord converts Version to SPIR-V word format.
func versionToWord(v Version) uint32 {
	return (uint32(v.Major) << 16) | (uint32(v.Minor) << 8)
}
