package spirv

import "strconv"

// operandKind describes how the words after the result id are read.
type operandKind uint8

const (
	operandID       operandKind = iota // one id
	operandLiteral                     // one literal word
	operandString                      // nul-terminated string, word padded
	operandIDs                         // every remaining word is an id
	operandLiterals                    // every remaining word is a literal
)

// opInfo is the shape of one opcode as the generator emits it.
type opInfo struct {
	name       string
	section    Section
	resultType bool
	result     bool
	operands   []operandKind
}

var (
	noOperands = []operandKind{}
	oneID      = []operandKind{operandID}
	twoIDs     = []operandKind{operandID, operandID}
)

func typeOp(name string, operands ...operandKind) opInfo {
	return opInfo{name: name, section: SectionTypes, result: true, operands: operands}
}

func valueOp(name string, operands []operandKind) opInfo {
	return opInfo{name: name, section: SectionFunctions, resultType: true, result: true, operands: operands}
}

func bodyOp(name string, operands ...operandKind) opInfo {
	return opInfo{name: name, section: SectionFunctions, operands: operands}
}

// opTable lists every opcode the generator can produce. The verifier and
// the disassembler read binaries through it, and the builder uses the
// section column to reject misplaced instructions.
var opTable = map[OpCode]opInfo{
	OpCapability:    {name: "OpCapability", section: SectionPreamble, operands: []operandKind{operandLiteral}},
	OpExtension:     {name: "OpExtension", section: SectionPreamble, operands: []operandKind{operandString}},
	OpMemoryModel:   {name: "OpMemoryModel", section: SectionPreamble, operands: []operandKind{operandLiteral, operandLiteral}},
	OpEntryPoint:    {name: "OpEntryPoint", section: SectionEntryPoints, operands: []operandKind{operandLiteral, operandID, operandString, operandIDs}},
	OpExecutionMode: {name: "OpExecutionMode", section: SectionEntryPoints, operands: []operandKind{operandID, operandLiteral, operandLiterals}},

	OpName:       {name: "OpName", section: SectionDebug, operands: []operandKind{operandID, operandString}},
	OpMemberName: {name: "OpMemberName", section: SectionDebug, operands: []operandKind{operandID, operandLiteral, operandString}},

	OpDecorate:       {name: "OpDecorate", section: SectionDecorations, operands: []operandKind{operandID, operandLiteral, operandLiterals}},
	OpMemberDecorate: {name: "OpMemberDecorate", section: SectionDecorations, operands: []operandKind{operandID, operandLiteral, operandLiteral, operandLiterals}},

	OpTypeVoid:         typeOp("OpTypeVoid"),
	OpTypeBool:         typeOp("OpTypeBool"),
	OpTypeInt:          typeOp("OpTypeInt", operandLiteral, operandLiteral),
	OpTypeFloat:        typeOp("OpTypeFloat", operandLiteral),
	OpTypeVector:       typeOp("OpTypeVector", operandID, operandLiteral),
	OpTypeRuntimeArray: typeOp("OpTypeRuntimeArray", operandID),
	OpTypeStruct:       typeOp("OpTypeStruct", operandIDs),
	OpTypePointer:      typeOp("OpTypePointer", operandLiteral, operandID),
	OpTypeFunction:     typeOp("OpTypeFunction", operandID, operandIDs),
	OpConstantTrue:     {name: "OpConstantTrue", section: SectionTypes, resultType: true, result: true, operands: noOperands},
	OpConstantFalse:    {name: "OpConstantFalse", section: SectionTypes, resultType: true, result: true, operands: noOperands},
	OpConstant:         {name: "OpConstant", section: SectionTypes, resultType: true, result: true, operands: []operandKind{operandLiterals}},

	// OpVariable lives in Types for globals and Functions for locals; the
	// storage class operand decides.
	OpVariable: {name: "OpVariable", section: SectionTypes, resultType: true, result: true, operands: []operandKind{operandLiteral, operandIDs}},

	OpFunction:          {name: "OpFunction", section: SectionFunctions, resultType: true, result: true, operands: []operandKind{operandLiteral, operandID}},
	OpFunctionParameter: valueOp("OpFunctionParameter", noOperands),
	OpFunctionEnd:       bodyOp("OpFunctionEnd"),
	OpFunctionCall:      valueOp("OpFunctionCall", []operandKind{operandID, operandIDs}),
	OpLoad:              valueOp("OpLoad", []operandKind{operandID, operandLiterals}),
	OpStore:             bodyOp("OpStore", operandID, operandID, operandLiterals),
	OpAccessChain:       valueOp("OpAccessChain", []operandKind{operandID, operandIDs}),
	OpPtrAccessChain:    valueOp("OpPtrAccessChain", []operandKind{operandID, operandID, operandIDs}),
	OpCompositeExtract:  valueOp("OpCompositeExtract", []operandKind{operandID, operandLiterals}),

	OpConvertFToU: valueOp("OpConvertFToU", oneID),
	OpConvertFToS: valueOp("OpConvertFToS", oneID),
	OpConvertSToF: valueOp("OpConvertSToF", oneID),
	OpConvertUToF: valueOp("OpConvertUToF", oneID),
	OpUConvert:    valueOp("OpUConvert", oneID),
	OpSConvert:    valueOp("OpSConvert", oneID),
	OpFConvert:    valueOp("OpFConvert", oneID),
	OpBitcast:     valueOp("OpBitcast", oneID),
	OpSNegate:     valueOp("OpSNegate", oneID),
	OpFNegate:     valueOp("OpFNegate", oneID),

	OpIAdd: valueOp("OpIAdd", twoIDs),
	OpFAdd: valueOp("OpFAdd", twoIDs),
	OpISub: valueOp("OpISub", twoIDs),
	OpFSub: valueOp("OpFSub", twoIDs),
	OpIMul: valueOp("OpIMul", twoIDs),
	OpFMul: valueOp("OpFMul", twoIDs),
	OpUDiv: valueOp("OpUDiv", twoIDs),
	OpSDiv: valueOp("OpSDiv", twoIDs),
	OpFDiv: valueOp("OpFDiv", twoIDs),
	OpUMod: valueOp("OpUMod", twoIDs),
	OpSRem: valueOp("OpSRem", twoIDs),
	OpSMod: valueOp("OpSMod", twoIDs),
	OpFRem: valueOp("OpFRem", twoIDs),
	OpFMod: valueOp("OpFMod", twoIDs),

	OpIEqual:               valueOp("OpIEqual", twoIDs),
	OpINotEqual:            valueOp("OpINotEqual", twoIDs),
	OpUGreaterThan:         valueOp("OpUGreaterThan", twoIDs),
	OpSGreaterThan:         valueOp("OpSGreaterThan", twoIDs),
	OpUGreaterThanEqual:    valueOp("OpUGreaterThanEqual", twoIDs),
	OpSGreaterThanEqual:    valueOp("OpSGreaterThanEqual", twoIDs),
	OpULessThan:            valueOp("OpULessThan", twoIDs),
	OpSLessThan:            valueOp("OpSLessThan", twoIDs),
	OpULessThanEqual:       valueOp("OpULessThanEqual", twoIDs),
	OpSLessThanEqual:       valueOp("OpSLessThanEqual", twoIDs),
	OpFOrdEqual:            valueOp("OpFOrdEqual", twoIDs),
	OpFOrdNotEqual:         valueOp("OpFOrdNotEqual", twoIDs),
	OpFOrdLessThan:         valueOp("OpFOrdLessThan", twoIDs),
	OpFOrdGreaterThan:      valueOp("OpFOrdGreaterThan", twoIDs),
	OpFOrdLessThanEqual:    valueOp("OpFOrdLessThanEqual", twoIDs),
	OpFOrdGreaterThanEqual: valueOp("OpFOrdGreaterThanEqual", twoIDs),

	OpLoopMerge:         bodyOp("OpLoopMerge", operandID, operandID, operandLiteral),
	OpSelectionMerge:    bodyOp("OpSelectionMerge", operandID, operandLiteral),
	OpLabel:             {name: "OpLabel", section: SectionFunctions, result: true, operands: noOperands},
	OpBranch:            bodyOp("OpBranch", operandID),
	OpBranchConditional: bodyOp("OpBranchConditional", operandID, operandID, operandID, operandLiterals),
	OpReturn:            bodyOp("OpReturn"),
	OpReturnValue:       bodyOp("OpReturnValue", operandID),
	OpUnreachable:       bodyOp("OpUnreachable"),
}

// String returns the SPIR-V name of the opcode.
func (op OpCode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return "Op" + strconv.Itoa(int(op))
}

// sectionOf returns the section an instruction belongs in. words are the
// operand words following the opcode word.
func sectionOf(op OpCode, words []uint32) (Section, bool) {
	info, ok := opTable[op]
	if !ok {
		return 0, false
	}
	// OpVariable: result type, result id, storage class.
	if op == OpVariable && len(words) >= 3 && StorageClass(words[2]) == StorageClassFunction {
		return SectionFunctions, true
	}
	return info.section, true
}
