package spirv

import (
	"fmt"
	"strings"
)

var capabilityNames = map[uint32]string{
	1: "Shader", 9: "Float16", 10: "Float64", 11: "Int64", 22: "Int16", 39: "Int8",
	4433: "StorageBuffer16BitAccess", 4441: "VariablePointersStorageBuffer",
	4442: "VariablePointers", 4448: "StorageBuffer8BitAccess",
}

var storageClassNames = map[uint32]string{
	0: "UniformConstant", 1: "Input", 2: "Uniform", 3: "Output",
	4: "Workgroup", 6: "Private", 7: "Function", 9: "PushConstant",
	12: "StorageBuffer",
}

var decorationNames = map[uint32]string{
	2: "Block", 6: "ArrayStride", 11: "BuiltIn", 24: "NonWritable",
	33: "Binding", 34: "DescriptorSet", 35: "Offset",
}

var builtinNames = map[uint32]string{
	24: "NumWorkgroups", 26: "WorkgroupId", 27: "LocalInvocationId",
	28: "GlobalInvocationId", 29: "LocalInvocationIndex",
}

var executionModelNames = map[uint32]string{
	0: "Vertex", 4: "Fragment", 5: "GLCompute", 6: "Kernel",
}

var executionModeNames = map[uint32]string{17: "LocalSize", 18: "LocalSizeHint"}

var addressingModelNames = map[uint32]string{0: "Logical", 1: "Physical32", 2: "Physical64"}

var memoryModelNames = map[uint32]string{0: "Simple", 1: "GLSL450", 2: "OpenCL", 3: "Vulkan"}

func lookup(m map[uint32]string, v uint32) string {
	if s, ok := m[v]; ok {
		return s
	}
	return fmt.Sprintf("%d", v)
}

// controlName renders a function, selection or loop control mask.
func controlName(v uint32) string {
	if v == 0 {
		return "None"
	}
	return fmt.Sprintf("0x%x", v)
}

// Disassemble renders words as SPIR-V assembly text, one instruction per
// line, with ids written %N.
func Disassemble(words []uint32) (string, error) {
	h, insts, err := decodeModule(words)
	var sb strings.Builder
	if h.Magic == MagicNumber {
		fmt.Fprintf(&sb, "; SPIR-V\n")
		fmt.Fprintf(&sb, "; Version: %d.%d\n", h.Version.Major, h.Version.Minor)
		fmt.Fprintf(&sb, "; Generator: 0x%08X\n", h.Generator)
		fmt.Fprintf(&sb, "; Bound: %d\n", h.Bound)
		fmt.Fprintf(&sb, "; Schema: %d\n", h.Schema)
	}
	for _, d := range insts {
		sb.WriteString(formatInstruction(d))
		sb.WriteByte('\n')
	}
	return sb.String(), err
}

// DisassembleBytes is Disassemble for a little-endian binary.
func DisassembleBytes(data []byte) (string, error) {
	words, err := BytesToWords(data)
	if err != nil {
		return "", err
	}
	return Disassemble(words)
}

func id(n uint32) string {
	return fmt.Sprintf("%%%d", n)
}

func formatInstruction(d decoded) string {
	parts := []string{d.info.name}
	if d.info.resultType {
		parts = append(parts, id(d.resultType))
	}
	for i, o := range d.operands {
		parts = append(parts, formatOperand(d, i, o))
	}
	text := strings.Join(parts, " ")
	if d.info.result {
		return fmt.Sprintf("%12s = %s", id(d.result), text)
	}
	return strings.Repeat(" ", 15) + text
}

// formatOperand renders operand i of d, naming enumerants where the
// position has one.
func formatOperand(d decoded, i int, o operand) string {
	switch o.kind {
	case operandID:
		return id(o.value)
	case operandString:
		return fmt.Sprintf("%q", o.text)
	}

	v := o.value
	switch d.op {
	case OpCapability:
		return lookup(capabilityNames, v)
	case OpMemoryModel:
		if i == 0 {
			return lookup(addressingModelNames, v)
		}
		return lookup(memoryModelNames, v)
	case OpEntryPoint:
		if i == 0 {
			return lookup(executionModelNames, v)
		}
	case OpExecutionMode:
		if i == 1 {
			return lookup(executionModeNames, v)
		}
	case OpTypePointer, OpVariable:
		if i == 0 {
			return lookup(storageClassNames, v)
		}
	case OpDecorate:
		switch {
		case i == 1:
			return lookup(decorationNames, v)
		case i == 2 && Decoration(d.operands[1].value) == DecorationBuiltIn:
			return lookup(builtinNames, v)
		}
	case OpMemberDecorate:
		if i == 2 {
			return lookup(decorationNames, v)
		}
	case OpFunction:
		return controlName(v)
	case OpSelectionMerge, OpLoopMerge:
		return controlName(v)
	}
	return fmt.Sprintf("%d", v)
}
