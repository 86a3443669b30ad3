// Package spirv generates SPIR-V compute kernels from parallax IR.
//
// SPIR-V is the standard intermediate language for GPU shaders,
// used by Vulkan, OpenCL, and other APIs.
package spirv

import "fmt"

// Version represents a SPIR-V version.
type Version struct {
	Major uint8
	Minor uint8
}

// Common SPIR-V versions
var (
	Version1_0 = Version{1, 0}
	Version1_3 = Version{1, 3}
	Version1_4 = Version{1, 4}
	Version1_5 = Version{1, 5}
	Version1_6 = Version{1, 6}
)

// AtLeast reports whether v is the same as or newer than other.
func (v Version) AtLeast(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor >= other.Minor
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// ParseVersion parses "1.3" style version strings. Only versions 1.0
// through 1.6 are accepted.
func ParseVersion(s string) (Version, error) {
	var v Version
	if _, err := fmt.Sscanf(s, "%d.%d", &v.Major, &v.Minor); err != nil {
		return Version{}, fmt.Errorf("invalid SPIR-V version %q", s)
	}
	if v.String() != s || v.Major != 1 || v.Minor > 6 {
		return Version{}, fmt.Errorf("unsupported SPIR-V version %q", s)
	}
	return v, nil
}

// Word returns the header encoding of the version.
func (v Version) Word() uint32 {
	return versionToWord(v)
}

// Options configures SPIR-V generation.
type Options struct {
	// Version is the SPIR-V version to target
	Version Version

	// Capabilities are additional capabilities to declare
	Capabilities []Capability

	// Debug emits OpName for functions, blocks and kernel globals
	Debug bool

	// Validation re-reads the finished binary and checks its invariants
	Validation bool

	// EntryPoint is the name of the synthesized kernel (default "main")
	EntryPoint string

	// FailOnUnsupported turns fallback representations into errors
	FailOnUnsupported bool
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Version:    Version1_3,
		Debug:      false,
		Validation: true,
		EntryPoint: DefaultEntryPoint,
	}
}

// Kernel ABI constants. Loaders depend on these values.
const (
	DefaultEntryPoint = "main"

	// WorkgroupSizeX is the local size of every kernel; Y and Z are 1.
	WorkgroupSizeX uint32 = 256

	// DataDescriptorSet and DataBinding locate the element buffer.
	DataDescriptorSet uint32 = 0
	DataBinding       uint32 = 0

	// CountOffset is the byte offset of count in the push constant block.
	CountOffset uint32 = 0

	// PushConstantSize is the size in bytes of the push constant block.
	PushConstantSize uint32 = 4
)

// SPIR-V magic number and constants
const (
	MagicNumber = 0x07230203
	GeneratorID = 0x000d000b
	HeaderWords = 5
)

// Capability represents a SPIR-V capability.
type Capability uint32

// Capabilities used by generated kernels
const (
	CapabilityShader                        Capability = 1
	CapabilityFloat16                       Capability = 9
	CapabilityFloat64                       Capability = 10
	CapabilityInt64                         Capability = 11
	CapabilityInt16                         Capability = 22
	CapabilityInt8                          Capability = 39
	CapabilityStorageBuffer16BitAccess      Capability = 4433
	CapabilityVariablePointersStorageBuffer Capability = 4441
	CapabilityVariablePointers              Capability = 4442
	CapabilityStorageBuffer8BitAccess       Capability = 4448
)

// Extensions needed by older targets or narrow element types.
const (
	ExtStorageBufferStorageClass = "SPV_KHR_storage_buffer_storage_class"
	ExtVariablePointers          = "SPV_KHR_variable_pointers"
	Ext16BitStorage              = "SPV_KHR_16bit_storage"
	Ext8BitStorage               = "SPV_KHR_8bit_storage"
)

// AddressingModel represents a SPIR-V addressing model.
type AddressingModel uint32

const (
	AddressingModelLogical AddressingModel = 0
)

// MemoryModel represents a SPIR-V memory model.
type MemoryModel uint32

const (
	MemoryModelSimple  MemoryModel = 0
	MemoryModelGLSL450 MemoryModel = 1
)

// ExecutionModel represents a SPIR-V execution model.
type ExecutionModel uint32

const (
	ExecutionModelGLCompute ExecutionModel = 5
)

// ExecutionMode represents a SPIR-V execution mode.
type ExecutionMode uint32

const (
	ExecutionModeLocalSize ExecutionMode = 17
)

// StorageClass represents a SPIR-V storage class.
type StorageClass uint32

const (
	StorageClassUniformConstant StorageClass = 0
	StorageClassInput           StorageClass = 1
	StorageClassUniform         StorageClass = 2
	StorageClassOutput          StorageClass = 3
	StorageClassWorkgroup       StorageClass = 4
	StorageClassPrivate         StorageClass = 6
	StorageClassFunction        StorageClass = 7
	StorageClassPushConstant    StorageClass = 9
	StorageClassStorageBuffer   StorageClass = 12
)

// Decoration represents a SPIR-V decoration.
type Decoration uint32

// Common decorations
const (
	DecorationBlock         Decoration = 2
	DecorationArrayStride   Decoration = 6
	DecorationBuiltIn       Decoration = 11
	DecorationNonWritable   Decoration = 24
	DecorationBinding       Decoration = 33
	DecorationDescriptorSet Decoration = 34
	DecorationOffset        Decoration = 35
)

// BuiltIn represents a SPIR-V builtin variable.
type BuiltIn uint32

const (
	BuiltInGlobalInvocationID BuiltIn = 28
)

// SelectionControl, LoopControl and FunctionControl masks. Only None is
// ever emitted.
type (
	SelectionControl uint32
	LoopControl      uint32
	FunctionControl  uint32
)

const (
	SelectionControlNone SelectionControl = 0
	LoopControlNone      LoopControl      = 0
	FunctionControlNone  FunctionControl  = 0
)

// OpCode represents a SPIR-V opcode.
type OpCode uint16

// Opcodes emitted by the generator
const (
	OpNop                  OpCode = 0
	OpName                 OpCode = 5
	OpMemberName           OpCode = 6
	OpExtension            OpCode = 10
	OpMemoryModel          OpCode = 14
	OpEntryPoint           OpCode = 15
	OpExecutionMode        OpCode = 16
	OpCapability           OpCode = 17
	OpTypeVoid             OpCode = 19
	OpTypeBool             OpCode = 20
	OpTypeInt              OpCode = 21
	OpTypeFloat            OpCode = 22
	OpTypeVector           OpCode = 23
	OpTypeRuntimeArray     OpCode = 29
	OpTypeStruct           OpCode = 30
	OpTypePointer          OpCode = 32
	OpTypeFunction         OpCode = 33
	OpConstantTrue         OpCode = 41
	OpConstantFalse        OpCode = 42
	OpConstant             OpCode = 43
	OpFunction             OpCode = 54
	OpFunctionParameter    OpCode = 55
	OpFunctionEnd          OpCode = 56
	OpFunctionCall         OpCode = 57
	OpVariable             OpCode = 59
	OpLoad                 OpCode = 61
	OpStore                OpCode = 62
	OpAccessChain          OpCode = 65
	OpPtrAccessChain       OpCode = 67
	OpDecorate             OpCode = 71
	OpMemberDecorate       OpCode = 72
	OpCompositeExtract     OpCode = 81
	OpConvertFToU          OpCode = 109
	OpConvertFToS          OpCode = 110
	OpConvertSToF          OpCode = 111
	OpConvertUToF          OpCode = 112
	OpUConvert             OpCode = 113
	OpSConvert             OpCode = 114
	OpFConvert             OpCode = 115
	OpBitcast              OpCode = 124
	OpSNegate              OpCode = 126
	OpFNegate              OpCode = 127
	OpIAdd                 OpCode = 128
	OpFAdd                 OpCode = 129
	OpISub                 OpCode = 130
	OpFSub                 OpCode = 131
	OpIMul                 OpCode = 132
	OpFMul                 OpCode = 133
	OpUDiv                 OpCode = 134
	OpSDiv                 OpCode = 135
	OpFDiv                 OpCode = 136
	OpUMod                 OpCode = 137
	OpSRem                 OpCode = 138
	OpSMod                 OpCode = 139
	OpFRem                 OpCode = 140
	OpFMod                 OpCode = 141
	OpIEqual               OpCode = 170
	OpINotEqual            OpCode = 171
	OpUGreaterThan         OpCode = 172
	OpSGreaterThan         OpCode = 173
	OpUGreaterThanEqual    OpCode = 174
	OpSGreaterThanEqual    OpCode = 175
	OpULessThan            OpCode = 176
	OpSLessThan            OpCode = 177
	OpULessThanEqual       OpCode = 178
	OpSLessThanEqual       OpCode = 179
	OpFOrdEqual            OpCode = 180
	OpFOrdNotEqual         OpCode = 182
	OpFOrdLessThan         OpCode = 184
	OpFOrdGreaterThan      OpCode = 186
	OpFOrdLessThanEqual    OpCode = 188
	OpFOrdGreaterThanEqual OpCode = 190
	OpLoopMerge            OpCode = 246
	OpSelectionMerge       OpCode = 247
	OpLabel                OpCode = 248
	OpBranch               OpCode = 249
	OpBranchConditional    OpCode = 250
	OpReturn               OpCode = 253
	OpReturnValue          OpCode = 254
	OpUnreachable          OpCode = 255
)
