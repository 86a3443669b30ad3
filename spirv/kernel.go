package spirv

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/parallax/ir"
)

// KernelABI describes how a loader binds and dispatches a generated
// kernel.
type KernelABI struct {
	// EntryPoint is the OpEntryPoint name.
	EntryPoint string

	// WorkgroupSize is the LocalSize execution mode.
	WorkgroupSize [3]uint32

	// ElementType is the IR type of one buffer element as declared.
	ElementType string

	// ElementStride is the byte distance between buffer elements.
	ElementStride uint32

	// DataGroup is the descriptor set of the element buffer and
	// DataLayout its binding within that set.
	DataGroup  uint32
	DataLayout gputypes.BindGroupLayoutEntry

	// PushConstantSize is the size of the config block; the element count
	// is a u32 at CountOffset.
	PushConstantSize uint32
	CountOffset      uint32

	// BufferUsage is the usage the element buffer must be created with.
	BufferUsage gputypes.BufferUsage
}

// DispatchSize returns the workgroup counts that cover count elements.
func (a KernelABI) DispatchSize(count uint32) [3]uint32 {
	x := a.WorkgroupSize[0]
	if x == 0 {
		x = WorkgroupSizeX
	}
	return [3]uint32{(count + x - 1) / x, 1, 1}
}

// BufferSize returns the byte size of a buffer holding count elements.
func (a KernelABI) BufferSize(count uint32) uint64 {
	return uint64(count) * uint64(a.ElementStride)
}

// kernelAssembler emits the entry point that runs the per-element
// function once per invocation. Kernel globals are declared before the
// function bodies; the entry function is emitted after them.
type kernelAssembler struct {
	b     *ModuleBuilder
	types *Interner
	opts  Options

	fn     *ir.Function
	elem   ir.Type
	stride uint32

	// Declared ids. uint is the interned 32-bit integer type; integer
	// types are signless, so the invocation id and count read it as
	// unsigned while the IR's signed i32 shares the same id.
	void, uint, boolean  uint32
	elemPtr, uintPushPtr uint32
	vec3u, zero          uint32
	dataVar, configVar   uint32
	invocationVar        uint32
	entryType            uint32
}

func newKernelAssembler(b *ModuleBuilder, types *Interner, opts Options) *kernelAssembler {
	return &kernelAssembler{b: b, types: types, opts: opts}
}

// elementType checks the per-element function signature and returns the
// buffer element type.
func elementType(fn *ir.Function) (ir.Type, error) {
	fail := func(format string, args ...any) (ir.Type, error) {
		e := errorf(ErrStructural, format, args...)
		if fn != nil {
			e.Function = fn.Name
		}
		return nil, e
	}
	if fn == nil {
		return fail("module has no kernel function")
	}
	if len(fn.Params) != 1 {
		return fail("kernel function takes %d parameters, want 1", len(fn.Params))
	}
	ptr, ok := fn.Params[0].Typ.(ir.PointerType)
	if !ok {
		return fail("kernel parameter has non-pointer type %s", fn.Params[0].Typ)
	}
	if ptr.Space != ir.SpaceBuffer {
		return fail("kernel parameter points into %s, want buffer", ptr.Space)
	}
	if fn.ResultType() != ir.Void {
		return fail("kernel function returns %s, want void", fn.ResultType())
	}
	switch ptr.Elem.(type) {
	case ir.IntType, ir.FloatType:
		return ptr.Elem, nil
	}
	return fail("buffer element type %s has no storage layout", ptr.Elem)
}

// declare interns the kernel types and globals for fn.
func (k *kernelAssembler) declare(fn *ir.Function) error {
	elem, err := elementType(fn)
	if err != nil {
		return err
	}
	k.fn = fn
	k.elem = k.types.Normalize(elem)

	b, types := k.b, k.types
	b.AddCapability(CapabilityShader)
	b.AddCapability(CapabilityVariablePointersStorageBuffer)
	if !b.Version().AtLeast(Version1_3) {
		b.AddExtension(ExtStorageBufferStorageClass)
		b.AddExtension(ExtVariablePointers)
	}
	switch t := k.elem.(type) {
	case ir.IntType:
		k.narrowStorage(t.Width)
	case ir.FloatType:
		k.narrowStorage(t.Width)
	}

	if k.stride, err = types.ByteSize(k.elem); err != nil {
		return err
	}
	elemID, err := types.TypeID(k.elem)
	if err != nil {
		return err
	}
	if k.void, err = types.TypeID(ir.Void); err != nil {
		return err
	}
	if k.boolean, err = types.TypeID(ir.Bool); err != nil {
		return err
	}
	if k.uint, err = types.TypeID(ir.I32); err != nil {
		return err
	}
	if k.elemPtr, err = types.TypeID(ir.Ptr(k.elem, ir.SpaceBuffer)); err != nil {
		return err
	}
	if k.zero, err = types.ConstantID(ir.U32Const(0)); err != nil {
		return err
	}

	// 1. Data buffer: struct { elem data[]; }
	array := types.RuntimeArrayID(elemID, k.stride)
	dataStruct := types.StructID(array)
	b.AddDecorate(dataStruct, DecorationBlock)
	b.AddMemberDecorate(dataStruct, 0, DecorationOffset, 0)
	k.dataVar = b.AddVariable(types.PointerID(StorageClassStorageBuffer, dataStruct), StorageClassStorageBuffer)
	b.AddDecorate(k.dataVar, DecorationDescriptorSet, DataDescriptorSet)
	b.AddDecorate(k.dataVar, DecorationBinding, DataBinding)

	// 2. Config block: struct { u32 count; }
	configStruct := types.StructID(k.uint)
	b.AddDecorate(configStruct, DecorationBlock)
	b.AddMemberDecorate(configStruct, 0, DecorationOffset, CountOffset)
	k.configVar = b.AddVariable(types.PointerID(StorageClassPushConstant, configStruct), StorageClassPushConstant)
	k.uintPushPtr = types.PointerID(StorageClassPushConstant, k.uint)

	// 3. Invocation id
	k.vec3u = types.VectorID(k.uint, 3)
	k.invocationVar = b.AddVariable(types.PointerID(StorageClassInput, k.vec3u), StorageClassInput)
	b.AddDecorate(k.invocationVar, DecorationBuiltIn, uint32(BuiltInGlobalInvocationID))

	k.entryType = types.FunctionTypeID(k.void)

	if k.opts.Debug {
		b.AddName(dataStruct, "Data")
		b.AddMemberName(dataStruct, 0, "data")
		b.AddName(k.dataVar, "data")
		b.AddName(configStruct, "Config")
		b.AddMemberName(configStruct, 0, "count")
		b.AddName(k.configVar, "config")
		b.AddName(k.invocationVar, "global_invocation_id")
	}
	return nil
}

// narrowStorage declares what 8 and 16-bit buffer elements need.
func (k *kernelAssembler) narrowStorage(width uint32) {
	switch width {
	case 8:
		k.b.AddCapability(CapabilityStorageBuffer8BitAccess)
		if !k.b.Version().AtLeast(Version1_5) {
			k.b.AddExtension(Ext8BitStorage)
		}
	case 16:
		k.b.AddCapability(CapabilityStorageBuffer16BitAccess)
		if !k.b.Version().AtLeast(Version1_3) {
			k.b.AddExtension(Ext16BitStorage)
		}
	}
}

// emitEntry writes the bounds-checked entry function that calls fnID and
// the OpEntryPoint and OpExecutionMode that name it.
func (k *kernelAssembler) emitEntry(fnID uint32) (KernelABI, error) {
	if k.fn == nil {
		return KernelABI{}, errorf(ErrInternal, "entry point assembled before kernel types")
	}
	b := k.b
	prev := b.SetSection(SectionFunctions)
	defer b.SetSection(prev)

	entryID := b.AddFunction(k.entryType, k.void, FunctionControlNone)
	b.AddLabel()

	// thread_id = gl_GlobalInvocationID.x
	invocation := b.AddLoad(k.vec3u, k.invocationVar)
	threadID := b.AddCompositeExtract(k.uint, invocation, 0)

	// if thread_id < config.count
	countPtr := b.AddAccessChain(k.uintPushPtr, k.configVar, k.zero)
	count := b.AddLoad(k.uint, countPtr)
	inRange := b.AddBinaryOp(OpULessThan, k.boolean, threadID, count)

	bodyLabel := b.AllocID()
	mergeLabel := b.AllocID()
	b.AddSelectionMerge(mergeLabel, SelectionControlNone)
	b.AddBranchConditional(inRange, bodyLabel, mergeLabel)

	// f(&data[thread_id])
	b.AddLabelWithID(bodyLabel)
	element := b.AddAccessChain(k.elemPtr, k.dataVar, k.zero, threadID)
	b.AddFunctionCall(k.void, fnID, element)
	b.AddBranch(mergeLabel)

	b.AddLabelWithID(mergeLabel)
	b.AddReturn()
	b.AddFunctionEnd()

	name := k.opts.EntryPoint
	if name == "" {
		name = DefaultEntryPoint
	}
	interfaces := []uint32{k.invocationVar}
	if b.Version().AtLeast(Version1_4) {
		// From 1.4 every global the entry point references is listed.
		interfaces = []uint32{k.dataVar, k.configVar, k.invocationVar}
	}
	b.AddEntryPoint(ExecutionModelGLCompute, entryID, name, interfaces)
	b.AddExecutionMode(entryID, ExecutionModeLocalSize, WorkgroupSizeX, 1, 1)
	if k.opts.Debug {
		b.AddName(entryID, name)
	}

	return KernelABI{
		EntryPoint:    name,
		WorkgroupSize: [3]uint32{WorkgroupSizeX, 1, 1},
		ElementType:   k.elem.String(),
		ElementStride: k.stride,
		DataGroup:     DataDescriptorSet,
		DataLayout: gputypes.BindGroupLayoutEntry{
			Binding:    DataBinding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		},
		PushConstantSize: PushConstantSize,
		CountOffset:      CountOffset,
		BufferUsage:      gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	}, nil
}
