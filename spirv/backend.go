package spirv

import (
	"github.com/gogpu/parallax/ir"
)

// stage is a step of a Backend's single compilation.
type stage uint8

const (
	stageStart stage = iota
	stageTypesInterned
	stageFunctionTranslated
	stageEntryPointAssembled
	stageFinalized
)

var stageNames = [...]string{
	stageStart:               "start",
	stageTypesInterned:       "types-interned",
	stageFunctionTranslated:  "function-translated",
	stageEntryPointAssembled: "entry-point-assembled",
	stageFinalized:           "finalized",
}

func (s stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "stage(?)"
}

// Result is a generated kernel.
type Result struct {
	// Binary is the module as little-endian bytes.
	Binary []byte

	// Words is the module as SPIR-V words.
	Words []uint32

	// ABI describes how to bind and dispatch the kernel.
	ABI KernelABI

	// Unsupported lists the constructs that were emitted through a
	// fallback representation.
	Unsupported []*Error
}

// Backend translates one IR module to a SPIR-V compute kernel.
// A Backend is single-use.
type Backend struct {
	options Options
	stage   stage

	builder    *ModuleBuilder
	types      *Interner
	translator *Translator
	kernel     *kernelAssembler
}

// NewBackend creates a new SPIR-V backend.
func NewBackend(options Options) *Backend {
	return &Backend{options: options}
}

// advance moves to the next stage. Skipped or repeated stages are
// generator defects.
func (b *Backend) advance(to stage) error {
	if to != b.stage+1 {
		return errorf(ErrInternal, "stage %s cannot follow %s", to, b.stage)
	}
	b.stage = to
	return nil
}

// Compile translates an IR module to a SPIR-V kernel.
func (b *Backend) Compile(module *ir.Module) (*Result, error) {
	if b.stage != stageStart || b.builder != nil {
		return nil, errorf(ErrInternal, "backend already used")
	}
	if module == nil || len(module.Functions) == 0 {
		return nil, errorf(ErrStructural, "module has no functions")
	}

	b.builder = NewModuleBuilder(b.options.Version)
	b.types = NewInterner(b.builder)
	b.translator = NewTranslator(b.builder, b.types, b.options.Debug)
	b.kernel = newKernelAssembler(b.builder, b.types, b.options)

	b.builder.SetMemoryModel(AddressingModelLogical, MemoryModelGLSL450)
	for _, c := range b.options.Capabilities {
		b.builder.AddCapability(c)
	}

	// 1. Kernel buffers, config block and invocation id
	kernelFn := module.Kernel()
	if err := b.kernel.declare(kernelFn); err != nil {
		return nil, err
	}
	if err := b.advance(stageTypesInterned); err != nil {
		return nil, err
	}

	// 2. Function bodies; ids first so calls may point forward
	b.translator.DeclareFunctions(module)
	seen := make(map[*ir.Function]bool, len(module.Functions))
	for _, fn := range module.Functions {
		if fn == nil {
			return nil, errorf(ErrStructural, "nil function in module")
		}
		if seen[fn] {
			return nil, &Error{Kind: ErrStructural, Message: "function listed twice", Function: fn.Name}
		}
		seen[fn] = true
		if _, err := b.translator.TranslateFunction(fn); err != nil {
			return nil, err
		}
	}
	if err := b.advance(stageFunctionTranslated); err != nil {
		return nil, err
	}

	// 3. Entry point
	fnID, _ := b.translator.FunctionID(kernelFn)
	abi, err := b.kernel.emitEntry(fnID)
	if err != nil {
		return nil, err
	}
	if err := b.advance(stageEntryPointAssembled); err != nil {
		return nil, err
	}

	// 4. Header bound and section concatenation
	words, err := b.builder.Finalize()
	if err != nil {
		return nil, err
	}
	if err := b.advance(stageFinalized); err != nil {
		return nil, err
	}

	if b.options.Validation {
		if err := Verify(words); err != nil {
			return nil, err
		}
	}

	unsupported := b.types.Unsupported()
	if b.options.FailOnUnsupported && len(unsupported) > 0 {
		return nil, unsupported[0]
	}

	slogger().Debug("spirv: kernel generated",
		"module", module.Name,
		"functions", len(module.Functions),
		"bound", words[3],
		"unsupported", len(unsupported))

	return &Result{
		Binary:      WordsToBytes(words),
		Words:       words,
		ABI:         abi,
		Unsupported: unsupported,
	}, nil
}

// Compile translates module with a fresh Backend.
func Compile(module *ir.Module, options Options) (*Result, error) {
	return NewBackend(options).Compile(module)
}
