// Package parallax compiles offloaded callables, expressed in the parallax
// IR, into Vulkan-flavored SPIR-V compute kernels.
//
// The generator produces one kernel per IR module. The kernel runs the
// module's first function once per element of a storage buffer, with a
// push-constant element count guarding out-of-range invocations.
//
// Example usage:
//
//	b := ir.NewFunction("scale", ir.Void, ir.Ptr(ir.F32, ir.SpaceBuffer))
//	p := b.Param(0)
//	b.Store(b.Mul(ir.Float, b.Load(p), ir.F32Const(2)), p)
//	b.Ret(nil)
//
//	module := &ir.Module{Name: "scale", Functions: []*ir.Function{b.Function()}}
//	kernel, err := parallax.Compile(module)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// For batches, CompileAll compiles modules in parallel. For repeated
// compilation of the same callables, see the kernelcache package.
package parallax

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/parallax/ir"
	"github.com/gogpu/parallax/spirv"
)

// CompileOptions configures kernel compilation.
type CompileOptions struct {
	// SPIRVVersion is the target SPIR-V version (default: 1.3)
	SPIRVVersion spirv.Version

	// Debug enables debug names in output (OpName)
	Debug bool

	// Validate enables IR validation before code generation and
	// verification of the finished binary
	Validate bool

	// Strict fails compilation when a type has no direct representation
	// instead of falling back to a 32-bit type
	Strict bool

	// EntryPoint names the synthesized kernel (default: "main")
	EntryPoint string
}

// DefaultOptions returns sensible default options.
func DefaultOptions() CompileOptions {
	return CompileOptions{
		SPIRVVersion: spirv.Version1_3,
		Debug:        false,
		Validate:     true,
		EntryPoint:   spirv.DefaultEntryPoint,
	}
}

// SPIRVOptions converts o to generator options.
func (o CompileOptions) SPIRVOptions() spirv.Options {
	opts := spirv.DefaultOptions()
	if o.SPIRVVersion != (spirv.Version{}) {
		opts.Version = o.SPIRVVersion
	}
	if o.EntryPoint != "" {
		opts.EntryPoint = o.EntryPoint
	}
	opts.Debug = o.Debug
	opts.Validation = o.Validate
	opts.FailOnUnsupported = o.Strict
	return opts
}

// Kernel is a compiled module.
type Kernel struct {
	// Name is the IR module name.
	Name string

	// SPIRV is the binary module, little-endian.
	SPIRV []byte

	// ABI describes the bindings and dispatch geometry.
	ABI spirv.KernelABI

	// Warnings lists fallback representations chosen for unsupported
	// types. Always empty in strict mode.
	Warnings []*spirv.Error
}

// Compile compiles module to a SPIR-V kernel using default options.
func Compile(module *ir.Module) (*Kernel, error) {
	return CompileWithOptions(module, DefaultOptions())
}

// CompileWithOptions compiles module to a SPIR-V kernel with custom options.
//
// The compilation pipeline is:
//  1. Validate IR (if enabled)
//  2. Generate SPIR-V
//  3. Verify the binary (if enabled)
func CompileWithOptions(module *ir.Module, opts CompileOptions) (*Kernel, error) {
	if opts.Validate {
		validationErrors, err := Validate(module)
		if err != nil {
			return nil, fmt.Errorf("validation error: %w", err)
		}
		if len(validationErrors) > 0 {
			return nil, fmt.Errorf("validation failed: %w", &validationErrors[0])
		}
	}

	result, err := GenerateSPIRV(module, opts.SPIRVOptions())
	if err != nil {
		return nil, err
	}
	return &Kernel{
		Name:     module.Name,
		SPIRV:    result.Binary,
		ABI:      result.ABI,
		Warnings: result.Unsupported,
	}, nil
}

// Validate validates an IR module for correctness.
//
// Validation checks include:
//   - Kernel signature (one buffer pointer parameter, void result)
//   - Type consistency of operands, stores, calls and returns
//   - Reference validity (operands defined earlier in the same function)
//   - Block structure (exactly one terminator, branch targets in scope)
//
// Returns a slice of validation errors. If the slice is empty, validation passed.
func Validate(module *ir.Module) ([]ir.ValidationError, error) {
	return ir.Validate(module)
}

// GenerateSPIRV generates a SPIR-V kernel from an IR module.
//
// This is the final stage of compilation. The binary can be handed
// directly to vkCreateShaderModule or any other SPIR-V consumer.
func GenerateSPIRV(module *ir.Module, opts spirv.Options) (*spirv.Result, error) {
	backend := spirv.NewBackend(opts)
	result, err := backend.Compile(module)
	if err != nil {
		return nil, fmt.Errorf("SPIR-V generation error: %w", err)
	}
	return result, nil
}

// CompileAll compiles modules concurrently, at most jobs at a time
// (jobs <= 0 means unlimited). Kernels are returned in module order. The
// first failure cancels the remaining work and is returned.
func CompileAll(ctx context.Context, modules []*ir.Module, opts CompileOptions, jobs int) ([]*Kernel, error) {
	kernels := make([]*Kernel, len(modules))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, m := range modules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			k, err := CompileWithOptions(m, opts)
			if err != nil {
				return fmt.Errorf("module %d (%s): %w", i, moduleName(m), err)
			}
			kernels[i] = k
			logger().Debug("parallax: compiled kernel",
				"module", k.Name, "bytes", len(k.SPIRV))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return kernels, nil
}

func moduleName(m *ir.Module) string {
	if m == nil {
		return "<nil>"
	}
	return m.Name
}
